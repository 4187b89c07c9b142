package log

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func encode(t *testing.T) string {
	t.Helper()
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	enc := NewColor(cfg)
	buf, err := enc.EncodeEntry(zapcore.Entry{Level: zapcore.ErrorLevel, Time: time.Unix(0, 0), Message: "boom"}, []zapcore.Field{zap.String("k", "v")})
	require.NoError(t, err)
	defer buf.Free()
	return buf.String()
}

func TestColorEncoder_KeepsColours(t *testing.T) {
	DisableANSI(false)
	out := encode(t)
	assert.Contains(t, out, "\u001b[31mERROR\u001b[0m")
	assert.Contains(t, out, "boom")
}

func TestColorEncoder_StripsColoursWhenDisabled(t *testing.T) {
	DisableANSI(true)
	defer DisableANSI(false)
	out := encode(t)
	assert.NotContains(t, out, "\u001b")
	assert.Contains(t, out, "ERROR")
	assert.Contains(t, out, `{"k": "v"}`)
}
