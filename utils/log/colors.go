package log

import (
	"bytes"
	"regexp"
	"sync/atomic"

	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

var (
	ansiDisabled atomic.Bool
	ansiSeq      = regexp.MustCompile("\u001b\\[[0-9;]*m")
)

// DisableANSI makes every colorConsole encoder strip colour sequences, for
// log files and terminals that cannot render them.
func DisableANSI(disable bool) {
	ansiDisabled.Store(disable)
}

type colorEncoder struct {
	*zapcore.EncoderConfig
	zapcore.Encoder
}

func NewColor(cfg zapcore.EncoderConfig) zapcore.Encoder {
	return colorEncoder{
		EncoderConfig: &cfg,
		Encoder:       zapcore.NewConsoleEncoder(cfg),
	}
}

// EncodeEntry un-escapes the colour sequences the console encoder quotes, or
// drops them when ANSI output is disabled.
func (c colorEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	buf, err := c.Encoder.EncodeEntry(ent, fields)
	if err != nil {
		return nil, err
	}
	out := bytes.ReplaceAll(buf.Bytes(), []byte("\\u001b"), []byte("\u001b"))
	if ansiDisabled.Load() {
		out = ansiSeq.ReplaceAll(out, nil)
	}
	buf.Reset()
	_, _ = buf.Write(out)
	return buf, nil
}

func (c colorEncoder) Clone() zapcore.Encoder {
	return colorEncoder{
		EncoderConfig: c.EncoderConfig,
		Encoder:       c.Encoder.Clone(),
	}
}
