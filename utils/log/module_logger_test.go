package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newBufferedLogger(buf *bytes.Buffer) *zap.Logger {
	encoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	core := zapcore.NewCore(encoder, zapcore.AddSync(buf), zapcore.DebugLevel)
	return zap.New(core)
}

func TestModuleLoggerFactory_GlobalDebugEnabled(t *testing.T) {
	factory := NewModuleLoggerFactory(zap.NewNop(), true, nil)
	assert.True(t, factory.IsDebugEnabled("any-module"))
}

func TestModuleLoggerFactory_ModuleSpecificDebug(t *testing.T) {
	factory := NewModuleLoggerFactory(zap.NewNop(), false, []string{ModuleLoad})

	assert.True(t, factory.IsDebugEnabled(ModuleLoad))
	assert.False(t, factory.IsDebugEnabled(ModuleAPITest))
	assert.False(t, factory.IsDebugEnabled("unknown"))
}

func TestModuleLoggerFactory_GetLogger_FiltersDebugWhenDisabled(t *testing.T) {
	var buf bytes.Buffer
	factory := NewModuleLoggerFactory(newBufferedLogger(&buf), false, nil)

	logger := factory.GetLogger(ModuleMockData)
	logger.Debug("hidden debug line")
	logger.Info("visible info line")

	out := buf.String()
	assert.NotContains(t, out, "hidden debug line")
	assert.Contains(t, out, "visible info line")
	assert.Contains(t, out, ModuleMockData)
}

func TestModuleLoggerFactory_GetLogger_KeepsDebugWhenEnabled(t *testing.T) {
	var buf bytes.Buffer
	factory := NewModuleLoggerFactory(newBufferedLogger(&buf), false, []string{ModuleScenario})

	factory.GetLogger(ModuleScenario).Debug("step detail")

	assert.Contains(t, buf.String(), "step detail")
}
