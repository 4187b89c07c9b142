// Package log builds the zap loggers used across the engine.
package log

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Emoji = "\U0001F9EA" + " testengine:"

// TODO find better way than global variable
var logCfg zap.Config

// osOpenFile is swapped in tests.
var osOpenFile = os.OpenFile

// New builds the console logger. When logFile is non-empty the same entries are
// also appended to that file.
func New(logFile string) (*zap.Logger, error) {
	_ = zap.RegisterEncoder("colorConsole", func(config zapcore.EncoderConfig) (zapcore.Encoder, error) {
		return NewColor(config), nil
	})

	logCfg = zap.NewDevelopmentConfig()
	logCfg.Encoding = "colorConsole"

	logCfg.EncoderConfig.EncodeTime = customTimeEncoder
	logCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	logCfg.OutputPaths = []string{"stdout"}
	if logFile != "" {
		if err := ensureLogFile(logFile); err != nil {
			return nil, err
		}
		logCfg.OutputPaths = append(logCfg.OutputPaths, logFile)
	}

	logCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	logCfg.DisableStacktrace = true
	logCfg.EncoderConfig.EncodeCaller = nil

	logger, err := logCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build config for logger: %v", err)
	}
	return logger, nil
}

func ensureLogFile(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create the log directory: %v", err)
		}
	}
	f, err := osOpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create the log file: %v", err)
	}
	if f != nil {
		_ = f.Close()
	}
	return nil
}

// ChangeLogLevel rebuilds the logger from the last configuration at the given level.
func ChangeLogLevel(level zapcore.Level) (*zap.Logger, error) {
	logCfg.Level = zap.NewAtomicLevelAt(level)
	if level == zap.DebugLevel {
		logCfg.DisableStacktrace = false
		logCfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	}

	logger, err := logCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build config for logger: %v", err)
	}
	return logger, nil
}

func customTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(Emoji + " " + t.Format(time.RFC3339) + " ")
}
