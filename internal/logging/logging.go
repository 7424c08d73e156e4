// Package logging builds the daemon's zap logger.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewConfig returns the logger config for level and format (console|json).
// Stacktraces are disabled and timestamps are ISO8601.
func NewConfig(level, format string) (zap.Config, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return zap.Config{}, fmt.Errorf("parse log level: %w", err)
	}

	encodeLevel := zapcore.CapitalColorLevelEncoder
	switch format {
	case "", "console":
		format = "console"
	case "json":
		encodeLevel = zapcore.LowercaseLevelEncoder
	default:
		return zap.Config{}, fmt.Errorf("unknown log format %q", format)
	}

	return zap.Config{
		Level:    zap.NewAtomicLevelAt(lvl),
		Encoding: format,
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    encodeLevel,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		DisableStacktrace: true,
		OutputPaths:       []string{"stderr"},
		ErrorOutputPaths:  []string{"stderr"},
	}, nil
}

// New builds a logger and installs it as the zap global. The returned
// function restores the previous globals and flushes the logger.
func New(level, format string) (*zap.Logger, func(), error) {
	cfg, err := NewConfig(level, format)
	if err != nil {
		return nil, nil, err
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}
	restore := zap.ReplaceGlobals(logger.Named("estop"))
	return logger, func() {
		_ = logger.Sync()
		restore()
	}, nil
}
