// Package logging builds the service's zap logger: a console core and an
// optional rotating file core teed together, wrapped in a core that
// redacts credentials before anything is encoded.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config describes where and how the service logs.
type Config struct {
	// Level is the minimum enabled level.
	Level zapcore.Level

	// Development switches the console to colored human readable output.
	Development bool

	// FilePath enables JSON file logging with rotation when non-empty.
	FilePath string

	// File controls rotation of FilePath.
	File FileWriterConfig

	// Console receives console output. Defaults to os.Stdout.
	Console zapcore.WriteSyncer
}

// DefaultConfig returns an info-level production configuration writing to
// filePath.
func DefaultConfig(filePath string) Config {
	return Config{
		Level:    zapcore.InfoLevel,
		FilePath: filePath,
		File:     DefaultFileWriterConfig(),
	}
}

// NewLogger builds a *zap.Logger from config.
//
// Example:
//
//	logger := logging.NewLogger(logging.DefaultConfig("dashboard.log"))
//	defer logger.Sync()
//	logger.Named("stream").Info("client connected", zap.String("category", "kpi"))
func NewLogger(config Config) *zap.Logger {
	core := NewCore(config)

	opts := []zap.Option{
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	}
	if config.Development {
		opts = append(opts, zap.Development())
	}
	return zap.New(core, opts...)
}

// NewCore builds the redacting console and file tee described by config.
func NewCore(config Config) zapcore.Core {
	console := config.Console
	if console == nil {
		console = zapcore.Lock(os.Stdout)
	}

	var consoleEncoder zapcore.Encoder
	if config.Development {
		consoleEncoder = zapcore.NewConsoleEncoder(NewConsoleEncoderConfig())
	} else {
		consoleEncoder = zapcore.NewJSONEncoder(NewEncoderConfig())
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, console, config.Level),
	}
	if config.FilePath != "" {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(NewEncoderConfig()),
			NewFileWriter(config.FilePath, config.File),
			config.Level,
		))
	}

	return NewRedactingCore(zapcore.NewTee(cores...))
}
