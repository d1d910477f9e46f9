// Package logging builds the zap logger used across the server.
//
// Stdout carries MCP frames, so logs must never go there.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gomcpgo/remote_image_ai/pkg/config"
)

// New builds a logger from cfg. Debug forces the debug level.
func New(cfg config.LogConfig, debug bool) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zapcore.InfoLevel
	}
	if debug {
		level = zapcore.DebugLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoding = "console"
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs, err := sanitizeOutputs(cfg.OutputPaths)
	if err != nil {
		return nil, err
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      encoding == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
	}

	return zapConfig.Build()
}

// MustNew is New with a production fallback, for main.
func MustNew(cfg config.LogConfig, debug bool) *zap.Logger {
	logger, err := New(cfg, debug)
	if err != nil {
		fallback, ferr := zap.NewProduction()
		if ferr != nil {
			return zap.NewNop()
		}
		fallback.Warn("falling back to default logger", zap.Error(err))
		return fallback
	}
	return logger
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

func sanitizeOutputs(paths []string) ([]string, error) {
	if len(paths) == 0 {
		return []string{"stderr"}, nil
	}
	for _, p := range paths {
		if p == "stdout" {
			return nil, fmt.Errorf("log output %q would corrupt the stdio transport", p)
		}
	}
	return paths, nil
}
