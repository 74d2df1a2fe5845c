package config

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a zap logger from LoggingConfig. levelOverride, when set,
// wins over the configured level.
func NewLogger(lc LoggingConfig, levelOverride string) (*zap.Logger, error) {
	level := lc.Level
	if levelOverride != "" {
		level = levelOverride
	}
	if level == "" {
		level = "info"
	}

	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn", "warning":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		return nil, fmt.Errorf("invalid log level: %s", level)
	}

	var zc zap.Config
	switch lc.Format {
	case "console":
		zc = zap.NewDevelopmentConfig()
	case "json", "":
		zc = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("invalid log format: %s", lc.Format)
	}
	zc.Level = zap.NewAtomicLevelAt(zapLevel)

	if lc.OutputFile != "" {
		if dir := filepath.Dir(lc.OutputFile); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
			}
		}
		zc.OutputPaths = []string{lc.OutputFile}
		zc.ErrorOutputPaths = []string{lc.OutputFile}
	}

	return zc.Build()
}
