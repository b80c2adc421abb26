// Package logging provides zap logger helpers.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap.Logger configured for development or production at the
// given minimum level. An empty level means info.
func New(development bool, level string) (*zap.Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = lvl
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

func parseLevel(level string) (zap.AtomicLevel, error) {
	if strings.TrimSpace(level) == "" {
		return zap.NewAtomicLevelAt(zapcore.InfoLevel), nil
	}
	lvl, err := zap.ParseAtomicLevel(strings.ToLower(level))
	if err != nil {
		return zap.AtomicLevel{}, fmt.Errorf("logging.level: %w", err)
	}
	return lvl, nil
}
