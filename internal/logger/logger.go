// Package logger builds the zap logger used across tillbook.
package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Modes accepted by New.
const (
	ModeDevelopment = "development"
	ModeProduction  = "production"
	ModeQuiet       = "quiet"
)

// New builds a logger writing to stderr. Development mode prints colored
// console lines; production mode prints JSON with ISO8601 timestamps; quiet
// discards everything. An empty level keeps the mode's default.
func New(mode, level string) (*zap.Logger, error) {
	var cfg zap.Config

	switch strings.ToLower(mode) {
	case ModeQuiet:
		return zap.NewNop(), nil
	case ModeDevelopment, "dev", "debug":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	case ModeProduction, "prod", "":
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	default:
		return nil, fmt.Errorf("unknown log mode %q", mode)
	}

	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("parsing log level: %w", err)
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	log, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return log, nil
}
