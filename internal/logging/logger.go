// Package logging provides zap logger helpers.
package logging

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "schedule-crawler"

// New builds a zap.Logger configured for development or production.
func New(development bool) (*zap.Logger, error) {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.DisableStacktrace = false
	}
	cfg.EncoderConfig.TimeKey = "ts"
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger.Named(serviceName), nil
}

// JSON logs v as an indented JSON document at the given level. Nothing is
// encoded when the level is disabled.
func JSON(logger *zap.Logger, level zapcore.Level, msg string, v any) {
	ce := logger.Check(level, msg)
	if ce == nil {
		return
	}
	doc, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		logger.Warn("json dump not encodable", zap.String("dump", msg), zap.Error(err))
		return
	}
	ce.Write(zap.ByteString("json", doc))
}
