package telemetry

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a zap logger for cmd/meshsim and any other host
// binary. format is "json" or "console"; level is one of zap's usual
// names ("debug", "info", "warn", "error").
//
// Grounded on 23skdu-longbow's internal/logging/logger.go, trimmed of
// its Prometheus log-metrics hook since Metrics already covers the
// counters this repo cares about.
func NewLogger(level, format string) (*zap.SugaredLogger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}

	var encCfg zapcore.EncoderConfig
	var encoder zapcore.Encoder
	switch strings.ToLower(format) {
	case "console", "text":
		encCfg = zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	default:
		encCfg = zap.NewProductionEncoderConfig()
		encCfg.TimeKey = "ts"
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), lvl)
	return zap.New(core, zap.AddCaller()).Sugar(), nil
}

// NopLogger returns a logger that discards everything, the default a
// Coordinator is built with until a host opts in.
func NopLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
