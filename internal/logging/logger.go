// Package logging builds the process-wide zap logger and the
// per-plugin child loggers handed to plugins during init (spec.md
// §4.9, C14).
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LevelFromEnv reads ALUMET_LOG, falling back to RUST_LOG for parity
// with the original implementation's env var, then defaults to info.
// Only the coarse level name is honoured; per-target filters
// ("module=debug") are not.
func LevelFromEnv() zapcore.Level {
	raw := os.Getenv("ALUMET_LOG")
	if raw == "" {
		raw = os.Getenv("RUST_LOG")
	}
	return parseLevel(raw)
}

func parseLevel(raw string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace", "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "":
		return zapcore.InfoLevel
	default:
		return zapcore.InfoLevel
	}
}

// New builds the root logger: console-encoded, level from env, ISO8601
// timestamps. Plugins never build their own logger; they get a named
// child via Named.
func New() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(LevelFromEnv())
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return cfg.Build()
}

// ForPlugin returns a child logger scoped to one plugin, the same
// pattern alumet's tracing spans use to prefix every plugin's log
// lines with its name.
func ForPlugin(root *zap.Logger, pluginName string) *zap.Logger {
	return root.Named(pluginName)
}
