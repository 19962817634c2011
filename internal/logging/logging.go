// Package logging constructs the single *zap.Logger threaded through
// every Queen component constructor. No package-level global logger
// is used; every component receives its logger explicitly.
package logging

import "go.uber.org/zap"

// New builds a *zap.Logger for the given format ("json" or "console")
// and level ("debug", "info", "warn", "error"). Unknown levels default
// to info; unknown formats default to json.
func New(format, level string) (*zap.Logger, error) {
	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	var lvl zap.AtomicLevel
	switch level {
	case "debug":
		lvl = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		lvl = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		lvl = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		lvl = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	cfg.Level = lvl

	return cfg.Build()
}
