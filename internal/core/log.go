package core

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logMu sync.Mutex
	sugar = zap.NewNop().Sugar()
	built bool
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// SetLogLevel configures the process-wide logger. Possible values are
// debug, info, warn and error; anything else leaves the level at info.
// The first call builds the logger, later calls only adjust the level.
func SetLogLevel(l string) {
	logMu.Lock()
	defer logMu.Unlock()

	switch l {
	case "debug":
		level.SetLevel(zapcore.DebugLevel)
	case "info":
		level.SetLevel(zapcore.InfoLevel)
	case "warn":
		level.SetLevel(zapcore.WarnLevel)
	case "error":
		level.SetLevel(zapcore.ErrorLevel)
	}

	if !built {
		cfg := zap.NewProductionConfig()
		cfg.Level = level
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		lg, err := cfg.Build()
		if err != nil {
			return
		}
		sugar = lg.Sugar()
		built = true
	}
}

// Log returns a sugared logger tagged with the given subsystem name.
func Log(sub string) *zap.SugaredLogger {
	logMu.Lock()
	defer logMu.Unlock()
	return sugar.With("sub", sub)
}
