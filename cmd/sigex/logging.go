package main

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// configureRuntimeLogger builds the process logger. Logs go to cfg.LogFile
// as JSON, or to stderr in console form with log-stderr. The returned
// func syncs and closes the sink.
func configureRuntimeLogger(cfg appConfig) (*zap.Logger, func(), error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log-level %q: %w", cfg.LogLevel, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	if cfg.LogStderr || cfg.LogFile == "" {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), level)
		logger := zap.New(core)
		return logger, func() { _ = logger.Sync() }, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), level)
	logger := zap.New(core, zap.AddCaller())
	return logger, func() {
		_ = logger.Sync()
		_ = f.Close()
	}, nil
}
