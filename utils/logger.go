package utils

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogOptions select the level, encoding and sinks of a logger
type LogOptions struct {
	Level   string   // debug, info, warn or error
	Format  string   // json or console
	Outputs []string // zap sink URLs; empty means stderr
}

var (
	mu  sync.RWMutex
	log *zap.Logger
)

// NewLogger builds a zap logger for opts. Command output owns stdout, so the
// default sink is stderr.
func NewLogger(opts LogOptions) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		parsed, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = parsed
	}

	config := zap.NewProductionConfig()
	switch strings.ToLower(opts.Format) {
	case "", "json":
	case "console":
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, fmt.Errorf("invalid log format %q: want json or console", opts.Format)
	}
	config.Level = zap.NewAtomicLevelAt(level)
	config.Development = false

	outputs := opts.Outputs
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}
	config.OutputPaths = outputs
	config.ErrorOutputPaths = []string{"stderr"}

	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger.Named("candyarb"), nil
}

// InitLogger builds a logger for opts and installs it as the global logger,
// flushing the one it replaces.
func InitLogger(opts LogOptions) (*zap.Logger, error) {
	logger, err := NewLogger(opts)
	if err != nil {
		return nil, err
	}

	mu.Lock()
	prev := log
	log = logger
	mu.Unlock()

	if prev != nil {
		_ = prev.Sync()
	}
	return logger, nil
}

// GetLogger returns the global logger, building an info-level JSON logger
// on first use.
func GetLogger() *zap.Logger {
	mu.RLock()
	current := log
	mu.RUnlock()
	if current != nil {
		return current
	}

	logger, err := InitLogger(LogOptions{})
	if err != nil {
		panic(err)
	}
	return logger
}

// CleanupLogger flushes any buffered log entries
func CleanupLogger() {
	mu.RLock()
	defer mu.RUnlock()
	if log != nil {
		_ = log.Sync()
	}
}
