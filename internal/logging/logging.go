// Package logging builds the zerolog logger and the event helpers used by the pipeline stages.
package logging

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string
	Console    bool
	File       bool
	FilePath   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
}

// NewLoggerWithConfig builds the run logger. Console lines go to stderr so
// tables and JSON on stdout stay clean; the file sink rotates by size.
func NewLoggerWithConfig(cfg LogConfig) zerolog.Logger {
	var sinks []io.Writer
	if cfg.Console {
		sinks = append(sinks, zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "15:04:05",
			NoColor:    color.NoColor,
		})
	}
	if w := rotatingFile(cfg); w != nil {
		sinks = append(sinks, w)
	}

	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))

	var out io.Writer = io.Discard
	if len(sinks) == 1 {
		out = sinks[0]
	} else if len(sinks) > 1 {
		out = zerolog.MultiLevelWriter(sinks...)
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

// rotatingFile returns the lumberjack sink, or nil when file logging is off
// or its directory cannot be created.
func rotatingFile(cfg LogConfig) io.Writer {
	if !cfg.File || cfg.FilePath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
		return nil
	}
	return &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   true,
	}
}

// ParseLevel maps a config level name to a zerolog level. Unknown names mean info.
func ParseLevel(level string) zerolog.Level {
	if !ValidLevel(level) {
		return zerolog.InfoLevel
	}
	l, _ := zerolog.ParseLevel(level)
	return l
}

// ValidLevel reports whether level is one ParseLevel knows.
func ValidLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}

// SetDebugLevel sets the global log level to debug.
func SetDebugLevel() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

// ContextKey is the type for context keys.
type ContextKey string

const (
	// LoggerKey is the context key for the logger.
	LoggerKey ContextKey = "logger"
)

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// FromContext retrieves the logger from context.
func FromContext(ctx context.Context) zerolog.Logger {
	return FromContextOr(ctx, zerolog.Nop())
}

// FromContextOr retrieves the logger from context, or fallback when none is attached.
func FromContextOr(ctx context.Context, fallback zerolog.Logger) zerolog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(zerolog.Logger); ok {
		return logger
	}
	return fallback
}

// WithRun adds a run id to the logger context.
func WithRun(logger zerolog.Logger, runID string) zerolog.Logger {
	return logger.With().Str("run_id", runID).Logger()
}

// WithStage adds a pipeline stage name to the logger context.
func WithStage(logger zerolog.Logger, stage string) zerolog.Logger {
	return logger.With().Str("stage", stage).Logger()
}

// WithContract adds a contract key to the logger context.
func WithContract(logger zerolog.Logger, contract string) zerolog.Logger {
	return logger.With().Str("contract", contract).Logger()
}

// LogDropped logs a raw row excluded during normalization.
func LogDropped(logger zerolog.Logger, row int, symbol, reason string, err error) {
	logger.Debug().
		Str("event", "dropped").
		Int("row", row).
		Str("symbol", symbol).
		Str("reason", reason).
		Err(err).
		Msg("Row dropped")
}

// LogFlip logs an over-closing trade that opened a lot in the other direction.
func LogFlip(logger zerolog.Logger, contract, tradeID string, matched, opened int) {
	logger.Warn().
		Str("event", "flip").
		Str("contract", contract).
		Str("trade_id", tradeID).
		Int("matched_qty", matched).
		Int("opened_qty", opened).
		Msg("Exit over-closed open exposure; remainder opened as new lot")
}

// LogStageDone logs a finished pipeline stage.
func LogStageDone(logger zerolog.Logger, stage string, count int, duration time.Duration) {
	logger.Info().
		Str("event", "stage_done").
		Str("stage", stage).
		Int("count", count).
		Dur("duration", duration).
		Msg("Stage completed")
}
