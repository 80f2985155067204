package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	slogmulti "github.com/samber/slog-multi"
)

// SetupLogger logs text to stderr and, when cfg.LogFile is set, JSON to that file.
// If the file cannot be opened the logger falls back to stderr only.
// The returned func closes the file.
func SetupLogger(cfg Config) (*slog.Logger, func() error) {
	noop := func() error { return nil }
	if cfg.LogFile == "" {
		return SetupLoggerWithWriters(os.Stderr, nil, cfg.LogLevel), noop
	}

	file, err := openLogFile(cfg.LogFile)
	if err != nil {
		logger := SetupLoggerWithWriters(os.Stderr, nil, cfg.LogLevel)
		logger.Error("log file unavailable, using stderr only", "file", cfg.LogFile, "error", err)
		return logger, noop
	}
	return SetupLoggerWithWriters(os.Stderr, file, cfg.LogLevel), file.Close
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return file, nil
}

// SetupLoggerWithWriters builds the text+JSON fanout on arbitrary writers.
// A nil file gives a text-only logger.
func SetupLoggerWithWriters(stderr, file io.Writer, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	text := slog.NewTextHandler(stderr, opts)
	if file == nil {
		return slog.New(text)
	}
	return slog.New(slogmulti.Fanout(text, slog.NewJSONHandler(file, opts)))
}
