// Package logger builds the zerolog logger used across plesc. While the
// terminal UI is running stdout belongs to bubbletea, so logs go to a file.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	Level  string // debug, info, warn, error
	Pretty bool
	Output io.Writer
	// File is used when Output is nil. Empty means stderr.
	File string
}

// New returns a logger and a close function for the underlying file, if any.
func New(cfg Config) (zerolog.Logger, func() error, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	closeFn := func() error { return nil }
	output := cfg.Output
	if output == nil {
		if cfg.File == "" {
			output = os.Stderr
		} else {
			if err := os.MkdirAll(filepath.Dir(cfg.File), 0700); err != nil {
				return zerolog.Nop(), closeFn, fmt.Errorf("failed to create log directory: %w", err)
			}
			f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
			if err != nil {
				return zerolog.Nop(), closeFn, fmt.Errorf("failed to open log file: %w", err)
			}
			output = f
			closeFn = f.Close
		}
	}

	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	logger := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Str("service", "plesc").
		Logger()

	return logger, closeFn, nil
}
