package daemon

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger opens the configured log file in append mode and returns a
// zerolog logger writing to it. Every process of a run shares the file.
// With no file configured it logs to stderr.
func NewLogger(cfg LoggingConfig) (zerolog.Logger, func() error, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var w io.Writer = os.Stderr
	closeFn := func() error { return nil }
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0700); err != nil {
			return zerolog.Nop(), closeFn, err
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return zerolog.Nop(), closeFn, err
		}
		w = f
		closeFn = f.Close
	}

	logger := zerolog.New(w).Level(level).With().Timestamp().Int("pid", os.Getpid()).Logger()
	return logger, closeFn, nil
}
