// Package logging configures the global zerolog logger for the handoff binaries.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects where log lines go.
type Options struct {
	Level   string // zerolog level name, "info" when empty
	File    string // rotating log file, none when empty
	Console bool   // human readable output on stderr
	JSON    io.Writer
}

var (
	setupOnce sync.Once
	writerMu  sync.Mutex
	logWriter *lumberjack.Logger
)

// Setup installs the global logger. Only the first call takes effect.
func Setup(opts Options) error {
	var setupErr error
	setupOnce.Do(func() {
		setupErr = configure(opts)
	})
	return setupErr
}

func configure(opts Options) error {
	writerMu.Lock()
	defer writerMu.Unlock()

	level := zerolog.InfoLevel
	if opts.Level != "" {
		parsed, err := zerolog.ParseLevel(opts.Level)
		if err != nil {
			return errors.Wrapf(err, "[logging Setup] level %q", opts.Level)
		}
		level = parsed
	}
	zerolog.SetGlobalLevel(level)

	var writers []io.Writer
	if opts.Console {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	if opts.JSON != nil {
		writers = append(writers, opts.JSON)
	}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return errors.Wrap(err, "[logging Setup] failed to create log directory")
		}
		logWriter = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
		}
		writers = append(writers, logWriter)
	}
	if len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
	return nil
}

// Close flushes and closes the log file, if any.
func Close() {
	writerMu.Lock()
	defer writerMu.Unlock()
	if logWriter != nil {
		_ = logWriter.Close()
		logWriter = nil
	}
}
