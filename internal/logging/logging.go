package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"folder-sanitizer/internal/config"
)

// Logger is a levelled wrapper over the standard logger.
// Lines have the form "[LEVEL] msg key value ...".
type Logger struct {
	*log.Logger
	debug bool
	file  *lumberjack.Logger
}

// New creates a logger writing to console (may be nil) and, when cfg.File is
// set, to a size-rotated log file.
func New(cfg config.LoggingCfg, console io.Writer) (*Logger, error) {
	var writers []io.Writer
	if console != nil {
		writers = append(writers, console)
	}

	var file *lumberjack.Logger
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		file = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxAge:     cfg.MaxAgeDays,
			MaxBackups: cfg.MaxBackups,
			Compress:   cfg.Compress,
		}
		writers = append(writers, file)
	}

	var out io.Writer = io.Discard
	switch len(writers) {
	case 0:
	case 1:
		out = writers[0]
	default:
		out = io.MultiWriter(writers...)
	}

	return &Logger{
		Logger: log.New(out, "", log.LstdFlags|log.Lmicroseconds),
		debug:  cfg.Debug,
		file:   file,
	}, nil
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return &Logger{Logger: log.New(io.Discard, "", 0)}
}

func (l *Logger) Debug(msg string, args ...any) {
	if l.debug {
		l.logWithLevel("DEBUG", msg, args...)
	}
}

func (l *Logger) Info(msg string, args ...any) {
	l.logWithLevel("INFO", msg, args...)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.logWithLevel("WARN", msg, args...)
}

func (l *Logger) Error(msg string, args ...any) {
	l.logWithLevel("ERROR", msg, args...)
}

func (l *Logger) logWithLevel(level, msg string, args ...any) {
	parts := make([]any, 0, len(args)+2)
	parts = append(parts, fmt.Sprintf("[%s]", level), msg)
	parts = append(parts, args...)
	l.Logger.Println(parts...)
}

// Close flushes and closes the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
