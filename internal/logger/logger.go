package logger

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logger configuration
type Config struct {
	Level  string
	Format string // json or console
	Path   string // empty = stdout only
}

// New creates a zerolog logger with optional file rotation
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var writer io.Writer = os.Stdout
	if cfg.Path != "" {
		_ = os.MkdirAll(filepath.Dir(cfg.Path), 0o755)
		rotating := &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    100, // MB
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
		writer = io.MultiWriter(os.Stdout, rotating)
	}

	if cfg.Format == "console" {
		writer = zerolog.ConsoleWriter{Out: writer, TimeFormat: time.RFC3339}
	}

	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}
