package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/karelxkk/svx-dashboard/internal/platform/correlation"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects level, format and an optional rotating log file.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // json or text
	File   string // also write to this file when set
}

// ParseLevel maps a level name to slog, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a correlation-aware logger writing to w.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(correlation.NewHandler(handler))
}

// InitLogger installs the default logger. The returned closer flushes the log file, if any.
func InitLogger(o Options) io.Closer {
	var w io.Writer = os.Stdout
	var closer io.Closer = nopCloser{}

	if o.File != "" {
		file := &lumberjack.Logger{
			Filename:   o.File,
			MaxSize:    20,
			MaxBackups: 5,
			MaxAge:     14,
			Compress:   true,
		}
		w = io.MultiWriter(os.Stdout, file)
		closer = file
	}

	slog.SetDefault(New(w, o.Level, o.Format))
	return closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
