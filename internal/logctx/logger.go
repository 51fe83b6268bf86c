package logctx

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the process logger.
type Options struct {
	Level  slog.Level
	Format string // "json" or "text"

	// File, when set, receives a copy of every record and is rotated by size.
	File         string
	MaxSizeMB    int
	MaxBackups   int
	MaxAgeDays   int
	Stdout       io.Writer
	DisableColor bool
}

// NewLogger builds the handler chain: a JSON or tint base handler wrapped in a TraceHandler.
// The returned closer releases the log file, if any.
func NewLogger(opts Options) (*slog.Logger, io.Closer) {
	var out io.Writer = os.Stdout
	if opts.Stdout != nil {
		out = opts.Stdout
	}

	var closer io.Closer = nopCloser{}

	if opts.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
		}
		out = io.MultiWriter(out, rotator)
		closer = rotator
	}

	var base slog.Handler

	switch strings.ToLower(opts.Format) {
	case "text":
		base = tint.NewHandler(out, &tint.Options{
			Level:      opts.Level,
			TimeFormat: time.DateTime,
			NoColor:    opts.DisableColor || opts.File != "",
		})
	default:
		base = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: opts.Level})
	}

	return slog.New(NewTraceHandler(base)), closer
}

// ParseLevel maps DEBUG/INFO/WARN/ERROR to a slog level, defaulting to INFO.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
