package obs

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// Options controls how NewLogger builds its handler.
type Options struct {
	// Env is the deployment environment; "dev" and "local" get colored text.
	Env string
	// Format forces "text" or "json" regardless of Env.
	Format  string
	Verbose bool
	// Writer defaults to os.Stderr so command output stays clean.
	Writer io.Writer
}

// NewLogger creates a slog logger with dev-friendly output by default.
func NewLogger(opts Options) *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	writer := opts.Writer
	if writer == nil {
		writer = os.Stderr
	}

	if useText(opts) {
		handler := tint.NewHandler(writer, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
			AddSource:  opts.Verbose,
			NoColor:    !isTerminal(writer),
		})
		return slog.New(handler)
	}
	handler := slog.NewJSONHandler(writer, &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
	})
	return slog.New(handler)
}

func useText(opts Options) bool {
	switch opts.Format {
	case "text":
		return true
	case "json":
		return false
	}
	return opts.Env == "" || opts.Env == "dev" || opts.Env == "local"
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd())
}
