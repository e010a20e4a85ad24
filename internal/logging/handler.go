package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Output formats accepted by NewLogger.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Options controls how NewLogger builds its handler.
type Options struct {
	// Debug lowers the minimum level to slog.LevelDebug.
	Debug bool
	// Format is FormatText (default) or FormatJSON.
	Format string
}

// NewLogger returns a logger writing to w in the requested format.
func NewLogger(w io.Writer, opts Options) (*slog.Logger, error) {
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(opts.Format) {
	case "", FormatText:
		return slog.New(slog.NewTextHandler(w, handlerOpts)), nil
	case FormatJSON:
		return slog.New(slog.NewJSONHandler(w, handlerOpts)), nil
	default:
		return nil, fmt.Errorf("unsupported log format %q (must be %q or %q)", opts.Format, FormatText, FormatJSON)
	}
}
