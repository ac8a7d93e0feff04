// Package logging builds the process-wide slog.Logger.
package logging

import (
	"io"
	"log/slog"
	"time"

	"github.com/charmbracelet/log"
)

// New returns a JSON logger at info level in production and a human-readable
// logfmt logger at debug level everywhere else.
func New(env string, w io.Writer) *slog.Logger {
	if env == "production" {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	// *log.Logger implements slog.Handler.
	return slog.New(log.NewWithOptions(w, log.Options{
		TimeFunction:    log.NowUTC,
		TimeFormat:      time.RFC3339,
		Level:           log.DebugLevel,
		ReportTimestamp: true,
		Formatter:       log.LogfmtFormatter,
	}))
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
