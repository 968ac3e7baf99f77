package logger

import (
	"log/slog"
	"os"
)

// New returns the process-wide structured logger. Production emits JSON for
// log shipping; anything else gets the text handler with debug enabled.
func New(production bool) *slog.Logger {
	if production {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
