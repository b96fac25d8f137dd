package testutil

import (
	"log/slog"
)

// DiscardLogger returns a slog.Logger that discards all output.
// Use this in tests to reduce noise. log.Logger is a type alias for
// *slog.Logger, so this satisfies components built on internal/log too.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
