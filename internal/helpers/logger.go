package helpers

import (
	"log/slog"
	"os"
)

// SetupLogger returns the handler a pipeline component should keep and a logger grouped
// under groupName (no extra group when empty).
//
// A nil handler is replaced by a text handler on os.Stderr, never os.Stdout, grouped under
// component. The replacement logs one warning.
func SetupLogger(handler slog.Handler, component string, groupName string) (slog.Handler, *slog.Logger) {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, nil).WithGroup(component)
		slog.New(handler).Warn("no log handler configured, logging to stderr")
	}

	if groupName == "" {
		return handler, slog.New(handler)
	}
	return handler, slog.New(handler.WithGroup(groupName))
}
