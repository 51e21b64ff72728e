package runner

import (
	"fmt"
	"io"
	"log/slog"
)

// Option configures a WASI runner.
type Option func(*WASI) error

// WithOutput forwards the guest's user output (its stdout and stderr) to w.
func WithOutput(w io.Writer) Option {
	return func(r *WASI) error {
		if w == nil {
			return fmt.Errorf("output writer cannot be nil")
		}
		r.output = w
		return nil
	}
}

// WithTailSize sets how many trailing bytes of user output are kept for error reports.
func WithTailSize(n int) Option {
	return func(r *WASI) error {
		if n <= 0 {
			return fmt.Errorf("tail size must be positive, got %d", n)
		}
		r.tailSize = n
		return nil
	}
}

// WithLogHandler sets the log handler for the runner.
func WithLogHandler(handler slog.Handler) Option {
	return func(r *WASI) error {
		if handler == nil {
			return fmt.Errorf("log handler cannot be nil")
		}
		r.logHandler = handler
		return nil
	}
}
