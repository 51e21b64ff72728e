package compiler

import (
	"fmt"
	"log/slog"

	"github.com/robbyt/go-replkit/engines/gowasm/toolchain"
)

// FunctionalOption is a function that configures a Compiler instance
type FunctionalOption func(*Compiler) error

// WithToolchain sets the toolchain used to build units.
func WithToolchain(tc toolchain.Toolchain) FunctionalOption {
	return func(c *Compiler) error {
		if tc == nil {
			return fmt.Errorf("toolchain cannot be nil")
		}
		c.toolchain = tc
		return nil
	}
}

// WithLogHandler creates an option to set the log handler for the compiler.
func WithLogHandler(handler slog.Handler) FunctionalOption {
	return func(c *Compiler) error {
		if handler == nil {
			return fmt.Errorf("log handler cannot be nil")
		}
		c.logHandler = handler
		// Clear logger if handler is explicitly set
		c.logger = nil
		return nil
	}
}

// WithLogger creates an option to set a specific logger for the compiler.
func WithLogger(logger *slog.Logger) FunctionalOption {
	return func(c *Compiler) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		c.logger = logger
		// Clear handler if logger is explicitly set
		c.logHandler = nil
		return nil
	}
}

func (c *Compiler) applyDefaults() {
	if c.toolchain == nil {
		c.toolchain = toolchain.NewGoToolchain(toolchain.DefaultBinary, c.logHandler)
	}
}

func (c *Compiler) validate() error {
	if c.toolchain == nil {
		return ErrNoToolchain
	}
	return nil
}
