package options

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/robbyt/go-replkit/engines/gowasm/toolchain"
	"github.com/robbyt/go-replkit/platform/script/loader"
)

// DefaultTimeout bounds compiling and running one snippet.
const DefaultTimeout = 2 * time.Minute

// DefaultConfig initializes a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		handler:        DefaultHandler(),
		goBinary:       toolchain.DefaultBinary,
		timeout:        DefaultTimeout,
		output:         DefaultOutput(),
		httpOptions:    loader.DefaultHTTPOptions(),
		fetchCacheSize: loader.DefaultCacheSize,
	}
}

// DefaultHandler returns the default logging handler
func DefaultHandler() slog.Handler {
	return slog.NewTextHandler(os.Stdout, nil)
}

// DefaultOutput returns where user output goes when nothing else is configured
func DefaultOutput() io.Writer {
	return os.Stdout
}

// WithDefaults applies default values to any config properties that are unset
func WithDefaults() Option {
	return func(c *Config) error {
		if c.handler == nil {
			c.handler = DefaultHandler()
		}
		if c.goBinary == "" {
			c.goBinary = toolchain.DefaultBinary
		}
		if c.output == nil {
			c.output = DefaultOutput()
		}
		if c.httpOptions == nil {
			c.httpOptions = loader.DefaultHTTPOptions()
		}
		if c.fetchCacheSize == 0 {
			c.fetchCacheSize = loader.DefaultCacheSize
		}
		return nil
	}
}

// New builds a Config from the defaults and opts, then validates it.
func New(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	if err := WithDefaults()(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
