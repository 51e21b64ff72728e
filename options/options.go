// Package options configures an Evaluator. Settings come from functional options, a
// Starlark profile (FromProfile) or the environment (FromEnv); later options win.
package options

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/robbyt/go-replkit/engines/gowasm/runner"
	"github.com/robbyt/go-replkit/engines/gowasm/toolchain"
	"github.com/robbyt/go-replkit/platform/script/loader"
)

// Config holds all configuration for creating an Evaluator
type Config struct {
	handler        slog.Handler
	toolchain      toolchain.Toolchain
	runner         runner.Runner
	goBinary       string
	workDir        string
	timeout        time.Duration
	output         io.Writer
	classpath      []string
	prelude        []string
	httpOptions    *loader.HTTPOptions
	s3Options      *loader.S3Options
	fetchCacheSize int
}

// Option is a function that modifies Config
type Option func(*Config) error

// WithLogHandler sets the log handler shared by every component
func WithLogHandler(handler slog.Handler) Option {
	return func(c *Config) error {
		if handler == nil {
			return fmt.Errorf("log handler cannot be nil")
		}
		c.handler = handler
		return nil
	}
}

// WithToolchain replaces the go toolchain used to build units
func WithToolchain(tc toolchain.Toolchain) Option {
	return func(c *Config) error {
		if tc == nil {
			return fmt.Errorf("toolchain cannot be nil")
		}
		c.toolchain = tc
		return nil
	}
}

// WithRunner replaces the runner that executes loaded units
func WithRunner(r runner.Runner) Option {
	return func(c *Config) error {
		if r == nil {
			return fmt.Errorf("runner cannot be nil")
		}
		c.runner = r
		return nil
	}
}

// WithGoBinary sets the go command used by the default toolchain
func WithGoBinary(path string) Option {
	return func(c *Config) error {
		c.goBinary = path
		return nil
	}
}

// WithWorkDir sets the directory session scopes are created in. Empty means os.TempDir.
func WithWorkDir(dir string) Option {
	return func(c *Config) error {
		c.workDir = dir
		return nil
	}
}

// WithTimeout bounds compiling and running a single snippet. Zero disables the limit.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) error {
		c.timeout = d
		return nil
	}
}

// WithOutput sets where user output of evaluated snippets is written
func WithOutput(w io.Writer) Option {
	return func(c *Config) error {
		if w == nil {
			return fmt.Errorf("output writer cannot be nil")
		}
		c.output = w
		return nil
	}
}

// WithClasspath appends entries added to every new session scope
func WithClasspath(entries ...string) Option {
	return func(c *Config) error {
		c.classpath = append(c.classpath, entries...)
		return nil
	}
}

// WithPrelude appends snippets evaluated when a session starts and after every reset
func WithPrelude(snippets ...string) Option {
	return func(c *Config) error {
		c.prelude = append(c.prelude, snippets...)
		return nil
	}
}

// WithHTTPOptions sets how http(s) classpath entries are fetched
func WithHTTPOptions(opts *loader.HTTPOptions) Option {
	return func(c *Config) error {
		if opts == nil {
			return fmt.Errorf("http options cannot be nil")
		}
		c.httpOptions = opts.Clone()
		return nil
	}
}

// WithS3Options sets the object store used for s3:// classpath entries
func WithS3Options(opts *loader.S3Options) Option {
	return func(c *Config) error {
		if opts == nil {
			return fmt.Errorf("s3 options cannot be nil")
		}
		cp := *opts
		c.s3Options = &cp
		return nil
	}
}

// WithFetchCacheSize sets how many downloaded archives are kept in memory
func WithFetchCacheSize(n int) Option {
	return func(c *Config) error {
		c.fetchCacheSize = n
		return nil
	}
}

// Validate performs basic validation on the configuration
func (c *Config) Validate() error {
	if c.timeout < 0 {
		return ErrInvalidTimeout
	}
	if c.fetchCacheSize <= 0 {
		return ErrInvalidCacheSize
	}
	if c.toolchain == nil && c.goBinary == "" {
		return ErrNoGoBinary
	}
	return nil
}

func (c *Config) String() string {
	return fmt.Sprintf("options.Config{GoBinary: %s, WorkDir: %s, Timeout: %s, Classpath: %d, Prelude: %d}",
		c.goBinary, c.workDir, c.timeout, len(c.classpath), len(c.prelude))
}

// GetHandler returns the configured log handler
func (c *Config) GetHandler() slog.Handler {
	return c.handler
}

// GetToolchain returns the injected toolchain, or nil for the default
func (c *Config) GetToolchain() toolchain.Toolchain {
	return c.toolchain
}

// GetRunner returns the injected runner, or nil for the default
func (c *Config) GetRunner() runner.Runner {
	return c.runner
}

// GetGoBinary returns the go command for the default toolchain
func (c *Config) GetGoBinary() string {
	return c.goBinary
}

// GetWorkDir returns the parent directory for session scopes
func (c *Config) GetWorkDir() string {
	return c.workDir
}

// GetTimeout returns the per-snippet time limit
func (c *Config) GetTimeout() time.Duration {
	return c.timeout
}

// GetOutput returns the writer receiving user output
func (c *Config) GetOutput() io.Writer {
	return c.output
}

// GetClasspath returns a copy of the base classpath entries
func (c *Config) GetClasspath() []string {
	return slices.Clone(c.classpath)
}

// GetPrelude returns a copy of the prelude snippets
func (c *Config) GetPrelude() []string {
	return slices.Clone(c.prelude)
}

// GetHTTPOptions returns the http fetch settings
func (c *Config) GetHTTPOptions() *loader.HTTPOptions {
	return c.httpOptions
}

// GetS3Options returns the object store settings, nil when unset
func (c *Config) GetS3Options() *loader.S3Options {
	return c.s3Options
}

// GetFetchCacheSize returns the archive cache size
func (c *Config) GetFetchCacheSize() int {
	return c.fetchCacheSize
}

// Sources returns the settings remote classpath entries are fetched with
func (c *Config) Sources() loader.Sources {
	src := loader.Sources{S3: c.s3Options}
	if c.httpOptions != nil {
		src.HTTP = c.httpOptions.Clone()
	}
	return src
}
