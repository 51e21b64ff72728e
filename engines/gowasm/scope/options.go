package scope

import (
	"fmt"
	"log/slog"

	"github.com/tetratelabs/wazero"

	"github.com/robbyt/go-replkit/platform/script/loader"
)

// Option configures a Scope.
type Option func(*Scope) error

// WithParentDir creates the artifact area under dir instead of os.TempDir.
func WithParentDir(dir string) Option {
	return func(s *Scope) error {
		s.parentDir = dir
		return nil
	}
}

// WithCompilationCache shares compiled machine code between runtimes.
func WithCompilationCache(cache wazero.CompilationCache) Option {
	return func(s *Scope) error {
		if cache == nil {
			return fmt.Errorf("compilation cache cannot be nil")
		}
		s.compilationCache = cache
		return nil
	}
}

// WithFetchCache shares downloaded classpath archives between scopes.
func WithFetchCache(cache *loader.Cache) Option {
	return func(s *Scope) error {
		if cache == nil {
			return fmt.Errorf("fetch cache cannot be nil")
		}
		s.fetchCache = cache
		return nil
	}
}

// WithSources sets the HTTP and S3 settings used for remote classpath entries.
func WithSources(src loader.Sources) Option {
	return func(s *Scope) error {
		s.sources = src
		return nil
	}
}

// WithClasspath adds entries when the scope is created.
func WithClasspath(entries ...string) Option {
	return func(s *Scope) error {
		s.initialClasspath = append(s.initialClasspath, entries...)
		return nil
	}
}

// WithLogHandler sets the log handler for the scope.
func WithLogHandler(handler slog.Handler) Option {
	return func(s *Scope) error {
		if handler == nil {
			return fmt.Errorf("log handler cannot be nil")
		}
		s.logHandler = handler
		return nil
	}
}
