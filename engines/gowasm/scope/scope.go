// Package scope is the session's dynamic loader. A Scope owns an artifact directory, a
// wazero runtime with WASI preview1, the registry of loaded unit names and the ordered
// classpath. Names are never unregistered: a name loads once per Scope, and the only way
// to reuse it is to dispose the Scope and create a new one.
package scope

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/robbyt/go-replkit/internal/helpers"
	"github.com/robbyt/go-replkit/platform/failure"
	"github.com/robbyt/go-replkit/platform/script/loader"
)

const (
	dirPattern   = "replkit-scope-"
	ClasspathDir = "classpath"
)

// Scope is an isolated loading context. It is safe for concurrent use.
type Scope struct {
	parentDir        string
	compilationCache wazero.CompilationCache
	fetchCache       *loader.Cache
	sources          loader.Sources
	initialClasspath []string
	logHandler       slog.Handler
	logger           *slog.Logger

	root    string
	runtime wazero.Runtime

	mu        sync.RWMutex
	loaded    map[string]struct{}
	classpath []string
	disposed  bool
}

// New creates the artifact area and the runtime, then adds the WithClasspath entries.
// On any failure everything created so far is removed.
func New(ctx context.Context, opts ...Option) (*Scope, error) {
	s := &Scope{loaded: make(map[string]struct{})}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("error applying scope option: %w", err)
		}
	}
	s.logHandler, s.logger = helpers.SetupLogger(s.logHandler, "scope", "Scope")

	if s.fetchCache == nil {
		cache, err := loader.NewCache(loader.DefaultCacheSize, s.logHandler)
		if err != nil {
			return nil, err
		}
		s.fetchCache = cache
	}

	root, err := os.MkdirTemp(s.parentDir, dirPattern)
	if err != nil {
		return nil, fmt.Errorf("create artifact area: %w", err)
	}
	s.root = root

	cfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if s.compilationCache != nil {
		cfg = cfg.WithCompilationCache(s.compilationCache)
	}
	s.runtime = wazero.NewRuntimeWithConfig(ctx, cfg)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, s.runtime); err != nil {
		_ = s.Dispose(ctx)
		return nil, fmt.Errorf("instantiate WASI: %w", err)
	}

	for _, entry := range s.initialClasspath {
		if _, err := s.AddClasspathEntry(ctx, entry); err != nil {
			_ = s.Dispose(ctx)
			return nil, err
		}
	}

	s.logger.DebugContext(ctx, "scope created", "root", root)
	return s, nil
}

func (s *Scope) String() string {
	return fmt.Sprintf("scope.Scope{Root: %s}", s.root)
}

// Root returns the artifact area.
func (s *Scope) Root() string {
	return s.root
}

// Runtime returns the wazero runtime modules are compiled into.
func (s *Scope) Runtime() wazero.Runtime {
	return s.runtime
}

// Classpath returns a copy of the local module directories, in insertion order.
func (s *Scope) Classpath() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.classpath)
}

// IsLoaded reports whether name has been registered.
func (s *Scope) IsLoaded(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.loaded[name]
	return ok
}

// Loaded returns the registered names, sorted.
func (s *Scope) Loaded() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.loaded))
	for n := range s.loaded {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Load compiles wasm into the runtime and registers it under name. A name that is
// already registered yields *failure.RedefinitionError and nothing is compiled.
func (s *Scope) Load(ctx context.Context, name string, wasm []byte) (*Handle, error) {
	logger := s.logger.WithGroup("Load")

	if name == "" {
		return nil, ErrEmptyName
	}
	if len(wasm) == 0 {
		return nil, ErrEmptyModule
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return nil, ErrScopeClosed
	}
	if _, ok := s.loaded[name]; ok {
		logger.DebugContext(ctx, "rejecting redefinition", "name", name)
		return nil, &failure.RedefinitionError{Name: name}
	}

	compiled, err := s.runtime.CompileModule(ctx, wasm)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidModule, name, err)
	}
	s.loaded[name] = struct{}{}

	logger.DebugContext(ctx, "module loaded", "name", name, "bytes", len(wasm))
	return &Handle{name: name, module: compiled, runtime: s.runtime}, nil
}

// LoadFile is Load with the module read from path.
func (s *Scope) LoadFile(ctx context.Context, name, path string) (*Handle, error) {
	wasm, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read module %s: %w", path, err)
	}
	return s.Load(ctx, name, wasm)
}

// Dispose closes the runtime and removes the artifact area. It is idempotent.
func (s *Scope) Dispose(ctx context.Context) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil
	}
	s.disposed = true
	s.mu.Unlock()

	var errs []error
	if s.runtime != nil {
		if err := s.runtime.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close runtime: %w", err))
		}
	}
	if s.root != "" {
		if err := os.RemoveAll(s.root); err != nil {
			errs = append(errs, fmt.Errorf("remove artifact area: %w", err))
		}
	}
	s.logger.DebugContext(ctx, "scope disposed", "root", s.root)
	return errors.Join(errs...)
}

// Disposed reports whether Dispose has been called.
func (s *Scope) Disposed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.disposed
}

// Handle is a loaded unit. Closing it releases the compiled code; the name stays
// registered in the Scope.
type Handle struct {
	name    string
	module  wazero.CompiledModule
	runtime wazero.Runtime

	mu     sync.Mutex
	closed bool
}

func (h *Handle) Name() string { return h.name }

// Module returns the compiled module, or nil after Close.
func (h *Handle) Module() wazero.CompiledModule {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	return h.module
}

// Runtime returns the runtime the module was compiled into.
func (h *Handle) Runtime() wazero.Runtime { return h.runtime }

// Close releases the compiled module. It is idempotent.
func (h *Handle) Close(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	return h.module.Close(ctx)
}

func (h *Handle) String() string {
	return fmt.Sprintf("scope.Handle{Name: %s}", h.name)
}
