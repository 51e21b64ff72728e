// Package compiler turns synthesized units into WebAssembly artifacts inside a session
// workspace.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/robbyt/go-replkit/engines/gowasm/toolchain"
	"github.com/robbyt/go-replkit/internal/helpers"
	"github.com/robbyt/go-replkit/platform/failure"
	"github.com/robbyt/go-replkit/platform/synth"
)

const (
	UnitsDir     = "units"
	ArtifactsDir = "artifacts"
	SourceFile   = "main.go"
	WasmExt      = ".wasm"
)

// Workspace is the artifact area a unit is compiled into.
type Workspace interface {
	Root() string
	Classpath() []string
}

// Artifact is a compiled unit ready to be loaded.
type Artifact struct {
	Name     string
	Path     string
	Runnable bool
}

func (a *Artifact) String() string {
	return fmt.Sprintf("compiler.Artifact{Name: %s, Path: %s}", a.Name, a.Path)
}

// Compiler writes units into a workspace and builds them with a toolchain.
type Compiler struct {
	toolchain  toolchain.Toolchain
	logHandler slog.Handler
	logger     *slog.Logger
}

// NewCompiler creates a new Compiler instance with the provided options.
func NewCompiler(opts ...FunctionalOption) (*Compiler, error) {
	c := &Compiler{}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("error applying compiler option: %w", err)
		}
	}

	if c.logger != nil {
		c.logHandler = c.logger.Handler()
	} else {
		c.logHandler, c.logger = helpers.SetupLogger(c.logHandler, "gowasm", "Compiler")
	}

	c.applyDefaults()
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("invalid compiler configuration: %w", err)
	}
	return c, nil
}

func (c *Compiler) String() string {
	return "gowasm.Compiler"
}

// Compile builds unit inside ws. A unit the toolchain rejects yields a
// *failure.CompilationError with the full diagnostics; success is only taken from the
// toolchain's exit code.
func (c *Compiler) Compile(ctx context.Context, ws Workspace, unit *synth.Unit) (*Artifact, error) {
	logger := c.logger.WithGroup("Compile")

	if ws == nil {
		return nil, ErrNoWorkspace
	}
	if unit == nil || unit.Name == "" || len(unit.Source) == 0 {
		return nil, ErrContentNil
	}

	root := ws.Root()
	unitDir := filepath.Join(root, UnitsDir, unit.Name)
	if err := os.MkdirAll(unitDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWriteSource, err)
	}
	if err := os.WriteFile(filepath.Join(unitDir, SourceFile), unit.Source, 0o644); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWriteSource, err)
	}
	if err := os.MkdirAll(filepath.Join(root, ArtifactsDir), 0o755); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWriteSource, err)
	}

	out := filepath.Join(root, ArtifactsDir, unit.Name+WasmExt)
	req := toolchain.Request{
		Dir:        root,
		Package:    filepath.Join(UnitsDir, unit.Name),
		OutputPath: out,
		Classpath:  ws.Classpath(),
	}

	logger.DebugContext(ctx, "compiling unit", "unit", unit.Name, "sourceLength", len(unit.Source))
	res, err := c.toolchain.Compile(ctx, req)
	if err != nil {
		logger.WarnContext(ctx, "toolchain failed to run", "unit", unit.Name, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrToolchainFailure, err)
	}
	if res == nil {
		return nil, ErrToolchainFailure
	}
	if !res.Succeeded() {
		logger.DebugContext(ctx, "unit rejected", "unit", unit.Name, "exitCode", res.ExitCode)
		return nil, &failure.CompilationError{
			Unit:        unit.Name,
			ExitCode:    res.ExitCode,
			Diagnostics: res.Diagnostics,
		}
	}

	if _, err := os.Stat(out); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrArtifactMissing, out)
		}
		return nil, fmt.Errorf("%w: %w", ErrArtifactMissing, err)
	}

	logger.DebugContext(ctx, "unit compiled", "unit", unit.Name, "artifact", out)
	return &Artifact{Name: unit.Name, Path: out, Runnable: unit.Runnable}, nil
}
