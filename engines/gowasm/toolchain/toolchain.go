// Package toolchain drives the external Go toolchain that turns synthesized units into
// WebAssembly modules (GOOS=wasip1, GOARCH=wasm).
package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/mod/modfile"

	"github.com/robbyt/go-replkit/internal/helpers"
)

const (
	// DefaultBinary is looked up on PATH when no binary is configured.
	DefaultBinary = "go"

	WorkFileName = "go.work"
	ModFileName  = "go.mod"

	// SessionModulePath is the module path of the generated session module.
	SessionModulePath = "replkit.local/session"

	// wasip1 first shipped in go1.21.
	minMinorVersion = 21
)

var versionRe = regexp.MustCompile(`^go1\.(\d+)`)

// Request describes one build.
type Request struct {
	// Dir is the session module root; it holds go.mod and receives go.work.
	Dir string

	// Package is the directory of the unit to build, relative to Dir or absolute.
	Package string

	// OutputPath is where the .wasm module is written.
	OutputPath string

	// Classpath lists local module directories made visible to the unit.
	Classpath []string
}

// Result is the outcome of a build that ran to completion.
type Result struct {
	ExitCode    int
	Diagnostics string
}

// Succeeded reports whether the build exited with code 0.
func (r *Result) Succeeded() bool {
	return r != nil && r.ExitCode == 0
}

// Toolchain compiles a unit. An error means the toolchain could not be run at all; a
// build that ran and failed is reported through Result.
type Toolchain interface {
	Compile(ctx context.Context, req Request) (*Result, error)
}

// GoToolchain runs `go build` against a generated go.work.
type GoToolchain struct {
	binary string
	logger *slog.Logger

	mu      sync.Mutex
	version string
}

// NewGoToolchain creates a GoToolchain. An empty binary means DefaultBinary.
func NewGoToolchain(binary string, handler slog.Handler) *GoToolchain {
	if binary == "" {
		binary = DefaultBinary
	}
	_, logger := helpers.SetupLogger(handler, "toolchain", "GoToolchain")
	return &GoToolchain{
		binary: binary,
		logger: logger,
	}
}

func (g *GoToolchain) String() string {
	return "toolchain.GoToolchain"
}

// Binary returns the configured go binary.
func (g *GoToolchain) Binary() string {
	return g.binary
}

// Compile writes go.work for the request's classpath and builds the unit.
func (g *GoToolchain) Compile(ctx context.Context, req Request) (*Result, error) {
	logger := g.logger.WithGroup("Compile")

	if req.Dir == "" || req.Package == "" || req.OutputPath == "" {
		return nil, ErrInvalidRequest
	}

	version, err := g.Version(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(filepath.Join(req.Dir, ModFileName)); errors.Is(err, os.ErrNotExist) {
		if err := WriteModule(req.Dir, SessionModulePath, version); err != nil {
			return nil, err
		}
	}
	if err := WriteWorkspace(req.Dir, version, req.Classpath); err != nil {
		return nil, err
	}

	pkg := req.Package
	if !filepath.IsAbs(pkg) && !strings.HasPrefix(pkg, ".") {
		pkg = "./" + filepath.ToSlash(pkg)
	}

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, g.binary, "build", "-o", req.OutputPath, pkg)
	cmd.Dir = req.Dir
	cmd.Env = buildEnv(filepath.Join(req.Dir, WorkFileName))
	cmd.Stdout = &out
	cmd.Stderr = &out

	logger.DebugContext(ctx, "running go build", "dir", req.Dir, "package", pkg, "output", req.OutputPath)
	err = cmd.Run()
	if err == nil {
		return &Result{ExitCode: 0, Diagnostics: out.String()}, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
		logger.DebugContext(ctx, "go build failed", "exitCode", exitErr.ExitCode())
		return &Result{ExitCode: exitErr.ExitCode(), Diagnostics: out.String()}, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrToolchainStart, ctxErr)
	}
	return nil, fmt.Errorf("%w: %w", ErrToolchainStart, err)
}

// Version returns the toolchain's language version as used in go.mod, e.g. "1.21". The
// first successful probe is cached.
func (g *GoToolchain) Version(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.version != "" {
		return g.version, nil
	}

	cmd := exec.CommandContext(ctx, g.binary, "env", "GOVERSION")
	cmd.Env = append(os.Environ(), "GOTOOLCHAIN=local")
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrToolchainStart, err)
	}
	version, err := ParseVersion(strings.TrimSpace(string(out)))
	if err != nil {
		return "", err
	}
	g.version = version
	return version, nil
}

// ParseVersion turns a GOVERSION string ("go1.21.6", "go1.22rc1") into the "1.N" form
// used by go directives. Toolchains without wasip1 support are rejected.
func ParseVersion(goversion string) (string, error) {
	m := versionRe.FindStringSubmatch(goversion)
	if m == nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownVersion, goversion)
	}
	minor, err := strconv.Atoi(m[1])
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownVersion, goversion)
	}
	if minor < minMinorVersion {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedVersion, goversion)
	}
	return "1." + m[1], nil
}

func buildEnv(workFile string) []string {
	return append(os.Environ(),
		"GOOS=wasip1",
		"GOARCH=wasm",
		"CGO_ENABLED=0",
		"GOTOOLCHAIN=local",
		"GOFLAGS=",
		"GOWORK="+workFile,
	)
}

// WriteModule writes a minimal go.mod declaring modulePath into dir.
func WriteModule(dir, modulePath, version string) error {
	f := new(modfile.File)
	if err := f.AddModuleStmt(modulePath); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteModFile, err)
	}
	if err := f.AddGoStmt(version); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteModFile, err)
	}
	data, err := f.Format()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWriteModFile, err)
	}
	if err := os.WriteFile(filepath.Join(dir, ModFileName), data, 0o644); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteModFile, err)
	}
	return nil
}

// WriteWorkspace writes dir/go.work using the session module and every classpath module.
func WriteWorkspace(dir, version string, classpath []string) error {
	wf, err := modfile.ParseWork(WorkFileName, []byte("go "+version+"\n"), nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWriteWorkFile, err)
	}
	if err := wf.AddUse(".", ""); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteWorkFile, err)
	}
	for _, entry := range classpath {
		if err := wf.AddUse(filepath.ToSlash(entry), ""); err != nil {
			return fmt.Errorf("%w: %w", ErrWriteWorkFile, err)
		}
	}
	wf.Cleanup()

	data := modfile.Format(wf.Syntax)
	if err := os.WriteFile(filepath.Join(dir, WorkFileName), data, 0o644); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteWorkFile, err)
	}
	return nil
}

// ModulePath reads the module path declared by dir/go.mod.
func ModulePath(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, ModFileName))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoModFile, err)
	}
	path := modfile.ModulePath(data)
	if path == "" {
		return "", fmt.Errorf("%w: %s", ErrNoModulePath, dir)
	}
	return path, nil
}
