// Package runner executes loaded units as WASI commands and decodes the result envelope
// they write to stdout.
package runner

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/sys"

	"github.com/robbyt/go-replkit/engines/gowasm/scope"
	"github.com/robbyt/go-replkit/internal/helpers"
	"github.com/robbyt/go-replkit/platform/failure"
	"github.com/robbyt/go-replkit/platform/history"
	"github.com/robbyt/go-replkit/platform/synth"
)

// DefaultTailSize is how much trailing user output is attached to an ExitError.
const DefaultTailSize = 8 << 10

// Runner executes a loaded unit against the bindings of a history context.
type Runner interface {
	Run(ctx context.Context, h *scope.Handle, hctx *history.Context) (*Outcome, error)
}

// Outcome is what a successful run produced. Present is false when the unit reported
// nothing: a statement, an import, or a nil value.
type Outcome struct {
	Present  bool
	Value    history.Value
	Output   string
	ExecTime time.Duration
}

func (o *Outcome) String() string {
	if !o.Present {
		return "runner.Outcome{}"
	}
	return fmt.Sprintf("runner.Outcome{Value: %s}", o.Value)
}

// WASI runs units as WASI preview1 commands in the handle's runtime. Every run gets a
// fresh anonymous instance, so a unit can run any number of times.
type WASI struct {
	output     io.Writer
	tailSize   int
	logHandler slog.Handler
	logger     *slog.Logger
}

// NewWASI creates a runner. User output is discarded unless WithOutput is given.
func NewWASI(opts ...Option) (*WASI, error) {
	r := &WASI{}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, fmt.Errorf("error applying runner option: %w", err)
		}
	}
	if r.output == nil {
		r.output = io.Discard
	}
	if r.tailSize == 0 {
		r.tailSize = DefaultTailSize
	}
	r.logHandler, r.logger = helpers.SetupLogger(r.logHandler, "gowasm", "Runner")
	return r, nil
}

func (r *WASI) String() string {
	return "gowasm.Runner"
}

func (r *WASI) moduleConfig(name string, stdin io.Reader, stdout, stderr io.Writer) wazero.ModuleConfig {
	return wazero.NewModuleConfig().
		WithName("").
		WithArgs(name).
		WithStdin(stdin).
		WithStdout(stdout).
		WithStderr(stderr).
		WithSysWalltime().
		WithSysNanotime().
		WithRandSource(rand.Reader)
}

// Run feeds hctx's bindings to the unit on stdin and decodes its envelope. A guest panic
// yields *failure.PanicError and a non-zero exit *failure.ExitError.
func (r *WASI) Run(ctx context.Context, h *scope.Handle, hctx *history.Context) (*Outcome, error) {
	logger := r.logger.WithGroup("Run")
	if h == nil {
		return nil, ErrNilHandle
	}
	compiled := h.Module()
	if compiled == nil {
		return nil, fmt.Errorf("%w: %s", scope.ErrHandleClosed, h.Name())
	}
	logger = logger.With("unit", h.Name())

	input, err := EncodeBindings(hctx)
	if err != nil {
		return nil, err
	}

	var stdout bytes.Buffer
	tail := newTailBuffer(r.tailSize)
	stderr := io.MultiWriter(r.output, tail)
	cfg := r.moduleConfig(h.Name(), bytes.NewReader(input), &stdout, stderr)

	start := time.Now()
	mod, err := h.Runtime().InstantiateModule(ctx, compiled, cfg)
	execTime := time.Since(start)
	if mod != nil {
		defer func() {
			if cerr := mod.Close(ctx); cerr != nil {
				logger.WarnContext(ctx, "failed to close module instance", "error", cerr)
			}
		}()
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrExecutionCancel, ctx.Err())
		}
		var exitErr *sys.ExitError
		if errors.As(err, &exitErr) {
			if exitErr.ExitCode() != 0 {
				logger.DebugContext(ctx, "guest exited", "code", exitErr.ExitCode())
				return nil, &failure.ExitError{Code: exitErr.ExitCode(), Stderr: tail.String()}
			}
		} else {
			return nil, fmt.Errorf("%w: %w", ErrInstantiate, err)
		}
	}

	out, err := decodeEnvelope(stdout.Bytes())
	if err != nil {
		return nil, err
	}
	out.Output = tail.String()
	out.ExecTime = execTime

	logger.DebugContext(ctx, "execution complete", "present", out.Present, "execTime", execTime)
	return out, nil
}

// EncodeBindings renders the bindings of hctx as the JSON object a unit reads from stdin.
func EncodeBindings(hctx *history.Context) ([]byte, error) {
	values := make(map[string]json.RawMessage)
	if hctx != nil {
		for _, b := range hctx.Bindings() {
			values[b.Key] = b.Value.JSON
		}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncodeBindings, err)
	}
	return data, nil
}

func decodeEnvelope(stdout []byte) (*Outcome, error) {
	stdout = bytes.TrimSpace(stdout)
	if len(stdout) == 0 {
		return nil, ErrNoEnvelope
	}
	var env synth.Envelope
	if err := json.Unmarshal(stdout, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoEnvelope, err)
	}
	if env.Panic != "" {
		return nil, &failure.PanicError{Value: env.Panic}
	}
	if !env.Present {
		return &Outcome{}, nil
	}

	return &Outcome{
		Present: true,
		Value: history.Value{
			Type:        synth.LocalType(env.Type),
			RuntimeType: synth.LocalType(env.RuntimeType),
			Interface:   env.Interface,
			JSON:        env.Value,
			Text:        env.Text,
		},
	}, nil
}
