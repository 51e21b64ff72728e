package replkit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/robbyt/go-replkit/engines/gowasm/runner"
	"github.com/robbyt/go-replkit/engines/gowasm/toolchain"
	"github.com/robbyt/go-replkit/options"
	"github.com/robbyt/go-replkit/platform/expression"
	"github.com/robbyt/go-replkit/platform/failure"
	"github.com/robbyt/go-replkit/platform/history"
)

var emptyModule = []byte("\x00asm\x01\x00\x00\x00")

// writeOutput stands in for a successful go build.
func writeOutput(args mock.Arguments) {
	req := args.Get(1).(toolchain.Request)
	if err := os.WriteFile(req.OutputPath, emptyModule, 0o644); err != nil {
		panic(err)
	}
}

func quietHandler() slog.Handler {
	return slog.NewTextHandler(io.Discard, nil)
}

func intValue(n string) history.Value {
	return history.Value{Type: "int", RuntimeType: "int", JSON: json.RawMessage(n), Text: n}
}

type fixture struct {
	toolchain *toolchain.MockToolchain
	runner    *runner.MockRunner
	workDir   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{
		toolchain: &toolchain.MockToolchain{},
		runner:    &runner.MockRunner{},
		workDir:   t.TempDir(),
	}
}

func (f *fixture) compiles() *mock.Call {
	return f.toolchain.On("Compile", mock.Anything, mock.Anything).
		Run(writeOutput).
		Return(&toolchain.Result{}, nil)
}

func (f *fixture) runs(out *runner.Outcome) *mock.Call {
	return f.runner.On("Run", mock.Anything, mock.Anything, mock.Anything).Return(out, nil)
}

func (f *fixture) evaluator(t *testing.T, opts ...options.Option) *Evaluator {
	t.Helper()
	opts = append([]options.Option{
		options.WithLogHandler(quietHandler()),
		options.WithToolchain(f.toolchain),
		options.WithRunner(f.runner),
		options.WithWorkDir(f.workDir),
	}, opts...)
	e, err := New(context.Background(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, e.Close(context.Background())) })
	return e
}

func (f *fixture) scopeDirs(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir(f.workDir)
	require.NoError(t, err)
	return len(entries)
}

func TestEvaluateValueKeys(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	f.compiles()
	f.runs(&runner.Outcome{Present: true, Value: intValue("2")})
	e := f.evaluator(t)

	var keys []string
	for range 3 {
		ev, err := e.Evaluate(ctx, "1 + 1")
		require.NoError(t, err)
		require.True(t, ev.HasResult())
		assert.Equal(t, expression.KindValue, ev.Expression.Kind())
		assert.NotEmpty(t, ev.Source)
		keys = append(keys, ev.Result.Key)
	}
	assert.Equal(t, []string{"res0", "res1", "res2"}, keys)
	assert.Len(t, e.Results(), 3)
	assert.Equal(t, "res2", e.LastEvaluation().Result.Key)
	assert.Equal(t, "res3", e.Context().NextResultKey())
}

func TestEvaluateAssignmentShadowing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	f.compiles()
	f.runs(&runner.Outcome{Present: true, Value: intValue("1")}).Once()
	f.runs(&runner.Outcome{Present: true, Value: intValue("2")}).Once()
	e := f.evaluator(t)

	_, err := e.Evaluate(ctx, "x := 1")
	require.NoError(t, err)
	_, err = e.Evaluate(ctx, "x = 2")
	require.NoError(t, err)

	r, ok := e.Result("x")
	require.True(t, ok)
	assert.JSONEq(t, "2", string(r.Value.JSON))
	assert.Equal(t, "res0", e.Context().NextResultKey(), "keyed results do not use auto keys")
}

func TestEvaluateTypedAssignmentKeepsDeclaredType(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.compiles()
	f.runs(&runner.Outcome{Present: true, Value: intValue("3")})
	e := f.evaluator(t)

	ev, err := e.Evaluate(context.Background(), "var y int64 = 3")
	require.NoError(t, err)
	require.True(t, ev.HasResult())
	assert.Equal(t, "y", ev.Result.Key)
	assert.Equal(t, "int64", ev.Result.Value.Type)
}

func TestEvaluateNoResult(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.compiles()
	f.runs(&runner.Outcome{})
	e := f.evaluator(t)

	for _, snippet := range []string{`import "strings"`, "func add(a, b int) int { return a + b }", "var nothing error = nil"} {
		ev, err := e.Evaluate(context.Background(), snippet)
		require.NoError(t, err, snippet)
		assert.False(t, ev.HasResult(), snippet)
	}
	assert.Empty(t, e.Results())
	assert.Len(t, e.Evaluations(), 3)
}

func TestRedefinitionAndReset(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	f.compiles()
	e := f.evaluator(t)

	ev, err := e.Evaluate(ctx, "type Foo struct{ A int }")
	require.NoError(t, err)
	assert.Equal(t, "main.Foo", ev.ID)
	assert.False(t, ev.HasResult())
	assert.Equal(t, expression.KindType, ev.Expression.Kind())

	_, err = e.Evaluate(ctx, "type Foo struct{ B string }")
	var redef *failure.RedefinitionError
	require.ErrorAs(t, err, &redef)
	assert.Equal(t, "main.Foo", redef.Name)
	f.toolchain.AssertNumberOfCalls(t, "Compile", 1)
	assert.Len(t, e.Evaluations(), 1, "a failed evaluation is not committed")

	oldRoot := e.Root()
	require.NoError(t, e.Reset(ctx))
	assert.NoDirExists(t, oldRoot)
	assert.Empty(t, e.Evaluations())

	_, err = e.Evaluate(ctx, "type Foo struct{ B string }")
	require.NoError(t, err)
	assert.Equal(t, 1, f.scopeDirs(t))
}

func TestValueFallsBackToStatement(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.toolchain.On("Compile", mock.Anything, mock.Anything).
		Return(&toolchain.Result{ExitCode: 1, Diagnostics: "syntax error: unexpected keyword for"}, nil).Once()
	f.compiles().Once()
	f.runs(&runner.Outcome{})
	e := f.evaluator(t)

	ev, err := e.Evaluate(context.Background(), "for i := 0; i < 1; i++ {}")
	require.NoError(t, err)
	assert.Equal(t, expression.KindStatement, ev.Expression.Kind())
	assert.Equal(t, "for i := 0; i < 1; i++ {}", ev.Expression.Source())
	f.toolchain.AssertNumberOfCalls(t, "Compile", 2)
}

func TestFallbackIsSingleAndValueOnly(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("statement retry failure is returned", func(t *testing.T) {
		f := newFixture(t)
		f.toolchain.On("Compile", mock.Anything, mock.Anything).
			Return(&toolchain.Result{ExitCode: 1, Diagnostics: "undefined: nope"}, nil)
		e := f.evaluator(t)

		_, err := e.Evaluate(ctx, "nope")
		var compErr *failure.CompilationError
		require.ErrorAs(t, err, &compErr)
		assert.Equal(t, 1, compErr.ExitCode)
		assert.Contains(t, compErr.Diagnostics, "undefined: nope")
		f.toolchain.AssertNumberOfCalls(t, "Compile", 2)
	})

	t.Run("assignments are not retried", func(t *testing.T) {
		f := newFixture(t)
		f.toolchain.On("Compile", mock.Anything, mock.Anything).
			Return(&toolchain.Result{ExitCode: 1, Diagnostics: "undefined: nope"}, nil)
		e := f.evaluator(t)

		_, err := e.Evaluate(ctx, "x := nope")
		var compErr *failure.CompilationError
		require.ErrorAs(t, err, &compErr)
		f.toolchain.AssertNumberOfCalls(t, "Compile", 1)
	})

	t.Run("runtime failures are not retried", func(t *testing.T) {
		f := newFixture(t)
		f.compiles()
		f.runner.On("Run", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, &failure.PanicError{Value: "boom"})
		e := f.evaluator(t)

		_, err := e.Evaluate(ctx, `panic("boom")`)
		var rt *failure.RuntimeFailure
		require.ErrorAs(t, err, &rt)
		var panicErr *failure.PanicError
		require.ErrorAs(t, err, &panicErr)
		assert.Equal(t, "boom", panicErr.Value)
		f.toolchain.AssertNumberOfCalls(t, "Compile", 1)
		assert.Empty(t, e.Evaluations())
	})
}

func TestFailuresAreNormalized(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("toolchain cannot start", func(t *testing.T) {
		f := newFixture(t)
		cause := errors.New("exec: go: not found")
		f.toolchain.On("Compile", mock.Anything, mock.Anything).Return(nil, cause)
		e := f.evaluator(t)

		_, err := e.Evaluate(ctx, "x := 1")
		var rt *failure.RuntimeFailure
		require.ErrorAs(t, err, &rt)
		assert.Equal(t, cause, rt.Cause)
	})

	t.Run("empty snippet", func(t *testing.T) {
		f := newFixture(t)
		e := f.evaluator(t)
		_, err := e.Evaluate(ctx, "   ")
		var rt *failure.RuntimeFailure
		require.ErrorAs(t, err, &rt)
		require.ErrorIs(t, err, ErrEmptySnippet)
	})

	t.Run("pipeline panic", func(t *testing.T) {
		f := newFixture(t)
		f.compiles()
		f.runner.On("Run", mock.Anything, mock.Anything, mock.Anything).
			Run(func(mock.Arguments) { panic("kaboom") })
		e := f.evaluator(t)

		_, err := e.Evaluate(ctx, "1")
		var rt *failure.RuntimeFailure
		require.ErrorAs(t, err, &rt)
		assert.Contains(t, err.Error(), "kaboom")
	})
}

func TestBindingsReachTheRunner(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	f.compiles()
	f.runner.On("Run", mock.Anything, mock.Anything, mock.MatchedBy(func(h *history.Context) bool {
		return h.Len() == 0
	})).Return(&runner.Outcome{Present: true, Value: intValue("41")}, nil).Once()
	f.runner.On("Run", mock.Anything, mock.Anything, mock.MatchedBy(func(h *history.Context) bool {
		r, ok := h.Result("res0")
		return ok && string(r.Value.JSON) == "41"
	})).Return(&runner.Outcome{Present: true, Value: intValue("42")}, nil).Once()
	e := f.evaluator(t)

	_, err := e.Evaluate(ctx, "41")
	require.NoError(t, err)
	ev, err := e.Evaluate(ctx, "res0 + 1")
	require.NoError(t, err)
	assert.Contains(t, ev.Source, `var res0 int = replResult[int]("res0")`)
	f.runner.AssertExpectations(t)
}

func TestTypeOfExpressionIsIsolated(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	f.compiles()
	f.runs(&runner.Outcome{Present: true, Value: intValue("2")})
	e := f.evaluator(t)

	_, err := e.Evaluate(ctx, "x := 1")
	require.NoError(t, err)
	before := e.Context()
	root := e.Root()

	typ, ok, err := e.TypeOfExpression(ctx, "1+1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "int", typ)

	assert.Same(t, before, e.Context())
	assert.Len(t, e.Evaluations(), 1)
	assert.Equal(t, "res0", e.Context().NextResultKey())
	assert.Equal(t, root, e.Root())
	assert.Equal(t, 1, f.scopeDirs(t), "the probe scope is removed")

	t.Run("failing probe leaves nothing behind", func(t *testing.T) {
		f := newFixture(t)
		f.toolchain.On("Compile", mock.Anything, mock.Anything).
			Return(&toolchain.Result{ExitCode: 1, Diagnostics: "bad"}, nil)
		e := f.evaluator(t)

		_, ok, err := e.TypeOfExpression(ctx, "nope")
		var compErr *failure.CompilationError
		require.ErrorAs(t, err, &compErr)
		assert.False(t, ok)
		assert.Equal(t, 1, f.scopeDirs(t))
	})

	t.Run("no value", func(t *testing.T) {
		f := newFixture(t)
		f.compiles()
		f.runs(&runner.Outcome{})
		e := f.evaluator(t)

		typ, ok, err := e.TypeOfExpression(ctx, `println("hi")`)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, typ)
	})
}

func TestPrelude(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("replayed on start and reset", func(t *testing.T) {
		f := newFixture(t)
		f.compiles()
		f.runs(&runner.Outcome{})
		e := f.evaluator(t, options.WithPrelude(`import "fmt"`, "type Point struct{ X, Y int }"))

		assert.Len(t, e.Evaluations(), 2)
		require.NoError(t, e.Reset(ctx))
		assert.Len(t, e.Evaluations(), 2)
	})

	t.Run("failing prelude", func(t *testing.T) {
		f := newFixture(t)
		f.toolchain.On("Compile", mock.Anything, mock.Anything).
			Return(&toolchain.Result{ExitCode: 1, Diagnostics: "bad"}, nil)

		_, err := New(ctx,
			options.WithLogHandler(quietHandler()),
			options.WithToolchain(f.toolchain),
			options.WithRunner(f.runner),
			options.WithWorkDir(f.workDir),
			options.WithPrelude("x := nope"),
		)
		require.ErrorIs(t, err, ErrPrelude)
		assert.Equal(t, 0, f.scopeDirs(t))
	})
}

func TestAddClasspathEntry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	lib := filepath.Join(t.TempDir(), "greet")
	require.NoError(t, os.MkdirAll(lib, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(lib, "go.mod"), []byte("module example.com/greet\n"), 0o644))

	f := newFixture(t)
	f.toolchain.On("Compile", mock.Anything, mock.MatchedBy(func(req toolchain.Request) bool {
		return len(req.Classpath) == 1 && req.Classpath[0] == lib
	})).Run(writeOutput).Return(&toolchain.Result{}, nil).Once()
	f.runs(&runner.Outcome{})
	e := f.evaluator(t)

	require.NoError(t, e.AddClasspathEntry(ctx, lib))
	assert.Equal(t, []string{lib}, e.Classpath())

	_, err := e.Evaluate(ctx, `import "example.com/greet"`)
	require.NoError(t, err)
	f.toolchain.AssertExpectations(t)

	t.Run("invalid entry", func(t *testing.T) {
		err := e.AddClasspathEntry(ctx, t.TempDir())
		var rt *failure.RuntimeFailure
		require.ErrorAs(t, err, &rt)
	})

	t.Run("reset drops runtime entries", func(t *testing.T) {
		require.NoError(t, e.Reset(ctx))
		assert.Empty(t, e.Classpath())
	})
}

func TestClose(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	e, err := New(ctx,
		options.WithLogHandler(quietHandler()),
		options.WithToolchain(f.toolchain),
		options.WithRunner(f.runner),
		options.WithWorkDir(f.workDir),
	)
	require.NoError(t, err)
	root := e.Root()

	require.NoError(t, e.Close(ctx))
	require.NoError(t, e.Close(ctx))
	assert.NoDirExists(t, root)

	_, err = e.Evaluate(ctx, "1")
	require.ErrorIs(t, err, ErrEvaluatorClosed)
	_, _, err = e.TypeOfExpression(ctx, "1")
	require.ErrorIs(t, err, ErrEvaluatorClosed)
	require.ErrorIs(t, e.Reset(ctx), ErrEvaluatorClosed)
	require.ErrorIs(t, e.AddClasspathEntry(ctx, "/tmp"), ErrEvaluatorClosed)
}

func TestInvalidOptions(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), options.WithTimeout(-1))
	require.Error(t, err)
}

// TestSession drives the whole pipeline with the real go toolchain.
func TestSession(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping go toolchain test in short mode")
	}
	if _, err := exec.LookPath(toolchain.DefaultBinary); err != nil {
		t.Skip("go binary not found on PATH")
	}
	t.Parallel()

	ctx := context.Background()
	e, err := New(ctx,
		options.WithLogHandler(quietHandler()),
		options.WithWorkDir(t.TempDir()),
		options.WithOutput(io.Discard),
	)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, e.Close(ctx)) })

	eval := func(snippet string) *history.Evaluation {
		t.Helper()
		ev, err := e.Evaluate(ctx, snippet)
		require.NoError(t, err, snippet)
		return ev
	}

	eval(`import "strings"`)
	eval("type Point struct{ X, Y int }")
	eval("func (p Point) Sum() int { return p.X + p.Y }")
	eval("p := Point{X: 1, Y: 2}")

	ev := eval("p.Sum()")
	require.True(t, ev.HasResult())
	assert.Equal(t, "res0", ev.Result.Key)
	assert.JSONEq(t, "3", string(ev.Result.Value.JSON))

	ev = eval(`strings.ToUpper("go")`)
	assert.JSONEq(t, `"GO"`, string(ev.Result.Value.JSON))

	ev = eval("res0 * 10")
	assert.JSONEq(t, "30", string(ev.Result.Value.JSON))

	ev = eval("for i := 0; i < 1; i++ {}")
	assert.Equal(t, expression.KindStatement, ev.Expression.Kind())

	r, ok := e.Result("p")
	require.True(t, ok)
	assert.Equal(t, "Point", r.Value.Type)

	typ, ok, err := e.TypeOfExpression(ctx, "1+1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "int", typ)

	_, err = e.Evaluate(ctx, "type Point struct{ Z int }")
	var redef *failure.RedefinitionError
	require.ErrorAs(t, err, &redef)

	_, err = e.Evaluate(ctx, "undefinedName + 1")
	var compErr *failure.CompilationError
	require.ErrorAs(t, err, &compErr)
	assert.Contains(t, compErr.Diagnostics, "undefinedName")

	ev = eval("1 + 1 // two")
	assert.Equal(t, expression.KindValue, ev.Expression.Kind())
	assert.JSONEq(t, "2", string(ev.Result.Value.JSON))

	// interface values are restored as their dynamic type
	eval(`import "fmt"`)
	eval("type P struct{ X int }")
	eval(`func (p P) String() string { return fmt.Sprintf("P(%d)", p.X) }`)

	ev = eval("var s fmt.Stringer = P{X: 7}")
	assert.Equal(t, "fmt.Stringer", ev.Result.Value.Type)
	assert.Equal(t, "P", ev.Result.Value.RuntimeType)
	assert.True(t, ev.Result.Value.Interface)

	ev = eval("s.String()")
	assert.JSONEq(t, `"P(7)"`, string(ev.Result.Value.JSON))

	// an error whose dynamic type cannot be named is recorded but not bound
	eval(`import "errors"`)
	ev = eval(`var boom error = errors.New("boom")`)
	assert.Equal(t, "boom", ev.Result.Value.Text)
	assert.False(t, ev.Result.Value.Bindable())

	_, err = e.Evaluate(ctx, "boom.Error()")
	require.ErrorAs(t, err, &compErr)
	assert.Contains(t, compErr.Diagnostics, "boom")

	require.NoError(t, e.Reset(ctx))
	eval("type Point struct{ Z int }")
}
