// Package replkit evaluates Go snippets incrementally. Each snippet is classified,
// synthesized into a complete package main together with everything defined earlier in
// the session, built for wasip1 with the go toolchain, loaded into the session's wazero
// runtime and executed. Outcomes are recorded in an immutable history that later
// snippets can reference.
package replkit

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero"

	"github.com/robbyt/go-replkit/engines/gowasm/compiler"
	"github.com/robbyt/go-replkit/engines/gowasm/runner"
	"github.com/robbyt/go-replkit/engines/gowasm/scope"
	"github.com/robbyt/go-replkit/engines/gowasm/toolchain"
	"github.com/robbyt/go-replkit/internal/helpers"
	"github.com/robbyt/go-replkit/options"
	"github.com/robbyt/go-replkit/platform/expression"
	"github.com/robbyt/go-replkit/platform/failure"
	"github.com/robbyt/go-replkit/platform/history"
	"github.com/robbyt/go-replkit/platform/script/loader"
	"github.com/robbyt/go-replkit/platform/synth"
)

// UnitPrefix names runnable units: Evaluation_<xid>.
const UnitPrefix = "Evaluation"

// Evaluator owns one session: the current history and the scope units are loaded into.
// Calls are expected from a single writer; TypeOfExpression may run alongside.
type Evaluator struct {
	cfg        *options.Config
	compiler   *compiler.Compiler
	runner     runner.Runner
	compCache  wazero.CompilationCache
	fetchCache *loader.Cache
	logHandler slog.Handler
	logger     *slog.Logger

	mu     sync.RWMutex
	hctx   *history.Context
	scope  *scope.Scope
	closed bool
}

// New creates an Evaluator, its first scope, and replays the configured prelude.
func New(ctx context.Context, opts ...options.Option) (*Evaluator, error) {
	cfg, err := options.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("error applying option: %w", err)
	}
	handler, logger := helpers.SetupLogger(cfg.GetHandler(), "replkit", "Evaluator")

	tc := cfg.GetToolchain()
	if tc == nil {
		tc = toolchain.NewGoToolchain(cfg.GetGoBinary(), handler)
	}
	comp, err := compiler.NewCompiler(compiler.WithToolchain(tc), compiler.WithLogHandler(handler))
	if err != nil {
		return nil, err
	}

	rn := cfg.GetRunner()
	if rn == nil {
		wasi, err := runner.NewWASI(runner.WithOutput(cfg.GetOutput()), runner.WithLogHandler(handler))
		if err != nil {
			return nil, err
		}
		rn = wasi
	}

	fetchCache, err := loader.NewCache(cfg.GetFetchCacheSize(), handler)
	if err != nil {
		return nil, err
	}

	e := &Evaluator{
		cfg:        cfg,
		compiler:   comp,
		runner:     rn,
		compCache:  wazero.NewCompilationCache(),
		fetchCache: fetchCache,
		logHandler: handler,
		logger:     logger,
		hctx:       history.NewContext(),
	}

	sc, err := e.newScope(ctx, cfg.GetClasspath())
	if err != nil {
		_ = e.compCache.Close(ctx)
		return nil, err
	}
	e.scope = sc

	if err := e.replayPrelude(ctx); err != nil {
		_ = e.Close(ctx)
		return nil, err
	}
	return e, nil
}

func (e *Evaluator) String() string {
	return "replkit.Evaluator"
}

func (e *Evaluator) newScope(ctx context.Context, classpath []string) (*scope.Scope, error) {
	return scope.New(ctx,
		scope.WithParentDir(e.cfg.GetWorkDir()),
		scope.WithCompilationCache(e.compCache),
		scope.WithFetchCache(e.fetchCache),
		scope.WithSources(e.cfg.Sources()),
		scope.WithClasspath(classpath...),
		scope.WithLogHandler(e.logHandler),
	)
}

func (e *Evaluator) replayPrelude(ctx context.Context) error {
	for _, snippet := range e.cfg.GetPrelude() {
		if _, err := e.Evaluate(ctx, snippet); err != nil {
			return fmt.Errorf("%w: %q: %w", ErrPrelude, snippet, err)
		}
	}
	return nil
}

// snapshot returns the current history and scope.
func (e *Evaluator) snapshot() (*history.Context, *scope.Scope, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, nil, ErrEvaluatorClosed
	}
	return e.hctx, e.scope, nil
}

// Evaluate runs one snippet and commits its Evaluation. On failure the session is left
// unchanged and the error is a *CompilationError, *RedefinitionError or *RuntimeFailure.
func (e *Evaluator) Evaluate(ctx context.Context, text string) (*history.Evaluation, error) {
	logger := e.logger.WithGroup("Evaluate")

	hctx, sc, err := e.snapshot()
	if err != nil {
		return nil, failure.Normalize(err)
	}

	ev, err := e.evaluateIn(ctx, sc, hctx, text)
	if err != nil {
		logger.DebugContext(ctx, "evaluation failed", "error", err)
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.scope != sc || e.hctx != hctx {
		return nil, failure.Normalize(ErrSessionChanged)
	}
	e.hctx = hctx.AddEvaluation(ev)

	logger.DebugContext(ctx, "evaluation committed", "id", ev.ID, "kind", ev.Expression.Kind())
	return ev, nil
}

// evaluateIn classifies text and runs it against sc and hctx without committing anything.
// A Value that fails to compile is retried once as a Statement.
func (e *Evaluator) evaluateIn(ctx context.Context, sc *scope.Scope, hctx *history.Context, text string) (ev *history.Evaluation, err error) {
	logger := e.logger.WithGroup("evaluateIn")

	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "pipeline panicked", "panic", r)
			ev, err = nil, failure.FromPanic(r)
		}
	}()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, failure.Normalize(ErrEmptySnippet)
	}

	if timeout := e.cfg.GetTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	expr := expression.Classify(text)
	ev, err = e.pipeline(ctx, sc, hctx, expr)

	var compErr *failure.CompilationError
	if err != nil && expr.Kind() == expression.KindValue && errors.As(err, &compErr) {
		logger.DebugContext(ctx, "value did not compile, retrying as statement", "unit", compErr.Unit)
		ev, err = e.pipeline(ctx, sc, hctx, expression.NewStatement(expr.Source()))
	}
	if err != nil {
		return nil, failure.Normalize(err)
	}
	return ev, nil
}

func (e *Evaluator) pipeline(ctx context.Context, sc *scope.Scope, hctx *history.Context, expr expression.Expression) (*history.Evaluation, error) {
	switch x := expr.(type) {
	case *expression.Type:
		return e.evaluateType(ctx, sc, hctx, x)
	default:
		return e.evaluateRunnable(ctx, sc, hctx, x)
	}
}

// evaluateType compiles and loads a type declaration. Loading is the whole evaluation:
// there is no result.
func (e *Evaluator) evaluateType(ctx context.Context, sc *scope.Scope, hctx *history.Context, t *expression.Type) (*history.Evaluation, error) {
	name := t.CanonicalName()
	if sc.IsLoaded(name) {
		return nil, &failure.RedefinitionError{Name: name}
	}

	unit, err := synth.Render(hctx, t, "")
	if err != nil {
		return nil, err
	}
	art, err := e.compiler.Compile(ctx, sc, unit)
	if err != nil {
		return nil, err
	}
	h, err := sc.LoadFile(ctx, name, art.Path)
	if err != nil {
		return nil, err
	}
	if err := h.Close(ctx); err != nil {
		e.logger.WarnContext(ctx, "failed to release type unit", "name", name, "error", err)
	}

	return &history.Evaluation{
		ID:         name,
		Source:     string(unit.Source),
		Expression: t,
	}, nil
}

func (e *Evaluator) evaluateRunnable(ctx context.Context, sc *scope.Scope, hctx *history.Context, expr expression.Expression) (*history.Evaluation, error) {
	name := helpers.UnitName(UnitPrefix)
	unit, err := synth.Render(hctx, expr, name)
	if err != nil {
		return nil, err
	}
	art, err := e.compiler.Compile(ctx, sc, unit)
	if err != nil {
		return nil, err
	}
	h, err := sc.LoadFile(ctx, name, art.Path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := h.Close(ctx); err != nil {
			e.logger.WarnContext(ctx, "failed to release unit", "name", name, "error", err)
		}
	}()

	out, err := e.runner.Run(ctx, h, hctx)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, ErrUnexpectedOutput
	}

	ev := &history.Evaluation{
		ID:         name,
		Source:     string(unit.Source),
		Expression: expr,
	}
	if !out.Present {
		return ev, nil
	}

	key := hctx.NextResultKey()
	if k, ok := expr.(expression.Keyed); ok {
		key = k.Key()
	}
	value := out.Value
	if typed, ok := expr.(*expression.AssignmentWithType); ok {
		value.Type = typed.DeclaredType()
	}
	ev.Result = &history.Result{Key: key, Value: value}
	return ev, nil
}

// TypeOfExpression evaluates text in a throwaway scope against a snapshot of the current
// history and reports the dynamic type of the value it produced. The session is never
// modified and the throwaway scope is always disposed.
func (e *Evaluator) TypeOfExpression(ctx context.Context, text string) (string, bool, error) {
	logger := e.logger.WithGroup("TypeOfExpression")

	hctx, sc, err := e.snapshot()
	if err != nil {
		return "", false, failure.Normalize(err)
	}

	probe, err := e.newScope(ctx, sc.Classpath())
	if err != nil {
		return "", false, failure.Normalize(err)
	}
	defer func() {
		if err := probe.Dispose(context.WithoutCancel(ctx)); err != nil {
			logger.WarnContext(ctx, "failed to dispose probe scope", "error", err)
		}
	}()

	ev, err := e.evaluateIn(ctx, probe, hctx, text)
	if err != nil {
		return "", false, err
	}
	if !ev.HasResult() {
		return "", false, nil
	}
	v := ev.Result.Value
	if v.RuntimeType != "" {
		return v.RuntimeType, true, nil
	}
	return v.Type, true, nil
}

// Reset discards the session: a fresh scope with the configured classpath and an empty
// history, after which the prelude is replayed. Classpath entries added at runtime are
// dropped with the old scope.
func (e *Evaluator) Reset(ctx context.Context) error {
	logger := e.logger.WithGroup("Reset")

	if _, _, err := e.snapshot(); err != nil {
		return failure.Normalize(err)
	}
	fresh, err := e.newScope(ctx, e.cfg.GetClasspath())
	if err != nil {
		return failure.Normalize(err)
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		_ = fresh.Dispose(ctx)
		return failure.Normalize(ErrEvaluatorClosed)
	}
	old := e.scope
	e.scope = fresh
	e.hctx = history.NewContext()
	e.mu.Unlock()

	if err := old.Dispose(ctx); err != nil {
		logger.WarnContext(ctx, "failed to dispose previous scope", "error", err)
	}
	logger.InfoContext(ctx, "session reset", "root", fresh.Root())

	if err := e.replayPrelude(ctx); err != nil {
		return failure.Normalize(err)
	}
	return nil
}

// AddClasspathEntry makes a module available to snippets evaluated afterwards. See
// scope.Scope.AddClasspathEntry for the accepted entries.
func (e *Evaluator) AddClasspathEntry(ctx context.Context, entry string) error {
	_, sc, err := e.snapshot()
	if err != nil {
		return failure.Normalize(err)
	}
	if _, err := sc.AddClasspathEntry(ctx, entry); err != nil {
		return failure.Normalize(err)
	}
	return nil
}

// Close disposes the scope and the compilation cache. It is idempotent.
func (e *Evaluator) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	sc := e.scope
	e.mu.Unlock()

	var errs []error
	if sc != nil {
		errs = append(errs, sc.Dispose(ctx))
	}
	errs = append(errs, e.compCache.Close(ctx))
	e.fetchCache.Purge()
	return errors.Join(errs...)
}

// Context returns the current history.
func (e *Evaluator) Context() *history.Context {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.hctx
}

// Classpath returns the module directories of the current scope.
func (e *Evaluator) Classpath() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.scope.Classpath()
}

// Root returns the artifact area of the current scope.
func (e *Evaluator) Root() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.scope.Root()
}

func (e *Evaluator) Evaluations() []*history.Evaluation {
	return e.Context().Evaluations()
}

func (e *Evaluator) LastEvaluation() *history.Evaluation {
	return e.Context().LastEvaluation()
}

func (e *Evaluator) Results() []history.Result {
	return e.Context().Results()
}

func (e *Evaluator) Result(key string) (history.Result, bool) {
	return e.Context().Result(key)
}

func (e *Evaluator) ExpressionsOfType(kind expression.Kind) iter.Seq[expression.Expression] {
	return e.Context().ExpressionsOfType(kind)
}
