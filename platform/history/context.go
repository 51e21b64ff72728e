// Package history holds the immutable record of a session: every committed evaluation in
// order, plus the derived views later snippets are synthesized against.
package history

import (
	"fmt"
	"iter"
	"slices"
	"sort"

	"github.com/robbyt/go-replkit/platform/expression"
)

// ResultKeyPrefix prefixes automatically generated result keys.
const ResultKeyPrefix = "res"

// Context is an immutable snapshot of a session. AddEvaluation returns a new Context and
// never changes the receiver, so older snapshots stay valid and can be shared freely.
type Context struct {
	evaluations []*Evaluation
	nextKey     int
}

// NewContext returns an empty Context.
func NewContext() *Context {
	return &Context{}
}

// AddEvaluation returns a new Context with e appended. The auto key counter advances when
// e is keyed with the current NextResultKey, and then skips any auto-style key a named
// result already holds, so an auto key never shadows a user binding such as `res1 := 5`.
func (c *Context) AddEvaluation(e *Evaluation) *Context {
	out := &Context{
		// Clip forces append to copy so no two contexts share a backing array tail.
		evaluations: append(slices.Clip(c.evaluations), e),
		nextKey:     c.nextKey,
	}
	if e.Result != nil && e.Result.Key == c.NextResultKey() {
		out.nextKey++
	}
	for {
		if _, taken := out.Result(out.NextResultKey()); !taken {
			break
		}
		out.nextKey++
	}
	return out
}

// Evaluations returns a copy of the committed evaluations in insertion order.
func (c *Context) Evaluations() []*Evaluation {
	return slices.Clone(c.evaluations)
}

// Len returns the number of committed evaluations.
func (c *Context) Len() int {
	return len(c.evaluations)
}

// LastEvaluation returns the most recent evaluation, or nil for an empty context.
func (c *Context) LastEvaluation() *Evaluation {
	if len(c.evaluations) == 0 {
		return nil
	}
	return c.evaluations[len(c.evaluations)-1]
}

// ExpressionsOfType lazily yields the expressions of the given kind in insertion order.
func (c *Context) ExpressionsOfType(kind expression.Kind) iter.Seq[expression.Expression] {
	evals := c.evaluations
	return func(yield func(expression.Expression) bool) {
		for _, e := range evals {
			if e.Expression == nil || e.Expression.Kind() != kind {
				continue
			}
			if !yield(e.Expression) {
				return
			}
		}
	}
}

// Results returns every result in insertion order, including shadowed ones.
func (c *Context) Results() []Result {
	var out []Result
	for _, e := range c.evaluations {
		if e.Result != nil {
			out = append(out, *e.Result)
		}
	}
	return out
}

// Result returns the most recent result recorded under key.
func (c *Context) Result(key string) (Result, bool) {
	for i := len(c.evaluations) - 1; i >= 0; i-- {
		if r := c.evaluations[i].Result; r != nil && r.Key == key {
			return *r, true
		}
	}
	return Result{}, false
}

// NextResultKey returns the key the next unkeyed result will be stored under.
func (c *Context) NextResultKey() string {
	return fmt.Sprintf("%s%d", ResultKeyPrefix, c.nextKey)
}

// Bindings returns the latest bindable result for every key, sorted by key. These are
// the variables declared in the next synthesized unit.
func (c *Context) Bindings() []Result {
	latest := make(map[string]Result)
	for _, r := range c.Results() {
		latest[r.Key] = r
	}
	out := make([]Result, 0, len(latest))
	for _, r := range latest {
		if r.Value.Bindable() {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (c *Context) String() string {
	return fmt.Sprintf("history.Context{evaluations: %d, next: %s}", len(c.evaluations), c.NextResultKey())
}
