package replkit

import (
	"github.com/robbyt/go-replkit/platform/expression"
	"github.com/robbyt/go-replkit/platform/failure"
	"github.com/robbyt/go-replkit/platform/history"
)

// Aliases so callers of the root package rarely need the platform packages.
type (
	Evaluation = history.Evaluation
	Result     = history.Result
	Value      = history.Value
	Context    = history.Context
	Expression = expression.Expression
	Kind       = expression.Kind

	CompilationError  = failure.CompilationError
	RedefinitionError = failure.RedefinitionError
	RuntimeFailure    = failure.RuntimeFailure
)
