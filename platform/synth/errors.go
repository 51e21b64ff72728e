package synth

import "errors"

var (
	ErrNilExpression = errors.New("expression is nil")
	ErrEmptyUnitName = errors.New("unit name is empty")
	ErrTemplate      = errors.New("failed to render unit template")
)
