package replkit

import "errors"

var (
	ErrEmptySnippet     = errors.New("snippet is empty")
	ErrEvaluatorClosed  = errors.New("evaluator is closed")
	ErrSessionChanged   = errors.New("session was reset or modified while the snippet was evaluated")
	ErrPrelude          = errors.New("prelude snippet failed")
	ErrUnexpectedOutput = errors.New("pipeline returned no outcome")
)
