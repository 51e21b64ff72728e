package runner

import "errors"

var (
	ErrNilHandle       = errors.New("handle is nil")
	ErrNoEnvelope      = errors.New("guest did not write a result envelope")
	ErrInstantiate     = errors.New("failed to instantiate module")
	ErrEncodeBindings  = errors.New("failed to encode bindings")
	ErrExecutionCancel = errors.New("execution cancelled")
)
