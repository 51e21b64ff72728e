package runner

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/robbyt/go-replkit/engines/gowasm/scope"
	"github.com/robbyt/go-replkit/platform/history"
)

// MockRunner is a mock implementation of the Runner interface.
type MockRunner struct {
	mock.Mock
}

// Run mocks the Run method of the Runner interface.
func (m *MockRunner) Run(ctx context.Context, h *scope.Handle, hctx *history.Context) (*Outcome, error) {
	args := m.Called(ctx, h, hctx)
	out, ok := args.Get(0).(*Outcome)
	if !ok {
		return nil, args.Error(1)
	}
	return out, args.Error(1)
}
