package toolchain

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockToolchain is a mock implementation of the Toolchain interface.
type MockToolchain struct {
	mock.Mock
}

// Compile mocks the Compile method of the Toolchain interface.
func (m *MockToolchain) Compile(ctx context.Context, req Request) (*Result, error) {
	args := m.Called(ctx, req)
	res, ok := args.Get(0).(*Result)
	if !ok {
		return nil, args.Error(1)
	}
	return res, args.Error(1)
}
