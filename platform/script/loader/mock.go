package loader

import (
	"bytes"
	"context"
	"io"
	"net/url"

	"github.com/stretchr/testify/mock"
)

// MockLoader implements the Loader interface for testing.
type MockLoader struct {
	mock.Mock
}

func (m *MockLoader) GetSourceURL() *url.URL {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*url.URL)
}

func (m *MockLoader) GetReader(ctx context.Context) (io.ReadCloser, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

// NewMockLoaderWithContent returns a mock serving content from source.
func NewMockLoaderWithContent(source string, content []byte) *MockLoader {
	u, err := url.Parse(source)
	if err != nil {
		panic(err)
	}
	m := new(MockLoader)
	m.On("GetSourceURL").Return(u)
	m.On("GetReader", mock.Anything).Return(io.NopCloser(bytes.NewReader(content)), nil)
	return m
}
