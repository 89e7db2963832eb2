package blob

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Put(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	args := m.Called(name, contentType, r)
	return args.String(0), args.Error(1)
}
