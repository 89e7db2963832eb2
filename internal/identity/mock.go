package identity

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) UpdatePhotoURL(ctx context.Context, userId, photoURL string) error {
	args := m.Called(userId, photoURL)
	return args.Error(0)
}
