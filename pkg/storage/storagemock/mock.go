package storagemock

import (
	"context"

	"github.com/raterudder/powerwall-tou/pkg/storage"
	"github.com/stretchr/testify/mock"
)

type MockCredentialStore struct {
	mock.Mock
}

var _ storage.CredentialStore = (*MockCredentialStore)(nil)

func (m *MockCredentialStore) ReadRefreshToken(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockCredentialStore) WriteRefreshToken(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockCredentialStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
