package sessionmock

import (
	"context"

	"github.com/shouldiwash/shouldiwash/pkg/session"
	"github.com/shouldiwash/shouldiwash/pkg/types"
	"github.com/stretchr/testify/mock"
)

type MockStore struct {
	mock.Mock
}

var _ session.Store = (*MockStore)(nil)

func (m *MockStore) Load(ctx context.Context) (types.Session, error) {
	args := m.Called(ctx)
	if len(args) > 0 {
		return args.Get(0).(types.Session), args.Error(1)
	}
	return types.Session{}, session.ErrNoSession
}

func (m *MockStore) Save(ctx context.Context, sess types.Session) error {
	args := m.Called(ctx, sess)
	return args.Error(0)
}

func (m *MockStore) Update(ctx context.Context, fn func(*types.Session) error) error {
	args := m.Called(ctx, fn)
	return args.Error(0)
}

func (m *MockStore) Clear(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
