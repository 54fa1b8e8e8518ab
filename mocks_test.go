package accounts_test

import (
	"context"
	"database/sql"

	accounts "github.com/goliatone/go-accounts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"
)

// MockUserStore implements accounts.AdminUserStore
type MockUserStore struct {
	mock.Mock
}

func (m *MockUserStore) FindByID(ctx context.Context, id uuid.UUID) (*accounts.User, error) {
	args := m.Called(ctx, id)
	if user, ok := args.Get(0).(*accounts.User); ok {
		return user, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserStore) FindWithGroups(ctx context.Context, id uuid.UUID) (*accounts.User, error) {
	args := m.Called(ctx, id)
	if user, ok := args.Get(0).(*accounts.User); ok {
		return user, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserStore) FindByEmail(ctx context.Context, email string) (*accounts.User, error) {
	args := m.Called(ctx, email)
	if user, ok := args.Get(0).(*accounts.User); ok {
		return user, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserStore) ListPage(ctx context.Context, offset, limit int) ([]*accounts.User, error) {
	args := m.Called(ctx, offset, limit)
	if users, ok := args.Get(0).([]*accounts.User); ok {
		return users, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserStore) Register(ctx context.Context, user *accounts.User) (*accounts.User, error) {
	args := m.Called(ctx, user)
	if record, ok := args.Get(0).(*accounts.User); ok {
		return record, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserStore) RegisterTx(ctx context.Context, tx bun.IDB, user *accounts.User) (*accounts.User, error) {
	args := m.Called(ctx, tx, user)
	if record, ok := args.Get(0).(*accounts.User); ok {
		return record, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserStore) UpdateFields(ctx context.Context, record *accounts.User) (*accounts.User, error) {
	args := m.Called(ctx, record)
	if updated, ok := args.Get(0).(*accounts.User); ok {
		return updated, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserStore) Remove(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockUserStore) SetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	args := m.Called(ctx, id, passwordHash)
	return args.Error(0)
}

func (m *MockUserStore) VerifyPassword(ctx context.Context, id uuid.UUID, plaintext string) error {
	args := m.Called(ctx, id, plaintext)
	return args.Error(0)
}

func (m *MockUserStore) SetFlag(ctx context.Context, id uuid.UUID, flag accounts.LifecycleFlag, value bool, opts ...accounts.FlagUpdateOption) (*accounts.User, error) {
	args := m.Called(ctx, id, flag, value)
	if user, ok := args.Get(0).(*accounts.User); ok {
		return user, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserStore) SetActivated(ctx context.Context, id uuid.UUID, value bool) (*accounts.User, error) {
	args := m.Called(ctx, id, value)
	if user, ok := args.Get(0).(*accounts.User); ok {
		return user, args.Error(1)
	}
	return nil, args.Error(1)
}

// MockGroupStore implements accounts.AdminGroupStore
type MockGroupStore struct {
	mock.Mock
}

func (m *MockGroupStore) FindByID(ctx context.Context, id uuid.UUID) (*accounts.Group, error) {
	args := m.Called(ctx, id)
	if group, ok := args.Get(0).(*accounts.Group); ok {
		return group, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGroupStore) FindByName(ctx context.Context, name string) (*accounts.Group, error) {
	args := m.Called(ctx, name)
	if group, ok := args.Get(0).(*accounts.Group); ok {
		return group, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGroupStore) ListAll(ctx context.Context) ([]*accounts.Group, error) {
	args := m.Called(ctx)
	if groups, ok := args.Get(0).([]*accounts.Group); ok {
		return groups, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGroupStore) EnsureExist(ctx context.Context, ids []uuid.UUID) error {
	args := m.Called(ctx, ids)
	return args.Error(0)
}

func (m *MockGroupStore) SetMemberships(ctx context.Context, userID uuid.UUID, groupIDs []uuid.UUID) error {
	args := m.Called(ctx, userID, groupIDs)
	return args.Error(0)
}

func (m *MockGroupStore) SetMembershipsTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, groupIDs []uuid.UUID) error {
	args := m.Called(ctx, tx, userID, groupIDs)
	return args.Error(0)
}

func (m *MockGroupStore) MembershipsFor(ctx context.Context, userID uuid.UUID) ([]*accounts.Group, error) {
	args := m.Called(ctx, userID)
	if groups, ok := args.Get(0).([]*accounts.Group); ok {
		return groups, args.Error(1)
	}
	return nil, args.Error(1)
}

// MockTxManager implements repository.TransactionManager by running
// the callback against a zero transaction handle
type MockTxManager struct {
	mock.Mock
}

func (m *MockTxManager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	args := m.Called(ctx, opts)
	if err := args.Error(0); err != nil {
		return err
	}
	return f(ctx, bun.Tx{})
}

// MockActivitySink captures emitted activity events
type MockActivitySink struct {
	mock.Mock
	Events []accounts.ActivityEvent
}

func (m *MockActivitySink) Record(ctx context.Context, event accounts.ActivityEvent) error {
	m.Events = append(m.Events, event)
	args := m.Called(ctx, event)
	return args.Error(0)
}

// MockSessionInvalidator records invalidation calls
type MockSessionInvalidator struct {
	mock.Mock
}

func (m *MockSessionInvalidator) InvalidateSessions(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// MockHasher implements accounts.PasswordAuthenticator without the
// bcrypt cost so the service tests stay fast
type MockHasher struct {
	mock.Mock
}

func (m *MockHasher) HashPassword(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

func (m *MockHasher) ComparePasswordAndHash(password, hash string) error {
	args := m.Called(password, hash)
	return args.Error(0)
}
