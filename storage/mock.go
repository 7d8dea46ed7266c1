package storage

import (
	"context"
	"sync"

	"authgate/core"
)

type providerKey struct {
	provider   core.Provider
	providerID string
}

// MockRepository is an in-memory Repository. It enforces the same
// (provider, providerID) uniqueness as the SQL stores.
type MockRepository struct {
	mu         sync.Mutex
	nextID     int64
	accounts   map[int64]*core.Account
	byProvider map[providerKey]int64
	failWith   error

	// Track method calls for verification
	FindByIDCalls         int
	FindByProviderIDCalls int
	CreateAccountCalls    int
	UpdateAccountCalls    int
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		nextID:     1,
		accounts:   make(map[int64]*core.Account),
		byProvider: make(map[providerKey]int64),
	}
}

// FailWith makes every call return err until reset with nil.
func (m *MockRepository) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

// Calls reports the total number of repository calls so far.
func (m *MockRepository) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.FindByIDCalls + m.FindByProviderIDCalls + m.CreateAccountCalls + m.UpdateAccountCalls
}

func (m *MockRepository) FindByID(ctx context.Context, id int64) (*core.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FindByIDCalls++

	if m.failWith != nil {
		return nil, m.failWith
	}

	account, ok := m.accounts[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	copied := *account
	return &copied, nil
}

func (m *MockRepository) FindByProviderAndProviderID(ctx context.Context, provider core.Provider, providerID string) (*core.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FindByProviderIDCalls++

	if m.failWith != nil {
		return nil, m.failWith
	}

	id, ok := m.byProvider[providerKey{provider, providerID}]
	if !ok {
		return nil, core.ErrNotFound
	}
	copied := *m.accounts[id]
	return &copied, nil
}

func (m *MockRepository) CreateAccount(ctx context.Context, account *core.Account) (*core.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateAccountCalls++

	if m.failWith != nil {
		return nil, m.failWith
	}

	key := providerKey{account.Provider, account.ProviderID}
	if _, exists := m.byProvider[key]; exists {
		return nil, core.ErrAlreadyExists
	}

	stored := *account
	stored.ID = m.nextID
	if stored.Role == "" {
		stored.Role = core.RoleUser
	}
	m.nextID++

	m.accounts[stored.ID] = &stored
	m.byProvider[key] = stored.ID

	copied := stored
	return &copied, nil
}

func (m *MockRepository) UpdateAccount(ctx context.Context, account *core.Account) (*core.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdateAccountCalls++

	if m.failWith != nil {
		return nil, m.failWith
	}

	existing, ok := m.accounts[account.ID]
	if !ok {
		return nil, core.ErrNotFound
	}

	existing.Nickname = account.Nickname
	existing.ProfileImageURL = account.ProfileImageURL
	existing.Role = account.Role
	existing.UpdatedAt = account.UpdatedAt

	copied := *existing
	return &copied, nil
}
