package providers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"authgate/core"
)

const (
	ProviderMock core.Provider = "mock"
)

// Predefined test authorization codes
const (
	ValidCode1 = "mock_auth_code_1"
	ValidCode2 = "mock_auth_code_2"
)

// Predefined provider access tokens
const (
	AccessToken1 = "mock_access_token_1"
	AccessToken2 = "mock_access_token_2"
)

// Predefined identities
var (
	Identity1 = core.NormalizedIdentity{
		Provider:        ProviderMock,
		ProviderID:      "1001",
		Nickname:        "Mock User One",
		ProfileImageURL: "https://mock.test/avatar1.jpg",
		Email:           "user1@mock.test",
	}

	Identity2 = core.NormalizedIdentity{
		Provider:   ProviderMock,
		ProviderID: "1002",
		Nickname:   "Mock User Two",
	}
)

// MockProvider is a test implementation of IdentityClient and CodeExchanger
type MockProvider struct {
	mu               sync.Mutex
	codeToAccess     map[string]string
	accessToIdentity map[string]core.NormalizedIdentity
	failWith         error

	// track method calls for verification
	ExchangeCodeCalls  atomic.Int64
	FetchIdentityCalls atomic.Int64
}

func NewMockProvider() *MockProvider {
	return &MockProvider{
		codeToAccess: map[string]string{
			ValidCode1: AccessToken1,
			ValidCode2: AccessToken2,
		},
		accessToIdentity: map[string]core.NormalizedIdentity{
			AccessToken1: Identity1,
			AccessToken2: Identity2,
		},
	}
}

// SetIdentity changes what the provider reports for an access token.
func (m *MockProvider) SetIdentity(accessToken string, identity core.NormalizedIdentity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	identity.Provider = ProviderMock
	m.accessToIdentity[accessToken] = identity
}

// FailWith makes every FetchIdentity call fail with err; nil restores normal behavior.
func (m *MockProvider) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

func (m *MockProvider) AuthCodeURL(state string) string {
	return "https://mock.test/oauth/authorize?state=" + state
}

func (m *MockProvider) ExchangeCode(ctx context.Context, code string) (string, error) {
	m.ExchangeCodeCalls.Add(1)

	m.mu.Lock()
	defer m.mu.Unlock()

	accessToken, ok := m.codeToAccess[code]
	if !ok {
		return "", fmt.Errorf("%w: unknown authorization code", core.ErrProviderUnavailable)
	}
	return accessToken, nil
}

func (m *MockProvider) FetchIdentity(ctx context.Context, accessToken string) (*core.NormalizedIdentity, error) {
	m.FetchIdentityCalls.Add(1)

	if accessToken == "" {
		return nil, fmt.Errorf("%w: empty provider access token", core.ErrInvalidRequest)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWith != nil {
		return nil, m.failWith
	}

	identity, ok := m.accessToIdentity[accessToken]
	if !ok {
		return nil, fmt.Errorf("%w: status 401", core.ErrProviderUnavailable)
	}
	return &identity, nil
}

func (m *MockProvider) Provider() core.Provider {
	return ProviderMock
}
