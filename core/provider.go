package core

import (
	"context"
	"fmt"
	"sort"
)

// IdentityClient fetches the user-info document of one provider and
// normalizes it. Implementations never touch the account store.
type IdentityClient interface {
	Provider() Provider

	// FetchIdentity fails with ErrProviderUnavailable on transport errors or
	// timeouts and with ErrProviderResponseInvalid when required fields are missing.
	FetchIdentity(ctx context.Context, accessToken string) (*NormalizedIdentity, error)
}

// CodeExchanger performs the authorization-code leg of the provider's OAuth2 flow.
type CodeExchanger interface {
	AuthCodeURL(state string) string

	ExchangeCode(ctx context.Context, code string) (accessToken string, err error)
}

// ProviderRegistry maps provider names to their clients. Adding a provider
// is a registry entry.
type ProviderRegistry struct {
	clients   map[Provider]IdentityClient
	exchanges map[Provider]CodeExchanger
}

// NewProviderRegistry registers clients by their Provider name. Clients that
// also implement CodeExchanger can serve the authorization-code flow.
func NewProviderRegistry(clients ...IdentityClient) *ProviderRegistry {
	r := &ProviderRegistry{
		clients:   make(map[Provider]IdentityClient),
		exchanges: make(map[Provider]CodeExchanger),
	}
	for _, c := range clients {
		r.clients[c.Provider()] = c
		if ex, ok := c.(CodeExchanger); ok {
			r.exchanges[c.Provider()] = ex
		}
	}
	return r
}

func (r *ProviderRegistry) Get(provider Provider) (IdentityClient, error) {
	c, ok := r.clients[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, provider)
	}
	return c, nil
}

func (r *ProviderRegistry) Exchanger(provider Provider) (CodeExchanger, error) {
	ex, ok := r.exchanges[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q has no authorization code flow", ErrUnsupportedProvider, provider)
	}
	return ex, nil
}

// Providers lists the configured provider names in sorted order.
func (r *ProviderRegistry) Providers() []string {
	names := make([]string, 0, len(r.clients))
	for p := range r.clients {
		names = append(names, string(p))
	}
	sort.Strings(names)
	return names
}
