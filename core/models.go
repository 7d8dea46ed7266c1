package core

import (
	"time"
)

// Provider represents an OAuth identity provider
type Provider string

const (
	ProviderKakao Provider = "kakao"
	// Future providers can be added here
)

// Role is the authority level of a local account
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Key returns the authority key used when a role is checked by downstream services.
func (r Role) Key() string {
	return "ROLE_" + string(r)
}

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// NormalizedIdentity is the provider-independent view of a user-info response.
// It holds facts only; nothing here is persisted as-is.
type NormalizedIdentity struct {
	Provider        Provider
	ProviderID      string
	Nickname        string
	ProfileImageURL string // optional
	Email           string // optional, provider-dependent
}

// Account is the local record mapped to a provider identity.
// (Provider, ProviderID) is unique across all accounts.
type Account struct {
	ID              int64     `json:"id"`
	Provider        Provider  `json:"provider"`
	ProviderID      string    `json:"provider_id"`
	Nickname        string    `json:"nickname"`
	ProfileImageURL string    `json:"profile_image_url,omitempty"`
	Role            Role      `json:"role"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TokenPair is the result of a successful login
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// LoginResult is the explicit principal produced by a successful authentication.
type LoginResult struct {
	AccountID int64
	Nickname  string
	Role      Role
	Tokens    *TokenPair
}
