package core

import (
	"context"
	"errors"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

type Repository interface {
	FindByID(ctx context.Context, id int64) (*Account, error)

	// FindByProviderAndProviderID returns ErrNotFound when no account is linked to the identity.
	FindByProviderAndProviderID(ctx context.Context, provider Provider, providerID string) (*Account, error)

	// CreateAccount assigns the account ID. A second account for the same
	// (provider, providerID) fails with ErrAlreadyExists.
	CreateAccount(ctx context.Context, account *Account) (*Account, error)

	UpdateAccount(ctx context.Context, account *Account) (*Account, error)
}
