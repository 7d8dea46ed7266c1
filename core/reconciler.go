package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"authgate/logging"
)

const DefaultStoreTimeout = 5 * time.Second

// Reconciler maps a provider identity onto a local account: lookup by
// (provider, providerID), create on miss, refresh profile fields on hit.
// It takes no locks; concurrent first logins rely on the store's unique
// constraint and surface as ErrDuplicateAccount.
type Reconciler struct {
	repo    Repository
	timeout time.Duration
	logger  *slog.Logger
}

func NewReconciler(repo Repository, timeout time.Duration, logger *slog.Logger) *Reconciler {
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Reconciler{
		repo:    repo,
		timeout: timeout,
		logger:  logger,
	}
}

func (r *Reconciler) Reconcile(ctx context.Context, identity *NormalizedIdentity) (*Account, error) {
	if identity == nil || identity.Provider == "" || identity.ProviderID == "" {
		return nil, fmt.Errorf("%w: identity without provider id", ErrInvalidRequest)
	}

	account, err := r.find(ctx, identity)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, storeError("failed to find account", err)
		}
		return r.create(ctx, identity)
	}

	// Only the profile fields follow the provider; role is never touched here.
	if account.Nickname == identity.Nickname && account.ProfileImageURL == identity.ProfileImageURL {
		return account, nil
	}

	updated := *account
	updated.Nickname = identity.Nickname
	updated.ProfileImageURL = identity.ProfileImageURL
	updated.UpdatedAt = time.Now().UTC()

	storeCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	saved, err := r.repo.UpdateAccount(storeCtx, &updated)
	if err != nil {
		return nil, storeError("failed to update account", err)
	}

	r.logger.Debug("account profile refreshed", "account_id", saved.ID, "provider", saved.Provider)
	return saved, nil
}

func (r *Reconciler) find(ctx context.Context, identity *NormalizedIdentity) (*Account, error) {
	storeCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	return r.repo.FindByProviderAndProviderID(storeCtx, identity.Provider, identity.ProviderID)
}

func (r *Reconciler) create(ctx context.Context, identity *NormalizedIdentity) (*Account, error) {
	now := time.Now().UTC()
	account := &Account{
		Provider:        identity.Provider,
		ProviderID:      identity.ProviderID,
		Nickname:        identity.Nickname,
		ProfileImageURL: identity.ProfileImageURL,
		Role:            RoleUser,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	storeCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	created, err := r.repo.CreateAccount(storeCtx, account)
	if err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, fmt.Errorf("%w: %s/%s", ErrDuplicateAccount, identity.Provider, identity.ProviderID)
		}
		return nil, storeError("failed to create account", err)
	}

	r.logger.Info("account created", "account_id", created.ID, "provider", created.Provider)
	return created, nil
}

func storeError(msg string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, msg, err)
}
