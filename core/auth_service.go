package core

import (
	"context"
	"fmt"
	"log/slog"

	"authgate/logging"

	"github.com/google/uuid"
)

type AuthService struct {
	providers  *ProviderRegistry
	reconciler *Reconciler
	tokens     *TokenEngine
	logger     *slog.Logger
}

func NewAuthService(providers *ProviderRegistry, reconciler *Reconciler, tokens *TokenEngine, logger *slog.Logger) *AuthService {
	if logger == nil {
		logger = logging.Nop()
	}
	return &AuthService{
		providers:  providers,
		reconciler: reconciler,
		tokens:     tokens,
		logger:     logger,
	}
}

// Tokens exposes the engine so the HTTP boundary can validate bearer tokens.
func (s *AuthService) Tokens() *TokenEngine {
	return s.tokens
}

// AuthCodeURL is the provider authorize URL a browser is redirected to.
func (s *AuthService) AuthCodeURL(provider Provider, state string) (string, error) {
	exchanger, err := s.providers.Exchanger(provider)
	if err != nil {
		return "", err
	}
	return exchanger.AuthCodeURL(state), nil
}

// ExchangeCode trades an authorization code for a provider access token.
// Authorization codes are single use, so callers never retry this step.
func (s *AuthService) ExchangeCode(ctx context.Context, provider Provider, code string) (string, error) {
	if code == "" {
		return "", newAuthError(StateStart, fmt.Errorf("%w: missing authorization code", ErrInvalidRequest))
	}

	exchanger, err := s.providers.Exchanger(provider)
	if err != nil {
		return "", newAuthError(StateStart, err)
	}

	accessToken, err := exchanger.ExchangeCode(ctx, code)
	if err != nil {
		s.logger.Warn("authorization code exchange failed", "provider", provider, "error", err)
		return "", newAuthError(StateStart, err)
	}
	return accessToken, nil
}

// Login runs the authorization-code leg with the provider and then Authenticate.
func (s *AuthService) Login(ctx context.Context, provider Provider, code string) (*LoginResult, error) {
	accessToken, err := s.ExchangeCode(ctx, provider, code)
	if err != nil {
		return nil, err
	}
	return s.Authenticate(ctx, provider, accessToken)
}

// Authenticate walks START → IDENTITY_FETCHED → ACCOUNT_RESOLVED → TOKENS_ISSUED.
// Any stage failure is terminal and returned as *AuthError; nothing is retried here.
func (s *AuthService) Authenticate(ctx context.Context, provider Provider, providerAccessToken string) (*LoginResult, error) {
	log := s.logger.With("attempt_id", uuid.NewString(), "provider", provider)

	// 1. Resolve the provider before any network call
	client, err := s.providers.Get(provider)
	if err != nil {
		return nil, s.fail(log, StateStart, err)
	}

	// 2. Fetch the provider identity
	identity, err := client.FetchIdentity(ctx, providerAccessToken)
	if err != nil {
		return nil, s.fail(log, StateStart, err)
	}
	log.Debug("identity fetched", "state", StateIdentityFetched, "email_present", identity.Email != "")

	// 3. Map it to a local account
	account, err := s.reconciler.Reconcile(ctx, identity)
	if err != nil {
		return nil, s.fail(log, StateIdentityFetched, err)
	}
	log.Debug("account resolved", "state", StateAccountResolved, "account_id", account.ID)

	// 4. Issue the token pair
	tokens, err := s.tokens.IssuePair(account.ID, map[string]string{
		"nickname": account.Nickname,
		"role":     string(account.Role),
	})
	if err != nil {
		log.Error("token issuance failed", "account_id", account.ID, "error", err)
		return nil, newAuthError(StateAccountResolved, err)
	}

	log.Info("login succeeded", "state", StateTokensIssued, "account_id", account.ID)
	return &LoginResult{
		AccountID: account.ID,
		Nickname:  account.Nickname,
		Role:      account.Role,
		Tokens:    tokens,
	}, nil
}

func (s *AuthService) fail(log *slog.Logger, stage AuthState, err error) *AuthError {
	authErr := newAuthError(stage, err)
	log.Warn("login failed", "state", StateFailed, "stage", stage, "code", authErr.Code, "error", err)
	return authErr
}
