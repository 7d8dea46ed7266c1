package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Principal is the authenticated caller of a request, taken from a valid access token.
type Principal struct {
	AccountID int64
	Nickname  string
	Role      Role
	TokenID   string
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}

var errMissingBearer = errors.New("missing bearer token")

// RequireAuth rejects requests without a valid access token and stores the
// Principal in the request context for the next handler.
func (s *Server) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := s.authenticate(r)
		if err != nil {
			if errors.Is(err, errMissingBearer) {
				respondError(w, http.StatusUnauthorized, CodeInvalidRequest, "Missing or malformed authorization header")
				return
			}
			s.respondTokenError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}

// authenticate validates the bearer token of r. Only access tokens are accepted.
func (s *Server) authenticate(r *http.Request) (*Principal, error) {
	token, err := extractBearerToken(r)
	if err != nil {
		return nil, err
	}

	claims, err := s.authService.Tokens().Validate(token)
	if err != nil {
		return nil, err
	}
	if claims.Type != TokenAccess {
		return nil, fmt.Errorf("%w: %s token used as access token", ErrUnsupportedToken, claims.Type)
	}

	accountID, err := claims.AccountID()
	if err != nil {
		return nil, err
	}

	return &Principal{
		AccountID: accountID,
		Nickname:  claims.Extra["nickname"],
		Role:      Role(claims.Extra["role"]),
		TokenID:   claims.ID,
	}, nil
}

func extractBearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errMissingBearer
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", fmt.Errorf("%w: invalid authorization header format", errMissingBearer)
	}

	return parts[1], nil
}
