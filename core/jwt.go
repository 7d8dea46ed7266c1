package core

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrExpired          = errors.New("token expired")
	ErrUnsupportedToken = errors.New("unsupported token")
	ErrSigning          = errors.New("token signing failed")
	ErrWeakSigningKey   = errors.New("signing key must be at least 32 bytes for HS256")
)

// MinSigningKeyLength is the smallest HMAC key accepted for HS256.
const MinSigningKeyLength = 32

type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

func (t TokenType) Valid() bool {
	return t == TokenAccess || t == TokenRefresh
}

// Claim names the engine owns. Extra claims may not override them.
var reservedClaims = map[string]struct{}{
	"sub":  {},
	"type": {},
	"jti":  {},
	"iat":  {},
	"exp":  {},
	"nbf":  {},
	"iss":  {},
	"aud":  {},
}

// TokenClaims is the validated content of a signed token.
type TokenClaims struct {
	Subject   string
	Type      TokenType
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Extra     map[string]string
}

// AccountID parses the subject back into an account identifier.
func (c *TokenClaims) AccountID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: subject %q is not an account id", ErrUnsupportedToken, c.Subject)
	}
	return id, nil
}

// TokenEngine issues and validates HS256 tokens. It is immutable after
// construction and safe for concurrent use.
type TokenEngine struct {
	key        []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

type TokenEngineOption func(*TokenEngine)

// WithClock replaces time.Now for issuance and expiry checks.
func WithClock(now func() time.Time) TokenEngineOption {
	return func(e *TokenEngine) {
		e.now = now
	}
}

func NewTokenEngine(secret []byte, accessTTL, refreshTTL time.Duration, opts ...TokenEngineOption) (*TokenEngine, error) {
	if len(secret) < MinSigningKeyLength {
		return nil, ErrWeakSigningKey
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, fmt.Errorf("token lifetimes must be positive (access %s, refresh %s)", accessTTL, refreshTTL)
	}

	key := make([]byte, len(secret))
	copy(key, secret)

	e := &TokenEngine{
		key:        key,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// NewTokenEngineFromConfig builds the engine from the jwt section of the configuration.
func NewTokenEngineFromConfig(config *JWTConfig, opts ...TokenEngineOption) (*TokenEngine, error) {
	return NewTokenEngine([]byte(config.Secret), config.AccessTTL(), config.RefreshTTL(), opts...)
}

func (e *TokenEngine) ttl(tokenType TokenType) (time.Duration, error) {
	switch tokenType {
	case TokenAccess:
		return e.accessTTL, nil
	case TokenRefresh:
		return e.refreshTTL, nil
	default:
		return 0, fmt.Errorf("unknown token type %q", tokenType)
	}
}

// Issue signs a token for the account. Errors other than ErrSigning are
// caller mistakes (bad type or account id).
func (e *TokenEngine) Issue(accountID int64, tokenType TokenType, extra map[string]string) (string, error) {
	if accountID <= 0 {
		return "", fmt.Errorf("invalid account id %d", accountID)
	}
	ttl, err := e.ttl(tokenType)
	if err != nil {
		return "", err
	}

	now := e.now()
	claims := jwt.MapClaims{}
	for name, value := range extra {
		if _, reserved := reservedClaims[name]; reserved {
			continue
		}
		claims[name] = value
	}
	claims["sub"] = strconv.FormatInt(accountID, 10)
	claims["type"] = string(tokenType)
	claims["jti"] = uuid.NewString()
	claims["iat"] = jwt.NewNumericDate(now)
	claims["exp"] = jwt.NewNumericDate(now.Add(ttl))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(e.key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigning, err)
	}

	return signedToken, nil
}

// IssuePair issues an access and a refresh token carrying the same extra claims.
func (e *TokenEngine) IssuePair(accountID int64, extra map[string]string) (*TokenPair, error) {
	accessToken, err := e.Issue(accountID, TokenAccess, extra)
	if err != nil {
		return nil, fmt.Errorf("failed to issue access token: %w", err)
	}

	refreshToken, err := e.Issue(accountID, TokenRefresh, extra)
	if err != nil {
		return nil, fmt.Errorf("failed to issue refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// Validate verifies the signature before looking at expiry. An expired but
// correctly signed token yields its claims together with ErrExpired.
func (e *TokenEngine) Validate(tokenString string) (*TokenClaims, error) {
	parser := jwt.NewParser(
		jwt.WithTimeFunc(e.now),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
	)

	mapClaims := jwt.MapClaims{}
	_, err := parser.ParseWithClaims(tokenString, mapClaims, e.keyFunc)
	if err != nil {
		switch {
		case errors.Is(err, ErrUnsupportedToken), errors.Is(err, jwt.ErrTokenUnverifiable):
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedToken, err)
		case errors.Is(err, jwt.ErrTokenMalformed), errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		case errors.Is(err, jwt.ErrTokenExpired):
			claims, claimsErr := claimsFromMap(mapClaims)
			if claimsErr != nil {
				return nil, claimsErr
			}
			return claims, fmt.Errorf("%w: expired at %s", ErrExpired, claims.ExpiresAt.UTC().Format(time.RFC3339))
		case errors.Is(err, jwt.ErrTokenInvalidClaims):
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedToken, err)
		default:
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
	}

	return claimsFromMap(mapClaims)
}

func (e *TokenEngine) keyFunc(token *jwt.Token) (interface{}, error) {
	if token.Method == nil || token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
		return nil, fmt.Errorf("%w: algorithm %v", ErrUnsupportedToken, token.Header["alg"])
	}
	return e.key, nil
}

func claimsFromMap(m jwt.MapClaims) (*TokenClaims, error) {
	subject, err := m.GetSubject()
	if err != nil || subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrUnsupportedToken)
	}

	typeValue, _ := m["type"].(string)
	tokenType := TokenType(typeValue)
	if !tokenType.Valid() {
		return nil, fmt.Errorf("%w: token type %q", ErrUnsupportedToken, typeValue)
	}

	expiresAt, err := m.GetExpirationTime()
	if err != nil || expiresAt == nil {
		return nil, fmt.Errorf("%w: missing expiration", ErrUnsupportedToken)
	}

	issuedAt, err := m.GetIssuedAt()
	if err != nil {
		return nil, fmt.Errorf("%w: bad issued-at", ErrUnsupportedToken)
	}

	claims := &TokenClaims{
		Subject:   subject,
		Type:      tokenType,
		ExpiresAt: expiresAt.Time,
		Extra:     make(map[string]string),
	}
	if issuedAt != nil {
		claims.IssuedAt = issuedAt.Time
	}
	if jti, ok := m["jti"].(string); ok {
		claims.ID = jti
	}

	for name, value := range m {
		if _, reserved := reservedClaims[name]; reserved {
			continue
		}
		if s, ok := value.(string); ok {
			claims.Extra[name] = s
		}
	}

	return claims, nil
}
