package core

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedProvider     = errors.New("unsupported provider")
	ErrProviderUnavailable     = errors.New("provider unavailable")
	ErrProviderResponseInvalid = errors.New("provider response invalid")
	ErrStoreUnavailable        = errors.New("store unavailable")
	ErrDuplicateAccount        = errors.New("duplicate account")
	ErrInvalidRequest          = errors.New("invalid request")
)

// Wire codes returned to callers in the errorCode field.
const (
	CodeUnsupportedProvider     = "unsupported_provider"
	CodeProviderUnavailable     = "provider_unavailable"
	CodeProviderResponseInvalid = "provider_response_invalid"
	CodeStoreUnavailable        = "store_unavailable"
	CodeDuplicateAccount        = "duplicate_account"
	CodeInvalidSignature        = "invalid_signature"
	CodeExpired                 = "expired"
	CodeUnsupportedToken        = "unsupported_token"
	CodeInvalidRequest          = "invalid_request"
	CodeNotFound                = "not_found"
	CodeInternal                = "internal_error"
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrUnsupportedProvider, CodeUnsupportedProvider},
	{ErrProviderUnavailable, CodeProviderUnavailable},
	{ErrProviderResponseInvalid, CodeProviderResponseInvalid},
	{ErrStoreUnavailable, CodeStoreUnavailable},
	{ErrDuplicateAccount, CodeDuplicateAccount},
	{ErrInvalidSignature, CodeInvalidSignature},
	{ErrExpired, CodeExpired},
	{ErrUnsupportedToken, CodeUnsupportedToken},
	{ErrInvalidRequest, CodeInvalidRequest},
	{ErrNotFound, CodeNotFound},
}

// ErrorCode maps an error to its wire code. Anything outside the taxonomy,
// including signing failures, is an internal error.
func ErrorCode(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return CodeInternal
}

// AuthState is a step of a single authentication attempt.
type AuthState string

const (
	StateStart           AuthState = "START"
	StateIdentityFetched AuthState = "IDENTITY_FETCHED"
	StateAccountResolved AuthState = "ACCOUNT_RESOLVED"
	StateTokensIssued    AuthState = "TOKENS_ISSUED"
	StateFailed          AuthState = "FAILED"
)

// AuthError is the terminal FAILED outcome of an authentication attempt.
// Stage is the last state the attempt reached before failing.
type AuthError struct {
	Stage AuthState
	Code  string
	Err   error
}

func newAuthError(stage AuthState, err error) *AuthError {
	return &AuthError{Stage: stage, Code: ErrorCode(err), Err: err}
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed after %s (%s): %v", e.Stage, e.Code, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}
