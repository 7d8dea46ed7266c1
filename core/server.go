package core

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"authgate/logging"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const (
	StateCookieName = "authgate_oauth_state"

	stateCookieMaxAge = 10 * time.Minute
	maxRequestBody    = 1 << 16
)

type Server struct {
	authService *AuthService
	repo        Repository
	config      *Config
	logger      *slog.Logger
}

func NewServer(authService *AuthService, repo Repository, config *Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Server{
		authService: authService,
		repo:        repo,
		config:      config,
		logger:      logger,
	}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/health", s.HandleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api/auth").Subrouter()
	api.HandleFunc("/status", s.HandleStatus).Methods(http.MethodGet)
	api.Handle("/me", s.RequireAuth(http.HandlerFunc(s.HandleMe))).Methods(http.MethodGet)
	api.HandleFunc("/{provider}/login", s.HandleLoginRedirect).Methods(http.MethodGet)
	api.HandleFunc("/{provider}/callback", s.HandleCallback).Methods(http.MethodGet)
	api.HandleFunc("/{provider}/token", s.HandleTokenLogin).Methods(http.MethodPost)

	return r
}

// HandleLoginRedirect starts the authorization-code flow.
func (s *Server) HandleLoginRedirect(w http.ResponseWriter, r *http.Request) {
	provider := Provider(mux.Vars(r)["provider"])
	state := uuid.NewString()

	authURL, err := s.authService.AuthCodeURL(provider, state)
	if err != nil {
		s.respondAuthError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     StateCookieName,
		Value:    state,
		Path:     "/api/auth",
		MaxAge:   int(stateCookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, authURL, http.StatusFound)
}

// HandleCallback is the provider's redirect target.
func (s *Server) HandleCallback(w http.ResponseWriter, r *http.Request) {
	provider := Provider(mux.Vars(r)["provider"])
	query := r.URL.Query()

	if providerErr := query.Get("error"); providerErr != "" {
		message := query.Get("error_description")
		if message == "" {
			message = providerErr
		}
		s.logger.Info("provider denied authorization", "provider", provider, "error", providerErr)
		http.Redirect(w, r, s.failureURL(message), http.StatusFound)
		return
	}

	cookie, err := r.Cookie(StateCookieName)
	if err != nil || cookie.Value == "" || cookie.Value != query.Get("state") {
		respondError(w, http.StatusBadRequest, CodeInvalidRequest, "OAuth state mismatch")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: StateCookieName, Path: "/api/auth", MaxAge: -1})

	ctx := r.Context()
	accessToken, err := s.authService.ExchangeCode(ctx, provider, query.Get("code"))
	if err != nil {
		s.respondAuthError(w, err)
		return
	}

	s.completeLogin(ctx, w, provider, accessToken)
}

// HandleTokenLogin accepts a provider access token obtained by the client itself.
func (s *Server) HandleTokenLogin(w http.ResponseWriter, r *http.Request) {
	provider := Provider(mux.Vars(r)["provider"])

	var req struct {
		AccessToken string `json:"access_token"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	s.completeLogin(r.Context(), w, provider, req.AccessToken)
}

// completeLogin runs Authenticate, retrying once when a concurrent first
// login for the same identity won the create race.
func (s *Server) completeLogin(ctx context.Context, w http.ResponseWriter, provider Provider, accessToken string) {
	result, err := s.authService.Authenticate(ctx, provider, accessToken)
	if errors.Is(err, ErrDuplicateAccount) {
		s.logger.Info("retrying login after concurrent account creation", "provider", provider)
		result, err = s.authService.Authenticate(ctx, provider, accessToken)
	}
	if err != nil {
		s.respondAuthError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"accessToken":  result.Tokens.AccessToken,
		"refreshToken": result.Tokens.RefreshToken,
		"message":      "Login successful",
	})
}

// HandleStatus reports whether the bearer token, if any, is a valid access token.
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") == "" {
		respondJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}

	principal, err := s.authenticate(r)
	if err != nil {
		if errors.Is(err, errMissingBearer) {
			respondError(w, http.StatusUnauthorized, CodeInvalidRequest, "Malformed authorization header")
			return
		}
		s.respondTokenError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"memberId":      principal.AccountID,
		"nickname":      principal.Nickname,
		"role":          principal.Role,
	})
}

func (s *Server) HandleMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, CodeInvalidRequest, "Missing principal")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.storeTimeout())
	defer cancel()

	account, err := s.repo.FindByID(ctx, principal.AccountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respondError(w, http.StatusNotFound, CodeNotFound, "Account not found")
			return
		}
		s.logger.Warn("failed to load account", "account_id", principal.AccountID, "error", err)
		respondError(w, http.StatusServiceUnavailable, CodeStoreUnavailable, "Account store unavailable")
		return
	}

	respondJSON(w, http.StatusOK, account)
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Helper functions

func (s *Server) storeTimeout() time.Duration {
	if s.config == nil || s.config.StoreTimeout <= 0 {
		return DefaultStoreTimeout
	}
	return s.config.StoreTimeout
}

func (s *Server) failureURL(message string) string {
	target := "/login"
	if s.config != nil && s.config.FailureRedirect != "" {
		target = s.config.FailureRedirect
	}

	u, err := url.Parse(target)
	if err != nil {
		u = &url.URL{Path: "/login"}
	}
	q := u.Query()
	q.Set("error", "oauth2_failed")
	q.Set("message", message)
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *Server) respondAuthError(w http.ResponseWriter, err error) {
	code := ErrorCode(err)
	status := statusFor(code)
	if status == http.StatusInternalServerError {
		s.logger.Error("authentication failed", "error", err)
	}
	respondError(w, status, code, messageFor(code))
}

func (s *Server) respondTokenError(w http.ResponseWriter, err error) {
	code := ErrorCode(err)
	if code == CodeInternal {
		code = CodeInvalidSignature
	}
	respondError(w, http.StatusUnauthorized, code, messageFor(code))
}

func statusFor(code string) int {
	switch code {
	case CodeUnsupportedProvider, CodeInvalidRequest:
		return http.StatusBadRequest
	case CodeProviderUnavailable, CodeProviderResponseInvalid:
		return http.StatusBadGateway
	case CodeStoreUnavailable:
		return http.StatusServiceUnavailable
	case CodeDuplicateAccount:
		return http.StatusConflict
	case CodeInvalidSignature, CodeExpired, CodeUnsupportedToken:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func messageFor(code string) string {
	switch code {
	case CodeUnsupportedProvider:
		return "Unsupported provider"
	case CodeInvalidRequest:
		return "Invalid request"
	case CodeProviderUnavailable:
		return "Identity provider unavailable"
	case CodeProviderResponseInvalid:
		return "Identity provider returned an invalid response"
	case CodeStoreUnavailable:
		return "Account store unavailable"
	case CodeDuplicateAccount:
		return "Account is being created by a concurrent login, retry"
	case CodeInvalidSignature:
		return "Invalid token"
	case CodeExpired:
		return "Token expired"
	case CodeUnsupportedToken:
		return "Unsupported token"
	case CodeNotFound:
		return "Not found"
	default:
		return "Internal error"
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(dest); err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid request body")
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	respondJSON(w, statusCode, map[string]string{
		"errorCode": errorCode,
		"message":   message,
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
