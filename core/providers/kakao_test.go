package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"authgate/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKakaoTestServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("Authorization") != "Bearer kakao-access-token" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"msg":"this access token does not exist","code":-401}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func newTestKakaoProvider(userInfoURL string, timeout time.Duration) *KakaoProvider {
	return NewKakaoProvider(&KakaoConfig{
		ClientID:     "kakao-client",
		ClientSecret: "kakao-secret",
		RedirectURI:  "http://localhost:8080/api/auth/kakao/callback",
		UserInfoURL:  userInfoURL,
		Timeout:      timeout,
	})
}

func TestKakaoFetchIdentity(t *testing.T) {
	tests := []struct {
		name string
		body string
		want core.NormalizedIdentity
	}{
		{
			name: "full profile",
			body: `{
				"id": 123,
				"connected_at": "2024-01-01T00:00:00Z",
				"kakao_account": {
					"email": "alice@example.com",
					"profile": {"nickname": "Alice", "profile_image_url": "https://k.kakaocdn.net/alice.png"}
				}
			}`,
			want: core.NormalizedIdentity{
				Provider:        core.ProviderKakao,
				ProviderID:      "123",
				Nickname:        "Alice",
				ProfileImageURL: "https://k.kakaocdn.net/alice.png",
				Email:           "alice@example.com",
			},
		},
		{
			name: "string id and legacy properties",
			body: `{"id": "4567", "properties": {"nickname": "Bob", "profile_image": "https://k.kakaocdn.net/bob.png"}}`,
			want: core.NormalizedIdentity{
				Provider:        core.ProviderKakao,
				ProviderID:      "4567",
				Nickname:        "Bob",
				ProfileImageURL: "https://k.kakaocdn.net/bob.png",
			},
		},
		{
			name: "profile wins over properties",
			body: `{"id": 9, "properties": {"nickname": "old"}, "kakao_account": {"profile": {"nickname": "new"}}}`,
			want: core.NormalizedIdentity{
				Provider:   core.ProviderKakao,
				ProviderID: "9",
				Nickname:   "new",
			},
		},
		{
			name: "large id",
			body: `{"id": 3456789012, "properties": {"nickname": "Carol"}}`,
			want: core.NormalizedIdentity{
				Provider:   core.ProviderKakao,
				ProviderID: "3456789012",
				Nickname:   "Carol",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := newKakaoTestServer(t, http.StatusOK, tt.body)
			provider := newTestKakaoProvider(server.URL, time.Second)

			identity, err := provider.FetchIdentity(context.Background(), "kakao-access-token")
			require.NoError(t, err)
			assert.Equal(t, tt.want, *identity)
		})
	}
}

func TestKakaoFetchIdentity_InvalidResponse(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing id", `{"properties": {"nickname": "Alice"}}`},
		{"zero id", `{"id": 0, "properties": {"nickname": "Alice"}}`},
		{"negative id", `{"id": -5, "properties": {"nickname": "Alice"}}`},
		{"fractional id", `{"id": 1.5, "properties": {"nickname": "Alice"}}`},
		{"non-numeric id", `{"id": "abc", "properties": {"nickname": "Alice"}}`},
		{"missing nickname", `{"id": 123, "kakao_account": {"email": "a@example.com"}}`},
		{"not json", `<html>oops</html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := newKakaoTestServer(t, http.StatusOK, tt.body)
			provider := newTestKakaoProvider(server.URL, time.Second)

			identity, err := provider.FetchIdentity(context.Background(), "kakao-access-token")
			assert.Nil(t, identity)
			assert.ErrorIs(t, err, core.ErrProviderResponseInvalid)
		})
	}
}

func TestKakaoFetchIdentity_Unauthorized(t *testing.T) {
	server, calls := newKakaoTestServer(t, http.StatusOK, `{}`)
	provider := newTestKakaoProvider(server.URL, time.Second)

	_, err := provider.FetchIdentity(context.Background(), "revoked-token")
	assert.ErrorIs(t, err, core.ErrProviderUnavailable)
	assert.Equal(t, int64(1), calls.Load())
}

func TestKakaoFetchIdentity_ServerError(t *testing.T) {
	server, _ := newKakaoTestServer(t, http.StatusInternalServerError, `{"msg":"internal"}`)
	provider := newTestKakaoProvider(server.URL, time.Second)

	_, err := provider.FetchIdentity(context.Background(), "kakao-access-token")
	assert.ErrorIs(t, err, core.ErrProviderUnavailable)
}

func TestKakaoFetchIdentity_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })

	provider := newTestKakaoProvider(server.URL, 50*time.Millisecond)

	start := time.Now()
	_, err := provider.FetchIdentity(context.Background(), "kakao-access-token")
	assert.ErrorIs(t, err, core.ErrProviderUnavailable)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestKakaoFetchIdentity_CallerDeadline(t *testing.T) {
	server, _ := newKakaoTestServer(t, http.StatusOK, `{"id": 1, "properties": {"nickname": "A"}}`)
	provider := newTestKakaoProvider(server.URL, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := provider.FetchIdentity(ctx, "kakao-access-token")
	assert.ErrorIs(t, err, core.ErrProviderUnavailable)
}

func TestKakaoFetchIdentity_EmptyToken(t *testing.T) {
	server, calls := newKakaoTestServer(t, http.StatusOK, `{}`)
	provider := newTestKakaoProvider(server.URL, time.Second)

	_, err := provider.FetchIdentity(context.Background(), "")
	assert.ErrorIs(t, err, core.ErrInvalidRequest)
	assert.Equal(t, int64(0), calls.Load())
}

func TestKakaoExchangeCode(t *testing.T) {
	var form url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"kakao-access-token","token_type":"bearer","refresh_token":"kakao-refresh","expires_in":21599}`))
	}))
	t.Cleanup(server.Close)

	provider := NewKakaoProvider(&KakaoConfig{
		ClientID:     "kakao-client",
		ClientSecret: "kakao-secret",
		RedirectURI:  "http://localhost:8080/api/auth/kakao/callback",
		TokenURL:     server.URL,
	})

	accessToken, err := provider.ExchangeCode(context.Background(), "auth-code")
	require.NoError(t, err)
	assert.Equal(t, "kakao-access-token", accessToken)

	assert.Equal(t, "authorization_code", form.Get("grant_type"))
	assert.Equal(t, "auth-code", form.Get("code"))
	assert.Equal(t, "kakao-client", form.Get("client_id"))
	assert.Equal(t, "kakao-secret", form.Get("client_secret"))
	assert.Equal(t, "http://localhost:8080/api/auth/kakao/callback", form.Get("redirect_uri"))
}

func TestKakaoExchangeCode_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant","error_description":"authorization code not found"}`))
	}))
	t.Cleanup(server.Close)

	provider := NewKakaoProvider(&KakaoConfig{ClientID: "kakao-client", TokenURL: server.URL})

	_, err := provider.ExchangeCode(context.Background(), "used-code")
	assert.ErrorIs(t, err, core.ErrProviderUnavailable)
}

func TestKakaoAuthCodeURL(t *testing.T) {
	provider := newTestKakaoProvider("", time.Second)

	authURL, err := url.Parse(provider.AuthCodeURL("state-xyz"))
	require.NoError(t, err)

	assert.Equal(t, "kauth.kakao.com", authURL.Host)
	assert.Equal(t, "/oauth/authorize", authURL.Path)
	q := authURL.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "kakao-client", q.Get("client_id"))
	assert.Equal(t, "state-xyz", q.Get("state"))
	assert.Equal(t, "http://localhost:8080/api/auth/kakao/callback", q.Get("redirect_uri"))
}

func TestKakaoDefaults(t *testing.T) {
	provider := NewKakaoProvider(&KakaoConfig{ClientID: "kakao-client"})

	assert.Equal(t, core.ProviderKakao, provider.Provider())
	assert.Equal(t, KakaoUserInfoURL, provider.userInfoURL)
	assert.Equal(t, DefaultTimeout, provider.httpClient.Timeout)
}
