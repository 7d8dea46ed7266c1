//go:build integration

package integration_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
)

type mockKakaoUser struct {
	ID       int64
	Nickname string
	Image    string
	Email    string
}

var mockUsers = map[string]mockKakaoUser{
	"valid_code_1": {
		ID:       1001,
		Nickname: "Test User 1",
		Image:    "https://example.com/avatar1.jpg",
		Email:    "user1@example.com",
	},
	"valid_code_2": {
		ID:       1001,
		Nickname: "Test User 1",
		Image:    "https://example.com/avatar1.jpg",
		Email:    "user1@example.com",
	},
	"renamed_code_1": {
		ID:       1001,
		Nickname: "Renamed User 1",
		Image:    "https://example.com/avatar1-new.jpg",
		Email:    "user1@example.com",
	},
	"another_user_code_1": {
		ID:       2002,
		Nickname: "Test User 2",
	},
	"no_nickname_code": {
		ID: 3003,
	},
}

// MockKakaoServer serves the Kakao token and user-info endpoints.
type MockKakaoServer struct {
	server        *httptest.Server
	userInfoCalls atomic.Int64
}

func NewMockKakaoServer() *MockKakaoServer {
	m := &MockKakaoServer{}

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", m.handleToken)
	mux.HandleFunc("/v2/user/me", m.handleUserInfo)

	m.server = httptest.NewServer(mux)
	return m
}

func (m *MockKakaoServer) URL() string {
	return m.server.URL
}

func (m *MockKakaoServer) Close() {
	m.server.Close()
}

func (m *MockKakaoServer) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	code := r.PostForm.Get("code")
	if r.PostForm.Get("grant_type") == "authorization_code" && r.PostForm.Get("client_id") == "mock_client_id" {
		if _, ok := mockUsers[code]; ok {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token":  "access_" + code,
				"refresh_token": "refresh_" + code,
				"expires_in":    21599,
				"token_type":    "bearer",
			})
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]string{
		"error":             "invalid_grant",
		"error_description": "authorization code not found for code=" + code,
	})
}

func (m *MockKakaoServer) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	m.userInfoCalls.Add(1)

	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	code := strings.TrimPrefix(token, "access_")

	user, ok := mockUsers[code]
	if !ok || token == code {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"msg":  "this access token does not exist",
			"code": -401,
		})
		return
	}

	profile := map[string]interface{}{}
	if user.Nickname != "" {
		profile["nickname"] = user.Nickname
	}
	if user.Image != "" {
		profile["profile_image_url"] = user.Image
	}

	account := map[string]interface{}{"profile": profile}
	if user.Email != "" {
		account["email"] = user.Email
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"id":            user.ID,
		"connected_at":  "2024-01-01T00:00:00Z",
		"kakao_account": account,
	})
}
