//go:build integration

package integration_test

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	_ "modernc.org/sqlite"
)

type LoginResponse struct {
	Success      bool   `json:"success"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	Message      string `json:"message"`
}

type ErrorResponse struct {
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}

type StatusResponse struct {
	Authenticated bool   `json:"authenticated"`
	MemberID      int64  `json:"memberId"`
	Nickname      string `json:"nickname"`
	Role          string `json:"role"`
}

type AccountResponse struct {
	ID              int64  `json:"id"`
	Provider        string `json:"provider"`
	ProviderID      string `json:"provider_id"`
	Nickname        string `json:"nickname"`
	ProfileImageURL string `json:"profile_image_url"`
	Role            string `json:"role"`
}

func noRedirectClient() *http.Client {
	return &http.Client{
		Timeout: 5 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// startLogin hits the login endpoint and returns the issued state cookie.
func startLogin(baseURL, provider string) (*http.Response, *http.Cookie, error) {
	resp, err := noRedirectClient().Get(baseURL + "/api/auth/" + provider + "/login")
	if err != nil {
		return nil, nil, err
	}
	for _, c := range resp.Cookies() {
		if c.Name == "authgate_oauth_state" {
			return resp, c, nil
		}
	}
	return resp, nil, nil
}

func callback(baseURL string, query url.Values, state *http.Cookie) (*http.Response, error) {
	req, _ := http.NewRequest(http.MethodGet, baseURL+"/api/auth/kakao/callback?"+query.Encode(), nil)
	if state != nil {
		req.AddCookie(state)
	}
	return noRedirectClient().Do(req)
}

// loginWithCode runs the browser leg: login redirect, then callback with the code.
func loginWithCode(baseURL, code string) (*http.Response, error) {
	resp, state, err := startLogin(baseURL, "kakao")
	if err != nil {
		return nil, err
	}
	resp.Body.Close()
	if state == nil {
		return nil, fmt.Errorf("no state cookie in login response")
	}

	return callback(baseURL, url.Values{"code": {code}, "state": {state.Value}}, state)
}

func tokenLogin(baseURL, provider, accessToken string) (*http.Response, error) {
	jsonBody, _ := json.Marshal(map[string]string{"access_token": accessToken})

	client := &http.Client{Timeout: 5 * time.Second}
	return client.Post(baseURL+"/api/auth/"+provider+"/token", "application/json", bytes.NewReader(jsonBody))
}

func getWithToken(baseURL, path, token string) (*http.Response, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	req, _ := http.NewRequest(http.MethodGet, baseURL+path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return client.Do(req)
}

func getMe(baseURL, accessToken string) (*http.Response, error) {
	return getWithToken(baseURL, "/api/auth/me", accessToken)
}

func getStatus(baseURL, accessToken string) (*http.Response, error) {
	return getWithToken(baseURL, "/api/auth/status", accessToken)
}

func countAccounts(dbPath string) (int, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM accounts").Scan(&count)
	return count, err
}

func promoteToAdmin(dbPath string, accountID int64) error {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.Exec("UPDATE accounts SET role = 'ADMIN' WHERE id = ?", accountID)
	return err
}

func cleanDatabase(dbPath string) error {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.Exec("DELETE FROM accounts")
	return err
}

func decodeJSON[T any](resp *http.Response) (*T, error) {
	defer resp.Body.Close()
	var result T
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func waitForServer(baseURL string, maxAttempts int) error {
	client := &http.Client{Timeout: 1 * time.Second}
	for i := 0; i < maxAttempts; i++ {
		resp, err := client.Get(baseURL + "/health")
		if err == nil && resp.StatusCode == 200 {
			resp.Body.Close()
			return nil
		}
		if resp != nil {
			resp.Body.Close()
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("server failed to start after %d attempts", maxAttempts)
}
