package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"authgate/core"

	"golang.org/x/oauth2"
)

const (
	KakaoAuthURL     = "https://kauth.kakao.com/oauth/authorize"
	KakaoTokenURL    = "https://kauth.kakao.com/oauth/token"
	KakaoUserInfoURL = "https://kapi.kakao.com/v2/user/me"

	DefaultTimeout = 10 * time.Second

	maxUserInfoBody = 1 << 20
)

type KakaoConfig struct {
	ClientID     string        `yaml:"client_id" env:"KAKAO_CLIENT_ID"`
	ClientSecret string        `yaml:"client_secret" env:"KAKAO_CLIENT_SECRET"`
	RedirectURI  string        `yaml:"redirect_uri" env:"KAKAO_REDIRECT_URI"`
	AuthURL      string        `yaml:"auth_url"`
	TokenURL     string        `yaml:"token_url"`
	UserInfoURL  string        `yaml:"userinfo_url"`
	Scopes       []string      `yaml:"scopes"`
	Timeout      time.Duration `yaml:"timeout" env:"KAKAO_TIMEOUT"`
}

type KakaoProvider struct {
	oauth       *oauth2.Config
	userInfoURL string
	httpClient  *http.Client
}

func NewKakaoProvider(config *KakaoConfig) *KakaoProvider {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &KakaoProvider{
		oauth: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURI,
			Scopes:       config.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   orDefault(config.AuthURL, KakaoAuthURL),
				TokenURL:  orDefault(config.TokenURL, KakaoTokenURL),
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		userInfoURL: orDefault(config.UserInfoURL, KakaoUserInfoURL),
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// kakaoUserInfo is the subset of /v2/user/me we read. Unknown fields are ignored.
type kakaoUserInfo struct {
	ID         json.Number `json:"id"`
	Properties *struct {
		Nickname     string `json:"nickname"`
		ProfileImage string `json:"profile_image"`
	} `json:"properties"`
	KakaoAccount *struct {
		Email   string `json:"email"`
		Profile *struct {
			Nickname          string `json:"nickname"`
			ProfileImageURL   string `json:"profile_image_url"`
			ThumbnailImageURL string `json:"thumbnail_image_url"`
		} `json:"profile"`
	} `json:"kakao_account"`
}

func (k *KakaoProvider) AuthCodeURL(state string) string {
	return k.oauth.AuthCodeURL(state)
}

func (k *KakaoProvider) ExchangeCode(ctx context.Context, code string) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, k.httpClient)

	token, err := k.oauth.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("%w: token exchange: %v", core.ErrProviderUnavailable, err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("%w: token response without access_token", core.ErrProviderResponseInvalid)
	}

	return token.AccessToken, nil
}

func (k *KakaoProvider) FetchIdentity(ctx context.Context, accessToken string) (*core.NormalizedIdentity, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("%w: empty provider access token", core.ErrInvalidRequest)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrProviderUnavailable, err)
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", core.ErrProviderUnavailable, resp.StatusCode, string(body))
	}

	var userInfo kakaoUserInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxUserInfoBody)).Decode(&userInfo); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrProviderResponseInvalid, err)
	}

	return userInfo.normalize()
}

func (k *KakaoProvider) Provider() core.Provider {
	return core.ProviderKakao
}

func (u *kakaoUserInfo) normalize() (*core.NormalizedIdentity, error) {
	if u.ID == "" {
		return nil, fmt.Errorf("%w: missing id", core.ErrProviderResponseInvalid)
	}
	id, err := strconv.ParseInt(u.ID.String(), 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("%w: id %q is not a positive integer", core.ErrProviderResponseInvalid, u.ID.String())
	}

	identity := &core.NormalizedIdentity{
		Provider:   core.ProviderKakao,
		ProviderID: strconv.FormatInt(id, 10),
	}

	if u.KakaoAccount != nil {
		identity.Email = u.KakaoAccount.Email
		if p := u.KakaoAccount.Profile; p != nil {
			identity.Nickname = p.Nickname
			identity.ProfileImageURL = p.ProfileImageURL
		}
	}
	// Older apps only receive the legacy properties block
	if u.Properties != nil {
		if identity.Nickname == "" {
			identity.Nickname = u.Properties.Nickname
		}
		if identity.ProfileImageURL == "" {
			identity.ProfileImageURL = u.Properties.ProfileImage
		}
	}

	if identity.Nickname == "" {
		return nil, fmt.Errorf("%w: missing nickname", core.ErrProviderResponseInvalid)
	}

	return identity, nil
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
