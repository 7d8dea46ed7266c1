package core

import "time"

type Config struct {
	JWT JWTConfig `yaml:"jwt" envPrefix:"AUTHGATE_JWT_"`

	// StoreTimeout bounds every account store call made during reconciliation.
	StoreTimeout time.Duration `yaml:"store_timeout" env:"AUTHGATE_STORE_TIMEOUT"`

	// FailureRedirect is where a provider-side denial is sent (e.g. "/login").
	FailureRedirect string `yaml:"failure_redirect" env:"AUTHGATE_FAILURE_REDIRECT"`
}

type JWTConfig struct {
	Secret               string `yaml:"secret" env:"SECRET"`                                 // HS256 signing key, at least 32 bytes
	AccessTokenDuration  int    `yaml:"access_token_duration" env:"ACCESS_TOKEN_DURATION"`   // Access token lifetime in seconds
	RefreshTokenDuration int    `yaml:"refresh_token_duration" env:"REFRESH_TOKEN_DURATION"` // Refresh token lifetime in seconds
}

func (c *JWTConfig) AccessTTL() time.Duration {
	return time.Duration(c.AccessTokenDuration) * time.Second
}

func (c *JWTConfig) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTokenDuration) * time.Second
}
