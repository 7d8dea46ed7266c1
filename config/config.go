// Package config loads the authgate configuration: a YAML file overlaid by
// environment variables, then defaults and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"authgate/core"
	"authgate/core/providers"
	"authgate/storage"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPort                 = "8080"
	DefaultAccessTokenDuration  = 1800    // 30 minutes
	DefaultRefreshTokenDuration = 1209600 // 14 days
	DefaultFailureRedirect      = "/login"
	DefaultSQLitePath           = "authgate.db"
)

type AppConfig struct {
	Core  core.Config            `yaml:",inline"`
	Kakao *providers.KakaoConfig `yaml:"kakao,omitempty"`

	// Mock registers the in-memory mock provider. Only for local runs and tests.
	Mock bool `yaml:"mock_provider" env:"AUTHGATE_MOCK_PROVIDER"`

	DB   DBConfig  `yaml:"db" envPrefix:"AUTHGATE_DB_"`
	Log  LogConfig `yaml:"log" envPrefix:"AUTHGATE_LOG_"`
	Port string    `yaml:"port" env:"AUTHGATE_PORT"`
}

type DBConfig struct {
	Type       string            `yaml:"type" env:"TYPE"` // sqlite, ydb or mock
	SQLitePath string            `yaml:"sqlite_path" env:"SQLITE_PATH"`
	YDB        storage.YDBConfig `yaml:"ydb" envPrefix:"YDB_"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// Load reads path (if non-empty), applies environment overrides and
// defaults, and validates the result.
func Load(path string) (*AppConfig, error) {
	cfg := &AppConfig{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// env skips nil pointers, so the kakao section always exists while parsing
	if cfg.Kakao == nil {
		cfg.Kakao = &providers.KakaoConfig{}
	}
	if err := ParseEnv(cfg); err != nil {
		return nil, err
	}
	if cfg.Kakao.ClientID == "" {
		cfg.Kakao = nil
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (c *AppConfig) applyDefaults() {
	if c.Port == "" {
		c.Port = DefaultPort
	}
	if c.DB.Type == "" {
		c.DB.Type = "sqlite"
	}
	if c.DB.SQLitePath == "" {
		c.DB.SQLitePath = DefaultSQLitePath
	}
	if c.Core.JWT.AccessTokenDuration == 0 {
		c.Core.JWT.AccessTokenDuration = DefaultAccessTokenDuration
	}
	if c.Core.JWT.RefreshTokenDuration == 0 {
		c.Core.JWT.RefreshTokenDuration = DefaultRefreshTokenDuration
	}
	if c.Core.StoreTimeout == 0 {
		c.Core.StoreTimeout = core.DefaultStoreTimeout
	}
	if c.Core.FailureRedirect == "" {
		c.Core.FailureRedirect = DefaultFailureRedirect
	}
	if c.Kakao != nil && c.Kakao.Timeout == 0 {
		c.Kakao.Timeout = providers.DefaultTimeout
	}
}

func (c *AppConfig) Validate() error {
	var errs []error

	if c.Core.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt.secret is required"))
	} else if len(c.Core.JWT.Secret) < core.MinSigningKeyLength {
		errs = append(errs, fmt.Errorf("jwt.secret must be at least %d bytes", core.MinSigningKeyLength))
	}
	if c.Core.JWT.AccessTokenDuration <= 0 {
		errs = append(errs, errors.New("jwt.access_token_duration must be positive"))
	}
	if c.Core.JWT.RefreshTokenDuration <= 0 {
		errs = append(errs, errors.New("jwt.refresh_token_duration must be positive"))
	}
	if c.Core.StoreTimeout < 0 {
		errs = append(errs, errors.New("store_timeout must not be negative"))
	}

	switch strings.ToLower(c.DB.Type) {
	case "sqlite", "mock":
	case "ydb":
		if c.DB.YDB.DSN == "" {
			errs = append(errs, errors.New("db.ydb.dsn is required for db type ydb"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported db type %q (supported: sqlite, ydb, mock)", c.DB.Type))
	}

	if c.Kakao != nil && c.Kakao.Timeout < 0 {
		errs = append(errs, errors.New("kakao.timeout must not be negative"))
	}

	return errors.Join(errs...)
}
