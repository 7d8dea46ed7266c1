// authgate issues local access/refresh tokens for users authenticated by an
// OAuth2 identity provider.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"authgate/config"
	"authgate/logging"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "authgate",
	Short: "OAuth2 login gateway issuing signed access and refresh tokens",
	Long: `authgate accepts an OAuth2 authorization code (or a provider access token),
maps the provider identity to a local account and issues HS256 access/refresh tokens.

Configuration is read from a YAML file and overridden by environment variables
(AUTHGATE_JWT_SECRET, KAKAO_CLIENT_ID, KAKAO_CLIENT_SECRET, ...).`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", getEnv("CONFIG_PATH", ""), "Path to the YAML config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.AppConfig, error) {
	return config.Load(configPath)
}

func newLogger(cfg *config.AppConfig) *slog.Logger {
	return logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.Log.Level),
		Format: logging.ParseFormat(cfg.Log.Format),
	})
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
