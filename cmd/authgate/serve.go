package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"authgate/config"
	"authgate/core"
	"authgate/core/providers"
	"authgate/storage"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the authentication HTTP server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if servePort != "" {
			cfg.Port = servePort
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runServer(ctx, cfg, newLogger(cfg))
	},
}

func init() {
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "Listen port (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServer(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) error {
	repo, err := initRepository(ctx, cfg.DB, logger)
	if err != nil {
		return err
	}
	if closer, ok := repo.(io.Closer); ok {
		defer closer.Close()
	}

	registry := initProviders(cfg, logger)
	if len(registry.Providers()) == 0 {
		return errors.New("no provider configured (set kakao.client_id or mock_provider)")
	}

	engine, err := core.NewTokenEngineFromConfig(&cfg.Core.JWT)
	if err != nil {
		return fmt.Errorf("failed to initialize token engine: %w", err)
	}

	reconciler := core.NewReconciler(repo, cfg.Core.StoreTimeout, logger)
	authService := core.NewAuthService(registry, reconciler, engine, logger)
	server := core.NewServer(authService, repo, &cfg.Core, logger)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("starting authgate server", "port", cfg.Port, "providers", registry.Providers(), "db", cfg.DB.Type)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func initRepository(ctx context.Context, dbConfig config.DBConfig, logger *slog.Logger) (core.Repository, error) {
	switch strings.ToLower(dbConfig.Type) {
	case "sqlite":
		repo, err := storage.NewSQLiteRepository(dbConfig.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		logger.Info("using SQLite database", "path", dbConfig.SQLitePath)
		return repo, nil

	case "ydb":
		repo, err := storage.NewYDBRepository(ctx, &dbConfig.YDB)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize YDB repository: %w", err)
		}
		logger.Info("using YDB database")
		return repo, nil

	case "mock":
		logger.Warn("using mock repository (in-memory)")
		return storage.NewMockRepository(), nil

	default:
		return nil, fmt.Errorf("unsupported DB type: %s (supported: sqlite, ydb, mock)", dbConfig.Type)
	}
}

func initProviders(cfg *config.AppConfig, logger *slog.Logger) *core.ProviderRegistry {
	var clients []core.IdentityClient

	if cfg.Kakao != nil {
		clients = append(clients, providers.NewKakaoProvider(cfg.Kakao))
		logger.Info("Kakao OAuth provider initialized")
	}

	if cfg.Mock {
		clients = append(clients, providers.NewMockProvider())
		logger.Warn("mock OAuth provider initialized")
	}

	return core.NewProviderRegistry(clients...)
}
