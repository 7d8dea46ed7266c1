package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"authgate/core"

	"github.com/ydb-platform/ydb-go-sdk/v3"
	"github.com/ydb-platform/ydb-go-sdk/v3/table"
	yc "github.com/ydb-platform/ydb-go-yc"
)

//go:embed schema/ydb/schema.sql
var ydbSchema string

type YDBConfig struct {
	DSN string `yaml:"dsn" env:"DSN"`

	// ServiceAccountKeyFile selects Yandex Cloud service account credentials.
	ServiceAccountKeyFile string `yaml:"sa_key_file" env:"SA_KEY_FILE"`

	// UseMetadata reads credentials from the Yandex Cloud instance metadata service.
	UseMetadata bool `yaml:"use_metadata" env:"USE_METADATA"`

	// AccessToken is a static IAM token, mostly for local runs.
	AccessToken string `yaml:"access_token" env:"ACCESS_TOKEN"`
}

func (c *YDBConfig) options() []ydb.Option {
	var opts []ydb.Option
	switch {
	case c.ServiceAccountKeyFile != "":
		opts = append(opts, yc.WithInternalCA(), yc.WithServiceAccountKeyFileCredentials(c.ServiceAccountKeyFile))
	case c.UseMetadata:
		opts = append(opts, yc.WithInternalCA(), yc.WithMetadataCredentials())
	case c.AccessToken != "":
		opts = append(opts, ydb.WithAccessTokenCredentials(c.AccessToken))
	default:
		opts = append(opts, ydb.WithAnonymousCredentials())
	}
	return opts
}

// YDBRepository stores accounts in YDB. Uniqueness of (provider, provider_id)
// is held by a synchronous unique secondary index.
type YDBRepository struct {
	driver *ydb.Driver
	db     *sql.DB
}

func NewYDBRepository(ctx context.Context, config *YDBConfig) (*YDBRepository, error) {
	if config.DSN == "" {
		return nil, fmt.Errorf("ydb dsn is required")
	}

	driver, err := ydb.Open(ctx, config.DSN, config.options()...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ydb: %w", err)
	}

	connector, err := ydb.Connector(driver,
		ydb.WithQueryService(true),
		ydb.WithAutoDeclare(),
	)
	if err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("failed to create ydb connector: %w", err)
	}

	repo := &YDBRepository{
		driver: driver,
		db:     sql.OpenDB(connector),
	}

	if err := repo.initSchema(ctx); err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return repo, nil
}

func (r *YDBRepository) Close() error {
	dbErr := r.db.Close()
	if err := r.driver.Close(context.Background()); err != nil {
		return err
	}
	return dbErr
}

func (r *YDBRepository) initSchema(ctx context.Context) error {
	return r.driver.Table().Do(ctx, func(ctx context.Context, s table.Session) error {
		return s.ExecuteSchemeQuery(ctx, ydbSchema)
	}, table.WithIdempotent())
}

const ydbAccountColumns = `id, provider, provider_id, nickname, profile_image_url, role, created_at, updated_at`

func (r *YDBRepository) FindByID(ctx context.Context, id int64) (*core.Account, error) {
	query := `SELECT ` + ydbAccountColumns + ` FROM accounts WHERE id = $id`
	return scanYDBAccount(r.db.QueryRowContext(ctx, query, sql.Named("id", id)))
}

func (r *YDBRepository) FindByProviderAndProviderID(ctx context.Context, provider core.Provider, providerID string) (*core.Account, error) {
	query := `
		SELECT ` + ydbAccountColumns + `
		FROM accounts VIEW accounts_provider_idx
		WHERE provider = $provider AND provider_id = $provider_id
	`
	return scanYDBAccount(r.db.QueryRowContext(ctx, query,
		sql.Named("provider", string(provider)),
		sql.Named("provider_id", providerID),
	))
}

func (r *YDBRepository) CreateAccount(ctx context.Context, account *core.Account) (*core.Account, error) {
	query := `
		INSERT INTO accounts (provider, provider_id, nickname, profile_image_url, role, created_at, updated_at)
		VALUES ($provider, $provider_id, $nickname, $profile_image_url, $role, $created_at, $updated_at)
		RETURNING id
	`

	role := account.Role
	if role == "" {
		role = core.RoleUser
	}

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		sql.Named("provider", string(account.Provider)),
		sql.Named("provider_id", account.ProviderID),
		sql.Named("nickname", account.Nickname),
		sql.Named("profile_image_url", account.ProfileImageURL),
		sql.Named("role", string(role)),
		sql.Named("created_at", account.CreatedAt.UTC()),
		sql.Named("updated_at", account.UpdatedAt.UTC()),
	).Scan(&id)
	if err != nil {
		if isYDBConflictError(err) {
			return nil, core.ErrAlreadyExists
		}
		return nil, err
	}

	return r.FindByID(ctx, id)
}

func (r *YDBRepository) UpdateAccount(ctx context.Context, account *core.Account) (*core.Account, error) {
	query := `
		UPDATE accounts
		SET nickname = $nickname, profile_image_url = $profile_image_url, role = $role, updated_at = $updated_at
		WHERE id = $id
	`

	updatedAt := account.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, query,
		sql.Named("nickname", account.Nickname),
		sql.Named("profile_image_url", account.ProfileImageURL),
		sql.Named("role", string(account.Role)),
		sql.Named("updated_at", updatedAt.UTC()),
		sql.Named("id", account.ID),
	)
	if err != nil {
		return nil, err
	}

	// UPDATE on a missing id is a no-op, so the read decides ErrNotFound
	return r.FindByID(ctx, account.ID)
}

func scanYDBAccount(row rowScanner) (*core.Account, error) {
	var account core.Account
	var provider, role string
	var profileImageURL sql.NullString

	err := row.Scan(
		&account.ID,
		&provider,
		&account.ProviderID,
		&account.Nickname,
		&profileImageURL,
		&role,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	account.Provider = core.Provider(provider)
	account.Role = core.Role(role)
	account.ProfileImageURL = profileImageURL.String
	account.CreatedAt = account.CreatedAt.UTC()
	account.UpdatedAt = account.UpdatedAt.UTC()

	return &account, nil
}

func isYDBConflictError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := err.Error()
	return strings.Contains(errMsg, "Conflict with existing key") ||
		strings.Contains(errMsg, "Duplicate") ||
		isUniqueConstraintError(err)
}
