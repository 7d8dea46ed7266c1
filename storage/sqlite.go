package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"authgate/core"

	_ "modernc.org/sqlite"
)

//go:embed schema/sqlite/schema.sql
var sqliteSchema string

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	repo := &SQLiteRepository{db: db}

	if err := repo.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) initSchema() error {
	_, err := r.db.Exec(sqliteSchema)
	return err
}

const accountColumns = `id, provider, provider_id, nickname, profile_image_url, role, created_at, updated_at`

func (r *SQLiteRepository) FindByID(ctx context.Context, id int64) (*core.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = ?`
	return scanAccount(r.db.QueryRowContext(ctx, query, id))
}

func (r *SQLiteRepository) FindByProviderAndProviderID(ctx context.Context, provider core.Provider, providerID string) (*core.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE provider = ? AND provider_id = ?
	`
	return scanAccount(r.db.QueryRowContext(ctx, query, string(provider), providerID))
}

func (r *SQLiteRepository) CreateAccount(ctx context.Context, account *core.Account) (*core.Account, error) {
	query := `
		INSERT INTO accounts (provider, provider_id, nickname, profile_image_url, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	role := account.Role
	if role == "" {
		role = core.RoleUser
	}

	result, err := r.db.ExecContext(ctx, query,
		string(account.Provider),
		account.ProviderID,
		account.Nickname,
		nullString(account.ProfileImageURL),
		string(role),
		account.CreatedAt.Unix(),
		account.UpdatedAt.Unix(),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, core.ErrAlreadyExists
		}
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return r.FindByID(ctx, id)
}

func (r *SQLiteRepository) UpdateAccount(ctx context.Context, account *core.Account) (*core.Account, error) {
	query := `
		UPDATE accounts
		SET nickname = ?, profile_image_url = ?, role = ?, updated_at = ?
		WHERE id = ?
	`

	updatedAt := account.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	result, err := r.db.ExecContext(ctx, query,
		account.Nickname,
		nullString(account.ProfileImageURL),
		string(account.Role),
		updatedAt.Unix(),
		account.ID,
	)
	if err != nil {
		return nil, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, core.ErrNotFound
	}

	return r.FindByID(ctx, account.ID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*core.Account, error) {
	var account core.Account
	var provider, role string
	var profileImageURL sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(
		&account.ID,
		&provider,
		&account.ProviderID,
		&account.Nickname,
		&profileImageURL,
		&role,
		&createdAt,
		&updatedAt,
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
	account.CreatedAt = time.Unix(createdAt, 0).UTC()
	account.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	return &account, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := err.Error()
	return strings.Contains(errMsg, "UNIQUE constraint failed") ||
		strings.Contains(errMsg, "UNIQUE") ||
		strings.Contains(errMsg, "unique")
}
