package storage

import (
	"context"
	"testing"
	"time"

	"authgate/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func newAccount(providerID, nickname string) *core.Account {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return &core.Account{
		Provider:   core.ProviderKakao,
		ProviderID: providerID,
		Nickname:   nickname,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestSQLite_CreateAndFind(t *testing.T) {
	repo := newTestSQLite(t)
	ctx := context.Background()

	account := newAccount("123", "Alice")
	account.ProfileImageURL = "https://k.kakaocdn.net/alice.png"

	created, err := repo.CreateAccount(ctx, account)
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.ID)
	assert.Equal(t, core.RoleUser, created.Role)
	assert.Equal(t, account.CreatedAt, created.CreatedAt)

	byID, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, byID)

	byProvider, err := repo.FindByProviderAndProviderID(ctx, core.ProviderKakao, "123")
	require.NoError(t, err)
	assert.Equal(t, created, byProvider)
	assert.Equal(t, "https://k.kakaocdn.net/alice.png", byProvider.ProfileImageURL)

	second, err := repo.CreateAccount(ctx, newAccount("456", "Bob"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.ID)
	assert.Empty(t, second.ProfileImageURL)
}

func TestSQLite_NotFound(t *testing.T) {
	repo := newTestSQLite(t)
	ctx := context.Background()

	_, err := repo.FindByID(ctx, 42)
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = repo.FindByProviderAndProviderID(ctx, core.ProviderKakao, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = repo.UpdateAccount(ctx, &core.Account{ID: 42, Nickname: "ghost", Role: core.RoleUser})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestSQLite_UniqueProviderIdentity(t *testing.T) {
	repo := newTestSQLite(t)
	ctx := context.Background()

	_, err := repo.CreateAccount(ctx, newAccount("123", "Alice"))
	require.NoError(t, err)

	_, err = repo.CreateAccount(ctx, newAccount("123", "Alice again"))
	assert.ErrorIs(t, err, core.ErrAlreadyExists)

	other := newAccount("123", "Alice elsewhere")
	other.Provider = "mock"
	_, err = repo.CreateAccount(ctx, other)
	assert.NoError(t, err)
}

func TestSQLite_Update(t *testing.T) {
	repo := newTestSQLite(t)
	ctx := context.Background()

	created, err := repo.CreateAccount(ctx, newAccount("123", "Alice"))
	require.NoError(t, err)

	changed := *created
	changed.Nickname = "Alicia"
	changed.ProfileImageURL = "https://k.kakaocdn.net/alicia.png"
	changed.UpdatedAt = created.UpdatedAt.Add(time.Hour)

	updated, err := repo.UpdateAccount(ctx, &changed)
	require.NoError(t, err)

	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "Alicia", updated.Nickname)
	assert.Equal(t, "https://k.kakaocdn.net/alicia.png", updated.ProfileImageURL)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.Equal(t, changed.UpdatedAt, updated.UpdatedAt)
	assert.Equal(t, core.RoleUser, updated.Role)
}

func TestSQLite_WorksWithReconciler(t *testing.T) {
	repo := newTestSQLite(t)
	reconciler := core.NewReconciler(repo, time.Second, nil)
	ctx := context.Background()

	identity := &core.NormalizedIdentity{Provider: core.ProviderKakao, ProviderID: "123", Nickname: "Alice"}
	first, err := reconciler.Reconcile(ctx, identity)
	require.NoError(t, err)

	identity.Nickname = "Alicia"
	second, err := reconciler.Reconcile(ctx, identity)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Alicia", second.Nickname)
}
