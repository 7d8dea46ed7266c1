package core_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"authgate/core"
	"authgate/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kakaoIdentity(id, nickname string) *core.NormalizedIdentity {
	return &core.NormalizedIdentity{
		Provider:   core.ProviderKakao,
		ProviderID: id,
		Nickname:   nickname,
	}
}

func TestReconcile_CreatesAccountOnFirstLogin(t *testing.T) {
	repo := storage.NewMockRepository()
	reconciler := core.NewReconciler(repo, time.Second, nil)

	identity := kakaoIdentity("123", "Alice")
	identity.ProfileImageURL = "https://k.kakaocdn.net/alice.png"

	account, err := reconciler.Reconcile(context.Background(), identity)
	require.NoError(t, err)

	assert.Equal(t, int64(1), account.ID)
	assert.Equal(t, core.ProviderKakao, account.Provider)
	assert.Equal(t, "123", account.ProviderID)
	assert.Equal(t, "Alice", account.Nickname)
	assert.Equal(t, "https://k.kakaocdn.net/alice.png", account.ProfileImageURL)
	assert.Equal(t, core.RoleUser, account.Role)
	assert.False(t, account.CreatedAt.IsZero())
	assert.Equal(t, 1, repo.CreateAccountCalls)
}

func TestReconcile_RefreshesProfileOnLaterLogin(t *testing.T) {
	repo := storage.NewMockRepository()
	reconciler := core.NewReconciler(repo, time.Second, nil)
	ctx := context.Background()

	first, err := reconciler.Reconcile(ctx, kakaoIdentity("123", "Alice"))
	require.NoError(t, err)

	second, err := reconciler.Reconcile(ctx, kakaoIdentity("123", "Alicia"))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Alicia", second.Nickname)
	assert.Equal(t, core.RoleUser, second.Role)
	assert.Equal(t, 1, repo.CreateAccountCalls)
	assert.Equal(t, 1, repo.UpdateAccountCalls)

	stored, err := repo.FindByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alicia", stored.Nickname)
}

func TestReconcile_UnchangedProfileSkipsUpdate(t *testing.T) {
	repo := storage.NewMockRepository()
	reconciler := core.NewReconciler(repo, time.Second, nil)
	ctx := context.Background()

	_, err := reconciler.Reconcile(ctx, kakaoIdentity("123", "Alice"))
	require.NoError(t, err)
	_, err = reconciler.Reconcile(ctx, kakaoIdentity("123", "Alice"))
	require.NoError(t, err)

	assert.Equal(t, 0, repo.UpdateAccountCalls)
}

func TestReconcile_NeverChangesRole(t *testing.T) {
	repo := storage.NewMockRepository()
	reconciler := core.NewReconciler(repo, time.Second, nil)
	ctx := context.Background()

	account, err := reconciler.Reconcile(ctx, kakaoIdentity("123", "Alice"))
	require.NoError(t, err)

	account.Role = core.RoleAdmin
	_, err = repo.UpdateAccount(ctx, account)
	require.NoError(t, err)

	updated, err := reconciler.Reconcile(ctx, kakaoIdentity("123", "Alice Admin"))
	require.NoError(t, err)
	assert.Equal(t, core.RoleAdmin, updated.Role)
	assert.Equal(t, "Alice Admin", updated.Nickname)
}

func TestReconcile_ProviderIDsAreScopedByProvider(t *testing.T) {
	repo := storage.NewMockRepository()
	reconciler := core.NewReconciler(repo, time.Second, nil)
	ctx := context.Background()

	kakao, err := reconciler.Reconcile(ctx, kakaoIdentity("123", "Alice"))
	require.NoError(t, err)

	other, err := reconciler.Reconcile(ctx, &core.NormalizedIdentity{Provider: "mock", ProviderID: "123", Nickname: "Alice"})
	require.NoError(t, err)

	assert.NotEqual(t, kakao.ID, other.ID)
}

func TestReconcile_InvalidIdentity(t *testing.T) {
	repo := storage.NewMockRepository()
	reconciler := core.NewReconciler(repo, time.Second, nil)

	_, err := reconciler.Reconcile(context.Background(), nil)
	assert.ErrorIs(t, err, core.ErrInvalidRequest)

	_, err = reconciler.Reconcile(context.Background(), kakaoIdentity("", "Nobody"))
	assert.ErrorIs(t, err, core.ErrInvalidRequest)

	assert.Equal(t, 0, repo.Calls())
}

func TestReconcile_StoreUnavailable(t *testing.T) {
	repo := storage.NewMockRepository()
	repo.FailWith(errors.New("connection refused"))
	reconciler := core.NewReconciler(repo, time.Second, nil)

	_, err := reconciler.Reconcile(context.Background(), kakaoIdentity("123", "Alice"))
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)
	assert.Equal(t, 0, repo.CreateAccountCalls)
}

// blindRepository never finds an account, so every reconcile tries to create one.
type blindRepository struct {
	*storage.MockRepository
}

func (r *blindRepository) FindByProviderAndProviderID(ctx context.Context, provider core.Provider, providerID string) (*core.Account, error) {
	return nil, core.ErrNotFound
}

func TestReconcile_DuplicateAccount(t *testing.T) {
	mockRepo := storage.NewMockRepository()
	reconciler := core.NewReconciler(&blindRepository{mockRepo}, time.Second, nil)
	ctx := context.Background()

	_, err := reconciler.Reconcile(ctx, kakaoIdentity("123", "Alice"))
	require.NoError(t, err)

	_, err = reconciler.Reconcile(ctx, kakaoIdentity("123", "Alice"))
	assert.ErrorIs(t, err, core.ErrDuplicateAccount)
	assert.False(t, errors.Is(err, core.ErrStoreUnavailable))
}

// slowRepository blocks every call until the context is done.
type slowRepository struct {
	*storage.MockRepository
}

func (r *slowRepository) FindByProviderAndProviderID(ctx context.Context, provider core.Provider, providerID string) (*core.Account, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestReconcile_StoreTimeout(t *testing.T) {
	reconciler := core.NewReconciler(&slowRepository{storage.NewMockRepository()}, 20*time.Millisecond, nil)

	start := time.Now()
	_, err := reconciler.Reconcile(context.Background(), kakaoIdentity("123", "Alice"))

	assert.ErrorIs(t, err, core.ErrStoreUnavailable)
	assert.Less(t, time.Since(start), time.Second)
}

// barrierRepository holds every lookup until both racing logins have missed.
type barrierRepository struct {
	*storage.MockRepository
	lookups sync.WaitGroup
}

func (r *barrierRepository) FindByProviderAndProviderID(ctx context.Context, provider core.Provider, providerID string) (*core.Account, error) {
	account, err := r.MockRepository.FindByProviderAndProviderID(ctx, provider, providerID)
	r.lookups.Done()
	r.lookups.Wait()
	return account, err
}

func TestReconcile_ConcurrentFirstLogin(t *testing.T) {
	mockRepo := storage.NewMockRepository()
	repo := &barrierRepository{MockRepository: mockRepo}
	repo.lookups.Add(2)
	reconciler := core.NewReconciler(repo, time.Second, nil)

	type outcome struct {
		account *core.Account
		err     error
	}
	results := make(chan outcome, 2)

	for i := 0; i < 2; i++ {
		go func() {
			account, err := reconciler.Reconcile(context.Background(), kakaoIdentity("123", "Alice"))
			results <- outcome{account, err}
		}()
	}

	var winner *core.Account
	var duplicates int
	for i := 0; i < 2; i++ {
		res := <-results
		if res.err != nil {
			assert.ErrorIs(t, res.err, core.ErrDuplicateAccount)
			duplicates++
			continue
		}
		winner = res.account
	}

	require.NotNil(t, winner)
	assert.Equal(t, 1, duplicates)

	// the retry of the losing login resolves the account the winner created
	retry, err := core.NewReconciler(mockRepo, time.Second, nil).Reconcile(context.Background(), kakaoIdentity("123", "Alice"))
	require.NoError(t, err)
	assert.Equal(t, winner.ID, retry.ID)
}
