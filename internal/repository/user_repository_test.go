package repository_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/admin-auth/internal/database/dbtest"
	"github.com/iliyamo/admin-auth/internal/model"
	"github.com/iliyamo/admin-auth/internal/repository"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newUser(username, email string) model.User {
	return model.User{
		Username:     username,
		Email:        email,
		PasswordHash: "$2a$04$hash",
		Role:         model.RoleViewer,
		IsActive:     true,
		CreatedAt:    t0,
	}
}

func TestUserCreateAndLookup(t *testing.T) {
	ctx := context.Background()
	users := repository.NewUserRepo(dbtest.New(t))

	id, err := users.Create(ctx, newUser("alice", "alice@example.com"))
	require.NoError(t, err)
	require.NotZero(t, id)

	byName, err := users.FindByLogin(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, id, byName.ID)
	assert.Equal(t, model.RoleViewer, byName.Role)
	assert.True(t, byName.IsActive)
	assert.Equal(t, t0, byName.CreatedAt)
	assert.Nil(t, byName.LockedUntil)
	assert.Nil(t, byName.LastLogin)

	byEmail, err := users.FindByLogin(ctx, "ALICE@Example.com")
	require.NoError(t, err)
	assert.Equal(t, id, byEmail.ID)

	_, err = users.FindByLogin(ctx, "Alice")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = users.GetByID(ctx, id+100)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestUserCreateDuplicateIsConflict(t *testing.T) {
	ctx := context.Background()
	users := repository.NewUserRepo(dbtest.New(t))

	_, err := users.Create(ctx, newUser("alice", "alice@example.com"))
	require.NoError(t, err)

	_, err = users.Create(ctx, newUser("alice", "other@example.com"))
	assert.ErrorIs(t, err, repository.ErrConflict)
	_, err = users.Create(ctx, newUser("bob", "alice@example.com"))
	assert.ErrorIs(t, err, repository.ErrConflict)

	exists, err := users.ExistsByUsernameOrEmail(ctx, "carol", "alice@example.com")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = users.ExistsByUsernameOrEmail(ctx, "carol", "carol@example.com")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRecordFailedLoginLocksAtThreshold(t *testing.T) {
	ctx := context.Background()
	users := repository.NewUserRepo(dbtest.New(t))
	id, err := users.Create(ctx, newUser("alice", "alice@example.com"))
	require.NoError(t, err)

	for i := 1; i < 5; i++ {
		st, err := users.RecordFailedLogin(ctx, id, t0, 5, time.Hour)
		require.NoError(t, err)
		assert.True(t, st.Applied)
		assert.Equal(t, i, st.Attempts)
		assert.Nil(t, st.LockedUntil)
	}

	st, err := users.RecordFailedLogin(ctx, id, t0, 5, time.Hour)
	require.NoError(t, err)
	assert.True(t, st.Applied)
	assert.Equal(t, 5, st.Attempts)
	require.NotNil(t, st.LockedUntil)
	assert.Equal(t, t0.Add(time.Hour), *st.LockedUntil)

	// While locked nothing changes.
	st, err = users.RecordFailedLogin(ctx, id, t0.Add(time.Minute), 5, time.Hour)
	require.NoError(t, err)
	assert.False(t, st.Applied)
	assert.Equal(t, 5, st.Attempts)

	u, err := users.GetByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, u.LockedAt(t0.Add(59*time.Minute)))
	assert.False(t, u.LockedAt(t0.Add(time.Hour)))
}

func TestRecordFailedLoginConcurrentIncrements(t *testing.T) {
	users := repository.NewUserRepo(dbtest.New(t))
	ctx := context.Background()
	id, err := users.Create(ctx, newUser("alice", "alice@example.com"))
	require.NoError(t, err)

	const n = 8
	var (
		wg      sync.WaitGroup
		applied atomic.Int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st, err := users.RecordFailedLogin(ctx, id, t0, 5, time.Hour)
			if assert.NoError(t, err) && st.Applied {
				applied.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 5, applied.Load())
	u, err := users.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 5, u.LoginAttempts)
	require.NotNil(t, u.LockedUntil)
}

func TestRecordFailedLoginRestartsAfterExpiredLock(t *testing.T) {
	ctx := context.Background()
	users := repository.NewUserRepo(dbtest.New(t))
	id, err := users.Create(ctx, newUser("alice", "alice@example.com"))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := users.RecordFailedLogin(ctx, id, t0, 5, time.Hour)
		require.NoError(t, err)
	}

	st, err := users.RecordFailedLogin(ctx, id, t0.Add(2*time.Hour), 5, time.Hour)
	require.NoError(t, err)
	assert.True(t, st.Applied)
	assert.Equal(t, 1, st.Attempts)
	assert.Nil(t, st.LockedUntil)
}

func TestRecordSuccessfulLoginClearsCounters(t *testing.T) {
	ctx := context.Background()
	users := repository.NewUserRepo(dbtest.New(t))
	id, err := users.Create(ctx, newUser("alice", "alice@example.com"))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := users.RecordFailedLogin(ctx, id, t0, 5, time.Hour)
		require.NoError(t, err)
	}
	require.NoError(t, users.RecordSuccessfulLogin(ctx, id, t0.Add(time.Minute)))

	u, err := users.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, u.LoginAttempts)
	assert.Nil(t, u.LockedUntil)
	require.NotNil(t, u.LastLogin)
	assert.Equal(t, t0.Add(time.Minute), *u.LastLogin)
}

func TestRecordFailedLoginUnknownUser(t *testing.T) {
	users := repository.NewUserRepo(dbtest.New(t))
	_, err := users.RecordFailedLogin(context.Background(), 42, t0, 5, time.Hour)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
