package sessionstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birbparty/roost/sdk"
)

func testSession(expiresAt time.Time) *sdk.Session {
	return &sdk.Session{
		AccessToken:  "access-token",
		RefreshToken: "refresh-token",
		ExpiresAt:    expiresAt,
		User:         sdk.User{ID: "u1", Email: "ada@example.com", Name: "Ada"},
	}
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "roost", "session.json")
	store := NewFileStore(path)

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded, "missing file loads as no session")

	session := testSession(time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC))
	require.NoError(t, store.Save(ctx, session))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(filePerms), info.Mode().Perm())

	loaded, err = store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, session.AccessToken, loaded.AccessToken)
	assert.Equal(t, session.RefreshToken, loaded.RefreshToken)
	assert.True(t, session.ExpiresAt.Equal(loaded.ExpiresAt))
	assert.Equal(t, session.User.ID, loaded.User.ID)

	t.Run("overwrite", func(t *testing.T) {
		next := testSession(time.Time{})
		next.AccessToken = "rotated"
		require.NoError(t, store.Save(ctx, next))
		loaded, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, "rotated", loaded.AccessToken)
	})

	t.Run("nil save clears", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, nil))
		_, err := os.Stat(path)
		assert.True(t, errors.Is(err, os.ErrNotExist))
	})

	t.Run("clear twice", func(t *testing.T) {
		require.NoError(t, store.Clear(ctx))
		require.NoError(t, store.Clear(ctx))
	})
}

func TestFileStore_BadContent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		corrupt bool
	}{
		{"empty file", "", false},
		{"whitespace", " \n", false},
		{"not json", "{oops", true},
		{"no token", `{"refreshToken":"r"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			loaded, err := NewFileStore(path).Load(ctx)
			if tt.corrupt {
				assert.ErrorIs(t, err, ErrCorrupt)
				return
			}
			require.NoError(t, err)
			assert.Nil(t, loaded)
		})
	}
}

func TestDefaultFilePath(t *testing.T) {
	assert.Equal(t, "session.json", filepath.Base(DefaultFilePath()))
	assert.Equal(t, "roost", filepath.Base(filepath.Dir(DefaultFilePath())))
}

func TestTTL(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
	}).SignedString([]byte("k"))
	require.NoError(t, err)

	assert.Equal(t, time.Hour, ttl(testSession(now.Add(time.Hour)), now))
	assert.Equal(t, time.Minute, ttl(testSession(now.Add(-time.Hour)), now))
	assert.Zero(t, ttl(testSession(time.Time{}), now), "opaque token without expiry")
	assert.Equal(t, 10*time.Minute, ttl(&sdk.Session{AccessToken: token}, now))
}

func TestStoreError(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewStoreError("failed to load session", true).WithError(cause)

	assert.Equal(t, "failed to load session: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsRetryable(err))
	assert.False(t, IsRetryable(ErrStoreClosed))
	assert.False(t, IsRetryable(cause))
}

func TestRedisConfigFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := RedisConfigFromEnv()
		require.NoError(t, err)
		assert.Equal(t, "localhost:6379", cfg.Address())
		assert.Equal(t, DefaultNamespace, cfg.Namespace)
		assert.Equal(t, 5*time.Second, cfg.DialTimeout)
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("ROOST_REDIS_HOST", "cache")
		t.Setenv("ROOST_REDIS_PORT", "6380")
		t.Setenv("ROOST_REDIS_DB", "2")
		t.Setenv("ROOST_REDIS_DIAL_TIMEOUT", "3")
		t.Setenv("ROOST_SESSION_NAMESPACE", "cli")
		cfg, err := RedisConfigFromEnv()
		require.NoError(t, err)
		assert.Equal(t, "cache:6380", cfg.Address())
		assert.Equal(t, 2, cfg.DB)
		assert.Equal(t, 3*time.Second, cfg.DialTimeout)
		assert.Equal(t, "cli", cfg.Namespace)
	})

	t.Run("invalid", func(t *testing.T) {
		t.Setenv("ROOST_REDIS_PORT", "port")
		_, err := RedisConfigFromEnv()
		assert.ErrorContains(t, err, "ROOST_REDIS_PORT")
	})
}

func TestPostgresConfigFromEnv(t *testing.T) {
	cfg, err := PostgresConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "postgres://roost:@localhost:5432/roost?sslmode=disable", cfg.ConnectionString())

	t.Setenv("ROOST_POSTGRES_PASSWORD", "pw")
	t.Setenv("ROOST_POSTGRES_SSLMODE", "require")
	t.Setenv("ROOST_POSTGRES_MAX_CONNS", "8")
	cfg, err = PostgresConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "postgres://roost:pw@localhost:5432/roost?sslmode=require", cfg.ConnectionString())
	assert.Equal(t, int32(8), cfg.MaxConns)

	t.Setenv("ROOST_POSTGRES_MIN_CONNS", "few")
	_, err = PostgresConfigFromEnv()
	assert.Error(t, err)
}

func TestStoresImplementSessionStore(t *testing.T) {
	var _ sdk.SessionStore = (*FileStore)(nil)
	var _ sdk.SessionStore = (*RedisStore)(nil)
	var _ sdk.SessionStore = (*PostgresStore)(nil)
}
