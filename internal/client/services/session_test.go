package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/avoronin/paperkeep/internal/client/remote"
	"github.com/avoronin/paperkeep/internal/client/repositories/metadata"
	"github.com/avoronin/paperkeep/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, subject string, expiresAt time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{"sub": subject}
	if !expiresAt.IsZero() {
		claims["exp"] = expiresAt.Unix()
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func loginServer(t *testing.T, token string) remote.API {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/auth/login", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]string{"token": token})
	}))
	t.Cleanup(srv.Close)
	return remote.NewHTTPClient(srv.URL, nil)
}

func TestLogin_PersistsTokenAndIdentity(t *testing.T) {
	db := setupDB(t)
	meta := metadata.NewSQLiteRepository(db)
	ctx := context.Background()

	token := signedToken(t, "user-42", time.Now().Add(time.Hour))
	svc := NewSessionService(loginServer(t, token), meta)

	require.NoError(t, svc.Login(ctx, "u@example.com", "pw"))

	got, err := svc.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, token, got)

	identity, err := svc.Identity(ctx)
	require.NoError(t, err)
	assert.Equal(t, "user-42", identity)

	expired, err := svc.Expired(ctx)
	require.NoError(t, err)
	assert.False(t, expired)
}

func TestLogin_RejectsTokenWithoutSubject(t *testing.T) {
	db := setupDB(t)
	meta := metadata.NewSQLiteRepository(db)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	svc := NewSessionService(loginServer(t, token), meta)

	require.Error(t, svc.Login(context.Background(), "u@example.com", "pw"))

	// Nothing persisted.
	got, err := svc.Token(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestExpired(t *testing.T) {
	db := setupDB(t)
	meta := metadata.NewSQLiteRepository(db)
	svc := NewSessionService(nil, meta)
	ctx := context.Background()

	// Logged out counts as expired.
	expired, err := svc.Expired(ctx)
	require.NoError(t, err)
	assert.True(t, expired)

	require.NoError(t, meta.Set(ctx, metadata.KeySessionToken,
		[]byte(signedToken(t, "user-42", time.Now().Add(-time.Minute)))))
	expired, err = svc.Expired(ctx)
	require.NoError(t, err)
	assert.True(t, expired)

	// No exp claim means the token never expires client-side.
	require.NoError(t, meta.Set(ctx, metadata.KeySessionToken,
		[]byte(signedToken(t, "user-42", time.Time{}))))
	expired, err = svc.Expired(ctx)
	require.NoError(t, err)
	assert.False(t, expired)
}

func TestLogout_DropsSession(t *testing.T) {
	db := setupDB(t)
	meta := metadata.NewSQLiteRepository(db)
	ctx := context.Background()

	token := signedToken(t, "user-42", time.Now().Add(time.Hour))
	svc := NewSessionService(loginServer(t, token), meta)
	require.NoError(t, svc.Login(ctx, "u@example.com", "pw"))

	require.NoError(t, svc.Logout(ctx))

	got, err := svc.Token(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = svc.Identity(ctx)
	assert.ErrorIs(t, err, common.ErrUnauthorized)
}
