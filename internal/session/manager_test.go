package session

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crowdstage/internal/upstream"
)

type stubAuth struct {
	result upstream.LoginResult
	err    error
}

func (s stubAuth) Login(ctx context.Context, username, password string) (upstream.LoginResult, error) {
	return s.result, s.err
}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return token
}

func newManager(t *testing.T, role string, exp time.Time) (*Manager, string) {
	t.Helper()
	token := signToken(t, jwt.MapClaims{
		"sub":  "alice",
		"role": role,
		"exp":  exp.Unix(),
	})
	return NewManager(NewMemoryKV(), stubAuth{result: upstream.LoginResult{JWT: token, Role: role}}, time.Hour), token
}

func TestLoginStoresSession(t *testing.T) {
	ctx := context.Background()
	manager, token := newManager(t, "artist", time.Now().Add(time.Hour))

	state, err := manager.Login(ctx, "ALICE", "pw")
	require.NoError(t, err)
	assert.NotEmpty(t, state.ID)
	assert.Equal(t, token, state.Token)
	assert.Equal(t, "alice", state.Username)
	assert.Equal(t, RoleArtist, state.Role)
	assert.True(t, state.LoggedIn)

	current, err := manager.Current(ctx, state.ID)
	require.NoError(t, err)
	assert.Equal(t, state.Username, current.Username)
	assert.Equal(t, state.Role, current.Role)
}

func TestLoginInvalidCredentials(t *testing.T) {
	manager := NewManager(NewMemoryKV(), stubAuth{err: &upstream.HTTPError{StatusCode: http.StatusUnauthorized}}, time.Hour)

	_, err := manager.Login(context.Background(), "alice", "wrong")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestLoginMalformedToken(t *testing.T) {
	manager := NewManager(NewMemoryKV(), stubAuth{result: upstream.LoginResult{JWT: "not-a-jwt", Role: RoleFan}}, time.Hour)

	_, err := manager.Login(context.Background(), "alice", "pw")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestLogoutClearsEverything(t *testing.T) {
	ctx := context.Background()
	manager, _ := newManager(t, RoleFan, time.Now().Add(time.Hour))

	state, err := manager.Login(ctx, "alice", "pw")
	require.NoError(t, err)
	_, err = manager.SetProfileImage(ctx, state.ID, "https://img.example/a.png")
	require.NoError(t, err)

	require.NoError(t, manager.Logout(ctx, state.ID))

	_, err = manager.Current(ctx, state.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)

	values, err := manager.kv.Get(ctx, state.ID)
	require.NoError(t, err)
	for _, key := range allKeys {
		assert.NotContains(t, values, key)
	}
}

func TestCurrentExpiredToken(t *testing.T) {
	ctx := context.Background()
	manager, _ := newManager(t, RoleFan, time.Now().Add(time.Hour))

	state, err := manager.Login(ctx, "alice", "pw")
	require.NoError(t, err)

	manager.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = manager.Current(ctx, state.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestRequireRole(t *testing.T) {
	ctx := context.Background()
	manager, _ := newManager(t, RoleMerchant, time.Now().Add(time.Hour))

	state, err := manager.Login(ctx, "alice", "pw")
	require.NoError(t, err)

	_, err = manager.Require(ctx, state.ID, RoleMerchant)
	assert.NoError(t, err)

	_, err = manager.Require(ctx, state.ID, RoleAdmin)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = manager.Require(ctx, "missing", RoleAdmin)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.False(t, errors.Is(err, ErrForbidden))
}

func TestSubscribeReceivesChanges(t *testing.T) {
	ctx := context.Background()
	manager, _ := newManager(t, RoleFan, time.Now().Add(time.Hour))

	changes, unsubscribe := manager.Subscribe()
	defer unsubscribe()

	state, err := manager.Login(ctx, "alice", "pw")
	require.NoError(t, err)

	select {
	case change := <-changes:
		assert.Equal(t, state.ID, change.SessionID)
		assert.True(t, change.State.LoggedIn)
	case <-time.After(time.Second):
		t.Fatal("no change delivered")
	}

	require.NoError(t, manager.Logout(ctx, state.ID))
	change := <-changes
	assert.False(t, change.State.LoggedIn)
}

func TestMemoryKVExpiry(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	kv.now = func() time.Time { return now }

	require.NoError(t, kv.Set(ctx, "s1", map[string]string{"k": "v"}, time.Minute))
	values, err := kv.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "v", values["k"])

	now = now.Add(time.Minute)
	values, err = kv.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, values)
}
