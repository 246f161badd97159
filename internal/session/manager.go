// Package session owns the logged-in state of front-end clients. The Manager
// is the only writer; everything else reads through Current or Subscribe.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"crowdstage/internal/upstream"
)

var (
	// ErrUnauthorized means there is no live session or its token expired.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden means the session's role may not perform the operation.
	ErrForbidden = errors.New("forbidden")
)

// Roles issued by the auth service.
const (
	RoleFan      = "FAN"
	RoleArtist   = "ARTIST"
	RoleMerchant = "MERCHANT"
	RoleAdmin    = "ADMIN"
)

// Stored keys.
const (
	keyAuthToken    = "authToken"
	keyUsername     = "username"
	keyRole         = "role"
	keyLoggedIn     = "loggedIn"
	keyProfileImage = "profileImage"
)

var allKeys = []string{keyAuthToken, keyUsername, keyRole, keyLoggedIn, keyProfileImage}

// State is a client's session as seen by readers.
type State struct {
	ID           string    `json:"id"`
	Token        string    `json:"-"`
	Username     string    `json:"username"`
	Role         string    `json:"role"`
	LoggedIn     bool      `json:"logged_in"`
	ProfileImage string    `json:"profile_image,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
}

// Change is delivered to subscribers after every write.
type Change struct {
	SessionID string
	State     State
}

// Authenticator exchanges credentials for an upstream token.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (upstream.LoginResult, error)
}

// Manager is the single writer of session state.
type Manager struct {
	kv   KV
	auth Authenticator
	ttl  time.Duration
	now  func() time.Time

	mu          sync.Mutex
	subscribers map[int]chan Change
	nextSub     int
}

// NewManager creates a Manager. ttl bounds how long an idle session is kept
// in kv; the token's own expiry still applies.
func NewManager(kv KV, auth Authenticator, ttl time.Duration) *Manager {
	return &Manager{
		kv:          kv,
		auth:        auth,
		ttl:         ttl,
		now:         time.Now,
		subscribers: make(map[int]chan Change),
	}
}

// Login authenticates against the auth service and opens a new session.
func (m *Manager) Login(ctx context.Context, username, password string) (State, error) {
	result, err := m.auth.Login(ctx, username, password)
	if err != nil {
		if upstream.IsUnauthorized(err) {
			return State{}, fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
		}
		return State{}, err
	}

	claims, err := parseClaims(result.JWT)
	if err != nil {
		return State{}, err
	}
	if claims.expired(m.now()) {
		return State{}, fmt.Errorf("%w: token already expired", ErrUnauthorized)
	}

	role := strings.ToUpper(strings.TrimSpace(result.Role))
	if role == "" {
		role = claims.role
	}
	if claims.username != "" {
		username = claims.username
	}

	state := State{
		ID:        uuid.NewString(),
		Token:     result.JWT,
		Username:  username,
		Role:      role,
		LoggedIn:  true,
		ExpiresAt: claims.expiresAt,
	}

	if err := m.kv.Set(ctx, state.ID, map[string]string{
		keyAuthToken: state.Token,
		keyUsername:  state.Username,
		keyRole:      state.Role,
		keyLoggedIn:  "true",
	}, m.ttl); err != nil {
		return State{}, fmt.Errorf("store session: %w", err)
	}

	log.Info().
		Str("session_id", state.ID).
		Str("username", state.Username).
		Str("role", state.Role).
		Msg("Session opened")

	m.publish(Change{SessionID: state.ID, State: state})
	return state, nil
}

// Logout clears every key of the session. It succeeds for unknown sessions.
func (m *Manager) Logout(ctx context.Context, sessionID string) error {
	if err := m.kv.Delete(ctx, sessionID); err != nil {
		return err
	}
	log.Info().Str("session_id", sessionID).Msg("Session closed")
	m.publish(Change{SessionID: sessionID, State: State{ID: sessionID}})
	return nil
}

// Current returns the live session or ErrUnauthorized.
func (m *Manager) Current(ctx context.Context, sessionID string) (State, error) {
	if strings.TrimSpace(sessionID) == "" {
		return State{}, ErrUnauthorized
	}

	values, err := m.kv.Get(ctx, sessionID)
	if err != nil {
		return State{}, err
	}

	state := State{
		ID:           sessionID,
		Token:        values[keyAuthToken],
		Username:     values[keyUsername],
		Role:         values[keyRole],
		LoggedIn:     values[keyLoggedIn] == "true",
		ProfileImage: values[keyProfileImage],
	}
	if !state.LoggedIn || state.Token == "" {
		return State{}, ErrUnauthorized
	}

	claims, err := parseClaims(state.Token)
	if err != nil {
		return State{}, err
	}
	if claims.expired(m.now()) {
		return State{}, fmt.Errorf("%w: token expired", ErrUnauthorized)
	}
	state.ExpiresAt = claims.expiresAt
	return state, nil
}

// Require returns the live session when its role is one of roles. An empty
// roles list accepts any logged-in session.
func (m *Manager) Require(ctx context.Context, sessionID string, roles ...string) (State, error) {
	state, err := m.Current(ctx, sessionID)
	if err != nil {
		return State{}, err
	}
	if len(roles) == 0 {
		return state, nil
	}
	for _, role := range roles {
		if strings.EqualFold(state.Role, role) {
			return state, nil
		}
	}
	return State{}, fmt.Errorf("%w: role %s", ErrForbidden, state.Role)
}

// SetProfileImage stores the profile image URL of a live session.
func (m *Manager) SetProfileImage(ctx context.Context, sessionID, imageURL string) (State, error) {
	state, err := m.Current(ctx, sessionID)
	if err != nil {
		return State{}, err
	}

	if err := m.kv.Set(ctx, sessionID, map[string]string{keyProfileImage: imageURL}, m.ttl); err != nil {
		return State{}, fmt.Errorf("store session: %w", err)
	}
	state.ProfileImage = imageURL

	m.publish(Change{SessionID: sessionID, State: state})
	return state, nil
}

// Subscribe registers for session changes. Slow subscribers miss changes
// rather than blocking writers. Call the returned func to unsubscribe.
func (m *Manager) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, 8)

	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subscribers[id] = ch
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subscribers, id)
			m.mu.Unlock()
			close(ch)
		})
	}
}

func (m *Manager) publish(change Change) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subscribers {
		select {
		case ch <- change:
		default:
		}
	}
}

type tokenClaims struct {
	username  string
	role      string
	expiresAt time.Time
}

func (c tokenClaims) expired(now time.Time) bool {
	return !c.expiresAt.IsZero() && !now.Before(c.expiresAt)
}

// parseClaims reads the claims of an upstream JWT. The signature is not
// checked here; the auth service owns the key and verifies its own tokens.
func parseClaims(token string) (tokenClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return tokenClaims{}, fmt.Errorf("%w: malformed token: %v", ErrUnauthorized, err)
	}

	var out tokenClaims
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.expiresAt = exp.Time
	}
	if sub, err := claims.GetSubject(); err == nil {
		out.username = sub
	}
	if role, ok := claims["role"].(string); ok {
		out.role = strings.ToUpper(role)
	}
	return out, nil
}
