package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"folio-cms/internal/models"
)

// DefaultTTL is the session lifetime applied when no TTL is configured.
const DefaultTTL = 7 * 24 * time.Hour

// SessionStore defines the persistence contract for session tokens.
type SessionStore interface {
	Save(record SessionRecord) error
	Get(token string) (SessionRecord, bool, error)
	Delete(token string) error
	PurgeExpired(now time.Time) error
}

// SessionRecord captures a session row retrieved from the backing store. The
// admin flags are denormalized at login time; a session never changes after
// creation.
type SessionRecord struct {
	Token      string    `json:"token"`
	UserID     string    `json:"user_id"`
	IsAdmin    bool      `json:"is_admin"`
	IsVerified bool      `json:"is_verified"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// SessionOption configures a SessionManager instance.
type SessionOption func(*SessionManager)

// WithStore injects a custom SessionStore implementation.
func WithStore(store SessionStore) SessionOption {
	return func(m *SessionManager) {
		m.store = store
	}
}

// WithTokenLength sets the token length used for newly created sessions.
func WithTokenLength(length int) SessionOption {
	return func(m *SessionManager) {
		if length > 0 {
			m.tokenLength = length
		}
	}
}

// WithExpiryEnforcement controls whether Validate rejects sessions past their
// expires_at. The original backend computed the expiry but never acted on it,
// so expired tokens kept authenticating; disabling enforcement reproduces
// that legacy behaviour for deployments that still depend on it.
func WithExpiryEnforcement(enforce bool) SessionOption {
	return func(m *SessionManager) {
		m.enforceExpiry = enforce
	}
}

// SessionManager coordinates session creation and validation against a
// backing store.
type SessionManager struct {
	store         SessionStore
	ttl           time.Duration
	tokenLength   int
	enforceExpiry bool
	tokenFactory  func(int) (string, error)
	now           func() time.Time
}

// NewSessionManager constructs a SessionManager with the provided TTL and
// options. The manager defaults to a 7-day TTL, enforced expiry, and an
// in-memory store for local development when no store is supplied.
func NewSessionManager(ttl time.Duration, opts ...SessionOption) *SessionManager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	manager := &SessionManager{
		ttl:           ttl,
		tokenLength:   32,
		enforceExpiry: true,
		tokenFactory:  generateToken,
		now:           time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(manager)
		}
	}
	if manager.store == nil {
		manager.store = NewMemorySessionStore()
	}
	return manager
}

// Create issues a new session token for the provided user.
func (m *SessionManager) Create(user models.User) (SessionRecord, error) {
	if user.ID == "" {
		return SessionRecord{}, ErrInvalidUserID
	}
	token, err := m.tokenFactory(m.tokenLength)
	if err != nil {
		return SessionRecord{}, err
	}
	now := m.now().UTC()
	record := SessionRecord{
		Token:      token,
		UserID:     user.ID,
		IsAdmin:    user.IsAdmin,
		IsVerified: user.IsVerified,
		CreatedAt:  now,
		ExpiresAt:  now.Add(m.ttl),
	}
	if err := m.store.Save(record); err != nil {
		return SessionRecord{}, err
	}
	return record, nil
}

// Validate checks the backing store for the provided token and returns the
// associated session when valid.
func (m *SessionManager) Validate(token string) (SessionRecord, bool, error) {
	if token == "" {
		return SessionRecord{}, false, nil
	}
	record, ok, err := m.store.Get(token)
	if err != nil {
		return SessionRecord{}, false, err
	}
	if !ok {
		return SessionRecord{}, false, nil
	}
	if m.enforceExpiry && m.now().After(record.ExpiresAt) {
		_ = m.store.Delete(token)
		return SessionRecord{}, false, nil
	}
	return record, true, nil
}

// Revoke deletes the session token from the backing store.
func (m *SessionManager) Revoke(token string) error {
	if token == "" {
		return nil
	}
	return m.store.Delete(token)
}

// PurgeExpired removes any expired sessions from the backing store.
func (m *SessionManager) PurgeExpired() error {
	return m.store.PurgeExpired(m.now())
}

// Ping verifies the underlying session store is reachable when it exposes a
// ping method.
func (m *SessionManager) Ping(ctx context.Context) error {
	if m == nil || m.store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if pinger, ok := m.store.(interface{ Ping(context.Context) error }); ok {
		return pinger.Ping(ctx)
	}
	return nil
}

func generateToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// ErrInvalidUserID is returned when attempting to create a session without a
// user identifier.
var ErrInvalidUserID = errors.New("userID is required")
