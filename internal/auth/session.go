package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/JonMunkholm/sanandem/internal/core"
	"github.com/JonMunkholm/sanandem/internal/logging"
)

// Default session lifetimes.
const (
	DefaultSessionTTL    = 30 * 24 * time.Hour
	DefaultRefreshWindow = 15 * 24 * time.Hour
)

// Store lookup errors.
var (
	ErrUserNotFound    = errors.New("user not found")
	ErrSessionNotFound = errors.New("session not found")
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

// User is an admin account.
type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Age          int    `json:"age,omitempty"`
	PasswordHash string `json:"-"`
}

// Session is a server-side session keyed by the token digest.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// SessionValidationResult holds either both a session and its user, or neither.
type SessionValidationResult struct {
	Session *Session
	User    *User
}

// Valid reports whether the token resolved to a live session.
func (r SessionValidationResult) Valid() bool {
	return r.Session != nil && r.User != nil
}

// Store persists users and sessions.
type Store interface {
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	InsertSession(ctx context.Context, s Session) error
	GetSessionWithUser(ctx context.Context, sessionID string) (*Session, *User, error)
	UpdateSessionExpiry(ctx context.Context, sessionID string, expiresAt time.Time) error
	DeleteSession(ctx context.Context, sessionID string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// Manager implements login and the session lifecycle.
type Manager struct {
	store         Store
	ttl           time.Duration
	refreshWindow time.Duration
	now           func() time.Time
	onAttempt     func(result string)

	dummyOnce sync.Once
	dummyHash string
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLifetimes overrides the session TTL and refresh window.
func WithLifetimes(ttl, refreshWindow time.Duration) ManagerOption {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
		if refreshWindow > 0 {
			m.refreshWindow = refreshWindow
		}
	}
}

// WithManagerClock replaces time.Now.
func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// WithAttemptObserver is called once per login attempt with
// "success", "invalid_input", "failure" or "error".
func WithAttemptObserver(fn func(result string)) ManagerOption {
	return func(m *Manager) { m.onAttempt = fn }
}

// NewManager creates a session manager over store.
func NewManager(store Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:         store,
		ttl:           DefaultSessionTTL,
		refreshWindow: DefaultRefreshWindow,
		now:           time.Now,
		onAttempt:     func(string) {},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateSession stores a session for token that expires after the TTL.
func (m *Manager) CreateSession(ctx context.Context, token, userID string) (*Session, error) {
	s := Session{
		ID:        SessionIDFromToken(token),
		UserID:    userID,
		ExpiresAt: m.now().Add(m.ttl),
	}
	if err := m.store.InsertSession(ctx, s); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &s, nil
}

// ValidateSessionToken resolves token to its session and user. Expired
// sessions are deleted. Sessions inside the refresh window are extended.
func (m *Manager) ValidateSessionToken(ctx context.Context, token string) (SessionValidationResult, error) {
	id := SessionIDFromToken(token)
	s, u, err := m.store.GetSessionWithUser(ctx, id)
	if errors.Is(err, ErrSessionNotFound) {
		return SessionValidationResult{}, nil
	}
	if err != nil {
		return SessionValidationResult{}, fmt.Errorf("get session: %w", err)
	}

	now := m.now()
	if !now.Before(s.ExpiresAt) {
		if err := m.store.DeleteSession(ctx, s.ID); err != nil {
			return SessionValidationResult{}, fmt.Errorf("delete expired session: %w", err)
		}
		return SessionValidationResult{}, nil
	}

	if !now.Before(s.ExpiresAt.Add(-m.refreshWindow)) {
		s.ExpiresAt = now.Add(m.ttl)
		if err := m.store.UpdateSessionExpiry(ctx, s.ID, s.ExpiresAt); err != nil {
			return SessionValidationResult{}, fmt.Errorf("refresh session: %w", err)
		}
	}

	return SessionValidationResult{Session: s, User: u}, nil
}

// InvalidateSession deletes a session by id.
func (m *Manager) InvalidateSession(ctx context.Context, sessionID string) error {
	if err := m.store.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("invalidate session: %w", err)
	}
	return nil
}

// PurgeExpired deletes every expired session.
func (m *Manager) PurgeExpired(ctx context.Context) (int64, error) {
	return m.store.DeleteExpiredSessions(ctx, m.now())
}

// LoginResult is a successful login.
type LoginResult struct {
	Token   string
	Session *Session
	User    *User
}

// Login checks credentials and opens a session. Input errors are
// core.ErrInvalidUsername or core.ErrInvalidPassword; any credential
// mismatch is core.ErrIncorrectCredentials.
func (m *Manager) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	if err := ValidateCredentials(username, password); err != nil {
		m.onAttempt("invalid_input")
		return nil, err
	}

	u, err := m.store.GetUserByUsername(ctx, username)
	if errors.Is(err, ErrUserNotFound) {
		// Same work as a real check so timing does not reveal unknown users.
		_, _ = VerifyPassword(m.dummy(), password)
		m.onAttempt("failure")
		return nil, core.ErrIncorrectCredentials
	}
	if err != nil {
		m.onAttempt("error")
		return nil, fmt.Errorf("look up user: %w", err)
	}

	ok, err := VerifyPassword(u.PasswordHash, password)
	if err != nil {
		logging.FromContext(ctx).Error("stored password hash unusable", "user_id", u.ID, "error", err)
	}
	if !ok {
		m.onAttempt("failure")
		return nil, core.ErrIncorrectCredentials
	}

	token, err := GenerateSessionToken()
	if err != nil {
		m.onAttempt("error")
		return nil, err
	}
	s, err := m.CreateSession(ctx, token, u.ID)
	if err != nil {
		m.onAttempt("error")
		return nil, err
	}

	m.onAttempt("success")
	return &LoginResult{Token: token, Session: s, User: u}, nil
}

func (m *Manager) dummy() string {
	m.dummyOnce.Do(func() {
		h, err := HashPassword("not-a-real-password")
		if err == nil {
			m.dummyHash = h
		}
	})
	return m.dummyHash
}

// ValidateCredentials applies the username and password shape rules.
func ValidateCredentials(username, password string) error {
	if len(username) < 3 || len(username) > 31 || !usernamePattern.MatchString(username) {
		return core.ErrInvalidUsername
	}
	if len(password) < 6 || len(password) > 255 {
		return core.ErrInvalidPassword
	}
	return nil
}
