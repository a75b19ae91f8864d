// Package session keeps logged-in panel sessions in memory.
package session

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"vending-panel-backend/internal/access"
)

// ErrNoSession is returned for missing, expired, forged or revoked tokens.
var ErrNoSession = errors.New("no active session")

// Session is one logged-in browser. It starts at login and ends at logout,
// expiry or process restart.
type Session struct {
	ID              string          `json:"-"`
	Identity        access.Identity `json:"identity"`
	SelectedMachine string          `json:"selected_machine,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

type claims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Manager issues signed session tokens and stores session state.
type Manager struct {
	sessions *cache.Cache
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
}

// NewManager creates a manager. An empty secret is replaced by random
// bytes, so tokens do not outlive the process.
func NewManager(secret string, ttl time.Duration) (*Manager, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate session secret: %w", err)
		}
	}
	return &Manager{
		sessions: cache.New(ttl, ttl),
		secret:   key,
		ttl:      ttl,
		now:      time.Now,
	}, nil
}

// TTL is how long a session lives without being saved again.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Create starts a session for id and returns it with its token.
func (m *Manager) Create(id access.Identity) (Session, string, error) {
	now := m.now()
	s := Session{
		ID:        uuid.NewString(),
		Identity:  id,
		CreatedAt: now,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		SessionID: s.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	})
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return Session{}, "", fmt.Errorf("sign session token: %w", err)
	}

	m.sessions.Set(s.ID, s, cache.DefaultExpiration)
	return s, signed, nil
}

// Resolve returns the live session named by token.
func (m *Manager) Resolve(token string) (Session, error) {
	if token == "" {
		return Session{}, ErrNoSession
	}
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(m.now))
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrNoSession, err)
	}

	v, ok := m.sessions.Get(c.SessionID)
	if !ok {
		return Session{}, ErrNoSession
	}
	return v.(Session), nil
}

// Save stores changes to a live session.
func (m *Manager) Save(s Session) error {
	if err := m.sessions.Replace(s.ID, s, cache.DefaultExpiration); err != nil {
		return ErrNoSession
	}
	return nil
}

// SelectMachine records which machine the session is managing; an empty
// mid clears the selection.
func (m *Manager) SelectMachine(s Session, mid string) (Session, error) {
	if mid != "" && !s.Identity.CanAccess(mid) {
		return s, fmt.Errorf("%w: machine %s", access.ErrForbidden, mid)
	}
	s.SelectedMachine = mid
	if err := m.Save(s); err != nil {
		return s, err
	}
	return s, nil
}

// Destroy ends a session. Its token stops resolving immediately.
func (m *Manager) Destroy(id string) {
	m.sessions.Delete(id)
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	return m.sessions.ItemCount()
}
