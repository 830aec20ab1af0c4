// Package session keeps the signed-in user's credential for the console.
//
// The store is owned by the application, not by the CRUD or live layers:
// they only ask whether an unexpired credential is present.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cesarabad/muffinmanager/pkg/constants"
	"github.com/cesarabad/muffinmanager/pkg/models"
)

// CredentialSource yields the bearer credential of the current session.
type CredentialSource interface {
	Credential() (token string, ok bool)
}

// Identity is what the console knows about the signed-in user.
type Identity struct {
	UserID      int64
	Dni         string
	Name        string
	Permissions []models.Permission
}

type Session struct {
	Token     string
	Identity  Identity
	ExpiresAt time.Time
}

// Expired reports whether the session is past its expiry. A zero expiry never expires.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// FromToken builds a session from a JWT issued by the backend.
// The signature is not verified: the server remains the authority and
// rejects forged tokens on every call.
func FromToken(token string) (Session, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Session{}, fmt.Errorf("session: parse token: %w", err)
	}

	s := Session{Token: token}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return Session{}, fmt.Errorf("session: exp claim: %w", err)
	}
	if exp != nil {
		s.ExpiresAt = exp.Time
	}

	if sub, err := claims.GetSubject(); err == nil {
		s.Identity.Dni = sub
	}
	if name, ok := claims["name"].(string); ok {
		s.Identity.Name = name
	}
	if id, ok := claims["userId"].(float64); ok {
		s.Identity.UserID = int64(id)
	}
	if perms, ok := claims["permissions"].([]any); ok {
		for _, p := range perms {
			if key, ok := p.(string); ok {
				s.Identity.Permissions = append(s.Identity.Permissions, models.Permission(key))
			}
		}
	}

	return s, nil
}

// Store holds at most one session.
type Store struct {
	mu      sync.RWMutex
	current *Session
	now     func() time.Time
}

func NewStore() *Store {
	return &Store{now: time.Now}
}

func (s *Store) Set(sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = &sess
}

// SetToken parses token and replaces the current session with it.
func (s *Store) SetToken(token string) error {
	sess, err := FromToken(token)
	if err != nil {
		return err
	}
	if sess.Expired(s.now()) {
		return constants.ErrSessionExpired
	}
	s.Set(sess)
	return nil
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
}

// Current returns the session if one is present and unexpired.
func (s *Store) Current() (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil || s.current.Expired(s.now()) {
		return Session{}, false
	}
	return *s.current, true
}

func (s *Store) Present() bool {
	_, ok := s.Current()
	return ok
}

func (s *Store) Credential() (string, bool) {
	sess, ok := s.Current()
	if !ok || sess.Token == "" {
		return "", false
	}
	return sess.Token, true
}
