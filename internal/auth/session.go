// SPDX-License-Identifier: Apache-2.0

// Package auth owns the authenticated identity: the stored token/user pair,
// the login callback, and account deletion.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/kusari-oss/deploymate/internal/core/localstore"
	"github.com/kusari-oss/deploymate/internal/core/logging"
	"github.com/kusari-oss/deploymate/internal/core/models"
	"github.com/phuslu/log"
)

// Local store keys
const (
	TokenKey = "auth_token"
	UserKey  = "user_data"
)

// AccountDeleter removes the account on the backend
type AccountDeleter interface {
	DeleteAccount(ctx context.Context) error
}

// Store is the session. It is authenticated iff both token and user are set.
type Store struct {
	local   *localstore.Store
	session *localstore.Store
	logger  *log.Logger

	mu    sync.RWMutex
	token string
	user  *models.User
}

// NewStore hydrates the session from local storage. A corrupt user entry
// purges both keys and leaves the store logged out.
func NewStore(local, session *localstore.Store, logger *log.Logger) *Store {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Store{local: local, session: session, logger: logger}

	token, hasToken := local.GetItem(TokenKey)
	raw, hasUser := local.GetItem(UserKey)
	if !hasToken || !hasUser || token == "" {
		return s
	}

	var user models.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		logger.Warn().Err(err).Msg("stored user data is corrupt, clearing session")
		_ = local.RemoveItem(TokenKey)
		_ = local.RemoveItem(UserKey)
		return s
	}
	s.token = token
	s.user = &user
	return s
}

// Login stores the token and user
func (s *Store) Login(token string, user *models.User) error {
	if token == "" || user == nil {
		return fmt.Errorf("login requires both a token and a user")
	}
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("error encoding user: %w", err)
	}
	if err := s.local.SetItem(TokenKey, token); err != nil {
		return err
	}
	if err := s.local.SetItem(UserKey, string(data)); err != nil {
		return err
	}

	s.mu.Lock()
	s.token = token
	u := *user
	s.user = &u
	s.mu.Unlock()
	return nil
}

// Logout forgets the session. It is safe to call when already logged out.
func (s *Store) Logout() {
	s.mu.Lock()
	s.token = ""
	s.user = nil
	s.mu.Unlock()

	if err := s.local.RemoveItem(TokenKey); err != nil {
		s.logger.Error().Err(err).Msg("error clearing stored token")
	}
	if err := s.local.RemoveItem(UserKey); err != nil {
		s.logger.Error().Err(err).Msg("error clearing stored user")
	}
}

// IsAuthenticated reports whether a token and user are both present
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != "" && s.user != nil
}

// Token returns the bearer token, or "" when logged out
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// User returns a copy of the logged in user
func (s *Store) User() *models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// Session returns the token/user pair
func (s *Store) Session() models.Session {
	return models.Session{Token: s.Token(), User: s.User()}
}

// Expiry reads the token's exp claim without verifying the signature. It
// reports false for opaque tokens or tokens without exp.
func (s *Store) Expiry() (time.Time, bool) {
	return TokenExpiry(s.Token())
}

// TokenExpiry reads the exp claim of a JWT without verifying it
func TokenExpiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// Expired reports whether the token carries an exp claim in the past
func (s *Store) Expired(now time.Time) bool {
	exp, ok := s.Expiry()
	return ok && !exp.After(now)
}

// DeleteAccount removes the account on the backend and, on success, clears
// the session and the session namespace. Failures are logged, never returned.
func (s *Store) DeleteAccount(ctx context.Context, deleter AccountDeleter) bool {
	if !s.IsAuthenticated() {
		s.logger.Warn().Msg("delete account requested without a session")
		return false
	}
	if err := deleter.DeleteAccount(ctx); err != nil {
		s.logger.Error().Err(err).Msg("account deletion failed")
		return false
	}

	s.Logout()
	if s.session != nil {
		if err := s.session.Clear(); err != nil {
			s.logger.Error().Err(err).Msg("error clearing session storage")
		}
	}
	return true
}
