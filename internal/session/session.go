// Package session tracks who is signed in to the console.
//
// A Session is Anonymous until Login stores a credential and fetches the
// operator's profile, and returns to Anonymous on Logout or when the
// backend rejects the credential.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/parkwatch/console/internal/client"
	"go.uber.org/zap"
)

// ErrAuthentication is returned by Login when the backend rejects the
// username or password.
var ErrAuthentication = errors.New("authentication failed")

// ErrNoCredential is returned by Restore when nothing was persisted.
var ErrNoCredential = errors.New("no stored credential")

// State is the session's observable state.
type State int

const (
	Anonymous State = iota
	Authenticated
)

func (s State) String() string {
	if s == Authenticated {
		return "authenticated"
	}
	return "anonymous"
}

// API is the slice of the backend the session needs.
type API interface {
	Login(ctx context.Context, username, password string) (*client.AuthResponse, error)
	Me(ctx context.Context) (*client.Identity, error)
	Logout(ctx context.Context) error
}

// Credentials is the durable credential slot.
type Credentials interface {
	Get() (string, bool)
	Set(token string) error
	Clear() error
}

// Session is safe for concurrent use, but callers must not run two Logins
// at once.
type Session struct {
	api   API
	creds Credentials
	log   *zap.Logger

	mu       sync.RWMutex
	identity *client.Identity
}

// New creates an Anonymous session backed by api and creds. A nil log
// discards output.
func New(api API, creds Credentials, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{api: api, creds: creds, log: log}
}

// Login exchanges username and password for a credential and fetches the
// operator's profile. On any failure neither the credential nor the
// identity is set, even if an earlier Login had set them.
func (s *Session) Login(ctx context.Context, username, password string) (client.Identity, error) {
	resp, err := s.api.Login(ctx, username, password)
	if err != nil {
		s.drop()
		if isCredentialRejection(err) {
			return client.Identity{}, fmt.Errorf("%w: %w", ErrAuthentication, err)
		}
		return client.Identity{}, fmt.Errorf("logging in: %w", err)
	}
	if resp.AccessToken == "" {
		s.drop()
		return client.Identity{}, fmt.Errorf("%w: backend returned no access token", ErrAuthentication)
	}

	if err := s.creds.Set(resp.AccessToken); err != nil {
		s.drop()
		return client.Identity{}, fmt.Errorf("storing credential: %w", err)
	}

	id, err := s.api.Me(ctx)
	if err != nil {
		s.drop()
		return client.Identity{}, fmt.Errorf("fetching profile: %w", err)
	}

	s.mu.Lock()
	s.identity = id
	s.mu.Unlock()

	s.log.Info("signed in", zap.String("username", id.Username), zap.String("role", id.Role))
	return *id, nil
}

// drop clears the stored credential and the cached identity together.
func (s *Session) drop() {
	if err := s.creds.Clear(); err != nil {
		s.log.Error("clearing credential", zap.Error(err))
	}
	s.mu.Lock()
	s.identity = nil
	s.mu.Unlock()
}

// Restore fetches the profile for a credential that survived a restart.
// If the backend rejects it, the auth guard has already cleared it and
// the session stays Anonymous.
func (s *Session) Restore(ctx context.Context) (client.Identity, error) {
	if _, ok := s.creds.Get(); !ok {
		return client.Identity{}, ErrNoCredential
	}
	id, err := s.api.Me(ctx)
	if err != nil {
		return client.Identity{}, fmt.Errorf("restoring session: %w", err)
	}

	s.mu.Lock()
	s.identity = id
	s.mu.Unlock()
	return *id, nil
}

// Logout tells the backend, then drops the credential and identity. The
// backend call is best-effort; Logout itself never fails and is
// idempotent.
func (s *Session) Logout(ctx context.Context) {
	if _, ok := s.creds.Get(); ok {
		if err := s.api.Logout(ctx); err != nil {
			s.log.Debug("backend logout failed", zap.Error(err))
		}
	}
	if err := s.creds.Clear(); err != nil {
		s.log.Error("clearing credential", zap.Error(err))
	}
	s.Expire()
}

// Expire drops the cached identity without touching the backend. The auth
// guard calls it after a rejected credential.
func (s *Session) Expire() {
	s.mu.Lock()
	had := s.identity != nil
	s.identity = nil
	s.mu.Unlock()
	if had {
		s.log.Info("signed out")
	}
}

// Current returns the cached identity. It performs no I/O.
func (s *Session) Current() (client.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return client.Identity{}, false
	}
	return *s.identity, true
}

// State reports Authenticated when an identity is cached.
func (s *Session) State() State {
	if _, ok := s.Current(); ok {
		return Authenticated
	}
	return Anonymous
}

func isCredentialRejection(err error) bool {
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	return false
}
