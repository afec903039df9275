// Package session is the single source of truth for who is using the
// client. It owns the bearer credential and the cached profile, mirrors both
// into a PersistentStore, and exposes the only three transitions allowed to
// change them: login, logout and profile refresh.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/jmcleod/ballotbox/auth"
	"github.com/jmcleod/ballotbox/router"
)

const (
	logoutClearAttempts = 2
	logoutClearFailed   = "Signed out, but the stored session could not be removed."
)

// Phase is the coarse state of the session.
type Phase string

const (
	PhaseAnonymous      Phase = "anonymous"
	PhaseAuthenticating Phase = "authenticating"
	PhaseAuthenticated  Phase = "authenticated"
	PhaseError          Phase = "error"
)

var (
	// ErrLoginFailed wraps every failed login.
	ErrLoginFailed = errors.New("login failed")
	// ErrMalformedResponse is returned when the server reports success but
	// omits the token or the profile.
	ErrMalformedResponse = errors.New("malformed server response")
	// ErrSessionChanged is returned when the session was replaced or cleared
	// while a profile refresh was in flight; the fetched profile is dropped.
	ErrSessionChanged = errors.New("session changed during refresh")
)

// Backend is the part of the API the session drives.
type Backend interface {
	Login(ctx context.Context, creds auth.Credentials) (auth.LoginResult, error)
	Register(ctx context.Context, reg auth.Registration) (string, error)
	CurrentUser(ctx context.Context) (auth.UserProfile, error)
}

// Navigator moves the application between named views.
type Navigator interface {
	Current() string
	Push(name string) error
}

// Snapshot is a copy of the session state.
type Snapshot struct {
	Credential string
	Profile    *auth.UserProfile
	Phase      Phase
	LastError  string
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the structured logger for session transitions.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// Session holds the authentication state. All mutations go through Login,
// Logout and RefreshProfile and are written through to the store before
// those return.
type Session struct {
	store   *PersistentStore
	backend Backend
	nav     Navigator
	logger  *slog.Logger

	mu         sync.Mutex
	credential string
	profile    *auth.UserProfile
	phase      Phase
	lastError  string
}

// New restores a session from store. A credential without a readable
// profile, or a profile without a credential, is stale and is cleared.
func New(store *PersistentStore, backend Backend, nav Navigator, opts ...Option) (*Session, error) {
	s := &Session{
		store:   store,
		backend: backend,
		nav:     nav,
		phase:   PhaseAnonymous,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	token, profile, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("restoring session: %w", err)
	}
	switch {
	case token != "" && profile != nil:
		s.credential = token
		s.profile = profile
		s.phase = PhaseAuthenticated
	case token != "" || profile != nil:
		s.logger.Warn("discarding stale stored session",
			slog.Bool("has_token", token != ""),
			slog.Bool("has_profile", profile != nil))
		if err := store.Clear(); err != nil {
			return nil, fmt.Errorf("clearing stale session: %w", err)
		}
	}
	return s, nil
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Credential: s.credential,
		Phase:      s.phase,
		LastError:  s.lastError,
	}
	if s.profile != nil {
		p := *s.profile
		snap.Profile = &p
	}
	return snap
}

// IsAuthenticated reports whether a credential and profile are held. A
// failed profile refresh leaves the session authenticated.
func (s *Session) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.credential != "" && s.profile != nil
}

// IsAdmin reports whether the signed-in user holds the admin role.
func (s *Session) IsAdmin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.credential != "" && s.profile != nil && s.profile.Role.IsAdmin()
}

// CurrentUser returns the cached profile, if any.
func (s *Session) CurrentUser() (auth.UserProfile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profile == nil {
		return auth.UserProfile{}, false
	}
	return *s.profile, true
}

// Login authenticates against the backend. On success the credential and
// profile are stored and the navigator is sent to the home view. On any
// failure the session is left with no credential, phase error and a
// human-readable LastError.
func (s *Session) Login(ctx context.Context, creds auth.Credentials) error {
	s.mu.Lock()
	s.phase = PhaseAuthenticating
	s.lastError = ""
	s.mu.Unlock()

	res, err := s.backend.Login(ctx, creds)
	if err == nil && (res.AccessToken == "" || res.User.Role == "") {
		err = ErrMalformedResponse
	}
	if err != nil {
		s.failLogin(creds.UserID, err)
		return fmt.Errorf("%w: %w", ErrLoginFailed, err)
	}

	s.mu.Lock()
	if err := s.store.Save(res.AccessToken, res.User); err != nil {
		s.mu.Unlock()
		s.failLogin(creds.UserID, fmt.Errorf("persisting session: %w", err))
		return fmt.Errorf("%w: %w", ErrLoginFailed, err)
	}
	user := res.User
	s.credential = res.AccessToken
	s.profile = &user
	s.phase = PhaseAuthenticated
	s.mu.Unlock()

	s.logger.Info("login succeeded", slog.String("userid", creds.UserID), slog.String("role", string(user.Role)))
	s.navigate(router.Home)
	return nil
}

func (s *Session) failLogin(userID string, cause error) {
	msg := cause.Error()
	if msg == "" {
		msg = "An unknown error occurred during login."
	}

	s.mu.Lock()
	s.credential = ""
	s.profile = nil
	if err := s.store.Clear(); err != nil {
		s.logger.Error("clearing store after failed login", slog.Any("error", err))
	}
	s.phase = PhaseError
	s.lastError = msg
	s.mu.Unlock()

	s.logger.Warn("login failed", slog.String("userid", userID), slog.String("error", msg))
}

// Register creates an account. It does not sign the caller in and does not
// touch the session; it returns the server's message on success.
func (s *Session) Register(ctx context.Context, reg auth.Registration) (string, error) {
	msg, err := s.backend.Register(ctx, reg)
	if err != nil {
		s.logger.Warn("registration failed", slog.String("userid", reg.UserID), slog.Any("error", err))
		return "", err
	}
	return msg, nil
}

// Logout clears the credential and profile from memory and from the store,
// then sends the navigator to the login view unless it is already there. It
// is idempotent and is the one reset every failure path converges on.
//
// The store is cleared with one retry. If both attempts fail, memory is
// still cleared and LastError reports that the stored credential survived.
func (s *Session) Logout() {
	s.mu.Lock()
	wasSignedIn := s.credential != ""
	s.credential = ""
	s.profile = nil
	s.phase = PhaseAnonymous
	s.lastError = ""
	var err error
	for range logoutClearAttempts {
		if err = s.store.Clear(); err == nil {
			break
		}
	}
	if err != nil {
		s.lastError = logoutClearFailed
		s.logger.Error("clearing persisted session", slog.Any("error", err))
	}
	s.mu.Unlock()

	if wasSignedIn {
		s.logger.Info("logged out")
	}
	s.navigate(router.Login)
}

// RefreshProfile refetches the current user. It does nothing without a
// credential. A rejected credential logs the session out; any other failure
// marks the phase as error and keeps the session.
func (s *Session) RefreshProfile(ctx context.Context) error {
	s.mu.Lock()
	token := s.credential
	s.mu.Unlock()
	if token == "" {
		return nil
	}

	user, err := s.backend.CurrentUser(ctx)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			s.Logout()
			return err
		}
		s.mu.Lock()
		s.phase = PhaseError
		s.lastError = "Could not fetch user profile."
		s.mu.Unlock()
		s.logger.Warn("profile refresh failed", slog.Any("error", err))
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.credential != token {
		return ErrSessionChanged
	}
	if err := s.store.SaveProfile(user); err != nil {
		s.phase = PhaseError
		s.lastError = "Could not store user profile."
		return fmt.Errorf("persisting profile: %w", err)
	}
	s.profile = &user
	s.phase = PhaseAuthenticated
	s.lastError = ""
	return nil
}

// navigate pushes name unless it is already current. Duplicate navigations
// from concurrent callers are expected and dropped.
func (s *Session) navigate(name string) {
	if s.nav == nil || s.nav.Current() == name {
		return
	}
	err := s.nav.Push(name)
	switch {
	case err == nil, errors.Is(err, router.ErrNavigationDuplicated):
	default:
		s.logger.Error("navigation failed", slog.String("route", name), slog.Any("error", err))
	}
}
