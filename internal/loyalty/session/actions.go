package session

import (
	"context"
	"errors"
	"strings"

	"github.com/aussiebroadwan/loyalty/internal/loyalty/domain"
	"github.com/aussiebroadwan/loyalty/internal/loyalty/service"
	"github.com/aussiebroadwan/loyalty/pkg/slogx"
)

// ErrMissingCredentials is returned by Login for an empty username or
// password.
var ErrMissingCredentials = errors.New(MsgMissingCredentials)

// Login signs in and stores the user. Failures set the session error to a
// user-visible message and return it.
func (s *Store) Login(ctx context.Context, username, password string) error {
	if strings.TrimSpace(username) == "" || password == "" {
		s.SetError(MsgMissingCredentials)
		return ErrMissingCredentials
	}

	s.SetLoading(true)
	defer s.SetLoading(false)
	s.SetError("")

	user, err := s.auth.Login(ctx, domain.LoginRequest{Username: username, Password: password})
	if err != nil {
		msg := service.MsgUnexpected
		var svcErr *service.Error
		if errors.As(err, &svcErr) {
			msg = svcErr.Message
		}
		s.SetError(msg)
		slogx.FromContext(ctx).Info("login failed", "user", username, "error", err)
		return err
	}

	s.SetUser(&user)
	s.SetError("")
	slogx.FromContext(ctx).Info("signed in", "user", user.UserName, "user_code", user.UserCode)
	return nil
}

// Logout ends the session. When a user is signed in the backend is told,
// best effort. Tokens, user and error are cleared; IsLoading is left alone.
// Safe to call when already signed out.
func (s *Store) Logout(ctx context.Context) {
	if s.Snapshot().SignedIn() {
		if err := s.auth.Logout(ctx); err != nil {
			s.logger.Warn("backend logout failed", "error", err)
		}
	}

	s.tokens.ClearTokens()
	s.update(func(st *domain.Session) {
		st.User = nil
		st.Error = ""
	})
}

// RefreshToken renews the signed-in user's tokens. It returns false without
// a network call when there is no user or no refresh token. A failed refresh
// signs the user out with MsgRefreshFailed. IsLoading is always reset.
func (s *Store) RefreshToken(ctx context.Context) bool {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	snap := s.Snapshot()
	if !snap.IsHydrated {
		s.logger.Warn("refresh requested before hydration")
		return false
	}
	if snap.User == nil || snap.User.RefreshToken == "" {
		return false
	}

	s.SetLoading(true)
	defer s.SetLoading(false)

	// The API client may already have rotated the pair on a 401.
	if pair := s.tokens.Pair(); pair.Complete() && pair != snap.User.Tokens() {
		merged := snap.User.WithTokens(pair)
		s.SetUser(&merged)
		s.SetError("")
		s.logger.Debug("adopted tokens rotated by the api client")
		return true
	}

	pair, err := s.auth.Refresh(ctx, snap.User.RefreshToken)
	if err != nil {
		s.logger.Warn("token refresh failed; signing out", "error", err)
		s.SetUser(nil)
		s.SetError(MsgRefreshFailed)
		return false
	}

	merged := snap.User.WithTokens(pair)
	s.SetUser(&merged)
	s.SetError("")
	return true
}
