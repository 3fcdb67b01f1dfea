package service

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/loyalty/internal/loyalty/apiclient"
	"github.com/aussiebroadwan/loyalty/internal/loyalty/domain"
)

type AuthService struct {
	API API
}

// Login exchanges credentials for a profile carrying a fresh token pair.
// Credentials go out without a bearer token and a 401 is not refreshed.
func (s *AuthService) Login(ctx context.Context, req domain.LoginRequest) (domain.UserProfile, error) {
	var user domain.UserProfile
	if err := s.API.Public(ctx, http.MethodPost, "/auth/login", req, &user); err != nil {
		return domain.UserProfile{}, userError(err)
	}

	if !user.Tokens().Complete() {
		return domain.UserProfile{}, userError(fmt.Errorf("%w: login response missing tokens", apiclient.ErrDecode))
	}
	return user, nil
}

// Refresh trades a refresh token for a new pair. It bypasses 401
// interception but joins a refresh the client already has in flight for the
// same token. The token store holds the result when it returns.
func (s *AuthService) Refresh(ctx context.Context, refresh string) (domain.TokenPair, error) {
	pair, err := s.API.Refresh(ctx, refresh)
	if err != nil {
		return domain.TokenPair{}, userError(err)
	}
	return pair, nil
}

// Logout tells the backend the session is over. A rejected access token is
// reported, not refreshed.
func (s *AuthService) Logout(ctx context.Context) error {
	return userError(s.API.DoOnce(ctx, http.MethodPost, "/auth/logout", nil, nil))
}
