package domain

import "encoding/json"

// UserProfile is what POST /auth/login returns. The token pair is embedded so
// the user and its credentials always travel together.
type UserProfile struct {
	FirstName    string          `json:"firstName"`
	LastName     string          `json:"lastName"`
	UserName     string          `json:"userName"`
	UserCode     int             `json:"userCode"`
	Email        string          `json:"email"`
	Vendor       json.RawMessage `json:"vendor"` // nullable, shape owned by the backend
	Token        string          `json:"token"`
	RefreshToken string          `json:"refreshToken"`
	Roles        []string        `json:"roles"`
}

// Tokens returns the embedded pair.
func (u UserProfile) Tokens() TokenPair {
	return TokenPair{AccessToken: u.Token, RefreshToken: u.RefreshToken}
}

// WithTokens returns a copy of u carrying p.
func (u UserProfile) WithTokens(p TokenPair) UserProfile {
	u.Token = p.AccessToken
	u.RefreshToken = p.RefreshToken
	if u.Roles != nil {
		u.Roles = append([]string(nil), u.Roles...)
	}
	return u
}

// DisplayName is "First Last", falling back to the username.
func (u UserProfile) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.UserName
	}
}
