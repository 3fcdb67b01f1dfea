package domain

// Session is the client's view of who is signed in. The Session Store owns it;
// everyone else gets copies.
type Session struct {
	User       *UserProfile `json:"user"`
	IsLoading  bool         `json:"isLoading"`
	Error      string       `json:"error,omitempty"`
	IsHydrated bool         `json:"-"`
}

// Clone returns a deep copy safe to hand to subscribers.
func (s Session) Clone() Session {
	if s.User != nil {
		u := s.User.WithTokens(s.User.Tokens())
		s.User = &u
	}
	return s
}

// Tokens returns the pair embedded in the user, or the zero pair.
func (s Session) Tokens() TokenPair {
	if s.User == nil {
		return TokenPair{}
	}
	return s.User.Tokens()
}

// SignedIn reports whether a user is present.
func (s Session) SignedIn() bool {
	return s.User != nil
}
