// Package guard decides whether the session is usable and keeps navigation
// on the right side of the sign-in boundary.
package guard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/loyalty/internal/loyalty/domain"
	"github.com/aussiebroadwan/loyalty/pkg/jwtx"
	"github.com/aussiebroadwan/loyalty/pkg/slogx"
)

// Sessions is the session store as the guard sees it.
type Sessions interface {
	Snapshot() domain.Session
	RefreshToken(ctx context.Context) bool
	SetUser(u *domain.UserProfile)
	Subscribe(fn func(domain.Session)) (unsubscribe func())
}

type Guard struct {
	sessions Sessions
	nav      Navigator
	routes   Routes
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	state   State
	pending pending
	wake    chan struct{}
	lastKey sessionKey
}

type pending struct {
	session  bool
	location bool
	resume   bool
}

type Options struct {
	Routes Routes           // default DefaultRoutes
	Now    func() time.Time // default time.Now
	Logger *slog.Logger
}

func New(sessions Sessions, nav Navigator, opts Options) *Guard {
	if opts.Routes.Login == "" {
		opts.Routes = DefaultRoutes
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Guard{
		sessions: sessions,
		nav:      nav,
		routes:   opts.Routes,
		logger:   slogx.OrDiscard(opts.Logger),
		now:      opts.Now,
		state:    Hydrating,
		wake:     make(chan struct{}, 1),
	}
}

func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Guard) setState(s State) {
	g.mu.Lock()
	prev := g.state
	g.state = s
	g.mu.Unlock()

	if prev != s {
		g.logger.Debug("guard state", "from", prev.String(), "to", s.String())
	}
}

// Validate decides whether the current user may stay signed in, refreshing
// an expired access token when a refresh token is available. It stays in
// Hydrating until the session store is hydrated. Any failure resolves to
// Unauthenticated with the user cleared.
func (g *Guard) Validate(ctx context.Context) State {
	snap := g.sessions.Snapshot()
	if !snap.IsHydrated {
		g.setState(Hydrating)
		return Hydrating
	}

	g.setState(Validating)
	st := g.validate(ctx, snap.User)
	g.setState(st)
	return st
}

func (g *Guard) validate(ctx context.Context, u *domain.UserProfile) (st State) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("session validation panicked", "panic", fmt.Sprint(r))
			g.sessions.SetUser(nil)
			st = Unauthenticated
		}
	}()

	if u == nil {
		return Unauthenticated
	}

	now := g.now()
	claims, err := jwtx.Decode(u.Token)
	if err == nil && claims.LiveAt(now) {
		return Authenticated
	}
	if err != nil {
		g.logger.Debug("access token undecodable; treating as expired", "error", err)
	}

	if u.RefreshToken == "" {
		g.logger.Info("access token expired and no refresh token; signing out")
		g.sessions.SetUser(nil)
		return Unauthenticated
	}

	// Opaque refresh tokens are tried; a JWT one that is visibly expired is not.
	if rc, err := jwtx.Decode(u.RefreshToken); err == nil && !rc.LiveAt(now) {
		g.logger.Info("refresh token expired; signing out")
		g.sessions.SetUser(nil)
		return Unauthenticated
	}

	if g.sessions.RefreshToken(ctx) {
		return Authenticated
	}

	if g.sessions.Snapshot().User != nil {
		g.sessions.SetUser(nil)
	}
	return Unauthenticated
}

// Navigate applies the redirect rules for the current location. Nothing
// happens before hydration.
func (g *Guard) Navigate() {
	snap := g.sessions.Snapshot()
	if !snap.IsHydrated {
		return
	}

	loc := g.nav.Location()
	switch {
	case snap.User == nil && g.routes.protected(loc):
		g.logger.Debug("redirecting to sign-in", "from", loc)
		g.nav.Replace(g.routes.Login)
	case snap.User != nil && !g.routes.protected(loc) && !g.routes.whitelisted(loc):
		g.logger.Debug("redirecting to home", "from", loc)
		g.nav.Replace(g.routes.Home)
	}
}

// ShowPlaceholder reports whether a loading screen should stand in for
// content.
func (g *Guard) ShowPlaceholder() bool {
	snap := g.sessions.Snapshot()
	return !snap.IsHydrated || snap.IsLoading
}
