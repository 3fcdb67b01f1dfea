package guard

import (
	"context"

	"github.com/aussiebroadwan/loyalty/internal/loyalty/domain"
)

// sessionKey is what re-triggers validation: the user's identity and tokens,
// and hydration.
type sessionKey struct {
	hydrated bool
	user     string
	token    string
	refresh  string
	present  bool
}

func keyOf(s domain.Session) sessionKey {
	k := sessionKey{hydrated: s.IsHydrated}
	if s.User != nil {
		k.present = true
		k.user = s.User.UserName
		k.token = s.User.Token
		k.refresh = s.User.RefreshToken
	}
	return k
}

// Run reacts to session changes, location changes and Resume until ctx is
// done. Validation re-runs when the user or hydration changes, or on Resume;
// navigation re-runs on every event.
func (g *Guard) Run(ctx context.Context) error {
	unsubscribe := g.sessions.Subscribe(func(domain.Session) {
		g.signal(func(p *pending) { p.session = true })
	})
	defer unsubscribe()

	g.mu.Lock()
	g.lastKey = sessionKey{}
	g.mu.Unlock()
	g.signal(func(p *pending) { p.session = true })

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-g.wake:
			g.step(ctx)
		}
	}
}

// LocationChanged tells a running guard the navigator moved.
func (g *Guard) LocationChanged() {
	g.signal(func(p *pending) { p.location = true })
}

// Resume forces a re-validation, for when the app returns to the
// foreground. An access token that expired while backgrounded is refreshed
// here rather than on the first failing request.
func (g *Guard) Resume() {
	g.signal(func(p *pending) { p.resume = true })
}

// signal records work and wakes Run without blocking, since session
// callbacks fire on Run's own goroutine during validation.
func (g *Guard) signal(mark func(*pending)) {
	g.mu.Lock()
	mark(&g.pending)
	g.mu.Unlock()

	select {
	case g.wake <- struct{}{}:
	default:
	}
}

func (g *Guard) step(ctx context.Context) {
	g.mu.Lock()
	p := g.pending
	g.pending = pending{}
	key := keyOf(g.sessions.Snapshot())
	changed := key != g.lastKey
	g.lastKey = key
	g.mu.Unlock()

	if p.resume || changed {
		g.Validate(ctx)
	}
	g.Navigate()
}
