package guard_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aussiebroadwan/loyalty/internal/loyalty/apiclient"
	"github.com/aussiebroadwan/loyalty/internal/loyalty/domain"
	"github.com/aussiebroadwan/loyalty/internal/loyalty/fakeapi"
	"github.com/aussiebroadwan/loyalty/internal/loyalty/guard"
	"github.com/aussiebroadwan/loyalty/internal/loyalty/service"
	"github.com/aussiebroadwan/loyalty/internal/loyalty/session"
	"github.com/aussiebroadwan/loyalty/internal/loyalty/store"
	"github.com/aussiebroadwan/loyalty/internal/loyalty/store/drivers/memory"
	"github.com/aussiebroadwan/loyalty/internal/loyalty/tokens"
	"github.com/aussiebroadwan/loyalty/pkg/jwtx"
	"github.com/aussiebroadwan/loyalty/pkg/slogx"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

type fixture struct {
	api      *fakeapi.Server
	writer   *store.Writer
	tokens   *tokens.Store
	sessions *session.Store
	history  *guard.History
	guard    *guard.Guard
}

func setup(t *testing.T, start string) fixture {
	t.Helper()

	api := fakeapi.New(fakeapi.Options{Secret: secret})
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	kv := memory.NewStore()
	w := store.NewWriter(kv, slogx.Discard(), time.Second)
	w.Start()
	t.Cleanup(w.Stop)

	ts := tokens.New(kv, w, slogx.Discard())
	client := apiclient.New(apiclient.Options{BaseURL: srv.URL, Tokens: ts})
	sessions := session.New(&service.AuthService{API: client}, ts, kv, w, slogx.Discard())

	history := guard.NewHistory(start)
	return fixture{
		api:      api,
		writer:   w,
		tokens:   ts,
		sessions: sessions,
		history:  history,
		guard:    guard.New(sessions, history, guard.Options{Routes: guard.Routes{
			Login:     "/",
			Home:      "/(tabs)",
			Protected: "/(tabs)",
			Public:    []string{"/privacy"},
		}}),
	}
}

func (f fixture) hydrate(t *testing.T) {
	t.Helper()

	// Load reads what the writer has persisted so far.
	require.NoError(t, f.writer.Flush(context.Background()))

	_, err := f.sessions.Load(context.Background())
	require.NoError(t, err)
	f.sessions.MarkHydrated()
}

func (f fixture) signIn(t *testing.T, accessTTL time.Duration) domain.TokenPair {
	t.Helper()

	pair, err := f.api.Issue("alice", accessTTL)
	require.NoError(t, err)

	u := domain.UserProfile{UserName: "alice", UserCode: 7}.WithTokens(pair)
	f.sessions.SetUser(&u)
	return pair
}

func TestHydratingBlocksDecisions(t *testing.T) {
	t.Parallel()

	f := setup(t, "/(tabs)")
	f.signIn(t, -time.Minute)

	require.True(t, f.guard.ShowPlaceholder())
	require.Equal(t, guard.Hydrating, f.guard.Validate(context.Background()))

	f.guard.Navigate()
	require.Equal(t, "/(tabs)", f.history.Location())
	require.Zero(t, f.api.Calls(fakeapi.RouteRefresh))
}

func TestNoUserRedirectsToLogin(t *testing.T) {
	t.Parallel()

	f := setup(t, "/(tabs)/notifications")
	f.hydrate(t)

	require.False(t, f.guard.ShowPlaceholder())
	require.Equal(t, guard.Unauthenticated, f.guard.Validate(context.Background()))

	f.guard.Navigate()
	require.Equal(t, "/", f.history.Location())
}

func TestLiveAccessTokenAuthenticates(t *testing.T) {
	t.Parallel()

	f := setup(t, "/")
	f.hydrate(t)
	f.signIn(t, time.Hour)

	require.Equal(t, guard.Authenticated, f.guard.Validate(context.Background()))
	require.Zero(t, f.api.Calls(fakeapi.RouteRefresh))

	f.guard.Navigate()
	require.Equal(t, "/(tabs)", f.history.Location())
}

func TestWhitelistedPublicRouteIsLeftAlone(t *testing.T) {
	t.Parallel()

	f := setup(t, "/privacy")
	f.hydrate(t)
	f.signIn(t, time.Hour)

	f.guard.Navigate()
	require.Equal(t, "/privacy", f.history.Location())
}

func TestExpiredAccessTokenRefreshes(t *testing.T) {
	t.Parallel()

	f := setup(t, "/(tabs)")
	f.hydrate(t)
	old := f.signIn(t, -time.Minute)

	require.Equal(t, guard.Authenticated, f.guard.Validate(context.Background()))
	require.Equal(t, 1, f.api.Calls(fakeapi.RouteRefresh))

	snap := f.sessions.Snapshot()
	require.NotEqual(t, old.AccessToken, snap.User.Token)
	require.Equal(t, snap.User.Tokens(), f.tokens.Pair())
	require.False(t, snap.IsLoading)
	require.True(t, jwtx.IsLive(snap.User.Token, time.Now()))
}

func TestRefreshFailureSignsOut(t *testing.T) {
	t.Parallel()

	f := setup(t, "/(tabs)")
	f.hydrate(t)
	f.signIn(t, -time.Minute)
	f.api.FailRefresh(http.StatusUnauthorized, "Invalid refresh token")

	require.Equal(t, guard.Unauthenticated, f.guard.Validate(context.Background()))

	snap := f.sessions.Snapshot()
	require.Nil(t, snap.User)
	require.Equal(t, session.MsgRefreshFailed, snap.Error)
	require.True(t, f.tokens.Pair().IsZero())

	f.guard.Navigate()
	require.Equal(t, "/", f.history.Location())
}

func TestExpiredRefreshTokenSkipsNetwork(t *testing.T) {
	t.Parallel()

	f := setup(t, "/(tabs)")
	f.hydrate(t)

	signer := jwtx.HS256{Secret: secret}
	access, err := signer.Sign("alice", -time.Hour)
	require.NoError(t, err)
	refresh, err := signer.Sign("alice", -time.Minute)
	require.NoError(t, err)

	f.sessions.SetUser(&domain.UserProfile{UserName: "alice", Token: access, RefreshToken: refresh})

	require.Equal(t, guard.Unauthenticated, f.guard.Validate(context.Background()))
	require.Zero(t, f.api.Calls(fakeapi.RouteRefresh))
	require.Nil(t, f.sessions.Snapshot().User)
}

func TestMalformedAccessTokenCountsAsExpired(t *testing.T) {
	t.Parallel()

	f := setup(t, "/(tabs)")
	f.hydrate(t)

	pair, err := f.api.Issue("alice", time.Hour)
	require.NoError(t, err)
	f.sessions.SetUser(&domain.UserProfile{UserName: "alice", Token: "not-a-jwt", RefreshToken: pair.RefreshToken})

	require.Equal(t, guard.Authenticated, f.guard.Validate(context.Background()))
	require.Equal(t, 1, f.api.Calls(fakeapi.RouteRefresh))
}

type panickySessions struct {
	cleared bool
}

func (p *panickySessions) Snapshot() domain.Session {
	return domain.Session{IsHydrated: true, User: &domain.UserProfile{Token: "x", RefreshToken: "y"}}
}
func (p *panickySessions) RefreshToken(context.Context) bool { panic("boom") }
func (p *panickySessions) SetUser(u *domain.UserProfile) { p.cleared = u == nil }
func (p *panickySessions) Subscribe(func(domain.Session)) func() { return func() {} }

func TestPanicResolvesToUnauthenticated(t *testing.T) {
	t.Parallel()

	s := &panickySessions{}
	g := guard.New(s, guard.NewHistory("/"), guard.Options{})

	require.Equal(t, guard.Unauthenticated, g.Validate(context.Background()))
	require.True(t, s.cleared)
}

func TestRun(t *testing.T) {
	t.Parallel()

	f := setup(t, "/(tabs)")
	f.signIn(t, -time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.guard.Run(ctx) }()

	// Nothing happens until hydration.
	require.Never(t, func() bool { return f.guard.State() != guard.Hydrating }, 50*time.Millisecond, 5*time.Millisecond)

	f.hydrate(t)
	require.Eventually(t, func() bool { return f.guard.State() == guard.Authenticated }, time.Second, 5*time.Millisecond)
	require.Equal(t, 1, f.api.Calls(fakeapi.RouteRefresh))
	require.Equal(t, "/(tabs)", f.history.Location())

	t.Run("location change to login bounces home", func(t *testing.T) {
		f.history.Push("/")
		f.guard.LocationChanged()
		require.Eventually(t, func() bool { return f.history.Location() == "/(tabs)" }, time.Second, 5*time.Millisecond)
	})

	t.Run("resume revalidates and signs out on failure", func(t *testing.T) {
		f.api.FailRefresh(http.StatusUnauthorized, "Invalid refresh token")
		f.signIn(t, -time.Minute)
		f.guard.Resume()

		require.Eventually(t, func() bool {
			return f.guard.State() == guard.Unauthenticated && f.history.Location() == "/"
		}, time.Second, 5*time.Millisecond)
	})

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestHistory(t *testing.T) {
	t.Parallel()

	h := guard.NewHistory("/")
	require.False(t, h.Back())

	h.Push("/(tabs)")
	h.Push("/(tabs)/profile")
	h.Replace("/(tabs)/notifications")
	require.Equal(t, "/(tabs)/notifications", h.Location())

	require.True(t, h.Back())
	require.Equal(t, "/(tabs)", h.Location())
}

func TestStateString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "hydrating", guard.Hydrating.String())
	require.Equal(t, "validating", guard.Validating.String())
	require.Equal(t, "authenticated", guard.Authenticated.String())
	require.Equal(t, "unauthenticated", guard.Unauthenticated.String())
}
