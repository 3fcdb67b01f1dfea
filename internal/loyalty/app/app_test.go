package app_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/aussiebroadwan/loyalty/internal/loyalty/app"
	"github.com/aussiebroadwan/loyalty/internal/loyalty/domain"
	"github.com/aussiebroadwan/loyalty/internal/loyalty/fakeapi"
	"github.com/aussiebroadwan/loyalty/internal/loyalty/guard"
	"github.com/aussiebroadwan/loyalty/internal/loyalty/session"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func newBackend(t *testing.T, opts fakeapi.Options) (*fakeapi.Server, string) {
	t.Helper()

	api := fakeapi.New(opts)
	api.AddUser("hunter2", domain.UserProfile{UserName: "alice", FirstName: "Alice", UserCode: 7})

	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return api, srv.URL
}

func testConfig(t *testing.T, apiURL, secret string) app.Config {
	t.Helper()

	return app.Config{
		APIURL:           apiURL,
		DataFile:         filepath.Join(t.TempDir(), "loyalty.db"),
		Secret:           secret,
		Env:              "test",
		LogLevel:         "error",
		LogOutput:        io.Discard,
		HTTPTimeout:      5 * time.Second,
		WriteTimeout:     time.Second,
		RefreshPerMinute: 60,
		RefreshBurst:     10,
	}
}

func open(t *testing.T, cfg app.Config) *app.Application {
	t.Helper()

	a, err := app.New(context.Background(), cfg)
	require.NoError(t, err)
	return a
}

func signIn(t *testing.T, a *app.Application) {
	t.Helper()

	ctx := context.Background()
	require.Equal(t, guard.Unauthenticated, a.Guard.Validate(ctx))
	require.NoError(t, a.Session.Login(ctx, "alice", "hunter2"))
	require.Equal(t, guard.Authenticated, a.Guard.Validate(ctx))
	require.NoError(t, a.Shutdown(ctx))
}

func TestSessionSurvivesRestart(t *testing.T) {
	t.Parallel()

	for _, secret := range []string{"s3cret", ""} {
		t.Run("secret="+secret, func(t *testing.T) {
			t.Parallel()

			api, url := newBackend(t, fakeapi.Options{})
			cfg := testConfig(t, url, secret)

			first := open(t, cfg)
			deviceID := first.DeviceID
			require.NotEmpty(t, deviceID)
			signIn(t, first)

			second := open(t, cfg)
			t.Cleanup(func() { _ = second.Shutdown(context.Background()) })

			snap := second.Session.Snapshot()
			require.True(t, snap.IsHydrated)
			require.False(t, snap.IsLoading)
			require.NotNil(t, snap.User)
			require.Equal(t, "alice", snap.User.UserName)
			require.Equal(t, snap.User.Tokens(), second.Tokens.Pair())
			require.Equal(t, deviceID, second.DeviceID)

			require.Equal(t, guard.Authenticated, second.Guard.Validate(context.Background()))
			require.Zero(t, api.Calls(fakeapi.RouteRefresh))
		})
	}
}

func TestWrongSecretStartsSignedOut(t *testing.T) {
	t.Parallel()

	_, url := newBackend(t, fakeapi.Options{})
	cfg := testConfig(t, url, "right")
	signIn(t, open(t, cfg))

	cfg.Secret = "wrong"
	a := open(t, cfg)
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	require.Nil(t, a.Session.Snapshot().User)
	require.True(t, a.Tokens.Pair().IsZero())
	require.Equal(t, guard.Unauthenticated, a.Guard.Validate(context.Background()))
}

func TestExpiredAccessTokenRefreshedOnStartup(t *testing.T) {
	t.Parallel()

	api, url := newBackend(t, fakeapi.Options{AccessTTL: time.Second})
	cfg := testConfig(t, url, "s3cret")

	first := open(t, cfg)
	require.NoError(t, first.Session.Login(context.Background(), "alice", "hunter2"))
	before := first.Tokens.Pair()
	require.NoError(t, first.Shutdown(context.Background()))

	// JWT expiry has one-second resolution.
	time.Sleep(2100 * time.Millisecond)

	second := open(t, cfg)
	t.Cleanup(func() { _ = second.Shutdown(context.Background()) })

	require.Equal(t, guard.Authenticated, second.Guard.Validate(context.Background()))
	require.Equal(t, 1, api.Calls(fakeapi.RouteRefresh))
	require.NotEqual(t, before, second.Tokens.Pair())
	require.Equal(t, second.Tokens.Pair(), second.Session.Snapshot().User.Tokens())
}

func TestClientRotationReachesSession(t *testing.T) {
	t.Parallel()

	api, url := newBackend(t, fakeapi.Options{})
	a := open(t, testConfig(t, url, "s3cret"))
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	ctx := context.Background()
	require.NoError(t, a.Session.Login(ctx, "alice", "hunter2"))
	before := a.Tokens.Pair()

	api.RejectNext(1)
	bal, err := a.Points.Add(ctx, 7, domain.UpdatePoints{CustomerCode: 7, Point: 25})
	require.NoError(t, err)
	require.Equal(t, 25, bal.Points)

	pair := a.Tokens.Pair()
	require.NotEqual(t, before, pair)
	require.Equal(t, pair, a.Session.Snapshot().User.Tokens())
	require.Equal(t, 1, api.Calls(fakeapi.RouteRefresh))

	n, err := testutil.GatherAndCount(a.Registry, "loyalty_api_refresh_total")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestClientRefreshFailureEndsSession(t *testing.T) {
	t.Parallel()

	api, url := newBackend(t, fakeapi.Options{})
	a := open(t, testConfig(t, url, "s3cret"))
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	ctx := context.Background()
	require.NoError(t, a.Session.Login(ctx, "alice", "hunter2"))
	a.Nav.Push("/(tabs)")

	api.RejectNext(1)
	api.FailRefresh(http.StatusUnauthorized, "refresh revoked")

	_, err := a.Points.Add(ctx, 7, domain.UpdatePoints{CustomerCode: 7, Point: 25})
	require.Error(t, err)

	snap := a.Session.Snapshot()
	require.Nil(t, snap.User)
	require.Equal(t, session.MsgRefreshFailed, snap.Error)
	require.True(t, a.Tokens.Pair().IsZero())

	require.Equal(t, guard.Unauthenticated, a.Guard.Validate(ctx))
	a.Guard.Navigate()
	require.Equal(t, "/", a.Nav.Location())
}

func TestForegroundRefreshJoinsRetryRefresh(t *testing.T) {
	t.Parallel()

	api, url := newBackend(t, fakeapi.Options{})
	a := open(t, testConfig(t, url, "s3cret"))
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	ctx := context.Background()
	require.NoError(t, a.Session.Login(ctx, "alice", "hunter2"))

	api.RejectNext(1)
	api.DelayRefresh(150 * time.Millisecond)

	errc := make(chan error, 1)
	go func() {
		_, err := a.Points.Add(ctx, 7, domain.UpdatePoints{CustomerCode: 7, Point: 5})
		errc <- err
	}()

	// The retry's refresh is on the wire; the session refresh overlaps it.
	require.Eventually(t, func() bool {
		return api.Calls(fakeapi.RouteRefresh) == 1
	}, time.Second, time.Millisecond)

	require.True(t, a.Session.RefreshToken(ctx))
	require.NoError(t, <-errc)
	require.Equal(t, 1, api.Calls(fakeapi.RouteRefresh))

	snap := a.Session.Snapshot()
	require.NotNil(t, snap.User)
	require.Empty(t, snap.Error)
	require.True(t, a.Tokens.Pair().Complete())
	require.Equal(t, a.Tokens.Pair(), snap.User.Tokens())
}

func TestLogoutWithExpiredTokenSkipsRefresh(t *testing.T) {
	t.Parallel()

	api, url := newBackend(t, fakeapi.Options{})
	a := open(t, testConfig(t, url, "s3cret"))
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	pair, err := api.Issue("alice", -time.Minute)
	require.NoError(t, err)
	u := domain.UserProfile{UserName: "alice", UserCode: 7}.WithTokens(pair)
	a.Session.SetUser(&u)

	a.Session.Logout(context.Background())

	require.Equal(t, 1, api.Calls(fakeapi.RouteLogout))
	require.Zero(t, api.Calls(fakeapi.RouteRefresh))
	require.Nil(t, a.Session.Snapshot().User)
	require.True(t, a.Tokens.Pair().IsZero())
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("LOYALTY_API_URL", "http://api.test")
	t.Setenv("LOYALTY_REFRESH_PER_MINUTE", "12")

	cfg, err := app.LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "http://api.test", cfg.APIURL)
	require.Equal(t, "loyalty.db", cfg.DataFile)
	require.Equal(t, 12, cfg.RefreshPerMinute)
	require.Equal(t, 3, cfg.RefreshBurst)
	require.Equal(t, 10*time.Second, cfg.HTTPTimeout)
}
