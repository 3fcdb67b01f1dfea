package fakeapi_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aussiebroadwan/loyalty/internal/loyalty/domain"
	"github.com/aussiebroadwan/loyalty/internal/loyalty/fakeapi"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) (*fakeapi.Server, *httptest.Server) {
	t.Helper()

	api := fakeapi.New(fakeapi.Options{Secret: []byte("test-secret")})
	api.AddUser("secret", domain.UserProfile{UserName: "alice", UserCode: 7, FirstName: "Alice"})

	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return api, srv
}

func post(t *testing.T, url, token string, body any) *http.Response {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestLogin(t *testing.T) {
	t.Parallel()

	api, srv := newServer(t)

	t.Run("valid credentials", func(t *testing.T) {
		resp := post(t, srv.URL+"/auth/login", "", domain.LoginRequest{Username: "alice", Password: "secret"})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var u domain.UserProfile
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&u))
		require.Equal(t, 7, u.UserCode)
		require.True(t, u.Tokens().Complete())
	})

	t.Run("wrong password", func(t *testing.T) {
		resp := post(t, srv.URL+"/auth/login", "", domain.LoginRequest{Username: "alice", Password: "nope"})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		body, _ := io.ReadAll(resp.Body)
		require.Contains(t, string(body), "Invalid username or password")
	})

	require.Equal(t, 2, api.Calls(fakeapi.RouteLogin))
}

func TestRefreshRotates(t *testing.T) {
	t.Parallel()

	api, srv := newServer(t)
	pair, err := api.Issue("alice", -time.Minute)
	require.NoError(t, err)

	resp := post(t, srv.URL+"/auth/refresh-token", "", domain.RefreshRequest{RefreshToken: pair.RefreshToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var next domain.TokenPair
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&next))
	require.True(t, next.Complete())
	require.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	// The old refresh token is spent.
	resp = post(t, srv.URL+"/auth/refresh-token", "", domain.RefreshRequest{RefreshToken: pair.RefreshToken})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestProtectedRoutes(t *testing.T) {
	t.Parallel()

	api, srv := newServer(t)
	pair, err := api.Issue("alice", -time.Minute)
	require.NoError(t, err)

	t.Run("expired access token", func(t *testing.T) {
		resp := post(t, srv.URL+"/points/42", pair.AccessToken, domain.UpdatePoints{Point: 10})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	live, err := api.Issue("alice", time.Hour)
	require.NoError(t, err)

	t.Run("live token", func(t *testing.T) {
		resp := post(t, srv.URL+"/points/42", live.AccessToken, domain.UpdatePoints{Point: 10})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, 10, api.Balance(42))
	})

	t.Run("reject next", func(t *testing.T) {
		api.RejectNext(1)
		resp := post(t, srv.URL+"/points/42", live.AccessToken, domain.UpdatePoints{Point: 1})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		resp = post(t, srv.URL+"/points/42", live.AccessToken, domain.UpdatePoints{Point: 1})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("redeem more than balance", func(t *testing.T) {
		resp := post(t, srv.URL+"/points/redeem/42", live.AccessToken, domain.UpdatePoints{Point: 1000})
		require.Equal(t, http.StatusConflict, resp.StatusCode)
	})
}

func TestMetricsHandler(t *testing.T) {
	t.Parallel()

	api, srv := newServer(t)
	post(t, srv.URL+"/auth/login", "", domain.LoginRequest{Username: "alice", Password: "secret"})

	rec := httptest.NewRecorder()
	api.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Contains(t, rec.Body.String(), `loyalty_fakeapi_requests_total{route="login"} 1`)
}
