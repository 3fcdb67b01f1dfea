// Package fakeapi is an in-process stand-in for the loyalty backend. It issues
// real HS256 JWTs, rotates refresh tokens, and can be told to misbehave.
package fakeapi

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/aussiebroadwan/loyalty/internal/loyalty/domain"
	"github.com/aussiebroadwan/loyalty/pkg/httpx"
	"github.com/aussiebroadwan/loyalty/pkg/jwtx"
	"github.com/aussiebroadwan/loyalty/pkg/slogx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Route names used for call counting.
const (
	RouteLogin         = "login"
	RouteRefresh       = "refresh"
	RouteLogout        = "logout"
	RouteNotifications = "notifications"
	RoutePoints        = "points"
	RouteRewards       = "rewards"
	RouteTransactions  = "transactions"
)

type account struct {
	password string
	profile  domain.UserProfile
}

type failure struct {
	status  int
	message string
}

type Server struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	signer     jwtx.HS256
	accessTTL  time.Duration
	refreshTTL time.Duration
	logger     *slog.Logger

	registry *prometheus.Registry
	hits     *prometheus.CounterVec

	mu            sync.Mutex
	accounts      map[string]account
	refreshTokens map[string]string // refresh token -> username
	calls         map[string]int
	rejectNext    int
	refreshFail   *failure
	refreshDelay  time.Duration

	notifications []domain.Notification
	balances      map[int]int
	transactions  []domain.Transaction
	rewards       map[int][]domain.Reward // outlet -> rewards
}

type Options struct {
	Secret     []byte
	AccessTTL  time.Duration // default jwtx.DefaultAccessTokenTTL
	RefreshTTL time.Duration // default jwtx.DefaultRefreshTokenTTL
	Now        func() time.Time
	Logger     *slog.Logger
}

func New(opts Options) *Server {
	if len(opts.Secret) == 0 {
		opts.Secret = []byte(jwtx.NewJTI())
	}
	if opts.AccessTTL == 0 {
		opts.AccessTTL = jwtx.DefaultAccessTokenTTL
	}
	if opts.RefreshTTL == 0 {
		opts.RefreshTTL = jwtx.DefaultRefreshTokenTTL
	}

	s := &Server{
		Mux:           http.NewServeMux(),
		signer:        jwtx.HS256{Secret: opts.Secret, Now: opts.Now},
		accessTTL:     opts.AccessTTL,
		refreshTTL:    opts.RefreshTTL,
		logger:        slogx.OrDiscard(opts.Logger),
		registry:      prometheus.NewRegistry(),
		accounts:      make(map[string]account),
		refreshTokens: make(map[string]string),
		calls:         make(map[string]int),
		balances:      make(map[int]int),
		rewards:       make(map[int][]domain.Reward),
	}

	s.hits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "loyalty_fakeapi",
		Name:      "requests_total",
		Help:      "Requests served by route.",
	}, []string{"route"})
	s.registry.MustRegister(s.hits)

	s.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(s.logger),
	}

	s.applyRoutes()
	return s
}

// ServeHTTP applies the global middleware chain.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	httpx.Chain(s.Mux, s.middlewares...).ServeHTTP(w, r)
}

// MetricsHandler exposes the per-route counters in Prometheus format.
func (s *Server) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// AddUser registers an account. Tokens in profile are ignored.
func (s *Server) AddUser(password string, profile domain.UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile.Token, profile.RefreshToken = "", ""
	s.accounts[profile.UserName] = account{password: password, profile: profile}
}

// Issue mints a pair for username with the given access lifetime and records
// the refresh token as valid. A negative ttl gives an expired access token.
func (s *Server) Issue(username string, accessTTL time.Duration) (domain.TokenPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(username, accessTTL)
}

func (s *Server) issueLocked(username string, accessTTL time.Duration) (domain.TokenPair, error) {
	access, err := s.signer.Sign(username, accessTTL)
	if err != nil {
		return domain.TokenPair{}, err
	}
	refresh, err := s.signer.Sign(username, s.refreshTTL)
	if err != nil {
		return domain.TokenPair{}, err
	}

	s.refreshTokens[refresh] = username
	return domain.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// RejectNext makes the next n protected requests answer 401 regardless of
// the token they carry.
func (s *Server) RejectNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectNext = n
}

// FailRefresh makes every refresh answer status with message. Status 0
// restores normal behaviour.
func (s *Server) FailRefresh(status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if status == 0 {
		s.refreshFail = nil
		return
	}
	s.refreshFail = &failure{status: status, message: message}
}

// DelayRefresh holds every refresh response for d before it is processed.
func (s *Server) DelayRefresh(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshDelay = d
}

// Calls returns how many times route was hit.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// Balance returns the points balance for a customer.
func (s *Server) Balance(customerCode int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[customerCode]
}

// SeedNotifications replaces the notification feed.
func (s *Server) SeedNotifications(ns ...domain.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append([]domain.Notification(nil), ns...)
}

// SeedRewards sets the rewards offered at an outlet.
func (s *Server) SeedRewards(outletID int, rs ...domain.Reward) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rewards[outletID] = append([]domain.Reward(nil), rs...)
}

func (s *Server) count(route string) {
	s.mu.Lock()
	s.calls[route]++
	s.mu.Unlock()
	s.hits.WithLabelValues(route).Inc()
}

// verify is the bearer check for protected routes.
func (s *Server) verify(token string) error {
	s.mu.Lock()
	if s.rejectNext > 0 {
		s.rejectNext--
		s.mu.Unlock()
		return jwtx.ErrExpired
	}
	s.mu.Unlock()

	_, err := s.signer.Verify(token)
	return err
}
