package fakeapi

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/loyalty/pkg/httpx"
)

func (s *Server) applyRoutes() {
	authed := func(route string, h http.HandlerFunc) http.Handler {
		return httpx.Chain(h, s.counted(route), httpx.AuthnMiddleware(s.verify))
	}

	s.Mux.Handle("POST /auth/login", httpx.Chain(http.HandlerFunc(s.handleLogin), s.counted(RouteLogin)))
	s.Mux.Handle("POST /auth/refresh-token", httpx.Chain(http.HandlerFunc(s.handleRefresh), s.counted(RouteRefresh)))
	s.Mux.Handle("POST /auth/logout", authed(RouteLogout, s.handleLogout))

	s.Mux.Handle("GET /notifications", authed(RouteNotifications, s.handleListNotifications))
	s.Mux.Handle("PUT /notifications/read-all", authed(RouteNotifications, s.handleReadAll))
	s.Mux.Handle("PUT /notifications/{id}/read", authed(RouteNotifications, s.handleMarkRead))
	s.Mux.Handle("DELETE /notifications/{id}", authed(RouteNotifications, s.handleDeleteNotification))

	s.Mux.Handle("POST /points/redeem/{customerCode}", authed(RoutePoints, s.handleRedeemPoints))
	s.Mux.Handle("POST /points/{customerCode}", authed(RoutePoints, s.handleAddPoints))

	s.Mux.Handle("GET /rewards/get-rewards/{outletId}/{customerCode}", authed(RouteRewards, s.handleRewards))
	s.Mux.Handle("GET /transactions", authed(RouteTransactions, s.handleTransactions))

	start := time.Now()
	s.Mux.HandleFunc("GET /livez", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
			"uptime": time.Since(start).String(),
		})
	})
}

// counted records a hit before auth runs, so rejected calls count too.
func (s *Server) counted(route string) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s.count(route)
			next.ServeHTTP(w, r)
		})
	}
}
