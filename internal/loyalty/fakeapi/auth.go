package fakeapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/aussiebroadwan/loyalty/internal/loyalty/domain"
	"github.com/aussiebroadwan/loyalty/pkg/httpx"
	"github.com/aussiebroadwan/loyalty/pkg/slogx"
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Username == "" || req.Password == "" {
		httpx.WriteMessage(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	s.mu.Lock()
	acct, ok := s.accounts[req.Username]
	if !ok || acct.password != req.Password {
		s.mu.Unlock()
		httpx.WriteMessage(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	pair, err := s.issueLocked(req.Username, s.accessTTL)
	s.mu.Unlock()
	if err != nil {
		slogx.FromContext(r.Context()).Error("failed to issue tokens", "error", err)
		httpx.WriteMessage(w, http.StatusInternalServerError, "Failed to issue tokens")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, acct.profile.WithTokens(pair))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req domain.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		httpx.WriteMessage(w, http.StatusBadRequest, "Refresh token is required")
		return
	}

	s.mu.Lock()
	delay := s.refreshDelay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if f := s.refreshFail; f != nil {
		httpx.WriteMessage(w, f.status, f.message)
		return
	}

	username, ok := s.refreshTokens[req.RefreshToken]
	if !ok {
		httpx.WriteMessage(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	if _, err := s.signer.Verify(req.RefreshToken); err != nil {
		delete(s.refreshTokens, req.RefreshToken)
		httpx.WriteMessage(w, http.StatusUnauthorized, "Refresh token expired")
		return
	}

	// Rotation: the presented token is single use.
	delete(s.refreshTokens, req.RefreshToken)

	pair, err := s.issueLocked(username, s.accessTTL)
	if err != nil {
		slogx.FromContext(r.Context()).Error("failed to issue tokens", "error", err)
		httpx.WriteMessage(w, http.StatusInternalServerError, "Failed to issue tokens")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, pair)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
