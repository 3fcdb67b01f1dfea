package fakeapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/aussiebroadwan/loyalty/internal/loyalty/domain"
	"github.com/aussiebroadwan/loyalty/pkg/httpx"
)

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := atoiOr(q.Get("page"), 1)
	size := atoiOr(q.Get("pageSize"), 20)
	latest := q.Get("isLatest") == "true"

	s.mu.Lock()
	all := append([]domain.Notification(nil), s.notifications...)
	s.mu.Unlock()

	if latest {
		for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
			all[i], all[j] = all[j], all[i]
		}
	}

	from := min(max(page-1, 0)*size, len(all))
	to := min(from+size, len(all))

	httpx.WriteJSON(w, http.StatusOK, domain.NotificationPage{
		Notifications: all[from:to],
		TotalCount:    len(all),
	})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		httpx.WriteMessage(w, http.StatusBadRequest, "Invalid notification id")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.notifications {
		if s.notifications[i].ID == id {
			s.notifications[i].IsRead = true
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	httpx.WriteMessage(w, http.StatusNotFound, "Notification not found")
}

func (s *Server) handleReadAll(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserCode int `json:"userCode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.UserCode == 0 {
		httpx.WriteMessage(w, http.StatusBadRequest, "userCode is required")
		return
	}

	s.mu.Lock()
	for i := range s.notifications {
		s.notifications[i].IsRead = true
	}
	s.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteNotification(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		httpx.WriteMessage(w, http.StatusBadRequest, "Invalid notification id")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.notifications {
		if s.notifications[i].ID == id {
			s.notifications = append(s.notifications[:i], s.notifications[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	httpx.WriteMessage(w, http.StatusNotFound, "Notification not found")
}

func (s *Server) handleAddPoints(w http.ResponseWriter, r *http.Request) {
	s.applyPoints(w, r, "earn")
}

func (s *Server) handleRedeemPoints(w http.ResponseWriter, r *http.Request) {
	s.applyPoints(w, r, "redeem")
}

func (s *Server) applyPoints(w http.ResponseWriter, r *http.Request, kind string) {
	code, err := strconv.Atoi(r.PathValue("customerCode"))
	if err != nil {
		httpx.WriteMessage(w, http.StatusBadRequest, "Invalid customer code")
		return
	}

	var req domain.UpdatePoints
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Point <= 0 {
		httpx.WriteMessage(w, http.StatusBadRequest, "A positive point value is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delta := req.Point
	if kind == "redeem" {
		if s.balances[code] < req.Point {
			httpx.WriteMessage(w, http.StatusConflict, "Insufficient points")
			return
		}
		delta = -req.Point
	}
	s.balances[code] += delta

	now := time.Now().UTC().Format(time.RFC3339)
	tx := domain.Transaction{
		ID:              int64(len(s.transactions) + 1),
		CustomerCode:    code,
		OutletID:        req.OutletID,
		OrderID:         req.OrderID,
		Points:          delta,
		TransactionType: kind,
		CreatedOn:       now,
	}
	s.transactions = append(s.transactions, tx)
	s.notifications = append(s.notifications, domain.Notification{
		ID:              tx.ID,
		Customer:        strconv.Itoa(code),
		OrderNumber:     strconv.Itoa(req.OrderID),
		Points:          delta,
		TransactionType: kind,
		CreatedOn:       now,
	})

	httpx.WriteJSON(w, http.StatusOK, domain.PointsBalance{
		CustomerCode: code,
		Points:       s.balances[code],
	})
}

func (s *Server) handleRewards(w http.ResponseWriter, r *http.Request) {
	outlet, err := strconv.Atoi(r.PathValue("outletId"))
	if err != nil {
		httpx.WriteMessage(w, http.StatusBadRequest, "Invalid outlet id")
		return
	}
	if _, err := strconv.Atoi(r.PathValue("customerCode")); err != nil {
		httpx.WriteMessage(w, http.StatusBadRequest, "Invalid customer code")
		return
	}

	s.mu.Lock()
	rewards := append([]domain.Reward{}, s.rewards[outlet]...)
	s.mu.Unlock()

	httpx.WriteJSON(w, http.StatusOK, rewards)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	outlet := atoiOr(q.Get("outletId"), 0)

	s.mu.Lock()
	out := make([]domain.Transaction, 0, len(s.transactions))
	for _, tx := range s.transactions {
		if outlet != 0 && tx.OutletID != outlet {
			continue
		}
		out = append(out, tx)
	}
	s.mu.Unlock()

	httpx.WriteJSON(w, http.StatusOK, out)
}

func atoiOr(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
