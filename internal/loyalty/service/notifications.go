package service

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/aussiebroadwan/loyalty/internal/loyalty/domain"
)

type NotificationService struct {
	API API
}

func (s *NotificationService) List(ctx context.Context, q domain.NotificationQuery) (domain.NotificationPage, error) {
	var out domain.NotificationPage
	if err := s.API.Do(ctx, http.MethodGet, "/notifications", notificationValues(q), nil, &out); err != nil {
		return domain.NotificationPage{}, userError(err)
	}
	return out, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, id int64) error {
	path := fmt.Sprintf("/notifications/%d/read", id)
	return userError(s.API.Do(ctx, http.MethodPut, path, nil, nil, nil))
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userCode int) error {
	body := map[string]int{"userCode": userCode}
	return userError(s.API.Do(ctx, http.MethodPut, "/notifications/read-all", nil, body, nil))
}

func (s *NotificationService) Delete(ctx context.Context, id int64) error {
	path := fmt.Sprintf("/notifications/%d", id)
	return userError(s.API.Do(ctx, http.MethodDelete, path, nil, nil, nil))
}

type TransactionService struct {
	API API
}

func (s *TransactionService) List(ctx context.Context, q domain.TransactionQuery) ([]domain.Transaction, error) {
	var out []domain.Transaction
	if err := s.API.Do(ctx, http.MethodGet, "/transactions", transactionValues(q), nil, &out); err != nil {
		return nil, userError(err)
	}
	return out, nil
}

func notificationValues(q domain.NotificationQuery) url.Values {
	v := url.Values{}
	setInt(v, "page", q.Page)
	setInt(v, "pageSize", q.PageSize)
	setInt(v, "userCode", q.UserCode)
	if q.IsLatest {
		v.Set("isLatest", "true")
	}
	return v
}

func transactionValues(q domain.TransactionQuery) url.Values {
	v := url.Values{}
	if q.Role != "" {
		v.Set("role", q.Role)
	}
	setInt(v, "userCode", q.UserCode)
	setInt(v, "vendorId", q.VendorID)
	setInt(v, "outletId", q.OutletID)
	if q.IsLatest {
		v.Set("isLatest", "true")
	}
	if !q.CreatedDate.IsZero() {
		v.Set("createdDate", q.CreatedDate.UTC().Format(time.RFC3339))
	}
	return v
}

func setInt(v url.Values, key string, n int) {
	if n != 0 {
		v.Set(key, strconv.Itoa(n))
	}
}
