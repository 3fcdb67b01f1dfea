package service

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/loyalty/internal/loyalty/domain"
)

type PointsService struct {
	API API
}

// Add credits points to a customer.
func (s *PointsService) Add(ctx context.Context, customerCode int, req domain.UpdatePoints) (domain.PointsBalance, error) {
	return s.update(ctx, fmt.Sprintf("/points/%d", customerCode), customerCode, req)
}

// Redeem debits points from a customer.
func (s *PointsService) Redeem(ctx context.Context, customerCode int, req domain.UpdatePoints) (domain.PointsBalance, error) {
	return s.update(ctx, fmt.Sprintf("/points/redeem/%d", customerCode), customerCode, req)
}

func (s *PointsService) update(ctx context.Context, path string, customerCode int, req domain.UpdatePoints) (domain.PointsBalance, error) {
	req.CustomerCode = customerCode

	var out domain.PointsBalance
	if err := s.API.Do(ctx, http.MethodPost, path, nil, req, &out); err != nil {
		return domain.PointsBalance{}, userError(err)
	}
	return out, nil
}

type RewardsService struct {
	API API
}

// ForCustomer lists the rewards a customer can claim at an outlet.
func (s *RewardsService) ForCustomer(ctx context.Context, outletID, customerCode int) ([]domain.Reward, error) {
	var out []domain.Reward
	path := fmt.Sprintf("/rewards/get-rewards/%d/%d", outletID, customerCode)
	if err := s.API.Do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, userError(err)
	}
	return out, nil
}
