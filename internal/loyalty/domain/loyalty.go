package domain

import "time"

// Notification is one points event shown in the staff notification feed.
type Notification struct {
	ID              int64  `json:"id"`
	Customer        string `json:"customer"`
	OrderNumber     string `json:"orderNumber"`
	Points          int    `json:"points"`
	TransactionType string `json:"transactionType"`
	OutletAddress   string `json:"outletAddress"`
	CreatedOn       string `json:"createdOn"`
	IsRead          bool   `json:"isRead,omitempty"`
}

type NotificationPage struct {
	Notifications []Notification `json:"notifications"`
	TotalCount    int            `json:"totalCount"`
}

// NotificationQuery filters GET /notifications. Zero values are omitted.
type NotificationQuery struct {
	Page     int
	PageSize int
	IsLatest bool
	UserCode int
}

type Reward struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ExpiryDate  string `json:"expiryDate,omitempty"`
}

// UpdatePoints is the body for adding or redeeming points.
type UpdatePoints struct {
	CustomerCode int `json:"customerCode"`
	RewardID     int `json:"rewardId"`
	VendorID     int `json:"vendorId"`
	OutletID     int `json:"outletId"`
	OrderID      int `json:"orderId"`
	Point        int `json:"point"`
}

type Transaction struct {
	ID              int64  `json:"id"`
	CustomerCode    int    `json:"customerCode"`
	OutletID        int    `json:"outletId"`
	OrderID         int    `json:"orderId"`
	Points          int    `json:"points"`
	TransactionType string `json:"transactionType"`
	CreatedOn       string `json:"createdOn"`
}

// TransactionQuery filters GET /transactions. Zero values are omitted.
type TransactionQuery struct {
	Role        string
	UserCode    int
	VendorID    int
	OutletID    int
	IsLatest    bool
	CreatedDate time.Time
}

// PointsBalance is what the points endpoints answer with.
type PointsBalance struct {
	CustomerCode int `json:"customerCode"`
	Points       int `json:"points"`
}
