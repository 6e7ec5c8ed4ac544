package database

import "time"

// Order is a persisted customer order.
type Order struct {
	ID            string
	Subtotal      float64
	ShippingZone  string
	ShippingFee   float64
	Total         float64
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	Notes         string
	CreatedAt     time.Time
	Items         []OrderItem
}

// OrderItem is a single line item on an order. Type is "digital" or
// "service"; only digital items are eligible for download tokens.
type OrderItem struct {
	OrderID   string
	ProductID string
	Title     string
	Price     float64
	Qty       int
	Type      string
}

// DownloadToken grants limited, time-boxed access to one digital asset
// tied to an (order, product) pair. Keyed by Token; Remaining is only
// ever mutated by the store's conditional decrement (and the
// compensating increment on rollback).
type DownloadToken struct {
	Token     string
	OrderID   string
	ProductID string
	FilePath  string
	ExpiresAt time.Time
	Remaining int
	CreatedAt time.Time
}

// Redeemable reports whether the token would currently pass the
// conditional-decrement check. Informational only; redemption itself
// must go through TokenStore.RedeemValid.
func (t *DownloadToken) Redeemable(now time.Time) bool {
	return t.Remaining > 0 && now.Before(t.ExpiresAt)
}

// Stats holds aggregate counts for the stats endpoint.
type Stats struct {
	TotalOrders     int64
	TotalTokens     int64
	ActiveTokens    int64
	ExhaustedTokens int64
	ExpiredTokens   int64
}
