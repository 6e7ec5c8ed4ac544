package database

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors shared by all store implementations.
var (
	ErrOrderNotFound = errors.New("order not found")
	ErrTokenNotFound = errors.New("token not found")

	// ErrNotRedeemable means the conditional decrement matched no row.
	// It does not say why; callers classify via GetToken.
	ErrNotRedeemable = errors.New("token not redeemable")
)

// OrderStore persists orders and their line items.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *Order) error
	// GetOrder returns the order with its items, or ErrOrderNotFound.
	GetOrder(ctx context.Context, id string) (*Order, error)
	ListOrders(ctx context.Context) ([]*Order, error)
}

// TokenStore persists download tokens. The contract that matters:
// RedeemValid must be a single atomic conditional update against the
// backing store (never read-compare-write in application code), so
// that concurrent redemptions of a token with one use left produce
// exactly one success.
type TokenStore interface {
	CreateToken(ctx context.Context, token *DownloadToken) error
	// GetToken returns the token record, or ErrTokenNotFound. Used for
	// audit and for classifying a failed RedeemValid.
	GetToken(ctx context.Context, token string) (*DownloadToken, error)
	// RedeemValid decrements remaining by one iff remaining > 0 and
	// expires_at > now, returning the post-decrement record. Returns
	// ErrNotRedeemable when no row matched.
	RedeemValid(ctx context.Context, token string, now time.Time) (*DownloadToken, error)
	// RestoreUse adds one use back. Only the invalid-path rollback in
	// the service layer may call this.
	RestoreUse(ctx context.Context, token string) error
	ListTokensByOrder(ctx context.Context, orderID string) ([]*DownloadToken, error)
	// PurgeStale deletes tokens that are expired or exhausted and
	// returns how many were removed.
	PurgeStale(ctx context.Context, now time.Time) (int64, error)
	Stats(ctx context.Context) (*Stats, error)
}
