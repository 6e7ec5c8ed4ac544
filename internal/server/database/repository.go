package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository implements OrderStore and TokenStore over Postgres.
type Repository struct {
	db *DB
}

// NewRepository creates a new Repository.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// --- OrderStore ---

// CreateOrder inserts an order and its line items in one transaction.
// Assigns a fresh UUID when the order has no id yet.
func (r *Repository) CreateOrder(ctx context.Context, order *Order) error {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (
			id, subtotal, shipping_zone, shipping_fee, total,
			customer_name, customer_email, customer_phone, notes, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		order.ID,
		order.Subtotal,
		order.ShippingZone,
		order.ShippingFee,
		order.Total,
		order.CustomerName,
		order.CustomerEmail,
		order.CustomerPhone,
		order.Notes,
		order.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items (order_id, product_id, title, price, qty, type)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, item.OrderID, item.ProductID, item.Title, item.Price, item.Qty, item.Type)
		if err != nil {
			return fmt.Errorf("failed to create order item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit order: %w", err)
	}
	return nil
}

// GetOrder retrieves an order with its line items.
func (r *Repository) GetOrder(ctx context.Context, id string) (*Order, error) {
	order := &Order{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, subtotal, shipping_zone, shipping_fee, total,
			   customer_name, customer_email, customer_phone, notes, created_at
		FROM orders WHERE id = $1
	`, id).Scan(
		&order.ID,
		&order.Subtotal,
		&order.ShippingZone,
		&order.ShippingFee,
		&order.Total,
		&order.CustomerName,
		&order.CustomerEmail,
		&order.CustomerPhone,
		&order.Notes,
		&order.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	items, err := r.orderItems(ctx, id)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return order, nil
}

// ListOrders returns all orders with their items, newest first.
func (r *Repository) ListOrders(ctx context.Context) ([]*Order, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, subtotal, shipping_zone, shipping_fee, total,
			   customer_name, customer_email, customer_phone, notes, created_at
		FROM orders ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		order := &Order{}
		if err := rows.Scan(
			&order.ID,
			&order.Subtotal,
			&order.ShippingZone,
			&order.ShippingFee,
			&order.Total,
			&order.CustomerName,
			&order.CustomerEmail,
			&order.CustomerPhone,
			&order.Notes,
			&order.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, order := range orders {
		items, err := r.orderItems(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		order.Items = items
	}
	return orders, nil
}

func (r *Repository) orderItems(ctx context.Context, orderID string) ([]OrderItem, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT order_id, product_id, title, price, qty, type
		FROM order_items WHERE order_id = $1 ORDER BY id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var item OrderItem
		if err := rows.Scan(&item.OrderID, &item.ProductID, &item.Title, &item.Price, &item.Qty, &item.Type); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// --- TokenStore ---

// CreateToken inserts a new download token record.
func (r *Repository) CreateToken(ctx context.Context, token *DownloadToken) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO download_tokens (
			token, order_id, product_id, file_path, expires_at, remaining, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		token.Token,
		token.OrderID,
		token.ProductID,
		token.FilePath,
		token.ExpiresAt,
		token.Remaining,
		token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create download token: %w", err)
	}
	return nil
}

// GetToken retrieves a download token by its token string.
func (r *Repository) GetToken(ctx context.Context, token string) (*DownloadToken, error) {
	t := &DownloadToken{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT token, order_id, product_id, file_path, expires_at, remaining, created_at
		FROM download_tokens WHERE token = $1
	`, token).Scan(
		&t.Token,
		&t.OrderID,
		&t.ProductID,
		&t.FilePath,
		&t.ExpiresAt,
		&t.Remaining,
		&t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get download token: %w", err)
	}
	return t, nil
}

// RedeemValid performs the atomic conditional decrement. The WHERE
// clause carries the whole validity check so two concurrent calls on a
// token with one use left can never both match.
func (r *Repository) RedeemValid(ctx context.Context, token string, now time.Time) (*DownloadToken, error) {
	t := &DownloadToken{}
	err := r.db.Pool.QueryRow(ctx, `
		UPDATE download_tokens
		SET remaining = remaining - 1
		WHERE token = $1 AND remaining > 0 AND expires_at > $2
		RETURNING token, order_id, product_id, file_path, expires_at, remaining, created_at
	`, token, now).Scan(
		&t.Token,
		&t.OrderID,
		&t.ProductID,
		&t.FilePath,
		&t.ExpiresAt,
		&t.Remaining,
		&t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotRedeemable
		}
		return nil, fmt.Errorf("failed to redeem download token: %w", err)
	}
	return t, nil
}

// RestoreUse adds one use back after a rejected redemption.
func (r *Repository) RestoreUse(ctx context.Context, token string) error {
	tag, err := r.db.Pool.Exec(ctx,
		"UPDATE download_tokens SET remaining = remaining + 1 WHERE token = $1", token)
	if err != nil {
		return fmt.Errorf("failed to restore token use: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTokenNotFound
	}
	return nil
}

// ListTokensByOrder returns all tokens minted for an order, oldest first.
func (r *Repository) ListTokensByOrder(ctx context.Context, orderID string) ([]*DownloadToken, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT token, order_id, product_id, file_path, expires_at, remaining, created_at
		FROM download_tokens WHERE order_id = $1 ORDER BY created_at ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tokens by order: %w", err)
	}
	defer rows.Close()

	var tokens []*DownloadToken
	for rows.Next() {
		t := &DownloadToken{}
		if err := rows.Scan(
			&t.Token,
			&t.OrderID,
			&t.ProductID,
			&t.FilePath,
			&t.ExpiresAt,
			&t.Remaining,
			&t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan download token: %w", err)
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// PurgeStale removes tokens that are expired or out of uses.
func (r *Repository) PurgeStale(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx,
		"DELETE FROM download_tokens WHERE expires_at <= $1 OR remaining = 0", now)
	if err != nil {
		return 0, fmt.Errorf("failed to purge stale tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Stats returns aggregate order and token counts.
func (r *Repository) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM orders),
			COUNT(*),
			COUNT(*) FILTER (WHERE remaining > 0 AND expires_at > NOW()),
			COUNT(*) FILTER (WHERE remaining = 0),
			COUNT(*) FILTER (WHERE remaining > 0 AND expires_at <= NOW())
		FROM download_tokens
	`).Scan(
		&stats.TotalOrders,
		&stats.TotalTokens,
		&stats.ActiveTokens,
		&stats.ExhaustedTokens,
		&stats.ExpiredTokens,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return stats, nil
}
