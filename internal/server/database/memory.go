package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a mutex-guarded in-memory implementation of OrderStore
// and TokenStore. It backs tests and single-node development; the mutex
// gives RedeemValid the same check-and-decrement atomicity the SQL
// conditional update provides in production.
type MemoryStore struct {
	mu     sync.Mutex
	orders map[string]*Order
	tokens map[string]*DownloadToken
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders: make(map[string]*Order),
		tokens: make(map[string]*DownloadToken),
	}
}

// --- OrderStore ---

func (m *MemoryStore) CreateOrder(_ context.Context, order *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	for i := range order.Items {
		order.Items[i].OrderID = order.ID
	}

	stored := cloneOrder(order)
	m.orders[order.ID] = stored
	return nil
}

func (m *MemoryStore) GetOrder(_ context.Context, id string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

func (m *MemoryStore) ListOrders(_ context.Context) ([]*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	orders := make([]*Order, 0, len(m.orders))
	for _, order := range m.orders {
		orders = append(orders, cloneOrder(order))
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, nil
}

// --- TokenStore ---

func (m *MemoryStore) CreateToken(_ context.Context, token *DownloadToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := *token
	m.tokens[token.Token] = &t
	return nil
}

func (m *MemoryStore) GetToken(_ context.Context, token string) (*DownloadToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tokens[token]
	if !ok {
		return nil, ErrTokenNotFound
	}
	copied := *t
	return &copied, nil
}

func (m *MemoryStore) RedeemValid(_ context.Context, token string, now time.Time) (*DownloadToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tokens[token]
	if !ok || t.Remaining <= 0 || !t.ExpiresAt.After(now) {
		return nil, ErrNotRedeemable
	}
	t.Remaining--
	copied := *t
	return &copied, nil
}

func (m *MemoryStore) RestoreUse(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tokens[token]
	if !ok {
		return ErrTokenNotFound
	}
	t.Remaining++
	return nil
}

func (m *MemoryStore) ListTokensByOrder(_ context.Context, orderID string) ([]*DownloadToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var tokens []*DownloadToken
	for _, t := range m.tokens {
		if t.OrderID == orderID {
			copied := *t
			tokens = append(tokens, &copied)
		}
	}
	sort.Slice(tokens, func(i, j int) bool {
		return tokens[i].CreatedAt.Before(tokens[j].CreatedAt)
	})
	return tokens, nil
}

func (m *MemoryStore) PurgeStale(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var purged int64
	for key, t := range m.tokens {
		if t.Remaining == 0 || !t.ExpiresAt.After(now) {
			delete(m.tokens, key)
			purged++
		}
	}
	return purged, nil
}

func (m *MemoryStore) Stats(_ context.Context) (*Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	stats := &Stats{
		TotalOrders: int64(len(m.orders)),
		TotalTokens: int64(len(m.tokens)),
	}
	for _, t := range m.tokens {
		switch {
		case t.Remaining == 0:
			stats.ExhaustedTokens++
		case t.ExpiresAt.After(now):
			stats.ActiveTokens++
		default:
			stats.ExpiredTokens++
		}
	}
	return stats, nil
}

func cloneOrder(order *Order) *Order {
	copied := *order
	copied.Items = append([]OrderItem(nil), order.Items...)
	return &copied
}
