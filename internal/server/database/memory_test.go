package database

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func seedToken(t *testing.T, store *MemoryStore, token string, remaining int, expiresAt time.Time) {
	t.Helper()
	err := store.CreateToken(context.Background(), &DownloadToken{
		Token:     token,
		OrderID:   "o1",
		ProductID: "p1",
		FilePath:  "/assets/a.zip",
		ExpiresAt: expiresAt,
		Remaining: remaining,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("failed to seed token: %v", err)
	}
}

func TestMemoryStoreOrders(t *testing.T) {
	ctx := context.Background()

	t.Run("create assigns id and stamps items", func(t *testing.T) {
		store := NewMemoryStore()
		order := &Order{
			Total: 19,
			Items: []OrderItem{{ProductID: "p1", Title: "Template", Price: 19, Qty: 1, Type: "digital"}},
		}
		if err := store.CreateOrder(ctx, order); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if order.ID == "" {
			t.Fatal("expected an assigned order id")
		}

		got, err := store.GetOrder(ctx, order.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got.Items) != 1 || got.Items[0].OrderID != order.ID {
			t.Errorf("items not stamped with order id: %+v", got.Items)
		}
	})

	t.Run("get returns a copy, not shared state", func(t *testing.T) {
		store := NewMemoryStore()
		order := &Order{Items: []OrderItem{{ProductID: "p1", Qty: 1}}}
		if err := store.CreateOrder(ctx, order); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got, _ := store.GetOrder(ctx, order.ID)
		got.Items[0].ProductID = "mutated"

		again, _ := store.GetOrder(ctx, order.ID)
		if again.Items[0].ProductID != "p1" {
			t.Error("store state was mutated through a returned copy")
		}
	})

	t.Run("unknown order", func(t *testing.T) {
		store := NewMemoryStore()
		if _, err := store.GetOrder(ctx, "nope"); !errors.Is(err, ErrOrderNotFound) {
			t.Errorf("expected ErrOrderNotFound, got %v", err)
		}
	})

	t.Run("list newest first", func(t *testing.T) {
		store := NewMemoryStore()
		older := &Order{CreatedAt: time.Now().UTC().Add(-time.Hour)}
		newer := &Order{CreatedAt: time.Now().UTC()}
		for _, o := range []*Order{older, newer} {
			if err := store.CreateOrder(ctx, o); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}

		orders, err := store.ListOrders(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(orders) != 2 || orders[0].ID != newer.ID {
			t.Errorf("expected newest order first, got %+v", orders)
		}
	})
}

func TestMemoryStoreTokens(t *testing.T) {
	ctx := context.Background()
	future := time.Now().UTC().Add(time.Hour)
	past := time.Now().UTC().Add(-time.Hour)

	t.Run("redeem decrements and returns post-decrement record", func(t *testing.T) {
		store := NewMemoryStore()
		seedToken(t, store, "tok", 3, future)

		got, err := store.RedeemValid(ctx, "tok", time.Now().UTC())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Remaining != 2 {
			t.Errorf("expected remaining 2, got %d", got.Remaining)
		}
	})

	t.Run("redeem refuses missing, expired, exhausted alike", func(t *testing.T) {
		store := NewMemoryStore()
		seedToken(t, store, "expired", 3, past)
		seedToken(t, store, "exhausted", 0, future)

		for _, token := range []string{"missing", "expired", "exhausted"} {
			if _, err := store.RedeemValid(ctx, token, time.Now().UTC()); !errors.Is(err, ErrNotRedeemable) {
				t.Errorf("token %s: expected ErrNotRedeemable, got %v", token, err)
			}
		}
	})

	t.Run("restore adds a use back", func(t *testing.T) {
		store := NewMemoryStore()
		seedToken(t, store, "tok", 1, future)

		if _, err := store.RedeemValid(ctx, "tok", time.Now().UTC()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := store.RestoreUse(ctx, "tok"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got, _ := store.GetToken(ctx, "tok")
		if got.Remaining != 1 {
			t.Errorf("expected remaining 1 after restore, got %d", got.Remaining)
		}
	})

	t.Run("restore on unknown token", func(t *testing.T) {
		store := NewMemoryStore()
		if err := store.RestoreUse(ctx, "nope"); !errors.Is(err, ErrTokenNotFound) {
			t.Errorf("expected ErrTokenNotFound, got %v", err)
		}
	})

	t.Run("list by order sorted by creation time", func(t *testing.T) {
		store := NewMemoryStore()
		base := time.Now().UTC()
		for i, token := range []string{"second", "first"} {
			err := store.CreateToken(ctx, &DownloadToken{
				Token:     token,
				OrderID:   "o1",
				FilePath:  "/assets/a.zip",
				ExpiresAt: future,
				Remaining: 3,
				CreatedAt: base.Add(-time.Duration(i) * time.Minute),
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}

		tokens, err := store.ListTokensByOrder(ctx, "o1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(tokens) != 2 || tokens[0].Token != "first" {
			t.Errorf("expected oldest token first, got %+v", tokens)
		}
	})

	t.Run("purge removes expired and exhausted only", func(t *testing.T) {
		store := NewMemoryStore()
		seedToken(t, store, "live", 2, future)
		seedToken(t, store, "expired", 2, past)
		seedToken(t, store, "exhausted", 0, future)

		purged, err := store.PurgeStale(ctx, time.Now().UTC())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if purged != 2 {
			t.Errorf("expected 2 purged, got %d", purged)
		}
		if _, err := store.GetToken(ctx, "live"); err != nil {
			t.Errorf("live token should survive: %v", err)
		}
	})

	t.Run("stats bucket tokens by state", func(t *testing.T) {
		store := NewMemoryStore()
		seedToken(t, store, "live", 2, future)
		seedToken(t, store, "expired", 2, past)
		seedToken(t, store, "exhausted", 0, future)
		if err := store.CreateOrder(ctx, &Order{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		stats, err := store.Stats(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := Stats{TotalOrders: 1, TotalTokens: 3, ActiveTokens: 1, ExhaustedTokens: 1, ExpiredTokens: 1}
		if *stats != want {
			t.Errorf("stats = %+v, want %+v", *stats, want)
		}
	})
}

// The store, not the caller, owns the check-and-decrement race. With
// ten uses and forty concurrent attempts exactly ten may win.
func TestMemoryStoreRedeemConcurrent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	seedToken(t, store, "contended", 10, time.Now().UTC().Add(time.Hour))

	const attempts = 40
	results := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = store.RedeemValid(ctx, "contended", time.Now().UTC())
		}(i)
	}
	wg.Wait()

	var successes int
	for _, err := range results {
		if err == nil {
			successes++
		} else if !errors.Is(err, ErrNotRedeemable) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if successes != 10 {
		t.Errorf("expected exactly 10 successful redemptions, got %d", successes)
	}

	got, err := store.GetToken(ctx, "contended")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Remaining != 0 {
		t.Errorf("expected remaining 0, got %d", got.Remaining)
	}
}
