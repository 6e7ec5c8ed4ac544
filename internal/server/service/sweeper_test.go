package service

import (
	"context"
	"testing"
	"time"

	"storefront/internal/server/database"
)

func TestSweeperPurgesStaleTokens(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()

	now := time.Now().UTC()
	seed := []*database.DownloadToken{
		{Token: "live", OrderID: "o1", ProductID: "p1", FilePath: "/assets/a.zip", ExpiresAt: now.Add(time.Hour), Remaining: 2},
		{Token: "expired", OrderID: "o1", ProductID: "p2", FilePath: "/assets/b.zip", ExpiresAt: now.Add(-time.Hour), Remaining: 2},
		{Token: "exhausted", OrderID: "o2", ProductID: "p1", FilePath: "/assets/a.zip", ExpiresAt: now.Add(time.Hour), Remaining: 0},
	}
	for _, tok := range seed {
		if err := store.CreateToken(ctx, tok); err != nil {
			t.Fatalf("failed to seed token: %v", err)
		}
	}

	sw := NewSweeper(store, time.Hour)
	sw.runSweep(ctx)

	if _, err := store.GetToken(ctx, "live"); err != nil {
		t.Errorf("live token should survive the sweep: %v", err)
	}
	for _, gone := range []string{"expired", "exhausted"} {
		if _, err := store.GetToken(ctx, gone); err != database.ErrTokenNotFound {
			t.Errorf("expected %s token to be purged, got %v", gone, err)
		}
	}
}

func TestSweeperStartStop(t *testing.T) {
	store := database.NewMemoryStore()
	sw := NewSweeper(store, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	sw.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		sw.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop after context cancellation")
	}
}
