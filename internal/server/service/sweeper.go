package service

import (
	"context"
	"log/slog"
	"time"

	"storefront/internal/server/database"
)

// Sweeper periodically purges tokens that are expired or out of uses.
// Not needed for correctness (the conditional update already refuses
// them) but it bounds table growth.
type Sweeper struct {
	tokens   database.TokenStore
	interval time.Duration
	done     chan struct{}
}

// NewSweeper creates a new sweeper.
func NewSweeper(tokens database.TokenStore, interval time.Duration) *Sweeper {
	return &Sweeper{
		tokens:   tokens,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins the sweep loop in a background goroutine.
func (sw *Sweeper) Start(ctx context.Context) {
	slog.Info("token sweeper started", "interval", sw.interval)

	go func() {
		ticker := time.NewTicker(sw.interval)
		defer ticker.Stop()

		// Run once immediately on start
		sw.runSweep(ctx)

		for {
			select {
			case <-ticker.C:
				sw.runSweep(ctx)
			case <-ctx.Done():
				slog.Info("token sweeper stopping")
				close(sw.done)
				return
			}
		}
	}()
}

// Wait blocks until the sweeper has fully stopped.
func (sw *Sweeper) Wait() {
	<-sw.done
}

func (sw *Sweeper) runSweep(ctx context.Context) {
	purged, err := sw.tokens.PurgeStale(ctx, time.Now().UTC())
	if err != nil {
		slog.Error("token sweep failed", "error", err)
		return
	}
	if purged > 0 {
		slog.Info("purged stale download tokens", "count", purged)
	}
}
