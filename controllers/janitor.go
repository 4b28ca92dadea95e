package controllers

import (
	"context"
	"log"
	"time"

	"stop-trivia/db"

	"github.com/jonboulle/clockwork"
)

// Sweep deletes sessions whose creation stamp is older than ttl.
func Sweep(ctx context.Context, store db.Store, now time.Time, ttl time.Duration) (int64, error) {
	cutoff := now.Add(-ttl).UnixMilli()
	n, err := store.DeleteExpired(ctx, cutoff)
	if err != nil {
		return 0, storeError("sweep sessions", err)
	}
	if n > 0 {
		log.Printf("swept %d abandoned sessions", n)
	}
	return n, nil
}

// RunJanitor sweeps every interval until ctx is done. Sessions whose
// every participant vanished without leaving would otherwise stay
// forever.
func RunJanitor(ctx context.Context, clock clockwork.Clock, store db.Store, ttl, interval time.Duration) error {
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.Chan():
			if _, err := Sweep(ctx, store, now, ttl); err != nil {
				log.Printf("janitor: %v", err)
			}
		}
	}
}
