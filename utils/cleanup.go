package utils

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Pruner is implemented by the in-memory stores.
type Pruner interface {
	Prune(now time.Time) int
}

// StartJanitor launches a background goroutine that periodically drops expired entries
// from the in-memory stores until ctx is done.
func StartJanitor(ctx context.Context, interval time.Duration, log *zap.Logger, pruners ...Pruner) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if len(pruners) == 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				removed := 0
				for _, p := range pruners {
					removed += p.Prune(t)
				}
				if removed > 0 {
					log.Debug("janitor pruned expired entries", zap.Int("removed", removed))
				}
			}
		}
	}()
}
