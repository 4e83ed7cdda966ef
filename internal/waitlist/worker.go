package waitlist

import (
	"context"
	"log"
	"time"
)

// Worker drives claim-window expiry on a fixed interval.  Expiry is
// database-backed rather than timer-per-entry, so offers survive a
// process restart: whatever was NOTIFIED before the crash is picked up
// on the next tick.
type Worker struct {
	promoter *Promoter
	interval time.Duration
}

func NewWorker(promoter *Promoter, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Worker{promoter: promoter, interval: interval}
}

// Run blocks until ctx is cancelled, expiring overdue offers every
// interval.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.promoter.ExpireOverdue(ctx)
			if err != nil {
				log.Printf("waitlist-worker: expiry pass failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("waitlist-worker: expired %d overdue offer(s)", n)
			}
		}
	}
}
