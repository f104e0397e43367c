package store

import (
	"context"
	"time"

	"github.com/jw6ventures/foodlog/internal/metrics"
)

func observeDB(ctx context.Context, operation string) func() {
	start := time.Now()
	return func() {
		metrics.ObserveBackendLatency(ctx, operation, start)
	}
}
