package service

import (
	"context"
	"time"

	"github.com/okian/trendscore/internal/platform/retry"
	"github.com/okian/trendscore/pkg/metrics"
)

// storeCall runs one store operation under the shared timeout and retry
// budget, counting retries per operation name.
func storeCall[T any](ctx context.Context, base retry.Policy, op string, fn retry.Operation[T]) (T, error) {
	p := base
	p.OnRetry = func(int, error, time.Duration) {
		metrics.RecordStoreRetry(op)
	}
	return retry.Do(ctx, p, classifyStore, fn)
}
