package seed

import (
	"context"
	"fmt"

	"github.com/okian/trendscore/internal/adapters/repository"
	"github.com/okian/trendscore/pkg/logger"
)

// Load writes ds into w in batches of batchSize events.
func Load(ctx context.Context, w repository.Writer, ds *Dataset, batchSize int) error {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	if err := w.SaveListings(ctx, ds.Listings); err != nil {
		return fmt.Errorf("save listings: %w", err)
	}

	for start := 0; start < len(ds.Events); start += batchSize {
		end := min(start+batchSize, len(ds.Events))
		if err := w.AppendEvents(ctx, ds.Events[start:end]); err != nil {
			return fmt.Errorf("append events %d-%d: %w", start, end, err)
		}
	}

	logger.Get().Info(ctx, "dataset loaded",
		logger.Int("listings", len(ds.Listings)),
		logger.Int("events", len(ds.Events)))
	return nil
}

// LoadFile opens the SQLite database at path and loads ds into it.
func LoadFile(ctx context.Context, path string, ds *Dataset) error {
	store, err := repository.Open(repository.DriverSQLite, path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Get().Error(ctx, "failed to close database", logger.Error(err))
		}
	}()

	return Load(ctx, store, ds, DefaultBatchSize)
}
