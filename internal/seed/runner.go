package seed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/trendscore/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
	filePermission      = 0600
)

// ErrVerification is returned when the server's rankings disagree with the
// local recomputation.
var ErrVerification = errors.New("ranking verification failed")

// Run executes a complete seeding run: generate, load, recalculate, fetch and
// verify.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get()

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(stats.StartTime.UnixNano())
	}

	log.Info(ctx, "starting seeding run",
		logger.String("baseURL", cfg.BaseURL),
		logger.String("database", cfg.DatabasePath),
		logger.Int("items", cfg.Items),
		logger.Int("events", cfg.Events),
		logger.Int("workers", cfg.Workers),
		logger.Any("seed", seed))

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, cfg); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Generate the dataset
	ds, err := NewGenerator(seed).Generate(ctx, cfg.Items, cfg.Events, cfg.Span, time.Now())
	if err != nil {
		return stats, fmt.Errorf("dataset generation failed: %w", err)
	}
	stats.ListingsGenerated = len(ds.Listings)
	stats.EventsGenerated = len(ds.Events)

	// Step 3: Load it where the service reads
	if err := LoadFile(ctx, cfg.DatabasePath, ds); err != nil {
		return stats, fmt.Errorf("dataset load failed: %w", err)
	}

	// Step 4: Recalculate snapshots
	if _, err := triggerRecalculation(ctx, cfg, stats); err != nil {
		return stats, fmt.Errorf("recalculation failed: %w", err)
	}

	// Step 5: Retrieve rankings concurrently
	rankings, err := retrieveRankings(ctx, cfg, stats)
	if err != nil {
		return stats, fmt.Errorf("ranking retrieval failed: %w", err)
	}

	// Step 6: Verify results
	if errs := Verify(ctx, ds, rankings, cfg.Limit, stats); len(errs) > 0 {
		return stats, fmt.Errorf("%w: %w", ErrVerification, errors.Join(errs...))
	}

	// Step 7: Save the dataset
	if cfg.OutputFile != "" {
		if err := saveDataset(ctx, cfg.OutputFile, ds); err != nil {
			log.Warn(ctx, "failed to save dataset", logger.Error(err))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)

	log.Info(ctx, "seeding run completed successfully")
	return stats, nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, cfg *Config) error {
	logger.Get().Info(ctx, "checking service health")

	var body struct {
		Status string `json:"status"`
	}
	if err := newHTTPClient(cfg.BaseURL, cfg.Timeout).getJSON(ctx, "/healthz", &body); err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	if body.Status != "ok" {
		return fmt.Errorf("service reported status %q", body.Status)
	}

	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// saveDataset writes the generated dataset to a JSON file.
func saveDataset(ctx context.Context, filename string, ds *Dataset) error {
	dir := filepath.Dir(filename)
	if dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal dataset: %w", err)
	}
	if err := os.WriteFile(filename, data, filePermission); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	logger.Get().Info(ctx, "dataset saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(ctx context.Context, stats *Stats) {
	logger.Get().Info(ctx, "final statistics",
		logger.Int("listingsGenerated", stats.ListingsGenerated),
		logger.Int("eventsGenerated", stats.EventsGenerated),
		logger.Int("itemsRecalculated", stats.ItemsRecalculated),
		logger.Int("rankingsRetrieved", stats.RankingsRetrieved),
		logger.Int("itemsVerified", stats.ItemsVerified),
		logger.Int("mismatches", stats.Mismatches),
		logger.String("duration", stats.Duration.String()))
}
