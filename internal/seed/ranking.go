package seed

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/okian/trendscore/internal/domain/model"
	"github.com/okian/trendscore/internal/domain/types"
	"github.com/okian/trendscore/pkg/logger"
)

// Ranking is one fetched ranking plus the item trend of its top entry.
type Ranking struct {
	Lens     model.Lens
	Window   model.Window
	Response types.TrendingResponse
	Top      *types.ItemTrendResponse
}

// triggerRecalculation asks the server to rebuild every window's snapshots.
func triggerRecalculation(ctx context.Context, cfg *Config, stats *Stats) (types.RecalculationSummary, error) {
	logger.Get().Info(ctx, "triggering recalculation")

	client := newHTTPClient(cfg.BaseURL, cfg.Timeout)
	header := map[string]string{}
	if cfg.RecalculateToken != "" {
		header[recalculateTokenHeader] = cfg.RecalculateToken
	}

	var summary types.RecalculationSummary
	status, err := client.postJSON(ctx, "/trending/recalculate", header, &summary, 200, 503)
	if err != nil {
		return summary, err
	}
	if status != 200 || summary.Failed() {
		return summary, fmt.Errorf("recalculation %s failed in every window", summary.RunID)
	}

	stats.ItemsRecalculated = summary.ItemsProcessed
	logger.Get().Info(ctx, "recalculation finished",
		logger.String("runId", summary.RunID),
		logger.Int("itemsProcessed", summary.ItemsProcessed),
		logger.Int("failures", summary.Failures))
	return summary, nil
}

// retrieveRankings fetches every lens and window concurrently.
func retrieveRankings(ctx context.Context, cfg *Config, stats *Stats) ([]Ranking, error) {
	type query struct {
		lens   model.Lens
		window model.Window
	}
	var queries []query
	for _, w := range model.Windows() {
		for _, l := range model.Lenses() {
			queries = append(queries, query{lens: l, window: w})
		}
	}

	workers := max(1, min(cfg.Workers, len(queries)))
	logger.Get().Info(ctx, "retrieving rankings",
		logger.Int("queries", len(queries)),
		logger.Int("workers", workers))

	client := newHTTPClient(cfg.BaseURL, cfg.Timeout)
	results := make([]Ranking, len(queries))
	ok := make([]bool, len(queries))
	var failed int64

	indexChan := make(chan int, workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range indexChan {
				q := queries[index]
				r, err := retrieveSingleRanking(ctx, client, q.lens, q.window, cfg.Limit)
				if err != nil {
					atomic.AddInt64(&failed, 1)
					logger.Get().Warn(ctx, "failed to retrieve ranking",
						logger.String("lens", string(q.lens)),
						logger.String("window", string(q.window)),
						logger.Error(err))
					continue
				}
				results[index] = r
				ok[index] = true
			}
		}()
	}

	go func() {
		defer close(indexChan)
		for i := range queries {
			select {
			case <-ctx.Done():
				return
			case indexChan <- i:
			}
		}
	}()

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled during retrieval: %w", err)
	}

	out := make([]Ranking, 0, len(results))
	for i, r := range results {
		if ok[i] {
			out = append(out, r)
		}
	}
	stats.RankingsRetrieved = len(out)
	stats.RankingsFailed = int(atomic.LoadInt64(&failed))

	if stats.RankingsFailed > 0 {
		return out, fmt.Errorf("%d of %d rankings failed", stats.RankingsFailed, len(queries))
	}
	return out, nil
}

func retrieveSingleRanking(ctx context.Context, client *HTTPClient, lens model.Lens, window model.Window, limit int) (Ranking, error) {
	q := url.Values{}
	q.Set("type", string(lens))
	q.Set("period", string(window))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	r := Ranking{Lens: lens, Window: window}
	if err := client.getJSON(ctx, "/trending?"+q.Encode(), &r.Response); err != nil {
		return r, err
	}
	if len(r.Response.Items) == 0 {
		return r, nil
	}

	var top types.ItemTrendResponse
	path := "/trending/items/" + url.PathEscape(r.Response.Items[0].ID) + "?period=" + string(window)
	if err := client.getJSON(ctx, path, &top); err != nil {
		return r, fmt.Errorf("item %s: %w", r.Response.Items[0].ID, err)
	}
	r.Top = &top
	return r, nil
}
