package pagination

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/campfin/fec-sync/pkg/logging"
)

// Prometheus metrics for fan-out operations.
var (
	fanoutTargetsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fec_fanout_targets_total",
		Help: "Total fan-out fetch targets by outcome",
	}, []string{"outcome"})
)

// Target is one independent paginated fetch unit, identified by Key (a
// candidate id or committee id). Keys are expected to be unique within one
// FetchGrouped call.
type Target struct {
	Key    string
	Params url.Values
	Fetch  PageFunc
}

// Coordinator executes many independent paginated fetches concurrently with a
// bounded worker pool and merges the results. The merged order across targets
// is completion order and is not guaranteed stable across runs.
type Coordinator struct {
	minWorkers int
	maxWorkers int
	logger     zerolog.Logger
}

// NewCoordinator creates a coordinator with the given worker pool bounds.
func NewCoordinator(minWorkers, maxWorkers int) *Coordinator {
	if minWorkers < 1 {
		minWorkers = 2
	}
	if maxWorkers < minWorkers {
		maxWorkers = minWorkers
	}
	return &Coordinator{
		minWorkers: minWorkers,
		maxWorkers: maxWorkers,
		logger:     logging.NewLogger("fetch-coordinator"),
	}
}

// workerCount scales the pool with the target count: one worker per ten
// targets, clamped to the configured bounds and never more workers than
// targets.
func (c *Coordinator) workerCount(targets int) int {
	workers := targets / 10
	if workers < c.minWorkers {
		workers = c.minWorkers
	}
	if workers > c.maxWorkers {
		workers = c.maxWorkers
	}
	if workers > targets {
		workers = targets
	}
	return workers
}

type targetResult struct {
	key     string
	records []json.RawMessage
	err     error
}

// FetchAll runs every target to completion and returns the concatenation of
// all successful targets' results plus the count of failed targets. A failed
// target is logged with its key and contributes nothing; it never aborts its
// siblings. The call returns only after all workers have drained.
func (c *Coordinator) FetchAll(ctx context.Context, targets []Target) ([]json.RawMessage, int) {
	grouped, failed := c.FetchGrouped(ctx, targets)

	var merged []json.RawMessage
	for _, records := range grouped {
		merged = append(merged, records...)
	}
	return merged, failed
}

// FetchGrouped runs every target to completion and returns the successful
// results keyed by target. Callers that need to know which target produced a
// record (per-candidate contribution fetches) use this form; FetchAll is the
// merged convenience.
func (c *Coordinator) FetchGrouped(ctx context.Context, targets []Target) (map[string][]json.RawMessage, int) {
	if len(targets) == 0 {
		return nil, 0
	}

	start := time.Now()
	workers := c.workerCount(len(targets))

	c.logger.Info().
		Int("targets", len(targets)).
		Int("workers", workers).
		Msg("Starting fan-out fetch")

	queue := make(chan Target, len(targets))
	results := make(chan targetResult, len(targets))

	for _, target := range targets {
		queue <- target
	}
	close(queue)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go c.worker(ctx, queue, results, &wg)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	grouped := make(map[string][]json.RawMessage, len(targets))
	failed := 0
	records := 0
	for result := range results {
		if result.err != nil {
			failed++
			fanoutTargetsTotal.WithLabelValues("failed").Inc()
			c.logger.Warn().
				Err(result.err).
				Str("target", result.key).
				Msg("Fan-out target failed; continuing without it")
			continue
		}
		fanoutTargetsTotal.WithLabelValues("ok").Inc()
		grouped[result.key] = result.records
		records += len(result.records)
	}

	c.logger.Info().
		Int("targets", len(targets)).
		Int("failed", failed).
		Int("records", records).
		Dur("duration", time.Since(start)).
		Msg("Fan-out fetch complete")

	return grouped, failed
}

// worker drains the target queue, emitting one completed-unit message per
// target. Each worker contributes via the results channel only; no shared
// collection is mutated.
func (c *Coordinator) worker(ctx context.Context, queue <-chan Target, results chan<- targetResult, wg *sync.WaitGroup) {
	defer wg.Done()

	for target := range queue {
		select {
		case <-ctx.Done():
			results <- targetResult{key: target.Key, err: ctx.Err()}
			continue
		default:
		}

		paginator := NewPaginator(target.Fetch)
		records, err := paginator.FetchAll(ctx, target.Params)
		results <- targetResult{key: target.Key, records: records, err: err}
	}
}
