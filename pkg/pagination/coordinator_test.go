package pagination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"testing"

	"github.com/campfin/fec-sync/pkg/fecclient"
)

// singlePage returns a PageFunc producing one page with n records.
func singlePage(n int) PageFunc {
	return func(ctx context.Context, params url.Values) (*fecclient.Envelope, error) {
		results := make([]json.RawMessage, n)
		for i := range results {
			results[i] = json.RawMessage(fmt.Sprintf(`{"n": %d}`, i))
		}
		return &fecclient.Envelope{
			Results:    results,
			Pagination: fecclient.Pagination{Page: 1, Pages: 1},
		}, nil
	}
}

func failingPage(err error) PageFunc {
	return func(ctx context.Context, params url.Values) (*fecclient.Envelope, error) {
		return nil, err
	}
}

func TestWorkerCount(t *testing.T) {
	coordinator := NewCoordinator(2, 8)

	tests := []struct {
		targets  int
		expected int
	}{
		{1, 1},   // never more workers than targets
		{2, 2},   // floor
		{5, 2},   // floor
		{30, 3},  // targets / 10
		{75, 7},  // targets / 10
		{100, 8}, // ceiling
		{500, 8}, // ceiling
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("targets_%d", tt.targets), func(t *testing.T) {
			if got := coordinator.workerCount(tt.targets); got != tt.expected {
				t.Errorf("workerCount(%d) = %d, want %d", tt.targets, got, tt.expected)
			}
		})
	}
}

func TestFetchAllMergesAllTargets(t *testing.T) {
	coordinator := NewCoordinator(2, 8)

	sizes := []int{3, 5, 0, 7}
	targets := make([]Target, len(sizes))
	total := 0
	for i, n := range sizes {
		targets[i] = Target{Key: fmt.Sprintf("target-%d", i), Fetch: singlePage(n)}
		total += n
	}

	merged, failed := coordinator.FetchAll(context.Background(), targets)
	if failed != 0 {
		t.Errorf("failed = %d, want 0", failed)
	}
	if len(merged) != total {
		t.Errorf("len(merged) = %d, want %d", len(merged), total)
	}
}

func TestFetchAllIsolatesFailures(t *testing.T) {
	coordinator := NewCoordinator(2, 8)

	targets := []Target{
		{Key: "ok-1", Fetch: singlePage(4)},
		{Key: "broken", Fetch: failingPage(errors.New("boom"))},
		{Key: "ok-2", Fetch: singlePage(6)},
		{Key: "ok-3", Fetch: singlePage(2)},
	}

	merged, failed := coordinator.FetchAll(context.Background(), targets)
	if failed != 1 {
		t.Errorf("failed = %d, want 1", failed)
	}
	// Merged count equals the sum of the successful units' sizes.
	if len(merged) != 12 {
		t.Errorf("len(merged) = %d, want 12", len(merged))
	}
}

func TestFetchGroupedKeysResults(t *testing.T) {
	coordinator := NewCoordinator(2, 8)

	targets := []Target{
		{Key: "P001", Fetch: singlePage(3)},
		{Key: "P002", Fetch: singlePage(5)},
		{Key: "P003", Fetch: failingPage(errors.New("boom"))},
	}

	grouped, failed := coordinator.FetchGrouped(context.Background(), targets)
	if failed != 1 {
		t.Errorf("failed = %d, want 1", failed)
	}
	if len(grouped["P001"]) != 3 {
		t.Errorf("len(grouped[P001]) = %d, want 3", len(grouped["P001"]))
	}
	if len(grouped["P002"]) != 5 {
		t.Errorf("len(grouped[P002]) = %d, want 5", len(grouped["P002"]))
	}
	if _, ok := grouped["P003"]; ok {
		t.Error("failed target must not appear in grouped results")
	}
}

func TestFetchAllEmptyTargets(t *testing.T) {
	coordinator := NewCoordinator(2, 8)

	merged, failed := coordinator.FetchAll(context.Background(), nil)
	if merged != nil || failed != 0 {
		t.Errorf("FetchAll(nil) = (%v, %d), want (nil, 0)", merged, failed)
	}
}

func TestFetchAllManyTargets(t *testing.T) {
	coordinator := NewCoordinator(2, 8)

	const n = 50
	targets := make([]Target, n)
	for i := range targets {
		targets[i] = Target{Key: fmt.Sprintf("target-%d", i), Fetch: singlePage(1)}
	}

	merged, failed := coordinator.FetchAll(context.Background(), targets)
	if failed != 0 {
		t.Errorf("failed = %d, want 0", failed)
	}
	if len(merged) != n {
		t.Errorf("len(merged) = %d, want %d", len(merged), n)
	}
}

func TestNewCoordinatorDefaults(t *testing.T) {
	coordinator := NewCoordinator(0, 0)
	if coordinator.minWorkers != 2 {
		t.Errorf("minWorkers = %d, want 2", coordinator.minWorkers)
	}
	if coordinator.maxWorkers < coordinator.minWorkers {
		t.Errorf("maxWorkers = %d < minWorkers", coordinator.maxWorkers)
	}
}
