package integration

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/campfin/fec-sync/internal/testutil"
	"github.com/campfin/fec-sync/pkg/fecclient"
	"github.com/campfin/fec-sync/pkg/pagination"
)

// setupRedis creates a Redis container for the page cache.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

func newClient(t *testing.T, mock *testutil.MockFEC, redisClient *redis.Client) *fecclient.Client {
	t.Helper()

	cfg := fecclient.DefaultConfig("test-key")
	cfg.BaseURL = mock.URL()
	cfg.RequestInterval = 10 * time.Millisecond
	cfg.Retry = fecclient.RetryConfig{MaxAttempts: 3, InitialBackoff: 10 * time.Millisecond, MaxBackoff: 50 * time.Millisecond, BackoffMultiplier: 2.0}
	cfg.Redis = redisClient
	cfg.CacheTTL = time.Minute

	client, err := fecclient.New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return client
}

// TestFullFetchFlow walks a three-page candidate fetch end to end: pacing,
// cursor continuation, and cache population on first pass, then a second pass
// served entirely from the cache.
func TestFullFetchFlow(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockFEC()
	defer mock.Close()

	pages := make([][]map[string]any, 3)
	for i := range pages {
		pages[i] = []map[string]any{
			{"candidate_id": fmt.Sprintf("P%05d", i), "name": fmt.Sprintf("CANDIDATE %d", i)},
		}
	}
	mock.SetPages("/candidates/", pages)

	client := newClient(t, mock, redisClient)
	paginator := pagination.NewPaginator(client.Candidates)

	ctx := context.Background()
	params := url.Values{}
	params.Set("cycle", "2024")

	results, err := paginator.FetchAll(ctx, params)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("Expected 3 records across 3 pages, got %d", len(results))
	}
	if got := mock.RequestCount("/candidates/"); got != 3 {
		t.Errorf("Expected 3 upstream requests, got %d", got)
	}

	// Second pass: every page comes from the cache, no new upstream traffic.
	cached, err := paginator.FetchAll(ctx, params)
	if err != nil {
		t.Fatalf("Cached fetch failed: %v", err)
	}
	if len(cached) != 3 {
		t.Fatalf("Expected 3 cached records, got %d", len(cached))
	}
	if got := mock.RequestCount("/candidates/"); got != 3 {
		t.Errorf("Cached pass hit upstream: %d total requests, want 3", got)
	}
}

// TestTransientErrorRecovery verifies a 502 is retried until the upstream
// recovers.
func TestTransientErrorRecovery(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockFEC()
	defer mock.Close()

	failures := 2
	mock.SetHandler("/committees/", func(w http.ResponseWriter, r *http.Request) {
		if failures > 0 {
			failures--
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		testutil.WriteEnvelope(w, testutil.Envelope{
			Results:    []map[string]any{{"committee_id": "C00123456"}},
			Pagination: testutil.Pagination{Page: 1, Pages: 1},
		})
	})

	client := newClient(t, mock, redisClient)

	envelope, err := client.Committees(context.Background(), url.Values{})
	if err != nil {
		t.Fatalf("Fetch should recover after transient errors: %v", err)
	}
	if len(envelope.Results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(envelope.Results))
	}
	if got := mock.RequestCount("/committees/"); got != 3 {
		t.Errorf("Expected 3 requests (2 failures + 1 success), got %d", got)
	}
}
