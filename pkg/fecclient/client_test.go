package fecclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"
)

func testConfig(baseURL string) Config {
	return Config{
		APIKey:          "test-key",
		BaseURL:         baseURL,
		RequestInterval: time.Millisecond,
		Retry: RetryConfig{
			MaxAttempts:       3,
			InitialBackoff:    time.Millisecond,
			MaxBackoff:        10 * time.Millisecond,
			BackoffMultiplier: 2.0,
		},
		Timeout: 5 * time.Second,
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(Config{BaseURL: "http://example.com"})
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("Expected ErrMissingAPIKey, got %v", err)
	}
}

func TestNewDefaults(t *testing.T) {
	c, err := New(Config{APIKey: "k", BaseURL: "http://example.com"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c.config.RequestInterval != time.Second {
		t.Errorf("RequestInterval = %v, want 1s", c.config.RequestInterval)
	}
	if c.config.Retry.MaxAttempts != 3 {
		t.Errorf("Retry.MaxAttempts = %d, want 3", c.config.Retry.MaxAttempts)
	}
}

func TestGetPageInjectsAPIKey(t *testing.T) {
	var gotKey atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey.Store(r.URL.Query().Get("api_key"))
		w.Write([]byte(`{"results": [], "pagination": {"page": 1, "pages": 1}}`))
	}))
	defer server.Close()

	client, err := New(testConfig(server.URL))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	params := url.Values{}
	params.Set("cycle", "2024")
	if _, err := client.Candidates(context.Background(), params); err != nil {
		t.Fatalf("Candidates() error = %v", err)
	}

	if gotKey.Load() != "test-key" {
		t.Errorf("api_key = %v, want test-key", gotKey.Load())
	}
	// Caller-owned params must not be mutated by credential injection.
	if params.Get("api_key") != "" {
		t.Error("Expected caller params to stay credential-free")
	}
}

func TestGetPageDecodesEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"results": [{"candidate_id": "P001"}, {"candidate_id": "P002"}],
			"pagination": {"page": 1, "pages": 3, "count": 42, "last_indexes": {"last_index": 230880619, "last_contribution_receipt_date": "2024-01-01"}}
		}`))
	}))
	defer server.Close()

	client, _ := New(testConfig(server.URL))
	envelope, err := client.GetPage(context.Background(), EndpointContributions, nil)
	if err != nil {
		t.Fatalf("GetPage() error = %v", err)
	}

	if len(envelope.Results) != 2 {
		t.Errorf("len(Results) = %d, want 2", len(envelope.Results))
	}
	if envelope.Pagination.Page != 1 || envelope.Pagination.Pages != 3 {
		t.Errorf("Pagination = %+v, want page 1 of 3", envelope.Pagination)
	}

	cursor := envelope.Pagination.CursorParams()
	if cursor["last_index"] != "230880619" {
		t.Errorf("cursor last_index = %q, want 230880619 (exact upstream text)", cursor["last_index"])
	}
	if cursor["last_contribution_receipt_date"] != "2024-01-01" {
		t.Errorf("cursor last_contribution_receipt_date = %q", cursor["last_contribution_receipt_date"])
	}
}

func TestGetPageRetriesServerErrors(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"results": [], "pagination": {"page": 1, "pages": 1}}`))
	}))
	defer server.Close()

	client, _ := New(testConfig(server.URL))
	_, err := client.GetPage(context.Background(), EndpointCandidates, nil)
	if err != nil {
		t.Fatalf("GetPage() error = %v", err)
	}
	if requests.Load() != 3 {
		t.Errorf("requests = %d, want 3 (two 502s then success)", requests.Load())
	}
}

func TestGetPageDoesNotRetryClientErrors(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client, _ := New(testConfig(server.URL))
	_, err := client.GetPage(context.Background(), EndpointCandidates, nil)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusForbidden {
		t.Errorf("StatusCode = %d, want 403", apiErr.StatusCode)
	}
	if apiErr.Class != ErrorClassClient {
		t.Errorf("Class = %s, want client", apiErr.Class)
	}
	if requests.Load() != 1 {
		t.Errorf("requests = %d, want 1 (no retry on 4xx)", requests.Load())
	}
}

func TestGetPageRetryExhaustion(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client, _ := New(testConfig(server.URL))
	_, err := client.GetPage(context.Background(), EndpointCandidates, nil)

	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted, got %v", err)
	}
	if requests.Load() != 3 {
		t.Errorf("requests = %d, want 3", requests.Load())
	}
}

func TestPaceEnforcesInterval(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results": [], "pagination": {"page": 1, "pages": 1}}`))
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.RequestInterval = 50 * time.Millisecond
	client, _ := New(cfg)

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := client.GetPage(context.Background(), EndpointCandidates, nil); err != nil {
			t.Fatalf("GetPage() error = %v", err)
		}
	}
	elapsed := time.Since(start)

	// Three requests spaced by 50ms need at least two full intervals.
	if elapsed < 100*time.Millisecond {
		t.Errorf("Three paced requests took %v, want >= 100ms", elapsed)
	}
}

func TestPaceRespectsContext(t *testing.T) {
	client, _ := New(Config{
		APIKey:          "k",
		BaseURL:         "http://example.com",
		RequestInterval: time.Minute,
	})
	// Prime the pacer so the next call has to wait.
	client.lastRequest = time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := client.pace(ctx); err == nil {
		t.Error("Expected context error from pace, got nil")
	}
}
