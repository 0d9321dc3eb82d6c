// Package testutil provides testing utilities for the FEC sync pipeline.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
)

// Envelope mirrors the upstream page shape for fixture construction.
type Envelope struct {
	Results    []map[string]any `json:"results"`
	Pagination Pagination       `json:"pagination"`
}

// Pagination mirrors the upstream pagination envelope.
type Pagination struct {
	Page        int            `json:"page"`
	Pages       int            `json:"pages"`
	Count       int            `json:"count"`
	LastIndexes map[string]any `json:"last_indexes,omitempty"`
}

// MockFEC is a configurable mock FEC API server for testing.
type MockFEC struct {
	server *httptest.Server

	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc
	requests map[string]int
}

// NewMockFEC creates a new mock FEC server. Paths without a configured
// handler return an empty single-page envelope.
func NewMockFEC() *MockFEC {
	mock := &MockFEC{
		handlers: make(map[string]http.HandlerFunc),
		requests: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requests[r.URL.Path]++
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		WriteEnvelope(w, Envelope{Pagination: Pagination{Page: 1, Pages: 1}})
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockFEC) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockFEC) Close() {
	m.server.Close()
}

// RequestCount returns how many requests hit the given path.
func (m *MockFEC) RequestCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requests[path]
}

// SetHandler sets a custom handler for a path.
func (m *MockFEC) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetPages serves a fixed sequence of result pages on a path, with cursor
// continuation: the first request returns page 1, and each request carrying
// the previous page's last_index cursor returns the following page.
func (m *MockFEC) SetPages(path string, pages [][]map[string]any) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		page := 1
		if cursor := r.URL.Query().Get("last_index"); cursor != "" {
			if n, err := strconv.Atoi(cursor); err == nil {
				page = n + 1
			}
		}
		if page > len(pages) {
			page = len(pages)
		}

		envelope := Envelope{
			Results: pages[page-1],
			Pagination: Pagination{
				Page:  page,
				Pages: len(pages),
			},
		}
		if page < len(pages) {
			envelope.Pagination.LastIndexes = map[string]any{"last_index": page}
		}
		WriteEnvelope(w, envelope)
	})
}

// FailWith makes a path return a fixed HTTP status.
func (m *MockFEC) FailWith(path string, status int) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})
}

// WriteEnvelope serializes an envelope to the response.
func WriteEnvelope(w http.ResponseWriter, envelope Envelope) {
	w.Header().Set("Content-Type", "application/json")
	if envelope.Results == nil {
		envelope.Results = []map[string]any{}
	}
	_ = json.NewEncoder(w).Encode(envelope)
}
