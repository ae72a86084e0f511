package eventstore

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/apflow/ap-slo-engine/internal/cache"
	"github.com/apflow/ap-slo-engine/internal/models"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

type stubCache struct {
	mu    sync.Mutex
	store map[string][]byte
}

func newStubCache() *stubCache {
	return &stubCache{store: make(map[string][]byte)}
}

func (s *stubCache) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.store[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return append([]byte(nil), value...), nil
}

func (s *stubCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store[key] = append([]byte(nil), value...)
	return nil
}

func (s *stubCache) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.store[key]; exists {
		return false, nil
	}
	s.store[key] = append([]byte(nil), value...)
	return true, nil
}

func (s *stubCache) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.store, key)
	return nil
}

func (s *stubCache) Close() error { return nil }

func ptrTime(t time.Time) *time.Time { return &t }
func ptrBool(b bool) *bool           { return &b }
func ptrFloat(f float64) *float64    { return &f }

func TestHTTPSourceFiltersAndCaches(t *testing.T) {
	start := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	hits := 0

	source := NewHTTPSource("https://invoices.example.com/", "/api/v1/invoice-events/query", time.Second, newStubCache(), time.Minute)
	source.httpClient = &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		hits++
		if req.URL.Path != "/api/v1/invoice-events/query" {
			t.Fatalf("unexpected path: %s", req.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body["kind"] != "ready" {
			t.Fatalf("unexpected kind %q", body["kind"])
		}
		payload := eventsResponse{Events: []models.InvoiceEvent{
			{InvoiceID: "inv-1", ReceivedAt: ptrTime(start), ReadyAt: ptrTime(start.Add(2 * time.Minute))},
			// Boundary: end is exclusive.
			{InvoiceID: "inv-2", ReceivedAt: ptrTime(start), ReadyAt: ptrTime(end)},
			// Missing the start stage.
			{InvoiceID: "inv-3", ReadyAt: ptrTime(start.Add(time.Minute))},
		}}
		data, _ := json.Marshal(payload)
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewReader(data)),
			Header:     make(http.Header),
		}, nil
	})}

	ctx := context.Background()
	events, err := source.FetchEvents(ctx, KindReady, start, end)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 || events[0].InvoiceID != "inv-1" {
		t.Fatalf("unexpected events: %+v", events)
	}

	if _, err := source.FetchEvents(ctx, KindReady, start, end); err != nil {
		t.Fatalf("unexpected cached error: %v", err)
	}
	if hits != 1 {
		t.Fatalf("expected one upstream request, got %d", hits)
	}
}

func TestHTTPSourceReportsBackendErrors(t *testing.T) {
	source := NewHTTPSource("https://invoices.example.com", "/q", time.Second, nil, 0)
	source.httpClient = &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusServiceUnavailable,
			Status:     "503 Service Unavailable",
			Body:       io.NopCloser(bytes.NewReader([]byte("down"))),
			Header:     make(http.Header),
		}, nil
	})}
	if _, err := source.FetchEvents(context.Background(), KindApproval, time.Now().Add(-time.Hour), time.Now()); err == nil {
		t.Fatalf("expected error from 503 response")
	}
}

func TestHTTPSourceRejectsUnknownKind(t *testing.T) {
	source := NewHTTPSource("https://invoices.example.com", "/q", time.Second, nil, 0)
	if _, err := source.FetchEvents(context.Background(), EventKind("duplicate"), time.Now(), time.Now()); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func openTestSource(t *testing.T) *SQLSource {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	source, err := NewSQLSource(db)
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	return source
}

func TestSQLSourceWindowAndRequiredFields(t *testing.T) {
	source := openTestSource(t)
	ctx := context.Background()
	start := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	seed := []models.InvoiceEvent{
		{InvoiceID: "a", ValidatedAt: ptrTime(start), ValidationPassed: ptrBool(true)},
		{InvoiceID: "b", ValidatedAt: ptrTime(start.Add(time.Hour)), ValidationPassed: ptrBool(false)},
		{InvoiceID: "c", ValidatedAt: ptrTime(end), ValidationPassed: ptrBool(true)},
		{InvoiceID: "d", ValidatedAt: ptrTime(start.Add(time.Hour))},
		{InvoiceID: "e", ExtractedAt: ptrTime(start.Add(time.Minute)), ExtractionConfidence: ptrFloat(0.91)},
	}
	for _, e := range seed {
		if err := source.Record(ctx, e); err != nil {
			t.Fatalf("record %s: %v", e.InvoiceID, err)
		}
	}

	events, err := source.FetchEvents(ctx, KindValidation, start, end)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 validation events, got %d: %+v", len(events), events)
	}
	if events[0].InvoiceID != "a" || !*events[0].ValidationPassed || *events[1].ValidationPassed {
		t.Fatalf("unexpected validation events: %+v", events)
	}

	extraction, err := source.FetchEvents(ctx, KindExtraction, start, end)
	if err != nil {
		t.Fatalf("fetch extraction: %v", err)
	}
	if len(extraction) != 1 || *extraction[0].ExtractionConfidence != 0.91 {
		t.Fatalf("unexpected extraction events: %+v", extraction)
	}

	empty, err := source.FetchEvents(ctx, KindApproval, start, end)
	if err != nil {
		t.Fatalf("fetch approval: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", empty)
	}
}

func TestWithinKeepsHalfOpenWindow(t *testing.T) {
	start := time.Unix(1_700_000_000, 0).UTC()
	end := start.Add(time.Hour)
	events := []models.InvoiceEvent{
		{InvoiceID: "at-start", ReceivedAt: ptrTime(start), Status: "done"},
		{InvoiceID: "before", ReceivedAt: ptrTime(start.Add(-time.Second)), Status: "done"},
		{InvoiceID: "at-end", ReceivedAt: ptrTime(end), Status: "done"},
		{InvoiceID: "no-status", ReceivedAt: ptrTime(start)},
	}
	kept := Within(KindProcessing, events, start, end)
	if len(kept) != 1 || kept[0].InvoiceID != "at-start" {
		t.Fatalf("unexpected kept events: %+v", kept)
	}
}
