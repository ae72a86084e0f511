package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"time"
)

// invoiceEvent mirrors the invoice backend's event payload.
type invoiceEvent struct {
	InvoiceID            string     `json:"invoice_id"`
	Status               string     `json:"status,omitempty"`
	ReceivedAt           *time.Time `json:"received_at,omitempty"`
	ReadyAt              *time.Time `json:"ready_at,omitempty"`
	ValidatedAt          *time.Time `json:"validated_at,omitempty"`
	ValidationPassed     *bool      `json:"validation_passed,omitempty"`
	ApprovalRequestedAt  *time.Time `json:"approval_requested_at,omitempty"`
	ApprovedAt           *time.Time `json:"approved_at,omitempty"`
	ExtractedAt          *time.Time `json:"extracted_at,omitempty"`
	ExtractionConfidence *float64   `json:"extraction_confidence,omitempty"`
}

type queryRequest struct {
	Kind  string    `json:"kind"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

var statuses = []string{"done", "done", "done", "ready", "staged", "failed"}

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/v1/invoice-events/query", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		var req queryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.End.After(req.Start) {
			http.Error(w, "kind, start and end are required", http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]any{"events": generate(req)})
	})

	logger := log.New(log.Writer(), "events-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    ":8090",
		Handler: logRequests(logger, mux),
	}

	logger.Println("listening on :8090")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

// generate returns one synthetic invoice per ten minutes of the window. The
// seed depends on the window so repeated queries return the same events.
func generate(req queryRequest) []invoiceEvent {
	rng := rand.New(rand.NewSource(req.Start.Unix() ^ req.End.Unix()))
	events := make([]invoiceEvent, 0)
	i := 0
	for at := req.Start; at.Before(req.End); at = at.Add(10 * time.Minute) {
		i++
		received := at
		ready := at.Add(time.Duration(60+rng.Intn(360)) * time.Second)
		validated := ready
		passed := rng.Float64() < 0.96
		requested := ready.Add(time.Minute)
		approved := requested.Add(time.Duration(1+rng.Intn(30)) * time.Hour)
		extracted := at.Add(30 * time.Second)
		confidence := 0.7 + rng.Float64()*0.3

		e := invoiceEvent{
			InvoiceID:            fmt.Sprintf("inv-%d-%04d", req.Start.Unix(), i),
			Status:               statuses[rng.Intn(len(statuses))],
			ReceivedAt:           &received,
			ReadyAt:              &ready,
			ValidatedAt:          &validated,
			ValidationPassed:     &passed,
			ApprovalRequestedAt:  &requested,
			ExtractedAt:          &extracted,
			ExtractionConfidence: &confidence,
		}
		if approved.Before(req.End) {
			e.ApprovedAt = &approved
		}
		events = append(events, e)
	}
	return events
}

func enforcePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
