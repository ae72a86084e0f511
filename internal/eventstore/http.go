package eventstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/apflow/ap-slo-engine/internal/cache"
	"github.com/apflow/ap-slo-engine/internal/models"
)

// HTTPSource queries the invoice backend's event API.
type HTTPSource struct {
	baseURL    string
	queryPath  string
	httpClient *http.Client
	cache      cache.Provider
	cacheTTL   time.Duration
}

// NewHTTPSource constructs a client targeting the configured invoice backend.
// Responses are cached per (kind, window) for cacheTTL; zero disables caching.
func NewHTTPSource(baseURL, queryPath string, timeout time.Duration, cacheProvider cache.Provider, cacheTTL time.Duration) *HTTPSource {
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if cacheTTL < 0 {
		cacheTTL = 0
	}
	return &HTTPSource{
		baseURL:    strings.TrimRight(baseURL, "/"),
		queryPath:  queryPath,
		httpClient: &http.Client{Timeout: timeout},
		cache:      cacheProvider,
		cacheTTL:   cacheTTL,
	}
}

type eventsResponse struct {
	Events []models.InvoiceEvent `json:"events"`
}

// FetchEvents implements Source.
func (s *HTTPSource) FetchEvents(ctx context.Context, kind EventKind, start, end time.Time) ([]models.InvoiceEvent, error) {
	if s == nil {
		return nil, fmt.Errorf("invoice events client not initialised")
	}
	if s.baseURL == "" {
		return nil, fmt.Errorf("invoice events base URL not configured")
	}
	if err := kind.Validate(); err != nil {
		return nil, err
	}

	key := cacheKey(kind, start, end)
	if s.cacheTTL > 0 {
		// Any cache error, not only a miss, falls through to the backend.
		if cached, err := s.cache.Get(ctx, key); err == nil {
			var resp eventsResponse
			if jsonErr := json.Unmarshal(cached, &resp); jsonErr == nil {
				return Within(kind, resp.Events, start, end), nil
			}
		}
	}

	payload := map[string]any{
		"kind":  string(kind),
		"start": start.UTC().Format(time.RFC3339Nano),
		"end":   end.UTC().Format(time.RFC3339Nano),
	}
	var resp eventsResponse
	if err := s.postJSON(ctx, s.queryURL(), payload, &resp); err != nil {
		return nil, fmt.Errorf("invoice events request failed: %w", err)
	}

	if s.cacheTTL > 0 {
		if data, err := json.Marshal(resp); err == nil {
			_ = s.cache.Set(ctx, key, data, s.cacheTTL)
		}
	}
	return Within(kind, resp.Events, start, end), nil
}

func cacheKey(kind EventKind, start, end time.Time) string {
	return fmt.Sprintf("ap-slo:events:%s:%d:%d", kind, start.UnixNano(), end.UnixNano())
}

func (s *HTTPSource) queryURL() string {
	cleaned := "/" + strings.TrimLeft(s.queryPath, "/")
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return s.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func (s *HTTPSource) postJSON(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("invoice backend returned %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
