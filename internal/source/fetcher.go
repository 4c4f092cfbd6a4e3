// Package source holds what the bundled harvest sources share: a polite
// HTTP fetcher. The sources themselves live in subpackages.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/roach88/irts/internal/metrics"
)

// DefaultTimeout bounds a single request.
const DefaultTimeout = 30 * time.Second

// DefaultUserAgent is sent when no user agent is configured.
const DefaultUserAgent = "irts-harvester"

// maxBody caps response bodies; a single record or search page is far
// below it.
const maxBody = 32 << 20

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Fetcher issues GET requests no closer together than a politeness delay,
// shared by every caller of the same Fetcher.
type Fetcher struct {
	name      string
	client    *http.Client
	delay     time.Duration
	userAgent string
	metrics   *metrics.Metrics

	mu   sync.Mutex
	last time.Time
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithClient replaces the HTTP client.
func WithClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) { f.client = c }
}

// WithDelay sets the minimum gap between request starts.
func WithDelay(d time.Duration) FetcherOption {
	return func(f *Fetcher) { f.delay = d }
}

// WithUserAgent sets the User-Agent header. APIs such as Crossref route
// clients that identify themselves with a mailto to a better pool.
func WithUserAgent(ua string) FetcherOption {
	return func(f *Fetcher) { f.userAgent = ua }
}

// WithMetrics records request durations under the fetcher's name.
func WithMetrics(m *metrics.Metrics) FetcherOption {
	return func(f *Fetcher) { f.metrics = m }
}

// NewFetcher creates a Fetcher labelled name (used for metrics).
func NewFetcher(name string, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		name:      name,
		client:    &http.Client{Timeout: DefaultTimeout},
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Get fetches rawURL with query parameters appended and returns the body.
func (f *Fetcher) Get(ctx context.Context, rawURL string, query url.Values) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("fetch: parse url: %w", err)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	if err := f.wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	defer f.metrics.ObserveFetch(f.name, time.Now())
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: u.String(), StatusCode: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("fetch: read body: %w", err)
	}
	return body, nil
}

// wait blocks until the politeness delay since the previous request start
// has passed, then claims the slot.
func (f *Fetcher) wait(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.delay > 0 && !f.last.IsZero() {
		if d := time.Until(f.last.Add(f.delay)); d > 0 {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
			}
		}
	}
	f.last = time.Now()
	return nil
}
