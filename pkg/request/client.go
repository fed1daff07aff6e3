package request

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"notemap/pkg/cache"
	"notemap/pkg/tracker"
	"notemap/pkg/version"
)

var defaultUserAgent = fmt.Sprintf("notemap/%s (+https://github.com/notemap/notemap)", version.Version)

// Client handles HTTP requests with queuing, caching, and tracking.
type Client struct {
	httpClient *http.Client
	cache      cache.Cacher
	tracker    *tracker.Tracker
	backoff    *ProviderBackoff

	// gap is the pause between two requests to the same provider.
	gap     time.Duration
	retries int

	// Queues per provider (domain)
	queues map[string]chan job
	mu     sync.Mutex
}

type job struct {
	req      *http.Request
	headers  map[string]string
	cacheKey string
	respChan chan jobResult
}

type jobResult struct {
	body []byte
	err  error
}

// New creates a new Client.
func New(c cache.Cacher, t *tracker.Tracker) *Client {
	if c == nil {
		c = cache.Nop{}
	}
	if t == nil {
		t = tracker.New()
	}
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cache:      c,
		tracker:    t,
		backoff:    NewProviderBackoff(time.Second, time.Minute),
		gap:        100 * time.Millisecond,
		retries:    3,
		queues:     make(map[string]chan job),
	}
}

// Settings tune the transport. Zero fields keep the current value.
type Settings struct {
	Retries   int
	Timeout   time.Duration
	Gap       time.Duration
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// Configure applies s. Call it before the first request.
func (c *Client) Configure(s Settings) {
	if s.Retries > 0 {
		c.retries = s.Retries
	}
	if s.Timeout > 0 {
		c.httpClient.Timeout = s.Timeout
	}
	if s.Gap > 0 {
		c.gap = s.Gap
	}
	if s.BaseDelay > 0 || s.MaxDelay > 0 {
		base, maxDelay := s.BaseDelay, s.MaxDelay
		if base <= 0 {
			base = time.Second
		}
		if maxDelay <= 0 {
			maxDelay = time.Minute
		}
		c.backoff = NewProviderBackoff(base, maxDelay)
	}
}

// Get performs a GET request with queuing and caching if key is provided.
func (c *Client) Get(ctx context.Context, u, cacheKey string) ([]byte, error) {
	return c.GetWithHeaders(ctx, u, nil, cacheKey)
}

// GetWithHeaders performs a GET request with custom headers and optional caching.
func (c *Client) GetWithHeaders(ctx context.Context, u string, headers map[string]string, cacheKey string) ([]byte, error) {
	parsedURL, err := url.Parse(u)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported url scheme %q", parsedURL.Scheme)
	}
	provider := Provider(parsedURL.Host)

	// 1. Check Cache (Only if key is provided)
	if cacheKey != "" {
		if val, hit := c.cache.GetCache(ctx, cacheKey); hit {
			c.tracker.TrackCacheHit(provider)
			slog.Debug("Cache Hit", "provider", provider, "key", cacheKey)
			return val, nil
		}
		c.tracker.TrackCacheMiss(provider)
	}

	// 2. Enqueue Request
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	respChan := make(chan jobResult, 1)
	c.dispatch(provider, job{req: req, headers: headers, cacheKey: cacheKey, respChan: respChan})

	// 3. Wait for Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-respChan:
		return res.body, res.err
	}
}

// Tracker returns the stats tracker of the client.
func (c *Client) Tracker() *tracker.Tracker {
	return c.tracker
}

// Provider groups hosts that share rate limits.
func Provider(host string) string {
	host = strings.ToLower(host)
	if h, _, found := strings.Cut(host, ":"); found {
		host = h
	}
	switch {
	case host == "api.mapbox.com" || strings.HasSuffix(host, ".tiles.mapbox.com"):
		return "mapbox"
	case strings.HasSuffix(host, "openfreemap.org"):
		return "openfreemap"
	case strings.HasSuffix(host, "tile.openstreetmap.org"):
		return "openstreetmap"
	case strings.HasSuffix(host, ".maptiler.com"):
		return "maptiler"
	case strings.HasSuffix(host, ".basemaps.cartocdn.com"):
		return "carto"
	}
	return host
}

// dispatch sends the job to the provider's queue, creating the queue/worker if needed.
func (c *Client) dispatch(provider string, j job) {
	c.mu.Lock()
	q, ok := c.queues[provider]
	if !ok {
		q = make(chan job, 100)
		c.queues[provider] = q
		go c.worker(provider, q)
	}
	c.mu.Unlock()

	// Blocks while the queue is full, throttling the caller
	select {
	case q <- j:
	case <-j.req.Context().Done():
		j.respChan <- jobResult{err: j.req.Context().Err()}
	}
}

// worker processes requests for a specific provider sequentially.
func (c *Client) worker(provider string, q <-chan job) {
	for j := range q {
		if j.req.Context().Err() != nil {
			slog.Debug("Job dropped from queue (context expired)", "provider", provider)
			j.respChan <- jobResult{err: j.req.Context().Err()}
			continue
		}

		uaSet := false
		for k, v := range j.headers {
			j.req.Header.Set(k, v)
			if http.CanonicalHeaderKey(k) == "User-Agent" {
				uaSet = true
			}
		}
		if !uaSet {
			j.req.Header.Set("User-Agent", defaultUserAgent)
		}

		if err := c.backoff.Wait(j.req.Context(), provider); err != nil {
			j.respChan <- jobResult{err: err}
			continue
		}
		body, err := c.executeWithBackoff(j.req)

		if err == nil {
			c.backoff.RecordSuccess(provider)
			c.tracker.TrackAPISuccess(provider)
			if j.cacheKey != "" {
				if err := c.cache.SetCache(context.Background(), j.cacheKey, body); err != nil {
					slog.Error("Failed to cache response", "url", j.req.URL, "error", err)
				}
			}
		} else if j.req.Context().Err() == nil {
			c.backoff.RecordFailure(provider)
			c.tracker.TrackAPIFailure(provider)
		}

		j.respChan <- jobResult{body: body, err: err}

		time.Sleep(c.gap)
	}
}

// executeWithBackoff attempts the request with exponential backoff on retryable errors.
func (c *Client) executeWithBackoff(req *http.Request) ([]byte, error) {
	maxAttempts := max(c.retries, 1)
	baseDelay := 500 * time.Millisecond

	wait := func(attempt int) error {
		sleepDur := time.Duration(math.Pow(2, float64(attempt))) * baseDelay
		select {
		case <-time.After(sleepDur):
			return nil
		case <-req.Context().Done():
			return req.Context().Err()
		}
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if req.Context().Err() != nil {
			return nil, req.Context().Err()
		}

		slog.Debug("Network Request", "host", req.URL.Host, "path", req.URL.Path, "attempt", attempt+1)
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if req.Context().Err() != nil {
				return nil, req.Context().Err()
			}
			slog.Warn("Request failed, retrying", "host", req.URL.Host, "attempt", attempt+1, "error", err)
			if err := wait(attempt); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			slog.Warn("API Backoff", "status", resp.StatusCode, "host", req.URL.Host, "attempt", attempt+1)
			if err := wait(attempt); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return nil, fmt.Errorf("api error: status %d", resp.StatusCode)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read error: %w", err)
		}
		return body, nil
	}

	return nil, fmt.Errorf("max retries exceeded")
}
