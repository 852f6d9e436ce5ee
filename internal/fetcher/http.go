package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/adscope-cli/internal/resilience"
)

// HTTPOptions configures the HTTP page fetcher.
type HTTPOptions struct {
	UserAgent string
	// Timeout bounds each individual fetch. Default 30s.
	Timeout time.Duration
	// MinInterval is the global minimum delay between any two requests,
	// shared across all concurrent target workers. Default 500ms.
	MinInterval time.Duration
	// MaxBodyBytes caps the response body size. Default 8 MiB.
	MaxBodyBytes int64
}

// AdaptiveLimiter wraps the shared rate.Limiter with rate auto-tuning.
// On a 429 the rate halves (floored at initial/4); on success it creeps
// back up 20% at a time, never past the configured initial rate, so the
// minimum inter-request interval always holds.
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	initialRate rate.Limit
	maxRate     rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive limiter starting at initialRate
// events per second.
func NewAdaptiveLimiter(initialRate rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(initialRate, burst),
		initialRate: initialRate,
		maxRate:     initialRate,
		minRate:     initialRate / 4,
		currentRate: initialRate,
	}
}

// Wait blocks until the limiter allows an event or ctx is done.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess increases the rate by 20%, recovering ground lost to 429
// halving. The configured initial rate is the ceiling.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	newRate := a.currentRate * 1.2
	if newRate > a.maxRate {
		newRate = a.maxRate
	}
	a.currentRate = newRate
	a.limiter.SetLimit(newRate)
}

// OnRateLimit halves the rate after a 429 response.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	newRate := a.currentRate * 0.5
	if newRate < a.minRate {
		newRate = a.minRate
	}
	a.currentRate = newRate
	a.limiter.SetLimit(newRate)
	zap.L().Warn("adaptive rate limit: reducing rate after 429",
		zap.Float64("new_rate", float64(newRate)),
	)
}

// Limit returns the current rate limit.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// HTTPFetcher implements Fetcher over net/http with a global adaptive rate
// gate. One instance is shared by all target workers so the inter-request
// interval holds across the whole run.
type HTTPFetcher struct {
	client  *http.Client
	opts    HTTPOptions
	limiter *AdaptiveLimiter
}

// NewHTTPFetcher creates an HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MinInterval == 0 {
		opts.MinInterval = 500 * time.Millisecond
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "adscope/1.0"
	}
	if opts.MaxBodyBytes == 0 {
		opts.MaxBodyBytes = 8 << 20
	}
	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts:    opts,
		limiter: NewAdaptiveLimiter(rate.Every(opts.MinInterval), 1),
	}
}

// FetchPage performs a single rate-gated GET of the requested page. Errors
// are tagged via resilience.TransportError so the pagination driver can
// decide between bounded retry and immediate target failure.
func (f *HTTPFetcher) FetchPage(ctx context.Context, req PageRequest) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "fetch: rate gate wait")
	}

	reqURL, err := buildPageURL(req)
	if err != nil {
		return nil, resilience.Permanent(eris.Wrapf(err, "fetch: bad url %q", req.URL), 0)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, resilience.Permanent(eris.Wrap(err, "fetch: create request"), 0)
	}
	httpReq.Header.Set("User-Agent", f.opts.UserAgent)
	httpReq.Header.Set("Accept", "application/json, text/html;q=0.9")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		// net/http errors are mostly transient; IsRetryable sorts them out.
		return nil, eris.Wrapf(err, "fetch: GET %s", reqURL)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		f.limiter.OnRateLimit()
		return nil, resilience.Retryable(eris.Errorf("fetch: http 429 from %s", reqURL), resp.StatusCode)
	case resilience.IsRetryableHTTPStatus(resp.StatusCode):
		return nil, resilience.Retryable(eris.Errorf("fetch: http %d from %s", resp.StatusCode, reqURL), resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, resilience.Permanent(eris.Errorf("fetch: http %d from %s", resp.StatusCode, reqURL), resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodyBytes))
	if err != nil {
		return nil, resilience.Retryable(eris.Wrapf(err, "fetch: read body from %s", reqURL), resp.StatusCode)
	}

	f.limiter.OnSuccess()
	return body, nil
}

// buildPageURL appends the pagination cursor as a query parameter when set.
func buildPageURL(req PageRequest) (string, error) {
	if req.Cursor == "" {
		return req.URL, nil
	}
	u, err := url.Parse(req.URL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("cursor", req.Cursor)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
