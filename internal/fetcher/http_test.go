package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/adscope-cli/internal/resilience"
)

func newTestFetcher() *HTTPFetcher {
	return NewHTTPFetcher(HTTPOptions{
		MinInterval: time.Microsecond, // keep tests fast
	})
}

func TestHTTPFetcher_Success(t *testing.T) {
	var gotUA, gotCursor string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotCursor = r.URL.Query().Get("cursor")
		w.Write([]byte(`{"creatives": []}`))
	}))
	defer srv.Close()

	f := newTestFetcher()
	body, err := f.FetchPage(context.Background(), PageRequest{URL: srv.URL, Cursor: "p2"})
	require.NoError(t, err)
	assert.Equal(t, `{"creatives": []}`, string(body))
	assert.Equal(t, "adscope/1.0", gotUA)
	assert.Equal(t, "p2", gotCursor)
}

func TestHTTPFetcher_FirstPageHasNoCursorParam(t *testing.T) {
	var rawQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawQuery = r.URL.RawQuery
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	f := newTestFetcher()
	_, err := f.FetchPage(context.Background(), PageRequest{URL: srv.URL})
	require.NoError(t, err)
	assert.Empty(t, rawQuery)
}

func TestHTTPFetcher_RateLimitTaggedAndSlowsDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := newTestFetcher()
	before := f.limiter.Limit()

	_, err := f.FetchPage(context.Background(), PageRequest{URL: srv.URL})
	require.Error(t, err)
	assert.True(t, resilience.IsRetryable(err))
	assert.Less(t, float64(f.limiter.Limit()), float64(before), "429 should reduce the shared rate")
}

func TestHTTPFetcher_ServerErrorRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := newTestFetcher()
	_, err := f.FetchPage(context.Background(), PageRequest{URL: srv.URL})
	require.Error(t, err)
	assert.True(t, resilience.IsRetryable(err))
}

func TestHTTPFetcher_ClientErrorPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	f := newTestFetcher()
	_, err := f.FetchPage(context.Background(), PageRequest{URL: srv.URL})
	require.Error(t, err)
	assert.False(t, resilience.IsRetryable(err))
}

func TestHTTPFetcher_ExtraHeaders(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("X-Extra")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	f := newTestFetcher()
	_, err := f.FetchPage(context.Background(), PageRequest{
		URL:     srv.URL,
		Headers: map[string]string{"X-Extra": "yes"},
	})
	require.NoError(t, err)
	assert.Equal(t, "yes", got)
}

func TestHTTPFetcher_SharedGateSerializesWorkers(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cur := inFlight.Add(1)
		for {
			prev := maxInFlight.Load()
			if cur <= prev || maxInFlight.CompareAndSwap(prev, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{MinInterval: 20 * time.Millisecond})

	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			f.FetchPage(context.Background(), PageRequest{URL: srv.URL}) //nolint:errcheck
		}()
	}
	for i := 0; i < 4; i++ {
		<-done
	}

	assert.LessOrEqual(t, maxInFlight.Load(), int32(2),
		"the shared gate should keep concurrent requests spaced out")
}

func TestAdaptiveLimiter_Bounds(t *testing.T) {
	l := NewAdaptiveLimiter(rate.Limit(2), 1)

	for i := 0; i < 20; i++ {
		l.OnSuccess()
	}
	assert.Equal(t, rate.Limit(2), l.Limit(), "success never raises the rate past the configured initial")

	for i := 0; i < 20; i++ {
		l.OnRateLimit()
	}
	assert.Equal(t, rate.Limit(0.5), l.Limit(), "rate floors at initial/4")
}

func TestAdaptiveLimiter_RecoversAfterRateLimit(t *testing.T) {
	l := NewAdaptiveLimiter(rate.Limit(4), 1)

	l.OnRateLimit()
	assert.Equal(t, rate.Limit(2), l.Limit())

	for i := 0; i < 10; i++ {
		l.OnSuccess()
	}
	assert.Equal(t, rate.Limit(4), l.Limit(), "creep recovers exactly to the configured rate")
}

func TestHTTPFetcher_MinIntervalHoldsUnderSustainedSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{MinInterval: 200 * time.Millisecond})
	configured := f.limiter.Limit()

	for i := 0; i < 6; i++ {
		_, err := f.FetchPage(context.Background(), PageRequest{URL: srv.URL})
		require.NoError(t, err)
	}

	assert.LessOrEqual(t, float64(f.limiter.Limit()), float64(configured),
		"sustained success must not shrink the inter-request interval below the configured minimum")
}

func TestSnapshotFetcher_MissingFile(t *testing.T) {
	_, err := SnapshotFetcher{}.FetchPage(context.Background(), PageRequest{URL: "/does/not/exist.html"})
	require.Error(t, err)
	assert.False(t, resilience.IsRetryable(err))
}
