package run

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/adscope-cli/internal/extract"
	"github.com/sells-group/adscope-cli/internal/fetcher"
	"github.com/sells-group/adscope-cli/internal/model"
	"github.com/sells-group/adscope-cli/internal/resilience"
)

// perTargetFetcher serves one single-page listing per advertiser, keyed by
// the advertiser ID embedded in the request URL.
type perTargetFetcher struct {
	pages    map[string][]byte
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (f *perTargetFetcher) FetchPage(ctx context.Context, req fetcher.PageRequest) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		prev := f.peak.Load()
		if cur <= prev || f.peak.CompareAndSwap(prev, cur) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)

	for id, body := range f.pages {
		if strings.Contains(req.URL, id) {
			return body, nil
		}
	}
	return nil, resilience.Permanent(errors.New("unknown advertiser"), 404)
}

func singlePage(creativeIDs ...string) []byte {
	var entries []string
	for _, id := range creativeIDs {
		entries = append(entries, `{"creativeId": "`+id+`", "advertiserName": "Acme", "format": "TEXT"}`)
	}
	return []byte(`{"creatives": [` + strings.Join(entries, ",") + `], "nextPageCursor": ""}`)
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Multiplier: 1}
}

func TestCoordinator_AggregatesInSubmissionOrder(t *testing.T) {
	f := &perTargetFetcher{pages: map[string][]byte{
		"AR1": singlePage("C1", "C2"),
		"AR2": singlePage("C3"),
		"AR3": singlePage("C4"),
	}}
	c := NewCoordinator(f, Config{Concurrency: 3, Driver: extract.DriverConfig{Retry: fastRetry()}})

	res, err := c.Run(context.Background(), []model.TargetSpec{
		{AdvertiserID: "AR1"}, {AdvertiserID: "AR2"}, {AdvertiserID: "AR3"},
	})
	require.NoError(t, err)
	require.Len(t, res.Records, 4)

	// Submission order regardless of which worker finished first.
	assert.Equal(t, "C1", res.Records[0].CreativeID)
	assert.Equal(t, "C2", res.Records[1].CreativeID)
	assert.Equal(t, "C3", res.Records[2].CreativeID)
	assert.Equal(t, "C4", res.Records[3].CreativeID)
	assert.Equal(t, model.RunStatusComplete, res.Status())
	assert.Empty(t, res.FailedTargets)
}

func TestCoordinator_FailedTargetIsolated(t *testing.T) {
	f := &perTargetFetcher{pages: map[string][]byte{
		"AR1": singlePage("C1"),
		// AR2 missing: permanent 404
		"AR3": singlePage("C3"),
	}}
	c := NewCoordinator(f, Config{Concurrency: 2, Driver: extract.DriverConfig{Retry: fastRetry()}})

	res, err := c.Run(context.Background(), []model.TargetSpec{
		{AdvertiserID: "AR1"}, {AdvertiserID: "AR2"}, {AdvertiserID: "AR3"},
	})
	require.NoError(t, err)
	assert.Len(t, res.Records, 2)
	assert.Equal(t, []string{"AR2"}, res.FailedTargets)
	assert.Equal(t, model.RunStatusPartial, res.Status())

	require.Len(t, res.Targets, 3)
	assert.Equal(t, model.TargetFailed, res.Targets[1].Status)
	assert.NotEmpty(t, res.Targets[1].Error)
}

func TestCoordinator_ConcurrencyLimit(t *testing.T) {
	pages := make(map[string][]byte)
	var targets []model.TargetSpec
	for _, id := range []string{"AR1", "AR2", "AR3", "AR4", "AR5", "AR6"} {
		pages[id] = singlePage("C-" + id)
		targets = append(targets, model.TargetSpec{AdvertiserID: id})
	}
	f := &perTargetFetcher{pages: pages}
	c := NewCoordinator(f, Config{Concurrency: 2, Driver: extract.DriverConfig{Retry: fastRetry()}})

	_, err := c.Run(context.Background(), targets)
	require.NoError(t, err)
	assert.LessOrEqual(t, f.peak.Load(), int32(2))
}

func TestCoordinator_NoTargets(t *testing.T) {
	c := NewCoordinator(&perTargetFetcher{}, Config{})
	_, err := c.Run(context.Background(), nil)
	assert.Error(t, err)
}

func TestCoordinator_MergesDiagnostics(t *testing.T) {
	f := &perTargetFetcher{pages: map[string][]byte{
		// AR1's page carries one entry with no creative ID
		"AR1": []byte(`{"creatives": [{"advertiserName": "Acme", "format": "TEXT"}], "nextPageCursor": ""}`),
		"AR2": singlePage("C1"),
	}}
	c := NewCoordinator(f, Config{Driver: extract.DriverConfig{Retry: fastRetry()}})

	res, err := c.Run(context.Background(), []model.TargetSpec{
		{AdvertiserID: "AR1"}, {AdvertiserID: "AR2"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Diagnostics.RecordsEmitted)
	assert.Equal(t, 2, res.Diagnostics.PagesFetched)
	assert.Equal(t, 1, res.Diagnostics.Skips[model.MissingRequiredField("creativeId")])
}

// stallingFetcher serves its first page immediately, then blocks on every
// follow-up page until the request context expires.
type stallingFetcher struct{}

func (f *stallingFetcher) FetchPage(ctx context.Context, req fetcher.PageRequest) ([]byte, error) {
	if req.Cursor == "" {
		return []byte(`{"creatives": [{"creativeId": "C1", "advertiserName": "Acme", "format": "TEXT"}], "nextPageCursor": "p2"}`), nil
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestCoordinator_TargetBudgetFailsSlowTargetKeepsEarlierPages(t *testing.T) {
	c := NewCoordinator(&stallingFetcher{}, Config{
		TargetBudget: 25 * time.Millisecond,
		Driver:       extract.DriverConfig{Retry: fastRetry()},
	})

	start := time.Now()
	res, err := c.Run(context.Background(), []model.TargetSpec{{AdvertiserID: "AR1"}})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second, "budget must cut the stalled page off")

	require.Len(t, res.Targets, 1)
	assert.Equal(t, model.TargetFailed, res.Targets[0].Status)
	assert.Equal(t, []string{"AR1"}, res.FailedTargets)
	assert.Equal(t, model.RunStatusPartial, res.Status())

	// The page fetched before the deadline survives into the aggregate.
	require.Len(t, res.Records, 1)
	assert.Equal(t, "C1", res.Records[0].CreativeID)
}

func TestCoordinator_CancelledContextReturnsCollected(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := &perTargetFetcher{pages: map[string][]byte{"AR1": singlePage("C1")}}
	c := NewCoordinator(f, Config{Driver: extract.DriverConfig{Retry: fastRetry()}})

	res, err := c.Run(ctx, []model.TargetSpec{{AdvertiserID: "AR1"}})
	require.NoError(t, err)
	require.Len(t, res.Targets, 1)
	// The target either never started or failed on the dead context; either
	// way the run reports it rather than hanging.
	assert.Equal(t, model.TargetFailed, res.Targets[0].Status)
}
