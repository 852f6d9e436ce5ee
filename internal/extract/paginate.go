package extract

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/adscope-cli/internal/fetcher"
	"github.com/sells-group/adscope-cli/internal/model"
	"github.com/sells-group/adscope-cli/internal/resilience"
)

// DriverConfig bounds one target's pagination run.
type DriverConfig struct {
	// MaxPages is the loop-safety ceiling: cursor-based pagination against
	// this upstream is known to loop when the response shape drifts.
	// Default 100.
	MaxPages int
	// MaxAds caps records collected per target. 0 means unlimited.
	MaxAds int
	// Retry governs per-page fetch retries for transient transport errors.
	Retry resilience.RetryConfig
}

func (c DriverConfig) withDefaults() DriverConfig {
	if c.MaxPages <= 0 {
		c.MaxPages = 100
	}
	return c
}

// Driver walks one target's ad listing to exhaustion: fetch, parse,
// normalize, dedup, repeat until the cursor runs out or the target fails.
// Each Driver is owned by exactly one worker goroutine; the only shared
// collaborator is the fetcher, which serializes its own rate gate.
type Driver struct {
	fetch    fetcher.Fetcher
	snapshot fetcher.Fetcher
	norm     *Normalizer
	cfg      DriverConfig
}

// NewDriver creates a pagination driver. snapshot may be nil when offline
// targets are not in play.
func NewDriver(fetch fetcher.Fetcher, snapshot fetcher.Fetcher, norm *Normalizer, cfg DriverConfig) *Driver {
	if snapshot == nil {
		snapshot = fetcher.SnapshotFetcher{}
	}
	return &Driver{fetch: fetch, snapshot: snapshot, norm: norm, cfg: cfg.withDefaults()}
}

// Run drives the target to a terminal state and returns everything collected
// along the way. The result always carries the records and diagnostics
// accumulated before any failure; a failed page never discards prior pages.
func (d *Driver) Run(ctx context.Context, target model.TargetSpec) model.TargetResult {
	log := zap.L().With(zap.String("target", target.Label()))

	pageURL := target.GalleryURL()
	pages := d.fetch
	if target.SnapshotPath != "" {
		pageURL = target.SnapshotPath
		pages = d.snapshot
	}

	tc := TargetContext{AdvertiserID: target.AdvertiserID, StartURL: pageURL}
	diag := model.NewDiagnostics()
	result := model.TargetResult{
		Target:      target,
		Status:      model.TargetRunning,
		Diagnostics: diag,
	}

	seenCreatives := make(map[string]struct{})
	seenCursors := make(map[string]struct{})
	cursor := ""

	fail := func(err error) model.TargetResult {
		result.Status = model.TargetFailed
		result.Error = err.Error()
		log.Warn("target failed",
			zap.Int("pages", diag.PagesFetched),
			zap.Int("records", len(result.Records)),
			zap.Error(err),
		)
		return result
	}

	for pageNum := 1; ; pageNum++ {
		if pageNum > d.cfg.MaxPages {
			diag.Flag(model.FlagMaxPageCeiling)
			return fail(eris.Errorf("paginate: exceeded max page ceiling (%d); cursor loop suspected", d.cfg.MaxPages))
		}

		retry := d.cfg.Retry
		retry.OnRetry = resilience.RetryLogger(target.Label(), "fetch page")
		raw, err := resilience.DoVal(ctx, retry, func(ctx context.Context) ([]byte, error) {
			return pages.FetchPage(ctx, fetcher.PageRequest{URL: pageURL, Cursor: cursor})
		})
		if err != nil {
			return fail(eris.Wrapf(err, "paginate: page %d", pageNum))
		}

		page, err := ParsePage(raw)
		if err != nil {
			// A malformed page after at least one valid one is treated as a
			// shape drift at the end of the listing: keep what we have. With
			// no valid prior cursor there is nothing to keep the target
			// anchored to, so it fails.
			if IsMalformed(err) && cursor != "" {
				diag.Flag(model.FlagMalformedPage)
				log.Warn("malformed page after valid pages, stopping target", zap.Error(err))
				break
			}
			return fail(eris.Wrapf(err, "paginate: page %d", pageNum))
		}
		diag.PagesFetched++

		for _, entry := range page.Entries {
			rec, skip := d.norm.Normalize(entry, tc, diag)
			if skip != "" {
				diag.Skip(skip)
				continue
			}
			if _, dup := seenCreatives[rec.Key()]; dup {
				// Pages can overlap after upstream retries; re-seeing a
				// creative is expected and keeps the driver idempotent.
				diag.Skip(model.SkipDuplicateCreative)
				continue
			}
			seenCreatives[rec.Key()] = struct{}{}
			result.Records = append(result.Records, *rec)
			diag.RecordsEmitted++

			if d.cfg.MaxAds > 0 && len(result.Records) >= d.cfg.MaxAds {
				log.Info("reached per-target ad cap", zap.Int("max_ads", d.cfg.MaxAds))
				result.Status = model.TargetExhausted
				return result
			}
		}

		if page.CursorMissing {
			diag.Flag(model.FlagMissingCursor)
			break
		}
		if page.NextCursor == "" {
			break
		}
		if _, cycled := seenCursors[page.NextCursor]; cycled {
			diag.Flag(model.FlagCursorCycle)
			return fail(eris.Errorf("paginate: cursor %q repeated; aborting loop", page.NextCursor))
		}
		seenCursors[page.NextCursor] = struct{}{}
		cursor = page.NextCursor
	}

	result.Status = model.TargetExhausted
	log.Info("target exhausted",
		zap.Int("pages", diag.PagesFetched),
		zap.Int("records", len(result.Records)),
		zap.Int("skips", diag.SkipCount()),
	)
	return result
}
