// Package run fans the pagination driver out across targets and aggregates
// the results into one ordered output stream.
package run

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/adscope-cli/internal/extract"
	"github.com/sells-group/adscope-cli/internal/fetcher"
	"github.com/sells-group/adscope-cli/internal/model"
)

// Config bounds a coordinator run.
type Config struct {
	// Concurrency is the maximum number of targets in flight. Default 4.
	// Within a target pagination stays strictly sequential: each page's
	// cursor depends on the prior page.
	Concurrency int
	// TargetBudget is the per-target wall-clock ceiling, a second safety
	// valve beyond the driver's max-page count. 0 disables it.
	TargetBudget time.Duration
	// Driver configures each target's pagination driver.
	Driver extract.DriverConfig
}

// Result is a finished run: all records in aggregation order (target
// submission order, then within-target discovery order), per-target
// outcomes, and merged diagnostics.
type Result struct {
	Records       []model.AdRecord
	Targets       []model.TargetResult
	Diagnostics   *model.Diagnostics
	FailedTargets []string
}

// Status summarizes the run for the run log: complete when every target
// exhausted, partial when some failed, failed only for coordinator-level
// faults (which surface as errors instead).
func (r *Result) Status() model.RunStatus {
	if len(r.FailedTargets) > 0 {
		return model.RunStatusPartial
	}
	return model.RunStatusComplete
}

// Coordinator runs the extraction pipeline across a set of targets.
type Coordinator struct {
	fetch fetcher.Fetcher
	cfg   Config
}

// NewCoordinator creates a Coordinator using the given shared fetcher. The
// fetcher's rate gate is the single cross-target shared resource; everything
// else each worker owns exclusively.
func NewCoordinator(fetch fetcher.Fetcher, cfg Config) *Coordinator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Coordinator{fetch: fetch, cfg: cfg}
}

// Run extracts all targets and aggregates their outputs. A failed target
// never aborts its siblings; the error return is reserved for
// coordinator-level faults such as an empty target list. Cancellation is
// cooperative: in-flight fetches finish or time out, no further pages are
// fetched, and records already collected are returned.
func (c *Coordinator) Run(ctx context.Context, targets []model.TargetSpec) (*Result, error) {
	if len(targets) == 0 {
		return nil, eris.New("run: no targets supplied")
	}

	log := zap.L().With(zap.String("component", "run.coordinator"))
	log.Info("starting run",
		zap.Int("targets", len(targets)),
		zap.Int("concurrency", c.cfg.Concurrency),
	)

	norm := extract.NewNormalizer()

	// One result slot per target keeps aggregation order deterministic and
	// gives each worker a slot nobody else touches.
	results := make([]model.TargetResult, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)

	for i, target := range targets {
		g.Go(func() error {
			tctx := gctx
			if c.cfg.TargetBudget > 0 {
				var cancel context.CancelFunc
				tctx, cancel = context.WithTimeout(gctx, c.cfg.TargetBudget)
				defer cancel()
			}

			driver := extract.NewDriver(c.fetch, nil, norm, c.cfg.Driver)
			results[i] = driver.Run(tctx, target)
			return nil // target failures are isolated, never abort siblings
		})
	}

	// Workers always return nil; Wait only propagates ctx cancellation.
	_ = g.Wait()

	res := &Result{
		Targets:     results,
		Diagnostics: model.NewDiagnostics(),
	}
	for i := range results {
		tr := &results[i]
		if tr.Status == "" {
			// Worker never ran (cancelled before start).
			tr.Status = model.TargetFailed
			tr.Target = targets[i]
			tr.Error = context.Canceled.Error()
		}
		res.Records = append(res.Records, tr.Records...)
		res.Diagnostics.Merge(tr.Diagnostics)
		if tr.Status == model.TargetFailed {
			res.FailedTargets = append(res.FailedTargets, tr.Target.Label())
		}
	}

	log.Info("run finished",
		zap.Int("records", len(res.Records)),
		zap.Int("failed_targets", len(res.FailedTargets)),
		zap.Int("skips", res.Diagnostics.SkipCount()),
	)
	return res, nil
}
