package main

import (
	"context"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/adscope-cli/internal/export"
	"github.com/sells-group/adscope-cli/internal/extract"
	"github.com/sells-group/adscope-cli/internal/fetcher"
	"github.com/sells-group/adscope-cli/internal/model"
	"github.com/sells-group/adscope-cli/internal/resilience"
	"github.com/sells-group/adscope-cli/internal/run"
)

var (
	scrapeInput      string
	scrapeOutput     string
	scrapeAdvertiser string
	scrapeDomain     string
	scrapeMaxPages   int
	scrapeMaxAds     int
	scrapeWorkers    int
	scrapeNoStore    bool
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Extract ads for one or more advertiser targets",
	Long: `Paginates each target's ad listing, normalizes every entry into the
canonical record schema, dedups within the run, and writes the combined
output. The export format follows the output file extension
(.json, .csv, .xlsx, .html).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		targets, err := resolveTargets()
		if err != nil {
			return err
		}

		outPath := scrapeOutput
		if outPath == "" {
			outPath = filepath.Join(cfg.Export.Dir, cfg.Export.Filename)
		}

		maxPages := scrapeMaxPages
		if maxPages == 0 {
			maxPages = cfg.Scrape.MaxPages
		}
		maxAds := scrapeMaxAds
		if maxAds == 0 {
			maxAds = cfg.Scrape.MaxAdsPerTarget
		}
		workers := scrapeWorkers
		if workers == 0 {
			workers = cfg.Scrape.Concurrency
		}

		fetch := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:   cfg.HTTP.UserAgent,
			Timeout:     time.Duration(cfg.HTTP.TimeoutSecs) * time.Second,
			MinInterval: time.Duration(cfg.HTTP.MinIntervalMs) * time.Millisecond,
		})

		coord := run.NewCoordinator(fetch, run.Config{
			Concurrency:  workers,
			TargetBudget: time.Duration(cfg.Scrape.TargetBudgetSecs) * time.Second,
			Driver: extract.DriverConfig{
				MaxPages: maxPages,
				MaxAds:   maxAds,
				Retry: resilience.FromConfig(
					cfg.Scrape.Retry.MaxAttempts,
					cfg.Scrape.Retry.InitialBackoffMs,
					cfg.Scrape.Retry.MaxBackoffMs,
				),
			},
		})

		var rec runRecorder
		if !scrapeNoStore {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			if err := st.Migrate(ctx); err != nil {
				return eris.Wrap(err, "migrate store")
			}
			rec.store = st
		}

		runRow, err := rec.begin(ctx, len(targets))
		if err != nil {
			return err
		}

		result, err := coord.Run(ctx, targets)
		if err != nil {
			rec.fail(runRow)
			return err
		}

		if err := rec.finish(ctx, runRow, result); err != nil {
			zap.L().Warn("record run", zap.Error(err))
		}

		if err := export.Write(result.Records, result.Diagnostics, outPath); err != nil {
			return eris.Wrap(err, "write output")
		}

		zap.L().Info("scrape complete",
			zap.String("output", outPath),
			zap.Int("records", len(result.Records)),
			zap.Strings("failed_targets", result.FailedTargets),
			zap.String("status", string(result.Status())),
		)
		return nil
	},
}

// resolveTargets builds the target list from either a targets file or the
// single-advertiser flags.
func resolveTargets() ([]model.TargetSpec, error) {
	if scrapeInput != "" {
		return model.LoadTargets(scrapeInput)
	}
	if scrapeAdvertiser == "" && scrapeDomain == "" {
		return nil, eris.New("either --input or --advertiser/--domain is required")
	}
	t := model.TargetSpec{
		AdvertiserID: scrapeAdvertiser,
		Domain:       scrapeDomain,
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return []model.TargetSpec{t}, nil
}

// runRecorder writes run-log rows when a store is configured and is a no-op
// otherwise.
type runRecorder struct {
	store storeIface
}

type storeIface interface {
	CreateRun(ctx context.Context, targets int) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, status model.RunStatus, records int, failedTargets []string, diag *model.Diagnostics) error
	RecordTargetResult(ctx context.Context, runID string, result model.TargetResult) error
}

func (r *runRecorder) begin(ctx context.Context, targets int) (*model.Run, error) {
	if r.store == nil {
		return nil, nil
	}
	row, err := r.store.CreateRun(ctx, targets)
	if err != nil {
		return nil, eris.Wrap(err, "create run")
	}
	return row, nil
}

func (r *runRecorder) fail(row *model.Run) {
	if r.store == nil || row == nil {
		return
	}
	// Best effort on a fresh context: the run context may already be dead.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.store.CompleteRun(ctx, row.ID, model.RunStatusFailed, 0, nil, nil); err != nil {
		zap.L().Warn("mark run failed", zap.Error(err))
	}
}

func (r *runRecorder) finish(ctx context.Context, row *model.Run, result *run.Result) error {
	if r.store == nil || row == nil {
		return nil
	}
	for _, tr := range result.Targets {
		if err := r.store.RecordTargetResult(ctx, row.ID, tr); err != nil {
			return err
		}
	}
	return r.store.CompleteRun(ctx, row.ID, result.Status(), len(result.Records), result.FailedTargets, result.Diagnostics)
}

func init() {
	scrapeCmd.Flags().StringVarP(&scrapeInput, "input", "i", "", "targets file (.json or .yaml)")
	scrapeCmd.Flags().StringVarP(&scrapeOutput, "output", "o", "", "output path; format follows extension (default from config)")
	scrapeCmd.Flags().StringVar(&scrapeAdvertiser, "advertiser", "", "single advertiser ID to scrape")
	scrapeCmd.Flags().StringVar(&scrapeDomain, "domain", "", "advertiser domain for a single-target scrape")
	scrapeCmd.Flags().IntVar(&scrapeMaxPages, "max-pages", 0, "per-target page ceiling (default from config)")
	scrapeCmd.Flags().IntVar(&scrapeMaxAds, "max-ads", 0, "per-target record cap, 0 for unlimited")
	scrapeCmd.Flags().IntVar(&scrapeWorkers, "concurrency", 0, "targets in flight at once (default from config)")
	scrapeCmd.Flags().BoolVar(&scrapeNoStore, "no-store", false, "skip run-log persistence")
	rootCmd.AddCommand(scrapeCmd)
}
