package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/adscope-cli/internal/extract"
	"github.com/sells-group/adscope-cli/internal/fetcher"
	"github.com/sells-group/adscope-cli/internal/model"
	"github.com/sells-group/adscope-cli/internal/resilience"
	"github.com/sells-group/adscope-cli/internal/run"
	"github.com/sells-group/adscope-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for scrape requests and run history",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		fetch := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:   cfg.HTTP.UserAgent,
			Timeout:     time.Duration(cfg.HTTP.TimeoutSecs) * time.Second,
			MinInterval: time.Duration(cfg.HTTP.MinIntervalMs) * time.Millisecond,
		})
		coord := run.NewCoordinator(fetch, run.Config{
			Concurrency:  cfg.Scrape.Concurrency,
			TargetBudget: time.Duration(cfg.Scrape.TargetBudgetSecs) * time.Second,
			Driver: extract.DriverConfig{
				MaxPages: cfg.Scrape.MaxPages,
				MaxAds:   cfg.Scrape.MaxAdsPerTarget,
				Retry: resilience.FromConfig(
					cfg.Scrape.Retry.MaxAttempts,
					cfg.Scrape.Retry.InitialBackoffMs,
					cfg.Scrape.Retry.MaxBackoffMs,
				),
			},
		})

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST"},
			AllowedHeaders: []string{"Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Get("/runs", func(w http.ResponseWriter, req *http.Request) {
			runs, err := st.ListRuns(req.Context(), store.RunFilter{
				Status: model.RunStatus(req.URL.Query().Get("status")),
				Limit:  50,
			})
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, runs)
		})

		r.Get("/runs/{id}", func(w http.ResponseWriter, req *http.Request) {
			id := chi.URLParam(req, "id")
			row, err := st.GetRun(req.Context(), id)
			if err != nil {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
				return
			}
			targets, err := st.ListTargetResults(req.Context(), id)
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, struct {
				Run     *model.Run           `json:"run"`
				Targets []model.TargetResult `json:"targets,omitempty"`
			}{row, targets})
		})

		r.Post("/scrape", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Targets []model.TargetSpec `json:"targets"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
				return
			}
			if len(body.Targets) == 0 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "targets is required"})
				return
			}
			for i := range body.Targets {
				if err := body.Targets[i].Validate(); err != nil {
					writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
					return
				}
			}

			row, err := st.CreateRun(req.Context(), len(body.Targets))
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}

			// Run the scrape asynchronously against the server context so it
			// survives the request but dies with the server.
			go func(targets []model.TargetSpec, runID string) {
				result, err := coord.Run(ctx, targets)
				if err != nil {
					zap.L().Error("scrape failed", zap.String("run_id", runID), zap.Error(err))
					if cerr := st.CompleteRun(ctx, runID, model.RunStatusFailed, 0, nil, nil); cerr != nil {
						zap.L().Warn("mark run failed", zap.Error(cerr))
					}
					return
				}
				for _, tr := range result.Targets {
					if err := st.RecordTargetResult(ctx, runID, tr); err != nil {
						zap.L().Warn("record target result", zap.Error(err))
					}
				}
				if err := st.CompleteRun(ctx, runID, result.Status(), len(result.Records), result.FailedTargets, result.Diagnostics); err != nil {
					zap.L().Warn("complete run", zap.Error(err))
				}
				zap.L().Info("scrape finished",
					zap.String("run_id", runID),
					zap.Int("records", len(result.Records)),
					zap.String("status", string(result.Status())),
				)
			}(body.Targets, row.ID)

			writeJSON(w, http.StatusAccepted, map[string]string{
				"status": "accepted",
				"run_id": row.ID,
			})
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			if err := drainServer(srv, 10*time.Second); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// drainServer shuts srv down on its own deadline. The signal context that
// triggers shutdown is already cancelled, so it cannot be the drain context.
func drainServer(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
