package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/jward/novadb/internal/memory"
	"github.com/jward/novadb/internal/stats"
	"github.com/jward/novadb/internal/watch"
)

func newWatchCmd(a *app) *cobra.Command {
	var (
		metricsAddr string
		heapBudget  uint64
	)
	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Keep a project's index and cache up to date as files change",
		Long:  "Indexes the project, then reindexes and persists after every quiet period following file changes. With --metrics-addr, query statistics are served in Prometheus format at /metrics.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w, err := a.open(cmd, args)
			if err != nil {
				return err
			}
			defer w.Close()

			if metricsAddr != "" {
				stop := serveMetrics(metricsAddr, w, w.logger)
				defer stop()
			}

			pressure := memory.HeapSource{Budget: heapBudget}
			reindex := func(ctx context.Context) error {
				start := time.Now()
				idx, err := w.indexes()
				if err != nil {
					return err
				}
				if err := w.db.PersistProjectIndexes(project); err != nil {
					return err
				}
				if level, n := w.db.RespondToPressure(pressure); n > 0 {
					w.logger.Info("evicted memos",
						slog.String("pressure", level.String()), slog.Int("memos", n))
				}
				w.logger.Info("index updated",
					slog.Int("symbols", idx.SymbolCount()),
					slog.Uint64("generation", idx.Generation),
					slog.Duration("elapsed", time.Since(start)))
				return nil
			}
			if err := reindex(ctx); err != nil {
				return err
			}

			watcher, err := watch.New(w.root, w.cfg.Index, time.Duration(w.cfg.Watch.Debounce), w.logger)
			if err != nil {
				return err
			}
			defer watcher.Close()
			w.logger.Info("watching", slog.String("root", w.root))

			return watcher.Run(ctx, func(ctx context.Context, rels []string) error {
				n, err := w.project.Refresh(ctx, rels)
				if err != nil {
					if errors.Is(err, context.Canceled) {
						return nil
					}
					return err
				}
				w.logger.Debug("files changed", slog.Int("events", len(rels)), slog.Int("changed", n))
				if n == 0 {
					return nil
				}
				return reindex(ctx)
			})
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	cmd.Flags().Uint64Var(&heapBudget, "heap-budget", 0, "heap bytes considered full for memo eviction (0: derive from the runtime)")
	return cmd
}

// serveMetrics exposes the workspace's query statistics and returns a
// function that shuts the server down.
func serveMetrics(addr string, w *workspace, logger *slog.Logger) func() {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		stats.NewExporter("novadb", w.stats, w.db.SalsaMemoBytes),
		collectors.NewGoCollector(),
	)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", slog.String("addr", addr), slog.Any("error", err))
		}
	}()
	logger.Info("serving metrics", slog.String("addr", addr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}
