package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bouncestorage/bounce-stats/pkg/config"
	"github.com/bouncestorage/bounce-stats/pkg/logging"
	"github.com/bouncestorage/bounce-stats/pkg/metrics"
	"github.com/bouncestorage/bounce-stats/pkg/report"
	"github.com/bouncestorage/bounce-stats/pkg/usagestats"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type serveOptions struct {
	listen   string
	interval time.Duration
}

func newServeCmd(g *globalOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Aggregate on an interval and expose the latest result set",
		Long: `Runs an aggregation every --interval. The latest completed result set is
served as JSON on /api/stats and as Prometheus gauges on /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, g, opts)
		},
	}
	cmd.Flags().StringVar(&opts.listen, "listen", "", "HTTP listen address (default serve.listen)")
	cmd.Flags().DurationVar(&opts.interval, "interval", 0, "time between aggregations (default serve.interval)")
	return cmd
}

func runServe(cmd *cobra.Command, g *globalOptions, opts *serveOptions) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}
	if opts.listen != "" {
		cfg.Serve.Listen = opts.listen
	}
	if opts.interval > 0 {
		cfg.Serve.Interval = opts.interval
	}

	ctx := cmd.Context()
	log := logging.WithComponent("serve")

	agg, closeNotifiers, err := newServeAggregator(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeNotifiers()

	srv := &http.Server{
		Addr:              cfg.Serve.Listen,
		Handler:           newServeMux(agg),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	log.Info().
		Str("listen", cfg.Serve.Listen).
		Dur("interval", cfg.Serve.Interval).
		Int("object_stores", len(cfg.ObjectStores)).
		Msg("serving usage statistics")

	loopErr := aggregateLoop(ctx, agg, cfg.ObjectStores, cfg.Serve.Interval, errCh, log)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	return loopErr
}

// newServeAggregator wires the instrumented series client and every
// configured completion subscriber.
func newServeAggregator(ctx context.Context, cfg *config.Config) (*usagestats.Aggregator, func(), error) {
	client, err := newQuerier(cfg)
	if err != nil {
		return nil, nil, err
	}
	m := metrics.NewMetrics(nil)

	aggOpts, closeNotifier, err := natsNotifier(cfg)
	if err != nil {
		return nil, nil, err
	}
	aggOpts = append(aggOpts, usagestats.WithNotifier(m))

	if cfg.Report.Bucket != "" {
		uploader, err := report.NewUploader(ctx, cfg.Report.Bucket, cfg.Report.Prefix, cfg.Report.Region)
		if err != nil {
			closeNotifier()
			return nil, nil, err
		}
		aggOpts = append(aggOpts, usagestats.WithNotifier(uploader))
	}

	return usagestats.NewAggregator(m.InstrumentQuerier(client), aggOpts...), closeNotifier, nil
}

func newServeMux(agg *usagestats.Aggregator) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/api/stats", statsHandler(agg))
	return mux
}

// statsHandler serves the latest completed run. Partial results of a run in
// progress are never exposed.
func statsHandler(agg *usagestats.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		c, ok := agg.LastCompletion()
		if !ok {
			http.Error(w, "no aggregation has completed yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := report.WriteJSON(w, c); err != nil {
			log := logging.WithComponent("serve")
			log.Warn().Err(err).Msg("write stats response")
		}
	}
}

// aggregateLoop starts a run immediately and then every interval until ctx is
// canceled. A tick is skipped while the previous run is still in flight.
func aggregateLoop(ctx context.Context, agg *usagestats.Aggregator, stores []usagestats.ObjectStore,
	interval time.Duration, errCh <-chan error, log zerolog.Logger) error {
	var current *usagestats.Run
	start := func() {
		if current != nil {
			select {
			case <-current.Done():
			default:
				log.Warn().
					Str("run_id", current.ID).
					Int64("pending_queries", current.Pending()).
					Msg("previous aggregation still running, skipping tick")
				return
			}
		}
		current = agg.GetStats(ctx, stores)
	}

	start()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			return fmt.Errorf("serve http: %w", err)
		case <-ticker.C:
			start()
		}
	}
}
