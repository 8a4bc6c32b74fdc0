// Package metrics provides Prometheus instrumentation for ledger runs.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RunsTotal counts pipeline runs by outcome.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fno_ledger_runs_total",
		Help: "Total number of ledger runs",
	}, []string{"outcome"})

	// RowsTotal counts raw tradebook rows by disposition (accepted, parse_failure, missing_field).
	RowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fno_ledger_rows_total",
		Help: "Raw tradebook rows seen, by disposition",
	}, []string{"disposition"})

	// TradeClassifications counts ledger classifications.
	TradeClassifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fno_ledger_trade_classifications_total",
		Help: "Trades applied to the lot ledger, by classification",
	}, []string{"classification"})

	// Flips counts exits that over-closed and opened a lot the other way.
	Flips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fno_ledger_flips_total",
		Help: "Over-closing exits that opened a flipped lot",
	})

	// StrategiesTotal counts classified strategy records by type.
	StrategiesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fno_ledger_strategies_total",
		Help: "Strategy records classified, by type",
	}, []string{"type"})

	// StageDuration tracks how long each pipeline stage takes.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fno_ledger_stage_duration_seconds",
		Help:    "Pipeline stage duration in seconds",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"stage"})

	// OpenEntries tracks entries left unsettled at the end of the last run.
	OpenEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fno_ledger_open_entries",
		Help: "Entries still open at the as-of date after the last run",
	})
)

// ObserveStage records the duration of a stage that started at start.
func ObserveStage(stage string, start time.Time) {
	StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
