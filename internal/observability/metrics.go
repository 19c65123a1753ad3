// Package observability exposes Prometheus instrumentation for the
// backtest, optimizer, and walk-forward runs, and a minimal HTTP server
// to serve it on /metrics.
package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RunMetrics holds the Prometheus collectors for a backtest run.
type RunMetrics struct {
	BarsProcessed       *prometheus.CounterVec
	BacktestsCompleted  *prometheus.CounterVec
	BacktestDuration    *prometheus.HistogramVec
	OptimizerEvaluated  prometheus.Counter
	WalkForwardPeriods  prometheus.Counter
	MonteCarloRuns      prometheus.Counter
}

// NewRunMetrics creates and registers the collectors under namespace.
func NewRunMetrics(namespace string) *RunMetrics {
	if namespace == "" {
		namespace = "backtester"
	}

	return &RunMetrics{
		BarsProcessed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bars_processed_total",
				Help:      "Total number of historical bars replayed through strategies",
			},
			[]string{"symbol"},
		),
		BacktestsCompleted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backtests_completed_total",
				Help:      "Total number of completed backtest runs",
			},
			[]string{"strategy", "symbol"},
		),
		BacktestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backtest_duration_seconds",
				Help:      "Wall-clock duration of a single backtest run",
				Buckets:   []float64{.05, .1, .5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"strategy", "symbol"},
		),
		OptimizerEvaluated: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "optimizer_combinations_evaluated_total",
				Help:      "Total number of parameter combinations evaluated by the grid search optimizer",
			},
		),
		WalkForwardPeriods: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "walkforward_periods_completed_total",
				Help:      "Total number of walk-forward periods completed",
			},
		),
		MonteCarloRuns: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "montecarlo_simulations_total",
				Help:      "Total number of Monte Carlo bootstrap simulations run",
			},
		),
	}
}

// ObserveBacktest records a completed backtest's duration and bumps its
// counters. Call from the CLI after engine.Run returns successfully.
func (m *RunMetrics) ObserveBacktest(strategyName, symbol string, bars int, duration time.Duration) {
	m.BarsProcessed.WithLabelValues(symbol).Add(float64(bars))
	m.BacktestsCompleted.WithLabelValues(strategyName, symbol).Inc()
	m.BacktestDuration.WithLabelValues(strategyName, symbol).Observe(duration.Seconds())
}

// Server serves Prometheus metrics on /metrics over HTTP.
type Server struct {
	httpServer *http.Server
	logger     zerolog.Logger
}

// NewServer builds a metrics server bound to addr. Start is non-blocking;
// call Shutdown to stop it.
func NewServer(addr string, logger zerolog.Logger) *Server {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())

	return &Server{
		httpServer: &http.Server{
			Addr:    addr,
			Handler: r,
		},
		logger: logger.With().Str("component", "metrics_server").Logger(),
	}
}

// Start launches the HTTP server in a background goroutine.
func (s *Server) Start() {
	go func() {
		s.logger.Info().Str("addr", s.httpServer.Addr).Msg("Serving Prometheus metrics")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server stopped unexpectedly")
		}
	}()
}

// Shutdown gracefully stops the metrics server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
