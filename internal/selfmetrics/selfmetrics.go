// Package selfmetrics exposes the agent's own health as Prometheus
// metrics (spec.md §4.9's self-observability requirement, C15),
// grounded on github.com/prometheus/client_golang, a direct teacher
// dependency.
package selfmetrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// Registry holds every self-observability metric the agent publishes.
// The counters are wired into the executor via plain function values
// (Executor.OnBufferDropped, Executor.OnPollError), not by that
// package importing this one, to keep the dependency direction
// pointing outward from the runtime core; the gauges are set once by
// the agent's main package at startup. OutputBuffersDropped is
// registered and exported, but nothing in the agent increments it.
type Registry struct {
	BuffersDropped       *prometheus.CounterVec
	OutputBuffersDropped *prometheus.CounterVec
	PollErrors           *prometheus.CounterVec
	PrioritySchedulerDegraded prometheus.Gauge
	SourcesActive        prometheus.Gauge
	TransformsActive     prometheus.Gauge
	OutputsActive        prometheus.Gauge

	reg *prometheus.Registry
}

func New() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,
		BuffersDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "alumet_buffers_dropped_total",
			Help: "Measurement buffers dropped because a source's consumer fell behind.",
		}, []string{"source"}),
		OutputBuffersDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "alumet_output_buffers_dropped_total",
			Help: "Measurement buffers dropped because an output repeatedly failed to write.",
		}, []string{"output"}),
		PollErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "alumet_poll_errors_total",
			Help: "Source poll failures, by outcome kind (retryable, fatal, timeout).",
		}, []string{"source", "kind"}),
		PrioritySchedulerDegraded: factory.NewGauge(prometheus.GaugeOpts{
			Name: "alumet_priority_scheduler_degraded",
			Help: "1 if, at startup, priority-class sources were running on the normal scheduler because elevation failed.",
		}),
		SourcesActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "alumet_sources_active",
			Help: "Number of sources registered by plugins at startup.",
		}),
		TransformsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "alumet_transforms_active",
			Help: "Number of transforms registered by plugins at startup.",
		}),
		OutputsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "alumet_outputs_active",
			Help: "Number of outputs registered by plugins at startup.",
		}),
	}
}

// Server serves /metrics on addr until its context is cancelled.
// Passing an empty addr disables self-metrics entirely.
type Server struct {
	httpServer *http.Server
}

func (r *Registry) NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}))
	return &Server{httpServer: &http.Server{Addr: addr, Handler: mux}}
}

// Run blocks until ctx is cancelled, then shuts the server down.
func (s *Server) Run(ctx context.Context, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.ListenAndServe() }()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("self-metrics server shutdown error", zap.Error(err))
		}
		return nil
	}
}
