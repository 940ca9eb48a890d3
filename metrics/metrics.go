// Package metrics exposes Prometheus counters and gauges for the
// streaming server: queue depth, dropped-buffer counts, and session
// lifecycle events.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the process-wide Prometheus collectors. Callers treat a
// nil *Metrics as "instrumentation disabled" and check for nil before
// each update, so metrics need not be instantiated when no
// --metrics-addr is configured. Serve must not be called on a nil
// *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	SessionsTotal   prometheus.Counter
	SessionsActive  prometheus.Gauge
	SamplesDropped  prometheus.Counter
	SamplesPushed   prometheus.Counter
	QueueDepth      prometheus.Gauge
	CommandsApplied *prometheus.CounterVec
}

// New constructs a Metrics registered against a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		SessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sdrtcpd",
			Name:      "sessions_total",
			Help:      "Total number of client sessions accepted.",
		}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sdrtcpd",
			Name:      "sessions_active",
			Help:      "Number of currently active client sessions (0 or 1).",
		}),
		SamplesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sdrtcpd",
			Name:      "sample_buffers_dropped_total",
			Help:      "Sample buffers discarded by drop-oldest queue overflow.",
		}),
		SamplesPushed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sdrtcpd",
			Name:      "sample_buffers_pushed_total",
			Help:      "Sample buffers pushed onto the session queue.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sdrtcpd",
			Name:      "sample_queue_depth",
			Help:      "Current length of the active session's sample queue.",
		}),
		CommandsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sdrtcpd",
			Name:      "commands_applied_total",
			Help:      "Control commands applied, by command name.",
		}, []string{"command"}),
	}

	reg.MustRegister(
		m.SessionsTotal,
		m.SessionsActive,
		m.SamplesDropped,
		m.SamplesPushed,
		m.QueueDepth,
		m.CommandsApplied,
	)
	return m
}

// Serve runs a /metrics HTTP endpoint on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Close()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
