package metric

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yndnr/railstate-go/internal/core/domain"
)

const namespace = "railstate"

// ResultOK labels operations that returned no error.
const ResultOK = "ok"

// Registry holds all application metrics.
type Registry struct {
	registry *prometheus.Registry

	OpsTotal   *prometheus.CounterVec
	OpDuration *prometheus.HistogramVec
}

// NewRegistry creates a registry with the Go runtime and process
// collectors and the state operation metrics.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		OpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "State operations by backend and result code.",
		}, []string{"op", "backend", "result"}),
		OpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of state operations.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"op", "backend"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.OpsTotal,
		r.OpDuration,
	)
	return r
}

// ObserveOp records one state operation. It implements state.Observer.
func (r *Registry) ObserveOp(op, backend string, err error, elapsed time.Duration) {
	if backend == "" {
		backend = "none"
	}
	r.OpsTotal.WithLabelValues(op, backend, resultLabel(err)).Inc()
	r.OpDuration.WithLabelValues(op, backend).Observe(elapsed.Seconds())
}

// MustRegister registers additional collectors, such as a stats Collector.
func (r *Registry) MustRegister(cs ...prometheus.Collector) {
	r.registry.MustRegister(cs...)
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// resultLabel keeps the label set bounded: domain error codes, "ok", or
// "error" for anything unclassified.
func resultLabel(err error) string {
	if err == nil {
		return ResultOK
	}
	if code := domain.GetErrorCode(err); code != "" {
		return code
	}
	return "error"
}
