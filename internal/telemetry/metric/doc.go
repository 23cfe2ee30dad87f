// Package metric provides Prometheus metrics for RailState.
//
// This package implements metrics collection and exposition:
//
//   - prometheus.go: registry, per-operation counters and latency histograms, HTTP handler
//   - collector.go: collector exporting state.Stats at scrape time
//
// Metrics are exposed at /metrics in Prometheus format.
package metric
