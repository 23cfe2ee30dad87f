package domain

import (
	"math"
	"regexp"
	"time"
)

// Metric constraints.
const (
	MaxMetricLabels = 32
)

var metricNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_.]{0,63}$`)

// ValidMetricName reports whether name is usable inside a metric key.
func ValidMetricName(name string) bool {
	return metricNamePattern.MatchString(name)
}

// MetricSample is one recorded value of a named metric.
type MetricSample struct {
	Name       string            `json:"name"`
	Value      float64           `json:"value"`
	Labels     map[string]string `json:"labels,omitempty"`
	RecordedAt time.Time         `json:"recorded_at"`
}

// Validate validates the sample against all of its constraints.
func (m *MetricSample) Validate() error {
	var v violations
	if !ValidMetricName(m.Name) {
		v.add("metric name %q must match [a-z][a-z0-9_.]{0,63}", m.Name)
	}
	if math.IsNaN(m.Value) || math.IsInf(m.Value, 0) {
		v.add("metric value must be finite")
	}
	if len(m.Labels) > MaxMetricLabels {
		v.add("metric has %d labels, limit is %d", len(m.Labels), MaxMetricLabels)
	}
	for k := range m.Labels {
		if k == "" {
			v.add("metric label name must not be empty")
		}
	}
	v.requireTime("recorded_at", m.RecordedAt)
	return v.err()
}
