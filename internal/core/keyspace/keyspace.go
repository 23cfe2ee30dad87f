// Package keyspace builds and parses RailState storage keys.
//
// The layout is fixed for interoperability with external inspection tools:
//
//	{prefix}_workflow_{id}
//	{prefix}_approval_{id}
//	{prefix}_test_{id}
//	{prefix}_lock_{resource_id}
//	{prefix}_metric_{name}_{unix_millis}
package keyspace

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/yndnr/railstate-go/internal/core/domain"
)

// DefaultPrefix is the key prefix used when none is configured.
const DefaultPrefix = "ai_rails"

const (
	lockSegment   = "lock"
	metricSegment = "metric"
)

var prefixPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]{0,63}$`)

// Keyspace builds keys under one prefix.
type Keyspace struct {
	prefix string
}

// New returns a Keyspace for prefix. An empty prefix selects DefaultPrefix.
func New(prefix string) (Keyspace, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if !prefixPattern.MatchString(prefix) {
		return Keyspace{}, domain.ErrValidation.WithViolations([]string{
			fmt.Sprintf("key prefix %q contains unsupported characters", prefix),
		})
	}
	return Keyspace{prefix: prefix}, nil
}

// MustNew is New that panics on error.
func MustNew(prefix string) Keyspace {
	ks, err := New(prefix)
	if err != nil {
		panic(err)
	}
	return ks
}

// Prefix returns the configured prefix.
func (k Keyspace) Prefix() string { return k.prefix }

// Key returns the storage key of an entity after validating its id.
func (k Keyspace) Key(kind domain.Kind, id string) (string, error) {
	if err := domain.ValidateID(kind, id); err != nil {
		return "", err
	}
	return k.KindPrefix(kind) + id, nil
}

// KindPrefix returns the common prefix of every key of kind.
func (k Keyspace) KindPrefix(kind domain.Kind) string {
	return k.prefix + "_" + string(kind) + "_"
}

// Lock returns the lock key guarding the resource with the given key.
func (k Keyspace) Lock(resourceID string) string {
	return k.prefix + "_" + lockSegment + "_" + resourceID
}

// MetricPrefix returns the prefix shared by every sample of name.
func (k Keyspace) MetricPrefix(name string) string {
	return k.prefix + "_" + metricSegment + "_" + name + "_"
}

// Metric returns the key of the sample of name recorded at ts.
func (k Keyspace) Metric(name string, ts time.Time) (string, error) {
	if !domain.ValidMetricName(name) {
		return "", domain.ErrValidation.WithViolations([]string{
			fmt.Sprintf("metric name %q is malformed", name),
		})
	}
	return k.MetricPrefix(name) + strconv.FormatInt(ts.UnixMilli(), 10), nil
}

// Parse splits an entity key into kind and id.
func (k Keyspace) Parse(key string) (domain.Kind, string, bool) {
	for _, kind := range domain.Kinds {
		p := k.KindPrefix(kind)
		if id, ok := strings.CutPrefix(key, p); ok && id != "" {
			return kind, id, true
		}
	}
	return "", "", false
}

// ParseMetric extracts the sample timestamp from a metric key of name.
func (k Keyspace) ParseMetric(name, key string) (time.Time, bool) {
	rest, ok := strings.CutPrefix(key, k.MetricPrefix(name))
	if !ok {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms).UTC(), true
}
