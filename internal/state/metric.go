package state

import (
	"context"
	"errors"
	"maps"
	"sort"
	"time"

	"github.com/yndnr/railstate-go/internal/core/codec"
	"github.com/yndnr/railstate-go/internal/core/domain"
	"github.com/yndnr/railstate-go/internal/storage"
)

// metricKind tags metric listing cursors.
const metricKind domain.Kind = "metric"

// maxMetricSlotProbes bounds how many later milliseconds RecordMetric
// tries when samples of one name collide.
const maxMetricSlotProbes = 16

// MetricPage is one page of metric samples ordered by RecordedAt.
type MetricPage struct {
	Samples    []*domain.MetricSample
	NextCursor string
}

// RecordMetric stores one sample of name under
// {prefix}_metric_{name}_{unix_millis} for ttl.metric.
func (s *Store) RecordMetric(ctx context.Context, name string, value float64, labels map[string]string) error {
	now := s.policy.Now().UTC()
	sample := &domain.MetricSample{
		Name:       name,
		Value:      value,
		Labels:     maps.Clone(labels),
		RecordedAt: now,
	}
	data, err := s.codec.EncodeValue(sample)
	if err != nil {
		return err
	}
	lifetime := s.policy.Metric()

	return s.run(ctx, "record_metric", func(b storage.Backend) error {
		ts := now
		for i := 0; i < maxMetricSlotProbes; i++ {
			key, err := s.ks.Metric(name, ts)
			if err != nil {
				return err
			}
			ok, err := b.SetNX(ctx, key, data, lifetime)
			if err != nil || ok {
				return err
			}
			ts = ts.Add(time.Millisecond)
		}
		return domain.ErrConflict.WithDetailsf("metric %s: no free slot after %d attempts", name, maxMetricSlotProbes)
	})
}

// ListMetrics returns samples of name. Each page visits at most
// opts.Limit keys.
func (s *Store) ListMetrics(ctx context.Context, name string, opts ListOptions) (*MetricPage, error) {
	if !domain.ValidMetricName(name) {
		return nil, domain.ErrValidation.WithViolations([]string{"metric name " + name + " is malformed"})
	}
	var cur *cursor
	if opts.Cursor != "" {
		c, err := parseCursor(opts.Cursor)
		if err != nil {
			return nil, err
		}
		if c.kind != metricKind {
			return nil, domain.ErrValidation.WithViolations([]string{"cursor belongs to another listing"})
		}
		cur = &c
	}

	var page *MetricPage
	err := s.run(ctx, "list_metrics", func(b storage.Backend) error {
		inner := ""
		if cur != nil {
			var err error
			if inner, err = cur.resume(b); err != nil {
				return err
			}
		}
		keys, next, err := b.Scan(ctx, s.ks.MetricPrefix(name), inner, opts.limit())
		if err != nil {
			return err
		}
		p := &MetricPage{Samples: make([]*domain.MetricSample, 0, len(keys))}
		for _, key := range keys {
			if _, ok := s.ks.ParseMetric(name, key); !ok {
				continue
			}
			data, err := b.Get(ctx, key)
			if errors.Is(err, storage.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			m, err := codec.DecodeMetric(data)
			if err != nil {
				s.logger.Warn("skipping corrupt metric sample", "key", key, "error", err)
				continue
			}
			if m.Name == name {
				p.Samples = append(p.Samples, m)
			}
		}
		sort.Slice(p.Samples, func(i, j int) bool {
			return p.Samples[i].RecordedAt.Before(p.Samples[j].RecordedAt)
		})
		if next != "" {
			p.NextCursor = cursor{backend: b.Name(), kind: metricKind, inner: next}.String()
		}
		page = p
		return nil
	})
	return page, err
}
