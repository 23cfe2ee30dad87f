// Package codec validates and serializes stored records.
//
// Every record is wrapped in an envelope:
//
//	{"kind":"workflow","version":3,"stored_at":"...","expires_at":"...","record":{...}}
//
// Encoding is canonical JSON (struct field order, sorted map keys) and
// bounded in size. Decoding is strict: unknown fields are ignored but a
// missing required field fails the decode instead of being default-filled.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/yndnr/railstate-go/internal/config"
	"github.com/yndnr/railstate-go/internal/core/domain"
)

// Envelope is the decoded form of a stored value.
type Envelope struct {
	Kind      domain.Kind
	Version   uint64
	StoredAt  time.Time
	ExpiresAt time.Time
	Entity    domain.Entity
}

// Expired reports whether the envelope's absolute expiry has passed.
func (e *Envelope) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

type wireEnvelope struct {
	Kind      domain.Kind     `json:"kind"`
	Version   uint64          `json:"version"`
	StoredAt  time.Time       `json:"stored_at"`
	ExpiresAt time.Time       `json:"expires_at"`
	Record    json.RawMessage `json:"record"`
}

var (
	envelopeFields = []string{"kind", "version", "stored_at", "expires_at", "record"}

	requiredFields = map[domain.Kind][]string{
		domain.KindWorkflow: {"workflow_id", "status", "feature_description", "current_stage", "created_at", "last_updated", "ttl_hours"},
		domain.KindApproval: {"approval_id", "workflow_id", "request_type", "content", "requester", "created_at", "expires_at", "status"},
		domain.KindTest:     {"test_id", "workflow_id", "test_suite", "passed", "failed", "skipped", "duration_seconds", "executed_at"},
	}
)

// Codec encodes and decodes envelopes under a payload size limit.
type Codec struct {
	maxBytes int
}

// New creates a Codec from configuration.
func New(cfg config.CodecSection) *Codec {
	limit := cfg.MaxPayloadBytes
	if limit <= 0 {
		limit = config.DefaultMaxPayloadBytes
	}
	return &Codec{maxBytes: limit}
}

// MaxBytes returns the payload size limit.
func (c *Codec) MaxBytes() int { return c.maxBytes }

// Encode validates e and returns its envelope bytes.
func (c *Codec) Encode(e domain.Entity, version uint64, storedAt, expiresAt time.Time) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	record, err := json.Marshal(e)
	if err != nil {
		return nil, domain.ErrValidation.WithCause(err)
	}
	data, err := json.Marshal(wireEnvelope{
		Kind:      e.Kind(),
		Version:   version,
		StoredAt:  storedAt.UTC(),
		ExpiresAt: expiresAt.UTC(),
		Record:    record,
	})
	if err != nil {
		return nil, domain.ErrValidation.WithCause(err)
	}
	if len(data) > c.maxBytes {
		return nil, domain.ErrSizeExceeded.WithDetailsf("%s %s encodes to %d bytes, limit is %d",
			e.Kind(), e.EntityID(), len(data), c.maxBytes)
	}
	return data, nil
}

// Decode parses an envelope that must hold a record of kind.
func (c *Codec) Decode(kind domain.Kind, data []byte) (*Envelope, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, domain.ErrCorruptRecord.WithCause(err)
	}
	if missing := missingFields(raw, envelopeFields); len(missing) > 0 {
		return nil, domain.ErrCorruptRecord.WithViolations(missingViolations("envelope", missing))
	}

	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, domain.ErrCorruptRecord.WithCause(err)
	}
	if w.Kind != kind {
		return nil, domain.ErrCorruptRecord.WithDetailsf("stored kind %q, want %q", w.Kind, kind)
	}

	entity, err := decodeRecord(kind, w.Record)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		Kind:      w.Kind,
		Version:   w.Version,
		StoredAt:  w.StoredAt,
		ExpiresAt: w.ExpiresAt,
		Entity:    entity,
	}, nil
}

// Peek reads only the envelope header, leaving the record undecoded.
func Peek(data []byte) (domain.Kind, time.Time, error) {
	var w struct {
		Kind      domain.Kind `json:"kind"`
		ExpiresAt time.Time   `json:"expires_at"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return "", time.Time{}, domain.ErrCorruptRecord.WithCause(err)
	}
	return w.Kind, w.ExpiresAt, nil
}

func decodeRecord(kind domain.Kind, record json.RawMessage) (domain.Entity, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(record, &raw); err != nil {
		return nil, domain.ErrCorruptRecord.WithCause(err)
	}
	if missing := missingFields(raw, requiredFields[kind]); len(missing) > 0 {
		return nil, domain.ErrCorruptRecord.WithViolations(missingViolations(string(kind), missing))
	}

	var e domain.Entity
	switch kind {
	case domain.KindWorkflow:
		e = &domain.WorkflowState{}
	case domain.KindApproval:
		e = &domain.ApprovalRequest{}
	case domain.KindTest:
		e = &domain.TestResults{}
	default:
		return nil, domain.ErrCorruptRecord.WithDetailsf("unknown kind %q", kind)
	}
	if err := json.Unmarshal(record, e); err != nil {
		return nil, domain.ErrCorruptRecord.WithCause(err)
	}
	if err := e.Validate(); err != nil {
		return nil, domain.ErrCorruptRecord.WithViolations(domain.ViolationsOf(err))
	}
	return e, nil
}

// missingFields returns the required keys absent from raw or set to null.
func missingFields(raw map[string]json.RawMessage, required []string) []string {
	var missing []string
	for _, f := range required {
		v, ok := raw[f]
		if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			missing = append(missing, f)
		}
	}
	sort.Strings(missing)
	return missing
}

func missingViolations(scope string, fields []string) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = fmt.Sprintf("%s field %q is missing", scope, f)
	}
	return out
}

// EncodeValue marshals a non-entity value such as a metric sample.
func (c *Codec) EncodeValue(v interface{ Validate() error }) ([]byte, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, domain.ErrValidation.WithCause(err)
	}
	if len(data) > c.maxBytes {
		return nil, domain.ErrSizeExceeded.WithDetailsf("value encodes to %d bytes, limit is %d", len(data), c.maxBytes)
	}
	return data, nil
}

// DecodeMetric parses a stored metric sample.
func DecodeMetric(data []byte) (*domain.MetricSample, error) {
	var m domain.MetricSample
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, domain.ErrCorruptRecord.WithCause(err)
	}
	if err := m.Validate(); err != nil {
		return nil, domain.ErrCorruptRecord.WithViolations(domain.ViolationsOf(err))
	}
	return &m, nil
}
