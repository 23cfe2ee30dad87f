package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Metadata constraints.
const (
	MaxMetadataKeys      = 128
	MaxMetadataKeyLength = 128
	MaxMetadataListItems = 256
)

// MetaKind is the closed set of value kinds a metadata entry may hold.
type MetaKind uint8

const (
	MetaString MetaKind = iota + 1
	MetaNumber
	MetaBool
	MetaList // flat list of strings; no further nesting
)

func (k MetaKind) String() string {
	switch k {
	case MetaString:
		return "string"
	case MetaNumber:
		return "number"
	case MetaBool:
		return "bool"
	case MetaList:
		return "list"
	default:
		return "invalid"
	}
}

// ErrMetaNesting is returned when decoding a metadata value that is an object
// or a list containing anything but strings.
var ErrMetaNesting = errors.New("metadata values must be string, number, bool or a list of strings")

// MetaValue is a single metadata value. The zero value is invalid.
type MetaValue struct {
	kind MetaKind
	str  string
	num  float64
	b    bool
	list []string
}

// StringValue builds a string value.
func StringValue(s string) MetaValue { return MetaValue{kind: MetaString, str: s} }

// NumberValue builds a numeric value.
func NumberValue(n float64) MetaValue { return MetaValue{kind: MetaNumber, num: n} }

// BoolValue builds a boolean value.
func BoolValue(b bool) MetaValue { return MetaValue{kind: MetaBool, b: b} }

// ListValue builds a list-of-strings value.
func ListValue(items ...string) MetaValue {
	return MetaValue{kind: MetaList, list: append([]string{}, items...)}
}

// Kind returns the value kind.
func (v MetaValue) Kind() MetaKind { return v.kind }

// Str returns the string payload.
func (v MetaValue) Str() string { return v.str }

// Num returns the numeric payload.
func (v MetaValue) Num() float64 { return v.num }

// Flag returns the boolean payload.
func (v MetaValue) Flag() bool { return v.b }

// Items returns a copy of the list payload.
func (v MetaValue) Items() []string { return append([]string(nil), v.list...) }

// Equal reports whether two values hold the same kind and payload.
func (v MetaValue) Equal(o MetaValue) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case MetaString:
		return v.str == o.str
	case MetaNumber:
		return v.num == o.num
	case MetaBool:
		return v.b == o.b
	case MetaList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if v.list[i] != o.list[i] {
				return false
			}
		}
		return true
	}
	return true
}

// MarshalJSON implements json.Marshaler.
func (v MetaValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case MetaString:
		return json.Marshal(v.str)
	case MetaNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return nil, fmt.Errorf("metadata number %v is not representable", v.num)
		}
		return json.Marshal(v.num)
	case MetaBool:
		return json.Marshal(v.b)
	case MetaList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	default:
		return nil, errors.New("metadata value has no kind")
	}
}

// UnmarshalJSON implements json.Unmarshaler and rejects nested structures.
func (v *MetaValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return ErrMetaNesting
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = StringValue(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = BoolValue(b)
	case '[':
		var items []string
		if err := json.Unmarshal(data, &items); err != nil {
			return ErrMetaNesting
		}
		*v = ListValue(items...)
	case '{', 'n':
		return ErrMetaNesting
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*v = NumberValue(n)
	}
	return nil
}

// Metadata is the bounded open map attached to a workflow.
type Metadata map[string]MetaValue

// Clone returns a deep copy.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		if v.kind == MetaList {
			v.list = append([]string{}, v.list...)
		}
		out[k] = v
	}
	return out
}

// Equal reports whether both maps hold the same entries.
func (m Metadata) Equal(o Metadata) bool {
	if len(m) != len(o) {
		return false
	}
	for k, v := range m {
		ov, ok := o[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

func (m Metadata) validate(v *violations) {
	if len(m) > MaxMetadataKeys {
		v.add("metadata has %d keys, limit is %d", len(m), MaxMetadataKeys)
	}
	for k, val := range m {
		if k == "" {
			v.add("metadata key must not be empty")
		}
		if len(k) > MaxMetadataKeyLength {
			v.add("metadata key %.16q... exceeds %d characters", k, MaxMetadataKeyLength)
		}
		switch val.kind {
		case MetaString, MetaBool:
		case MetaNumber:
			if math.IsNaN(val.num) || math.IsInf(val.num, 0) {
				v.add("metadata[%q] is not a finite number", k)
			}
		case MetaList:
			if len(val.list) > MaxMetadataListItems {
				v.add("metadata[%q] has %d items, limit is %d", k, len(val.list), MaxMetadataListItems)
			}
		default:
			v.add("metadata[%q] has no value kind", k)
		}
	}
}
