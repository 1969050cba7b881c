package booking

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Ref is a reference the backend sometimes sends as a bare id and sometimes as
// the populated document. It is decoded once here so callers never look at the
// raw JSON shape.
type Ref[T any] struct {
	id    string
	value *T
}

// Unpopulated builds a reference that only knows the id.
func Unpopulated[T any](id string) Ref[T] {
	return Ref[T]{id: id}
}

// Populated builds a reference carrying the full document.
func Populated[T any](id string, v T) Ref[T] {
	return Ref[T]{id: id, value: &v}
}

// ID returns the referenced id, populated or not.
func (r Ref[T]) ID() string { return r.id }

// IsZero reports an absent reference (null or missing on the wire).
func (r Ref[T]) IsZero() bool { return r.id == "" && r.value == nil }

// IsPopulated reports whether the document is available.
func (r Ref[T]) IsPopulated() bool { return r.value != nil }

// Value returns the populated document.
func (r Ref[T]) Value() (T, bool) {
	if r.value == nil {
		var zero T
		return zero, false
	}
	return *r.value, true
}

func (r Ref[T]) MarshalJSON() ([]byte, error) {
	switch {
	case r.value != nil:
		return json.Marshal(r.value)
	case r.id != "":
		return json.Marshal(r.id)
	default:
		return []byte("null"), nil
	}
}

func (r *Ref[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = Ref[T]{}
		return nil
	}

	switch data[0] {
	case '"':
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return fmt.Errorf("booking: decode reference id: %w", err)
		}
		*r = Unpopulated[T](id)
		return nil
	case '{':
		var head struct {
			MongoID string `json:"_id"`
			ID      string `json:"id"`
		}
		if err := json.Unmarshal(data, &head); err != nil {
			return fmt.Errorf("booking: decode reference: %w", err)
		}
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("booking: decode populated reference: %w", err)
		}
		id := head.MongoID
		if id == "" {
			id = head.ID
		}
		*r = Populated(id, v)
		return nil
	}
	return fmt.Errorf("booking: unexpected reference payload %s", string(data))
}
