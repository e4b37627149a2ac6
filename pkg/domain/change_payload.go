package domain

import "encoding/json"

// ChangePayload wraps a JSON snapshot of an entity taken before or after a
// change. Undefined payloads mark the missing side of a create or delete.
type ChangePayload struct {
	defined bool
	raw     json.RawMessage
}

// NewChangePayload wraps raw JSON, copying the bytes.
func NewChangePayload(raw json.RawMessage) ChangePayload {
	p := ChangePayload{defined: true}
	if raw != nil {
		p.raw = append(json.RawMessage(nil), raw...)
	}
	return p
}

// NewChangePayloadFromValue marshals a typed value into a ChangePayload.
func NewChangePayloadFromValue[T any](value T) (ChangePayload, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return ChangePayload{}, err
	}
	return NewChangePayload(raw), nil
}

// MustChangePayload is NewChangePayloadFromValue for values whose encoding cannot fail.
func MustChangePayload[T any](value T) ChangePayload {
	p, err := NewChangePayloadFromValue(value)
	if err != nil {
		panic(err)
	}
	return p
}

// UndefinedChangePayload returns an uninitialized payload wrapper.
func UndefinedChangePayload() ChangePayload { return ChangePayload{} }

// Defined reports whether the payload has been initialized.
func (p ChangePayload) Defined() bool { return p.defined }

// IsEmpty reports whether the payload contains no bytes.
func (p ChangePayload) IsEmpty() bool { return !p.defined || len(p.raw) == 0 }

// Raw returns a copy of the underlying JSON, or nil when empty.
func (p ChangePayload) Raw() json.RawMessage {
	if p.IsEmpty() {
		return nil
	}
	return append(json.RawMessage(nil), p.raw...)
}

// DecodeChangePayload unmarshals a payload into T. It reports false for
// undefined, empty, or malformed payloads.
func DecodeChangePayload[T any](p ChangePayload) (T, bool) {
	var out T
	if p.IsEmpty() {
		return out, false
	}
	if err := json.Unmarshal(p.raw, &out); err != nil {
		return out, false
	}
	return out, true
}
