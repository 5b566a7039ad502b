package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrEmptyBody   = errors.New("event: empty body")
	ErrMissingType = errors.New("event: missing type")
)

// Event is something that happened upstream, identified by a type tag.
//
// Implementations are serialized with encoding/json when published and must
// not be mutated after they are handed to a publisher.
type Event interface {
	EventType() string
}

// Marshal serializes an event to its JSON wire form.
func Marshal(e Event) ([]byte, error) {
	if e == nil {
		return nil, ErrEmptyBody
	}
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", e.EventType(), err)
	}
	return b, nil
}

// Raw is an event that arrived already serialized, e.g. over the ingest API.
// The body is copied on construction so the caller may reuse its buffer.
type Raw struct {
	typ  string
	body []byte
}

// NewRaw validates body as a JSON object carrying a non-empty string "type"
// field and returns an immutable event wrapping a compacted copy of it.
func NewRaw(body []byte) (Raw, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return Raw{}, ErrEmptyBody
	}

	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(body, &head); err != nil {
		return Raw{}, fmt.Errorf("invalid event body: %w", err)
	}
	if head.Type == "" {
		return Raw{}, ErrMissingType
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, body); err != nil {
		return Raw{}, fmt.Errorf("invalid event body: %w", err)
	}
	return Raw{typ: head.Type, body: buf.Bytes()}, nil
}

func (r Raw) EventType() string { return r.typ }

// MarshalJSON returns the original payload unchanged.
func (r Raw) MarshalJSON() ([]byte, error) {
	if len(r.body) == 0 {
		return nil, ErrEmptyBody
	}
	return r.body, nil
}
