package state

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
)

// SchemaVersion is written into every envelope. Readers reject newer versions.
const SchemaVersion = 1

type envelope struct {
	Schema int             `json:"schema"`
	Type   string          `json:"type,omitempty"`
	Data   json.RawMessage `json:"data"`
}

// probe detects an envelope without committing to it: legacy documents hold bare values.
type probe struct {
	Schema *int            `json:"schema"`
	Type   string          `json:"type"`
	Data   json.RawMessage `json:"data"`
}

func typeTag[T any]() string {
	return reflect.TypeOf((*T)(nil)).Elem().String()
}

func encode[T any](v T) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Schema: SchemaVersion, Type: typeTag[T](), Data: data})
}

func decode[T any](key string, raw json.RawMessage) (T, error) {
	var out T
	want := typeTag[T]()

	payload := raw
	stored := ""
	var p probe
	if err := json.Unmarshal(raw, &p); err == nil && p.Schema != nil && p.Data != nil {
		if *p.Schema > SchemaVersion {
			return out, &DecodeError{Key: key, Stored: p.Type, Want: want,
				Err: fmt.Errorf("schema %d is newer than %d", *p.Schema, SchemaVersion)}
		}
		payload = p.Data
		stored = p.Type
	}

	if isNull(payload) {
		return out, ErrNotFound
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		var zero T
		return zero, &DecodeError{Key: key, Stored: stored, Want: want, Err: err}
	}
	return out, nil
}

func isNull(b json.RawMessage) bool {
	b = bytes.TrimSpace(b)
	return len(b) == 0 || bytes.Equal(b, []byte("null"))
}
