package state

import (
	"context"
	"encoding/json"
)

// Memory is an in-process backend. It copies on load and save so callers never share maps.
type Memory struct {
	doc Document
}

func NewMemory() *Memory { return &Memory{doc: Document{}} }

func (m *Memory) Load(context.Context) (Document, error) {
	return cloneDoc(m.doc), nil
}

func (m *Memory) Save(_ context.Context, doc Document) error {
	m.doc = cloneDoc(doc)
	return nil
}

func (m *Memory) Close() error { return nil }

func cloneDoc(in Document) Document {
	out := make(Document, len(in))
	for k, v := range in {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}
