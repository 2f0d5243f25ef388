package state

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// FileName is the document name used by the file driver when no path is configured.
const FileName = "crest.programdata"

var (
	// ErrNotFound is returned by Lookup when the key has never been written.
	ErrNotFound = errors.New("state: key not found")
	// ErrShapeMismatch means the stored value cannot be read as the requested type
	// and needs a migration.
	ErrShapeMismatch = errors.New("state: stored value has a different shape")
	// ErrCorrupt means the whole document could not be parsed.
	ErrCorrupt = errors.New("state: corrupt document")
)

// Config configures the state store.
//
// Driver values:
//   - "file": one JSON document on disk (default)
//   - "sqlite": a SQLite database holding the document in a single row
//   - "memory": process-local, lost on exit
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Document is the persisted layout: one flat object keyed by task identity.
type Document map[string]json.RawMessage

// Backend loads and saves the whole document. A missing document loads as empty.
// Implementations need not be safe for concurrent use; Store serializes access.
type Backend interface {
	Load(ctx context.Context) (Document, error)
	Save(ctx context.Context, doc Document) error
	Close() error
}

// None is the state type of tasks that keep nothing between runs.
type None struct{}

// DecodeError reports a stored value that could not be decoded as the requested type.
type DecodeError struct {
	Key    string
	Stored string // type tag found in the envelope, empty for legacy values
	Want   string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Stored != "" && e.Stored != e.Want {
		return "state: decode " + e.Key + ": stored " + e.Stored + ", want " + e.Want + ": " + errString(e.Err)
	}
	return "state: decode " + e.Key + " as " + e.Want + ": " + errString(e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrShapeMismatch }

func errString(err error) string {
	if err == nil {
		return "<nil>"
	}
	return err.Error()
}
