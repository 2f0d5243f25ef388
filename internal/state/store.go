package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	logx "crest/pkg/logx"
)

// Store is the single-writer key/value view over a Backend.
//
// Every operation loads the whole document, and every write rewrites it.
// All access goes through one mutex.
type Store struct {
	mu      sync.Mutex
	backend Backend
	log     logx.Logger
}

// New wraps a backend.
func New(b Backend, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{backend: b, log: log.With(logx.String("comp", "state"))}
}

// Open initializes the configured backend.
func Open(cfg Config, log logx.Logger) (*Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))

	var (
		b   Backend
		err error
	)
	switch driver {
	case "", "file":
		b, err = openFile(cfg)
	case "sqlite", "sqlite3":
		b, err = openSQLite(cfg)
	case "memory":
		b = NewMemory()
	default:
		return nil, errors.New("unknown state driver: " + driver)
	}
	if err != nil {
		return nil, err
	}
	return New(b, log), nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Close()
}

func (s *Store) loadLocked(ctx context.Context) (Document, error) {
	doc, err := s.backend.Load(ctx)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		doc = Document{}
	}
	return doc, nil
}

// Raw returns the stored bytes for key.
func (s *Store) Raw(ctx context.Context, key string) (json.RawMessage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.loadLocked(ctx)
	if err != nil {
		return nil, false, err
	}
	raw, ok := doc[key]
	return raw, ok, nil
}

// Keys lists the stored keys in sorted order.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.loadLocked(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Update performs an atomic read-modify-write of one entry. fn receives the current raw
// value (ok=false when absent) and returns the replacement. A corrupt document is replaced
// by a fresh one so a single bad write cannot wedge every task.
func (s *Store) Update(ctx context.Context, key string, fn func(raw json.RawMessage, ok bool) (json.RawMessage, error)) error {
	if fn == nil {
		return errors.New("state: nil update func")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadLocked(ctx)
	if err != nil {
		if !errors.Is(err, ErrCorrupt) {
			return err
		}
		s.log.Warn("state document unreadable, starting fresh", logx.String("key", key), logx.Err(err))
		doc = Document{}
	}

	cur, ok := doc[key]
	next, err := fn(cur, ok)
	if err != nil {
		return err
	}
	doc[key] = next
	if err := s.backend.Save(ctx, doc); err != nil {
		return fmt.Errorf("state: save %s: %w", key, err)
	}
	return nil
}

// Delete removes a key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.loadLocked(ctx)
	if err != nil {
		return err
	}
	if _, ok := doc[key]; !ok {
		return nil
	}
	delete(doc, key)
	return s.backend.Save(ctx, doc)
}

// Lookup decodes the value under key as T.
func Lookup[T any](ctx context.Context, s *Store, key string) (T, error) {
	var zero T
	raw, ok, err := s.Raw(ctx, key)
	if err != nil {
		return zero, err
	}
	if !ok {
		return zero, ErrNotFound
	}
	return decode[T](key, raw)
}

// Get returns the value under key, or def when it is missing or unreadable.
func Get[T any](ctx context.Context, s *Store, key string, def T) T {
	v, err := Lookup[T](ctx, s, key)
	switch {
	case err == nil:
		return v
	case errors.Is(err, ErrNotFound):
	default:
		s.log.Warn("state value unreadable, using default", logx.String("key", key), logx.Err(err))
	}
	return def
}

// Set stores v under key, wrapped in a versioned envelope.
func Set[T any](ctx context.Context, s *Store, key string, v T) error {
	raw, err := encode(v)
	if err != nil {
		return fmt.Errorf("state: encode %s: %w", key, err)
	}
	return s.Update(ctx, key, func(json.RawMessage, bool) (json.RawMessage, error) {
		return raw, nil
	})
}
