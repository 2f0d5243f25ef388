package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	logx "crest/pkg/logx"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func openFileStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", FileName)
	s, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestGetMissingDocumentReturnsDefault(t *testing.T) {
	t.Parallel()
	s, path := openFileStore(t)
	ctx := context.Background()

	if got := Get(ctx, s, "g-n", 42); got != 42 {
		t.Fatalf("Get = %d, want 42", got)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Get created the document: %v", err)
	}
}

func TestGetMissingKeyReturnsDefault(t *testing.T) {
	t.Parallel()
	s, _ := openFileStore(t)
	ctx := context.Background()

	if err := Set(ctx, s, "other-key", "value"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	def := []int{7}
	if got := Get(ctx, s, "g-n", def); !reflect.DeepEqual(got, def) {
		t.Fatalf("Get = %v, want %v", got, def)
	}
}

func TestGetWrongShapeReturnsDefault(t *testing.T) {
	t.Parallel()
	s, _ := openFileStore(t)
	ctx := context.Background()

	if err := Set(ctx, s, "key", "stringValue"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if got := Get(ctx, s, "key", 15); got != 15 {
		t.Fatalf("int: Get = %d, want 15", got)
	}
	if got := Get(ctx, s, "key", []int{1, 2}); !reflect.DeepEqual(got, []int{1, 2}) {
		t.Fatalf("list: Get = %v, want [1 2]", got)
	}
	wantStruct := sample{Name: "def", Count: 1}
	if got := Get(ctx, s, "key", wantStruct); got != wantStruct {
		t.Fatalf("struct: Get = %+v, want %+v", got, wantStruct)
	}
	wantTime := time.Date(2023, 12, 23, 0, 0, 0, 0, time.UTC)
	if got := Get(ctx, s, "key", wantTime); !got.Equal(wantTime) {
		t.Fatalf("time: Get = %v, want %v", got, wantTime)
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	t.Parallel()
	s, _ := openFileStore(t)
	ctx := context.Background()

	if err := Set(ctx, s, "a-1", []int{123, 789}); err != nil {
		t.Fatalf("Set list: %v", err)
	}
	if err := Set(ctx, s, "a-2", sample{Name: "x", Count: 3}); err != nil {
		t.Fatalf("Set struct: %v", err)
	}
	if err := Set(ctx, s, "a-1", []int{123, 789, 1178}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	if got := Get[[]int](ctx, s, "a-1", nil); !reflect.DeepEqual(got, []int{123, 789, 1178}) {
		t.Fatalf("Get list = %v", got)
	}
	if got := Get(ctx, s, "a-2", sample{}); got != (sample{Name: "x", Count: 3}) {
		t.Fatalf("Get struct = %+v", got)
	}
	keys, err := s.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if !reflect.DeepEqual(keys, []string{"a-1", "a-2"}) {
		t.Fatalf("Keys = %v", keys)
	}
}

func TestSetWritesEnvelope(t *testing.T) {
	t.Parallel()
	s, path := openFileStore(t)
	ctx := context.Background()

	if err := Set(ctx, s, "ScoutEventCrawlerTask-test", []int{1}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var doc map[string]envelope
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("document is not an object of envelopes: %v", err)
	}
	env := doc["ScoutEventCrawlerTask-test"]
	if env.Schema != SchemaVersion {
		t.Fatalf("schema = %d, want %d", env.Schema, SchemaVersion)
	}
	if env.Type != "[]int" {
		t.Fatalf("type = %q, want []int", env.Type)
	}
	if string(env.Data) != "[1]" {
		t.Fatalf("data = %s, want [1]", env.Data)
	}
}

func TestLegacyBareValuesDecode(t *testing.T) {
	t.Parallel()
	s, path := openFileStore(t)
	ctx := context.Background()

	legacy := `{"ScoutEventCrawlerTask-test":[123,789],"other":"text"}`
	if err := os.WriteFile(path, []byte(legacy), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := Get[[]int](ctx, s, "ScoutEventCrawlerTask-test", nil); !reflect.DeepEqual(got, []int{123, 789}) {
		t.Fatalf("Get = %v, want [123 789]", got)
	}
	if got := Get(ctx, s, "other", ""); got != "text" {
		t.Fatalf("Get = %q, want text", got)
	}
}

func TestLookupReportsShapeMismatch(t *testing.T) {
	t.Parallel()
	s, _ := openFileStore(t)
	ctx := context.Background()

	if _, err := Lookup[int](ctx, s, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing: err = %v, want ErrNotFound", err)
	}

	if err := Set(ctx, s, "k", sample{Name: "x"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	_, err := Lookup[[]int](ctx, s, "k")
	if !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("err = %v, want ErrShapeMismatch", err)
	}
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("err = %T, want *DecodeError", err)
	}
	if de.Stored != "state.sample" || de.Want != "[]int" {
		t.Fatalf("DecodeError = %+v", de)
	}
}

func TestLookupRejectsNewerSchema(t *testing.T) {
	t.Parallel()
	s, path := openFileStore(t)
	ctx := context.Background()

	doc := `{"k":{"schema":99,"type":"[]int","data":[1]}}`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Lookup[[]int](ctx, s, "k"); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("err = %v, want ErrShapeMismatch", err)
	}
	if got := Get(ctx, s, "k", []int{5}); !reflect.DeepEqual(got, []int{5}) {
		t.Fatalf("Get = %v, want default", got)
	}
}

func TestCorruptDocumentSelfHeals(t *testing.T) {
	t.Parallel()
	s, path := openFileStore(t)
	ctx := context.Background()

	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := Get(ctx, s, "k", 3); got != 3 {
		t.Fatalf("Get = %d, want 3", got)
	}
	if err := Set(ctx, s, "k", 4); err != nil {
		t.Fatalf("Set over corrupt document: %v", err)
	}
	if got := Get(ctx, s, "k", 0); got != 4 {
		t.Fatalf("Get after heal = %d, want 4", got)
	}
}

func TestConcurrentSetDistinctKeys(t *testing.T) {
	t.Parallel()
	s, _ := openFileStore(t)
	ctx := context.Background()

	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- Set(ctx, s, fmt.Sprintf("task-%02d", i), []int{i})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Set: %v", err)
		}
	}

	keys, err := s.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != n {
		t.Fatalf("len(keys) = %d, want %d", len(keys), n)
	}
	for i := 0; i < n; i++ {
		if got := Get[[]int](ctx, s, fmt.Sprintf("task-%02d", i), nil); !reflect.DeepEqual(got, []int{i}) {
			t.Fatalf("task-%02d = %v", i, got)
		}
	}
}

func TestUpdateSeesCurrentValue(t *testing.T) {
	t.Parallel()
	s := New(NewMemory(), logx.Nop())
	ctx := context.Background()

	appendID := func(id int) error {
		return s.Update(ctx, "k", func(raw json.RawMessage, ok bool) (json.RawMessage, error) {
			var ids []int
			if ok {
				var err error
				if ids, err = decode[[]int]("k", raw); err != nil {
					return nil, err
				}
			}
			return encode(append(ids, id))
		})
	}
	for _, id := range []int{1, 2, 3} {
		if err := appendID(id); err != nil {
			t.Fatalf("Update: %v", err)
		}
	}
	if got := Get[[]int](ctx, s, "k", nil); !reflect.DeepEqual(got, []int{1, 2, 3}) {
		t.Fatalf("Get = %v, want [1 2 3]", got)
	}
}

func TestDeleteRemovesKey(t *testing.T) {
	t.Parallel()
	s := New(NewMemory(), logx.Nop())
	ctx := context.Background()

	if err := Set(ctx, s, "k", 1); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
	if _, err := Lookup[int](ctx, s, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	_, err := Open(Config{Driver: "redis"}, logx.Nop())
	if err == nil || !strings.Contains(err.Error(), "redis") {
		t.Fatalf("err = %v, want unknown driver", err)
	}
}

func TestDefaultPathUsesXDGDataHome(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/data")
	if got, want := DefaultPath(), filepath.Join("/data", "crest", FileName); got != want {
		t.Fatalf("DefaultPath = %q, want %q", got, want)
	}
}
