package state

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	logx "crest/pkg/logx"
)

func TestSQLiteRoundTripAcrossReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "crest.db")

	s, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := Get(ctx, s, "ScoutEventCrawlerTask-test", []int{}); len(got) != 0 {
		t.Fatalf("Get on empty db = %v", got)
	}
	if err := Set(ctx, s, "ScoutEventCrawlerTask-test", []int{123, 789}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := Set(ctx, s, "ScoutEventCrawlerTask-test", []int{123, 789, 1178}); err != nil {
		t.Fatalf("Set again: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	if got := Get[[]int](ctx, s, "ScoutEventCrawlerTask-test", nil); !reflect.DeepEqual(got, []int{123, 789, 1178}) {
		t.Fatalf("Get after reopen = %v", got)
	}
}

func TestSQLiteRequiresPath(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "sqlite"}, logx.Nop()); err == nil {
		t.Fatal("expected error without path")
	}
}
