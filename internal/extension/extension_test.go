package extension

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"crest/internal/digest"
	"crest/internal/state"
	"crest/internal/task"
	"crest/internal/task/runner"
	logx "crest/pkg/logx"
)

type pausingTask struct{ runs int }

func (p *pausingTask) Evaluate(context.Context, string) task.Decision { return task.Pause }

func (p *pausingTask) Execute(context.Context, string, state.None) (state.None, error) {
	p.runs++
	return state.None{}, nil
}

func TestObtainReusesAndResumes(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	id := task.Identity{Group: "G", Name: "a"}
	store := state.New(state.NewMemory(), logx.Nop())
	built := 0
	mk := func() *runner.Runner[string, state.None] {
		built++
		return runner.New[string, state.None](id, &pausingTask{}, store, nil)
	}

	r1 := Obtain(reg, id, mk)
	if err := r1.Fire(context.Background(), []byte(`"cfg"`)); err != nil {
		t.Fatal(err)
	}
	if r1.Status() != runner.Paused {
		t.Fatalf("status = %v, want paused", r1.Status())
	}

	r2 := Obtain(reg, id, mk)
	if r1 != r2 || built != 1 {
		t.Fatalf("runner rebuilt (built=%d)", built)
	}
	if r2.Status() != runner.Idle {
		t.Fatalf("status after reload = %v, want idle", r2.Status())
	}

	reg.Retain(nil)
	if reg.Len() != 0 {
		t.Fatalf("Len = %d after Retain(nil)", reg.Len())
	}
	Obtain(reg, id, mk)
	if built != 2 {
		t.Fatalf("built = %d, want 2 after retain dropped the runner", built)
	}
}

func TestDestinations(t *testing.T) {
	t.Parallel()
	got := Destinations(" https://wh.jandi.com/connect-api/webhook/1/a ", 42)
	want := []string{"https://wh.jandi.com/connect-api/webhook/1/a", "telegram:42"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Destinations = %v, want %v", got, want)
	}
	if got := Destinations("", 0); len(got) != 0 {
		t.Fatalf("Destinations = %v, want none", got)
	}
}

type stubSink struct {
	dests []string
	fail  string
}

func (s *stubSink) Send(_ context.Context, dest string, _ digest.Payload) error {
	if dest == s.fail {
		return errors.New("down")
	}
	s.dests = append(s.dests, dest)
	return nil
}

func TestSendAllStopsAtFirstFailure(t *testing.T) {
	t.Parallel()
	sink := &stubSink{fail: "b"}
	if err := SendAll(context.Background(), sink, []string{"a", "b", "c"}, digest.Payload{}); err == nil {
		t.Fatal("SendAll succeeded")
	}
	if !reflect.DeepEqual(sink.dests, []string{"a"}) {
		t.Fatalf("delivered = %v", sink.dests)
	}
	if err := SendAll(context.Background(), sink, nil, digest.Payload{}); err == nil {
		t.Fatal("SendAll with no destinations succeeded")
	}
}

func TestCommonCheck(t *testing.T) {
	t.Parallel()
	ok := Common{Name: "a", Cron: "@daily", JandiURL: "https://wh.jandi.com/connect-api/webhook/1/a"}
	if err := ok.Check(map[string]struct{}{}); err != nil {
		t.Fatalf("Check: %v", err)
	}
	tests := []struct {
		name string
		c    Common
	}{
		{"no name", Common{Cron: "@daily", TelegramChatID: 1}},
		{"bad cron", Common{Name: "a", Cron: "61 * * * *", TelegramChatID: 1}},
		{"no destination", Common{Name: "a", Cron: "@daily"}},
		{"bad url", Common{Name: "a", Cron: "@daily", JandiURL: "https://example.com"}},
	}
	for _, tt := range tests {
		if err := tt.c.Check(map[string]struct{}{}); err == nil {
			t.Fatalf("%s: Check accepted %+v", tt.name, tt.c)
		}
	}
	if err := ok.Check(map[string]struct{}{"a": {}}); err == nil {
		t.Fatal("duplicate name accepted")
	}
}
