package events

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"

	"crest/internal/config"
	"crest/internal/digest"
	"crest/internal/extension"
	"crest/internal/source/scoutevents"
	"crest/internal/state"
	logx "crest/pkg/logx"
)

const hook = "https://wh.jandi.com/connect-api/webhook/123/abc"

type fakeSource struct {
	mu      sync.Mutex
	regions map[scoutevents.Region]scoutevents.RegionResult
	fail    map[scoutevents.Region]error
}

func (f *fakeSource) ScanRegion(_ context.Context, r scoutevents.Region) (scoutevents.RegionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[r]; err != nil {
		return scoutevents.RegionResult{}, err
	}
	return f.regions[r], nil
}

type sent struct {
	dest string
	p    digest.Payload
}

type fakeSink struct {
	mu   sync.Mutex
	err  error
	sent []sent
}

func (f *fakeSink) Send(_ context.Context, dest string, p digest.Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sent{dest: dest, p: p})
	return nil
}

func (f *fakeSink) last(t *testing.T) sent {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("nothing sent")
	}
	return f.sent[len(f.sent)-1]
}

func region(name string, evs ...scoutevents.Event) scoutevents.RegionResult {
	return scoutevents.RegionResult{Name: name, Link: scoutevents.BaseURL + "/x", Events: evs}
}

var (
	paddling = scoutevents.Event{ID: 123, Name: "Paddling Day", Info: "Sat", Status: "Open", Severity: "success"}
	training = scoutevents.Event{ID: 456, Name: "Leader Training", Info: "Sun", Status: "Open", Severity: "success"}
	closed   = scoutevents.Event{ID: 457, Name: "Full Camp", Status: "Closed", Severity: "danger"}
	abseil   = scoutevents.Event{ID: 789, Name: "Abseiling", Info: "Mon", Status: "Open (Restricted)", Severity: "warning"}
	dinner   = scoutevents.Event{ID: 1178, Name: "Region Dinner", Status: "Open", Severity: "success"}
)

type harness struct {
	src   *fakeSource
	sink  *fakeSink
	store *state.Store
	job   func(context.Context) error
}

func newHarness(t *testing.T, regions []string, src *fakeSource) *harness {
	t.Helper()
	h := &harness{src: src, sink: &fakeSink{}, store: state.New(state.NewMemory(), logx.Nop())}
	ext := config.ExtensionConfig[config.EventTask]{
		Enabled: true,
		Tasks: []config.EventTask{{
			TaskName:          "weekly",
			CronSchedule:      "0 18 * * FRI",
			JandiURL:          hook,
			SubscribedRegions: regions,
		}},
	}
	scheduled := Tasks(ext, src, extension.NewRegistry(), extension.Deps{Store: h.store, Sink: h.sink})
	if len(scheduled) != 1 {
		t.Fatalf("scheduled %d tasks, want 1", len(scheduled))
	}
	h.job = scheduled[0].Job
	return h
}

func (h *harness) seen(t *testing.T) digest.SeenIDs {
	t.Helper()
	return state.Get[digest.SeenIDs](context.Background(), h.store, Group+"-weekly", nil)
}

func TestFirstRunAnnouncesOpenEvents(t *testing.T) {
	t.Parallel()
	src := &fakeSource{regions: map[scoutevents.Region]scoutevents.RegionResult{
		scoutevents.SouthMetropolitan: region("South Metropolitan Region", paddling, closed, abseil),
	}}
	h := newHarness(t, []string{"south_metropolitan"}, src)

	if err := h.job(context.Background()); err != nil {
		t.Fatalf("job: %v", err)
	}
	got := h.sink.last(t)
	if got.dest != hook {
		t.Fatalf("dest = %q", got.dest)
	}
	if got.p.Body != "New ScoutLink events" || got.p.Color != "#84BC48" {
		t.Fatalf("payload header = %q %q", got.p.Body, got.p.Color)
	}
	if len(got.p.Entries) != 1 {
		t.Fatalf("entries = %+v", got.p.Entries)
	}
	e := got.p.Entries[0]
	if e.Title != "⚜️ [South Metropolitan Region]("+scoutevents.BaseURL+"/x)" {
		t.Fatalf("title = %q", e.Title)
	}
	want := "[Paddling Day](https://events.nsw.scouts.com.au/event/123) • Open ✅\nSat\n\n" +
		"[Abseiling](https://events.nsw.scouts.com.au/event/789) • Open (Restricted) ⚠️\nMon"
	if e.Description != want {
		t.Fatalf("description = %q, want %q", e.Description, want)
	}
	if got := h.seen(t); !reflect.DeepEqual(got, digest.SeenIDs{123, 789}) {
		t.Fatalf("seen = %v", got)
	}
}

func TestRepeatRunSendsFallback(t *testing.T) {
	t.Parallel()
	src := &fakeSource{regions: map[scoutevents.Region]scoutevents.RegionResult{
		scoutevents.Swash: region("SWASH", paddling),
	}}
	h := newHarness(t, []string{"swash"}, src)
	ctx := context.Background()
	if err := h.job(ctx); err != nil {
		t.Fatal(err)
	}
	if err := h.job(ctx); err != nil {
		t.Fatal(err)
	}
	got := h.sink.last(t)
	if !got.p.IsEmpty() || got.p.Entries[0].Description != "No new events posted for any subscribed regions" {
		t.Fatalf("second digest = %+v", got.p)
	}
	if s := h.seen(t); !reflect.DeepEqual(s, digest.SeenIDs{123}) {
		t.Fatalf("seen = %v", s)
	}
}

func TestDuplicateAcrossRegionsAnnouncedOnce(t *testing.T) {
	t.Parallel()
	src := &fakeSource{regions: map[scoutevents.Region]scoutevents.RegionResult{
		scoutevents.State: region("State", training, dinner),
		scoutevents.Hume:  region("Hume Region", training),
	}}
	h := newHarness(t, []string{"state", "hume"}, src)
	if err := h.job(context.Background()); err != nil {
		t.Fatal(err)
	}
	got := h.sink.last(t)
	if len(got.p.Entries) != 1 || !strings.HasPrefix(got.p.Entries[0].Title, "⚜️ [State]") {
		t.Fatalf("entries = %+v", got.p.Entries)
	}
	if n := strings.Count(got.p.Entries[0].Description, "/event/456)"); n != 1 {
		t.Fatalf("event 456 appears %d times", n)
	}
	if s := h.seen(t); !reflect.DeepEqual(s, digest.SeenIDs{456, 1178}) {
		t.Fatalf("seen = %v", s)
	}
}

func TestFetchFailureKeepsState(t *testing.T) {
	t.Parallel()
	src := &fakeSource{regions: map[scoutevents.Region]scoutevents.RegionResult{
		scoutevents.State: region("State", training),
		scoutevents.Hume:  region("Hume Region", dinner),
	}}
	h := newHarness(t, []string{"state", "hume"}, src)
	ctx := context.Background()
	if err := h.job(ctx); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("fetch hume: unexpected status 502")
	src.mu.Lock()
	src.regions[scoutevents.State] = region("State", training, paddling)
	src.fail = map[scoutevents.Region]error{scoutevents.Hume: boom}
	src.mu.Unlock()

	if err := h.job(ctx); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if n := len(h.sink.sent); n != 1 {
		t.Fatalf("digests sent = %d, want 1", n)
	}
	if s := h.seen(t); !reflect.DeepEqual(s, digest.SeenIDs{456, 1178}) {
		t.Fatalf("seen = %v", s)
	}
}

func TestSendFailureKeepsState(t *testing.T) {
	t.Parallel()
	src := &fakeSource{regions: map[scoutevents.Region]scoutevents.RegionResult{
		scoutevents.Swash: region("SWASH", paddling),
	}}
	h := newHarness(t, []string{"swash"}, src)
	h.sink.err = errors.New("jandi webhook: status 500")
	if err := h.job(context.Background()); err == nil {
		t.Fatal("job succeeded with a failing sink")
	}
	if s := h.seen(t); len(s) != 0 {
		t.Fatalf("seen = %v, want empty", s)
	}
}

func TestTasksSkipsInvalidConfig(t *testing.T) {
	t.Parallel()
	good := config.EventTask{TaskName: "ok", CronSchedule: "0 18 * * FRI", JandiURL: hook, SubscribedRegions: []string{"hume"}}
	tests := []struct {
		name string
		edit func(*config.EventTask)
	}{
		{"no regions", func(c *config.EventTask) { c.SubscribedRegions = nil }},
		{"unknown region", func(c *config.EventTask) { c.SubscribedRegions = []string{"hume", "mars"} }},
		{"bad webhook", func(c *config.EventTask) { c.JandiURL = "https://example.com/hook" }},
		{"bad cron", func(c *config.EventTask) { c.CronSchedule = "every friday" }},
		{"no name", func(c *config.EventTask) { c.TaskName = " " }},
		{"duplicate name", func(c *config.EventTask) { c.TaskName = "ok" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			bad := good
			bad.TaskName = "bad"
			tt.edit(&bad)
			ext := config.ExtensionConfig[config.EventTask]{Enabled: true, Tasks: []config.EventTask{good, bad}}
			deps := extension.Deps{Store: state.New(state.NewMemory(), logx.Nop()), Sink: &fakeSink{}}
			got := Tasks(ext, &fakeSource{}, extension.NewRegistry(), deps)
			if len(got) != 1 || got[0].ID.Name != "ok" {
				t.Fatalf("scheduled = %+v, want only ok", got)
			}
		})
	}
}

func TestTasksDisabledExtension(t *testing.T) {
	t.Parallel()
	ext := config.ExtensionConfig[config.EventTask]{Tasks: []config.EventTask{{
		TaskName: "ok", CronSchedule: "0 18 * * FRI", JandiURL: hook, SubscribedRegions: []string{"hume"},
	}}}
	if got := Tasks(ext, &fakeSource{}, extension.NewRegistry(), extension.Deps{}); len(got) != 0 {
		t.Fatalf("scheduled = %+v", got)
	}
}

func TestTelegramDestinationAdded(t *testing.T) {
	t.Parallel()
	cfg, err := taskConfig(config.EventTask{
		TaskName: "tg", CronSchedule: "@daily", TelegramChatID: -100123, SubscribedRegions: []string{"SWASH"},
	}, map[string]struct{}{})
	if err != nil {
		t.Fatalf("taskConfig: %v", err)
	}
	if !reflect.DeepEqual(cfg.Destinations, []string{"telegram:-100123"}) {
		t.Fatalf("destinations = %v", cfg.Destinations)
	}
	if !reflect.DeepEqual(cfg.Regions, []scoutevents.Region{scoutevents.Swash}) {
		t.Fatalf("regions = %v", cfg.Regions)
	}
}
