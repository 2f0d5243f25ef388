package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"crest/internal/eventbus"
	logx "crest/pkg/logx"
)

func TestObserveCountsOutcomes(t *testing.T) {
	t.Parallel()
	c := NewCollector()
	task := "ScoutEventCrawlerTask-weekly"
	for _, e := range []eventbus.Event{
		{Type: eventbus.TaskStarted, Data: eventbus.TaskData{Task: task}},
		{Type: eventbus.TaskFinished, Data: eventbus.TaskData{Task: task, Duration: time.Second}},
		{Type: eventbus.TaskFailed, Data: eventbus.TaskData{Task: task, Duration: time.Second, Err: "boom"}},
		{Type: eventbus.TaskFinished, Data: eventbus.TaskData{Task: task, Duration: 2 * time.Second}},
		{Type: eventbus.TaskSkipped, Data: eventbus.TaskData{Task: task, Err: "overlap"}},
		{Type: eventbus.TaskPaused, Data: eventbus.TaskData{Task: "TerrainApprovalsTask-troop"}},
		{Type: eventbus.DigestSent, Data: eventbus.DigestData{Sink: "jandi", Entries: 2}},
		{Type: eventbus.DigestFailed, Data: eventbus.DigestData{Sink: "telegram", Err: "down"}},
		{Type: eventbus.ConfigReloaded},
		{Type: "something.else"},
	} {
		c.Observe(e)
	}

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"finished", testutil.ToFloat64(c.runs.WithLabelValues(task, "finished")), 2},
		{"failed", testutil.ToFloat64(c.runs.WithLabelValues(task, "failed")), 1},
		{"skipped", testutil.ToFloat64(c.runs.WithLabelValues(task, "skipped")), 1},
		{"paused", testutil.ToFloat64(c.paused.WithLabelValues("TerrainApprovalsTask-troop")), 1},
		{"digest sent", testutil.ToFloat64(c.digests.WithLabelValues("jandi", "sent")), 1},
		{"digest failed", testutil.ToFloat64(c.digests.WithLabelValues("telegram", "failed")), 1},
		{"reloads", testutil.ToFloat64(c.reloads), 1},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Fatalf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
	if n := testutil.CollectAndCount(c.duration); n != 1 {
		t.Fatalf("duration series = %d, want 1", n)
	}
}

func TestRunConsumesBus(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	c := NewCollector()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx, bus, logx.Nop())
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for testutil.ToFloat64(c.reloads) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("reload not counted")
		}
		// Keep publishing until the subscription is live.
		bus.Publish(eventbus.Event{Type: eventbus.ConfigReloaded})
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done
}

func TestHandlerServesMetricsAndHealth(t *testing.T) {
	t.Parallel()
	c := NewCollector()
	c.Observe(eventbus.Event{Type: eventbus.DigestSent, Data: eventbus.DigestData{Sink: "jandi"}})
	srv := httptest.NewServer(NewServer(c, logx.Nop()).Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `crest_digests_total{result="sent",sink="jandi"} 1`) {
		t.Fatalf("GET /metrics = %d\n%s", resp.StatusCode, body)
	}

	resp, err = http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /healthz = %d", resp.StatusCode)
	}

	resp, err = http.Post(srv.URL+"/metrics", "text/plain", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("POST /metrics = %d, want 405", resp.StatusCode)
	}
}

func TestServerReconfigure(t *testing.T) {
	t.Parallel()
	s := NewServer(NewCollector(), logx.Nop())
	ctx := context.Background()
	s.Reconfigure(ctx, Config{Enabled: true, Addr: "127.0.0.1:0"})

	deadline := time.Now().Add(2 * time.Second)
	for s.Addr() == "" {
		if time.Now().After(deadline) {
			t.Fatal("server never bound")
		}
		time.Sleep(10 * time.Millisecond)
	}
	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	s.Reconfigure(stopCtx, Config{Enabled: false})
	if s.Addr() != "" {
		t.Fatalf("Addr = %q after disable", s.Addr())
	}
}
