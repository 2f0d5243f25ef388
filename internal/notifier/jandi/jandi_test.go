package jandi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"crest/internal/digest"
	"crest/internal/httpx"
	logx "crest/pkg/logx"
)

type captured struct {
	mu      sync.Mutex
	headers http.Header
	body    []byte
}

func (c *captured) get() (http.Header, []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.headers, c.body
}

func newServer(t *testing.T, status int, reply string) (*httptest.Server, *captured) {
	t.Helper()
	rec := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		rec.headers = r.Header.Clone()
		rec.body = b
		rec.mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func newTransport() *Transport {
	return New(logx.Nop(),
		WithHTTPClient(httpx.NoRetry(0, logx.Nop())),
		WithURLCheck(func(string) bool { return true }),
	)
}

func TestDeliverWireShape(t *testing.T) {
	t.Parallel()
	srv, rec := newServer(t, http.StatusOK, `{}`)
	p := digest.Payload{
		Body:  "New ScoutLink events",
		Color: "#84BC48",
		Entries: []digest.Entry{
			{Title: "⚜️ [South Metropolitan Region](https://events.nsw.scouts.com.au/region/sm)", Description: "line"},
		},
	}
	if err := newTransport().Deliver(context.Background(), srv.URL, p); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	h, b := rec.get()
	if got := h.Get("Accept"); got != "application/vnd.tosslab.jandi-v2+json" {
		t.Fatalf("Accept = %q", got)
	}
	if got := h.Get("Content-Type"); got != "application/json" {
		t.Fatalf("Content-Type = %q", got)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatal(err)
	}
	if m["body"] != "New ScoutLink events" || m["connectColor"] != "#84BC48" {
		t.Fatalf("body = %s", b)
	}
	info, ok := m["connectInfo"].([]any)
	if !ok || len(info) != 1 {
		t.Fatalf("connectInfo = %v", m["connectInfo"])
	}
	entry := info[0].(map[string]any)
	if entry["title"] != p.Entries[0].Title || entry["description"] != "line" {
		t.Fatalf("entry = %v", entry)
	}
}

func TestDeliverFallbackEntryHasNoTitle(t *testing.T) {
	t.Parallel()
	srv, rec := newServer(t, http.StatusOK, `{}`)
	p := digest.Builder{Body: "b", Color: "#2ECC71", Empty: "No recent approvals"}.Build(nil)
	if err := newTransport().Deliver(context.Background(), srv.URL, p); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	_, b := rec.get()
	if !strings.Contains(string(b), `"connectInfo":[{"description":"No recent approvals"}]`) {
		t.Fatalf("body = %s", b)
	}
}

func TestDeliverNon2xx(t *testing.T) {
	t.Parallel()
	srv, _ := newServer(t, http.StatusBadRequest, `{"code":40052,"msg":"Invalid payload - body"}`)
	err := newTransport().Deliver(context.Background(), srv.URL, digest.Payload{Body: "x"})
	if err == nil || !strings.Contains(err.Error(), "status 400") {
		t.Fatalf("err = %v", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		status int
		reply  string
		ok     bool
	}{
		{"live", http.StatusBadRequest, `{"code":40052,"msg":"Invalid payload - body"}`, true},
		{"gone", http.StatusNotFound, `{"code":40400,"msg":"Not found"}`, false},
		{"accepts anything", http.StatusOK, `{}`, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv, rec := newServer(t, tt.status, tt.reply)
			err := newTransport().Validate(context.Background(), srv.URL)
			if (err == nil) != tt.ok {
				t.Fatalf("Validate err = %v, want ok=%v", err, tt.ok)
			}
			if _, b := rec.get(); string(b) != `{"body":""}` {
				t.Fatalf("probe body = %s", b)
			}
		})
	}
}

func TestValidURL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		url  string
		want bool
	}{
		{"https://wh.jandi.com/connect-api/webhook/12345678/0123456789abcdef0123456789abcdef", true},
		{"http://wh.jandi.com/connect-api/webhook/12345678/abc", false},
		{"https://wh.jandi.com/connect-api/webhook/abc/abc", false},
		{"https://wh.jandi.com/connect-api/webhook/123/abc/", false},
		{"https://example.com/connect-api/webhook/123/abc", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidURL(tt.url); got != tt.want {
			t.Fatalf("ValidURL(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
	if New(logx.Nop()).Accepts("telegram:42") {
		t.Fatal("default transport accepted a telegram destination")
	}
}

func TestDefaultClientDoesNotRetryPosts(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	tr := New(logx.Nop(), WithURLCheck(func(string) bool { return true }))
	if err := tr.Deliver(context.Background(), srv.URL, digest.Payload{Body: "x"}); err == nil {
		t.Fatal("Deliver succeeded on a 502")
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("webhook hits = %d, want 1", got)
	}
}
