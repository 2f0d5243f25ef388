// Package jandi posts digests to Jandi incoming webhooks.
package jandi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"crest/internal/digest"
	"crest/internal/httpx"
	logx "crest/pkg/logx"
)

const (
	acceptHeader = "application/vnd.tosslab.jandi-v2+json"

	// probeReply is what a live webhook answers to an empty message.
	probeReply = `{"code":40052,"msg":"Invalid payload - body"}`
)

var urlPattern = regexp.MustCompile(`^https://wh\.jandi\.com/connect-api/webhook/\d+/\w+$`)

// ValidURL reports whether u has the shape of a Jandi incoming webhook.
func ValidURL(u string) bool { return urlPattern.MatchString(u) }

type connectInfo struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description"`
}

type message struct {
	Body         string        `json:"body"`
	ConnectColor string        `json:"connectColor,omitempty"`
	ConnectInfo  []connectInfo `json:"connectInfo,omitempty"`
}

func encode(p digest.Payload) message {
	m := message{Body: p.Body, ConnectColor: p.Color}
	for _, e := range p.Entries {
		m.ConnectInfo = append(m.ConnectInfo, connectInfo{Title: e.Title, Description: e.Description})
	}
	return m
}

type Option func(*Transport)

func WithHTTPClient(h *http.Client) Option { return func(t *Transport) { t.http = h } }

// WithURLCheck replaces the webhook URL check, e.g. to accept a local test server.
func WithURLCheck(fn func(string) bool) Option { return func(t *Transport) { t.accepts = fn } }

type Transport struct {
	http    *http.Client
	accepts func(string) bool
	log     logx.Logger
}

func New(log logx.Logger, opts ...Option) *Transport {
	if log.IsZero() {
		log = logx.Nop()
	}
	t := &Transport{accepts: ValidURL, log: log.With(logx.String("comp", "jandi"))}
	for _, o := range opts {
		o(t)
	}
	if t.http == nil {
		// A retried post can show up twice in the channel.
		t.http = httpx.NoRetry(15*time.Second, log)
	}
	return t
}

func (t *Transport) Name() string { return "jandi" }

func (t *Transport) Accepts(dest string) bool { return t.accepts(dest) }

func (t *Transport) Deliver(ctx context.Context, dest string, p digest.Payload) error {
	status, body, err := t.post(ctx, dest, encode(p))
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return fmt.Errorf("jandi webhook: status %d: %s", status, strings.TrimSpace(body))
	}
	return nil
}

// Validate probes dest with an empty message. A live webhook rejects it with
// one specific error; anything else means the URL is dead or not a Jandi webhook.
func (t *Transport) Validate(ctx context.Context, dest string) error {
	if !t.accepts(dest) {
		return fmt.Errorf("invalid jandi webhook url")
	}
	status, body, err := t.post(ctx, dest, message{})
	if err != nil {
		return err
	}
	if status != http.StatusBadRequest || strings.TrimSpace(body) != probeReply {
		return fmt.Errorf("jandi webhook did not answer the probe: status %d", status)
	}
	return nil
}

func (t *Transport) post(ctx context.Context, dest string, m message) (int, string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return 0, "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, dest, bytes.NewReader(b))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.http.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("jandi webhook: %w", err)
	}
	defer resp.Body.Close()
	rb, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return resp.StatusCode, string(rb), nil
}
