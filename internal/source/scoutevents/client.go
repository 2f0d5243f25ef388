// Package scoutevents scrapes the public event listing pages, one region at a time.
package scoutevents

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"crest/internal/httpx"
	logx "crest/pkg/logx"
)

// Event is one listing row. Severity is the badge colour (success, warning,
// danger) or "unknown" when the row has no badge.
type Event struct {
	ID       int
	Name     string
	Info     string
	Status   string
	Severity string
}

func (e Event) RecordID() int { return e.ID }

// Eligible is false for closed events.
func (e Event) Eligible() bool { return !e.Closed() }

func (e Event) Closed() bool {
	return e.Severity == "danger" || strings.EqualFold(strings.TrimSpace(e.Status), "closed")
}

func (e Event) Link() string { return BaseURL + "/event/" + strconv.Itoa(e.ID) }

func (e Event) Emoji() string {
	switch e.Severity {
	case "success":
		return "✅"
	case "warning":
		return "⚠️"
	case "danger":
		return "⛔"
	default:
		return "❓"
	}
}

// RegionResult is one scanned listing page, events in page order.
type RegionResult struct {
	Name   string
	Link   string
	Events []Event
}

type Option func(*Client)

// WithBaseURL points the client at another host. Links in results still use BaseURL.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.base = strings.TrimRight(u, "/") }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

type Client struct {
	base string
	http *http.Client
	log  logx.Logger
}

func New(log logx.Logger, opts ...Option) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Client{base: BaseURL, log: log.With(logx.String("comp", "scoutevents"))}
	for _, o := range opts {
		o(c)
	}
	if c.http == nil {
		c.http = httpx.New(httpx.Config{RetryMax: 2}, log)
	}
	return c
}

// ScanRegion fetches and parses the listing page of r.
func (c *Client) ScanRegion(ctx context.Context, r Region) (RegionResult, error) {
	if !r.Valid() {
		return RegionResult{}, fmt.Errorf("unknown region %q", string(r))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+r.Path(), nil)
	if err != nil {
		return RegionResult{}, err
	}
	req.Header.Set("Accept", "text/html")
	resp, err := c.http.Do(req)
	if err != nil {
		return RegionResult{}, fmt.Errorf("fetch %s: %w", r, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return RegionResult{}, fmt.Errorf("fetch %s: unexpected status %s", r, resp.Status)
	}

	page, err := parseListing(resp.Body)
	if err != nil {
		return RegionResult{}, fmt.Errorf("parse %s: %w", r, err)
	}
	if page.skipped > 0 {
		c.log.Warn("listing rows skipped", logx.String("region", string(r)), logx.Int("count", page.skipped))
	}
	c.log.Debug("region scanned", logx.String("region", string(r)), logx.Int("events", len(page.events)))
	return RegionResult{Name: page.name, Link: BaseURL + r.Path(), Events: page.events}, nil
}
