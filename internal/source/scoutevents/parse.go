package scoutevents

import (
	"errors"
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var errNoHeading = errors.New("page has no h1")

type listing struct {
	name    string
	events  []Event
	skipped int
}

// parseListing reads a region page. Each event is an <a href="/event/{id}">
// wrapping a table.events; the inner link carries the name.
func parseListing(r io.Reader) (listing, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return listing{}, err
	}
	h1 := find(doc, func(n *html.Node) bool { return n.DataAtom == atom.H1 })
	if h1 == nil {
		return listing{}, errNoHeading
	}
	out := listing{name: strings.TrimSpace(text(h1))}

	for _, row := range findAll(doc, isEventRow) {
		ev, ok := parseRow(row)
		if !ok {
			out.skipped++
			continue
		}
		out.events = append(out.events, ev)
	}
	return out, nil
}

func isEventRow(n *html.Node) bool {
	if n.DataAtom != atom.A || !strings.HasPrefix(attr(n, "href"), "/event/") {
		return false
	}
	return find(n, func(c *html.Node) bool {
		return c != n && c.DataAtom == atom.Table && hasClass(c, "events")
	}) != nil
}

func parseRow(row *html.Node) (Event, bool) {
	link := find(row, func(n *html.Node) bool { return n != row && n.DataAtom == atom.A })
	if link == nil {
		return Event{}, false
	}
	href := strings.TrimRight(attr(link, "href"), "/")
	id, err := strconv.Atoi(href[strings.LastIndex(href, "/")+1:])
	if err != nil {
		return Event{}, false
	}
	ev := Event{ID: id, Name: strings.TrimSpace(text(link)), Status: "Unknown", Severity: "unknown"}

	if info := find(row, func(n *html.Node) bool {
		return n.DataAtom == atom.Div && attr(n, "class") == "text-gray-600 mb-2"
	}); info != nil {
		var parts []string
		for c := info.FirstChild; c != nil; c = c.NextSibling {
			if t := strings.TrimSpace(text(c)); t != "" {
				parts = append(parts, t)
			}
		}
		ev.Info = strings.Join(parts, "\n")
	}

	// Some events have no registration badge at all.
	if badge := find(row, func(n *html.Node) bool {
		return n.DataAtom == atom.Span && strings.Contains(attr(n, "class"), "badge")
	}); badge != nil {
		ev.Status = strings.TrimSpace(text(badge))
		for _, cls := range strings.Fields(attr(badge, "class")) {
			if sev, ok := strings.CutPrefix(cls, "bg-"); ok {
				sev, _, _ = strings.Cut(sev, "-")
				ev.Severity = sev
				break
			}
		}
	}
	return ev, true
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func text(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(text(c))
	}
	return b.String()
}

// find returns the first node in document order, n included, matching fn.
func find(n *html.Node, fn func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && fn(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if m := find(c, fn); m != nil {
			return m
		}
	}
	return nil
}

// findAll does not descend into matched nodes.
func findAll(n *html.Node, fn func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && fn(n) {
			out = append(out, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}
