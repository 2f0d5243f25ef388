// Package digest turns newly observed records into one grouped notification.
//
// FilterNew decides what is new, Builder assembles the payload, and Table maps
// classification tags to display text without ever failing on an unknown tag.
package digest

import "strings"

// DefaultSeparator joins the lines of one group.
const DefaultSeparator = "\n\n"

// Entry is one titled section of a digest. An empty Title means untitled.
type Entry struct {
	Title       string
	Description string
}

// Payload is the outbound message handed to a notification sink.
type Payload struct {
	Body    string
	Color   string
	Entries []Entry
}

// Group is a caller-defined partition of rendered lines, e.g. one region or one member.
type Group struct {
	Title string
	Lines []string
}

// Builder assembles payloads. Empty is the description of the single fallback
// entry used when no group has any line.
type Builder struct {
	Body      string
	Color     string
	Empty     string
	Separator string // DefaultSeparator when empty
}

// Build keeps group order and line order, drops empty lines and groups left with
// no lines, and falls back to one untitled Empty entry.
func (b Builder) Build(groups []Group) Payload {
	sep := b.Separator
	if sep == "" {
		sep = DefaultSeparator
	}
	p := Payload{Body: b.Body, Color: b.Color}
	for _, g := range groups {
		lines := make([]string, 0, len(g.Lines))
		for _, l := range g.Lines {
			if l != "" {
				lines = append(lines, l)
			}
		}
		if len(lines) == 0 {
			continue
		}
		p.Entries = append(p.Entries, Entry{Title: g.Title, Description: strings.Join(lines, sep)})
	}
	if len(p.Entries) == 0 {
		p.Entries = []Entry{{Description: b.Empty}}
	}
	return p
}

// IsEmpty reports whether p is the fallback digest.
func (p Payload) IsEmpty() bool {
	return len(p.Entries) == 1 && p.Entries[0].Title == ""
}

// Line is one record rendered for a digest.
type Line struct {
	Name   string
	Link   string
	Status string
	Emoji  string
	Info   string
}

// FormatLine renders "[name](link) • status emoji\ninfo".
func FormatLine(l Line) string {
	return "[" + l.Name + "](" + l.Link + ") • " + l.Status + " " + l.Emoji + "\n" + l.Info
}
