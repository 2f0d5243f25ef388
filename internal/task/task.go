// Package task holds the vocabulary shared by schedulable crawler tasks.
package task

import (
	"context"
	"strings"
)

// Identity names one scheduled task instance. Group is the extension that owns it.
type Identity struct {
	Group string
	Name  string
}

// String is the scheduler entry name and the state key, e.g. "ScoutEventCrawlerTask-weekly".
func (id Identity) String() string { return id.Group + "-" + id.Name }

func (id Identity) IsZero() bool {
	return strings.TrimSpace(id.Group) == "" && strings.TrimSpace(id.Name) == ""
}

// Decision is the outcome of evaluating whether a task may run.
type Decision int

const (
	Continue Decision = iota
	Pause
)

func (d Decision) String() string {
	switch d {
	case Continue:
		return "continue"
	case Pause:
		return "pause"
	default:
		return "unknown"
	}
}

type runIDKey struct{}

// WithRunID tags ctx with the id of the current run.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunID returns the run id set by WithRunID, or "".
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}
