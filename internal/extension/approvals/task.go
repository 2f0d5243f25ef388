// Package approvals reports a unit's pending and recently approved achievement
// submissions from Terrain.
package approvals

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"crest/internal/digest"
	"crest/internal/extension"
	"crest/internal/notifier"
	"crest/internal/source/terrain"
	"crest/internal/state"
	"crest/internal/task"
	logx "crest/pkg/logx"
)

const (
	Group = "TerrainApprovalsTask"

	DefaultLookbackDays = 7
)

var pendingDigest = digest.Builder{
	Body:      "Pending approval requests",
	Color:     "#FAC11B",
	Empty:     "No pending approvals",
	Separator: "\n",
}

func recentDigest(days int) digest.Builder {
	return digest.Builder{
		Body:      "Approved in the last " + strconv.Itoa(days) + " days",
		Color:     "#2ECC71",
		Empty:     "No recent approvals",
		Separator: "\n",
	}
}

// TaskConfig is the per-task config bound into each scheduled job.
type TaskConfig struct {
	Name         string   `json:"task_name"`
	Username     string   `json:"username"`
	Password     string   `json:"password"`
	LookbackDays int      `json:"lookback_days"`
	Destinations []string `json:"destinations"`
}

// Client is the part of the Terrain API a task uses.
type Client interface {
	AchievementLister
	Login(ctx context.Context, username, password string) error
	Units(ctx context.Context) ([]string, error)
	Pending(ctx context.Context, unit string) ([]terrain.Submission, error)
	Finalised(ctx context.Context, unit string) ([]terrain.Submission, error)
}

// Task logs in before every run and pauses itself when the credentials are rejected.
// It keeps no state, so an approval is reported on every run inside the lookback window.
type Task struct {
	client Client
	sink   notifier.Sink
	log    logx.Logger
	now    func() time.Time
}

func NewTask(client Client, sink notifier.Sink, log logx.Logger) *Task {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Task{client: client, sink: sink, log: log.With(logx.String("comp", "approvals")), now: time.Now}
}

func (t *Task) Evaluate(ctx context.Context, cfg TaskConfig) task.Decision {
	err := t.client.Login(ctx, cfg.Username, cfg.Password)
	if err == nil {
		return task.Continue
	}
	var ae *terrain.AuthError
	if errors.As(err, &ae) {
		t.log.Error("terrain login rejected",
			logx.String("task_name", cfg.Name),
			logx.String("username", cfg.Username),
			logx.String("reason", ae.Reason),
		)
		return task.Pause
	}
	// Only rejected credentials pause. Without a session Execute fails by itself.
	t.log.Warn("terrain login failed", logx.String("task_name", cfg.Name), logx.Err(err))
	return task.Continue
}

func (t *Task) Execute(ctx context.Context, cfg TaskConfig, _ state.None) (state.None, error) {
	units, err := t.client.Units(ctx)
	if err != nil {
		return state.None{}, fmt.Errorf("list units: %w", err)
	}
	if len(units) == 0 {
		return state.None{}, errors.New("profile has no units")
	}
	unit := units[0]

	pending, err := t.client.Pending(ctx, unit)
	if err != nil {
		return state.None{}, fmt.Errorf("pending submissions: %w", err)
	}
	finalised, err := t.client.Finalised(ctx, unit)
	if err != nil {
		return state.None{}, fmt.Errorf("finalised submissions: %w", err)
	}

	lookback := cfg.LookbackDays
	if lookback <= 0 {
		lookback = DefaultLookbackDays
	}
	now := t.now()
	recent := t.recent(finalised, now, lookback)

	cls := newClassifier(t.client, t.log)
	for _, d := range []struct {
		b    digest.Builder
		subs []terrain.Submission
	}{
		{pendingDigest, pending},
		{recentDigest(lookback), recent},
	} {
		p := d.b.Build(groupByMember(ctx, sortSubmissions(d.subs, now), cls))
		if err := extension.SendAll(ctx, t.sink, cfg.Destinations, p); err != nil {
			return state.None{}, err
		}
	}
	t.log.Info("approvals digests sent",
		logx.String("task_name", cfg.Name),
		logx.String("unit", unit),
		logx.Int("pending", len(pending)),
		logx.Int("recent", len(recent)),
	)
	return state.None{}, nil
}

// recent keeps approved submissions no older than lookback days. Undated ones are dropped.
func (t *Task) recent(finalised []terrain.Submission, now time.Time, lookback int) []terrain.Submission {
	var out []terrain.Submission
	for _, s := range finalised {
		if !s.Approved() {
			continue
		}
		age, err := s.AgeDays(now)
		if err != nil {
			t.log.Debug("submission dropped", logx.String("submission", s.Submission.ID), logx.Err(err))
			continue
		}
		if age <= lookback {
			out = append(out, s)
		}
	}
	return out
}

// sortSubmissions orders by the text key first name + last name + age in days.
// The age is compared as text, so 10 sorts before 9.
func sortSubmissions(subs []terrain.Submission, now time.Time) []terrain.Submission {
	type keyed struct {
		key string
		s   terrain.Submission
	}
	ks := make([]keyed, len(subs))
	for i, s := range subs {
		age, err := s.AgeDays(now)
		if err != nil {
			age = 0
		}
		ks[i] = keyed{key: s.Member.FirstName + s.Member.LastName + strconv.Itoa(age), s: s}
	}
	sort.SliceStable(ks, func(i, j int) bool { return ks[i].key < ks[j].key })
	out := make([]terrain.Submission, len(ks))
	for i, k := range ks {
		out[i] = k.s
	}
	return out
}

// groupByMember folds contiguous submissions of the same member into one group.
func groupByMember(ctx context.Context, subs []terrain.Submission, cls *classifier) []digest.Group {
	var groups []digest.Group
	last := ""
	for _, s := range subs {
		if len(groups) == 0 || s.Member.ID != last {
			groups = append(groups, digest.Group{Title: s.Member.FullName()})
			last = s.Member.ID
		}
		g := &groups[len(groups)-1]
		g.Lines = append(g.Lines, cls.Describe(ctx, s))
	}
	return groups
}
