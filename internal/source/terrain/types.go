package terrain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// AuthError is a rejected login. Reason is "{type}: {message}" as reported by Cognito.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "terrain login failed: " + e.Reason
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

var ErrNotLoggedIn = errors.New("terrain: not logged in")

type Member struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (m Member) FullName() string { return m.FirstName + " " + m.LastName }

type Achievement struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type SubmissionInfo struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Outcome string `json:"outcome"`
	Date    string `json:"date"`
}

// Submission is one approval request, pending or finalised.
type Submission struct {
	Member      Member         `json:"member"`
	Achievement Achievement    `json:"achievement"`
	Submission  SubmissionInfo `json:"submission"`
}

// Approved reports a finalised submission with outcome "approved".
func (s Submission) Approved() bool {
	return strings.EqualFold(s.Submission.Outcome, "approved")
}

// AgeDays is the number of whole days between the submission date and now.
func (s Submission) AgeDays(now time.Time) (int, error) {
	t, err := parseDate(s.Submission.Date)
	if err != nil {
		return 0, err
	}
	return int(math.Floor(now.Sub(t).Hours() / 24)), nil
}

func parseDate(v string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("bad submission date %q", v)
}

// Text decodes a JSON string, number or null into a string.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*t = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(s)
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
		*t = Text(n.String())
	}
	return nil
}

// AchievementMeta is only filled for staged achievements (skills, milestones).
type AchievementMeta struct {
	Stream Text `json:"stream"`
	Branch Text `json:"branch"`
	Stage  Text `json:"stage"`
}

// MemberAchievement is an entry of a member's achievement record.
type MemberAchievement struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Meta    AchievementMeta `json:"achievement_meta"`
	Answers map[string]any  `json:"answers"`
}

// Answer returns a string answer; ok is false when it is missing or not a string.
func (a MemberAchievement) Answer(key string) (string, bool) {
	v, ok := a.Answers[key].(string)
	return v, ok
}
