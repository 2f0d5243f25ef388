package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// SecondOptional allows both 5-field and 6-field (seconds first) expressions.
var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

type SpecKind int

const (
	SpecCron SpecKind = iota
	SpecInterval
)

// ParsedSpec is a schedule string resolved to either a cron expression or a fixed interval.
//
// Supported forms:
//   - Cron: "*/5 * * * *", "0 30 9 * * MON", "@daily", "@every 55m"
//   - Quartz cron: "0 0 9 ? * MON-FRI", "0 0 9 ? * 2 *" (optional year must be * or ?)
//   - Interval duration: "55m", "2h30m"
//   - Interval HH:MM: "00:50" (50 minutes), "02:30" (2 hours 30 minutes)
//
// Optional prefixes "cron:" and "interval:"/"every:" force the kind.
type ParsedSpec struct {
	Kind   SpecKind
	Cron   string
	Every  time.Duration
	Source string // "cron" | "duration" | "hhmm"
}

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

func ParseSchedule(raw string) (ParsedSpec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedSpec{}, fmt.Errorf("schedule required")
	}

	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		return cronSpec(strings.TrimSpace(s[len("cron:"):]))
	case strings.HasPrefix(low, "interval:"):
		return intervalSpec(s[len("interval:"):])
	case strings.HasPrefix(low, "every:"):
		return intervalSpec(s[len("every:"):])
	case strings.ContainsAny(s, " \t\n\r") || strings.HasPrefix(s, "@"):
		return cronSpec(s)
	}

	if ps, err := intervalSpec(s); err == nil {
		return ps, nil
	}
	return ParsedSpec{}, fmt.Errorf(
		"invalid schedule %q (use cron like '0 0 9 * * MON', HH:MM like '02:30', or duration like '55m')", raw)
}

// Parse resolves raw into a cron schedule and the normalized spec string.
func Parse(raw string) (cron.Schedule, string, error) {
	ps, err := ParseSchedule(raw)
	if err != nil {
		return nil, "", err
	}
	if ps.Kind == SpecInterval {
		return cron.Every(ps.Every), "@every " + ps.Every.String(), nil
	}
	sched, err := parser.Parse(ps.Cron)
	if err != nil {
		return nil, "", fmt.Errorf("invalid cron expression %q: %w", raw, err)
	}
	return sched, ps.Cron, nil
}

// Validate reports whether raw is a usable schedule.
func Validate(raw string) error {
	_, _, err := Parse(raw)
	return err
}

func cronSpec(expr string) (ParsedSpec, error) {
	if expr == "" {
		return ParsedSpec{}, fmt.Errorf("cron expression required")
	}
	norm, err := normalizeCron(expr)
	if err != nil {
		return ParsedSpec{}, err
	}
	return ParsedSpec{Kind: SpecCron, Cron: norm, Source: "cron"}, nil
}

// normalizeCron adapts Quartz expressions (seconds first, '?' placeholder, optional
// year, Sunday=1 weekdays) to the robfig dialect. Other expressions pass through.
func normalizeCron(expr string) (string, error) {
	fields := strings.Fields(expr)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "@") {
		return strings.TrimSpace(expr), nil
	}
	quartz := len(fields) == 7 || (len(fields) == 6 && strings.Contains(expr, "?"))
	if !quartz {
		return strings.Join(fields, " "), nil
	}
	if len(fields) == 7 {
		if y := fields[6]; y != "*" && y != "?" {
			return "", fmt.Errorf("cron year field %q is not supported", y)
		}
		fields = fields[:6]
	}
	dow, err := shiftQuartzWeekdays(fields[5])
	if err != nil {
		return "", err
	}
	fields[5] = dow
	return strings.Join(fields, " "), nil
}

// shiftQuartzWeekdays maps numeric weekdays 1-7 (SUN=1) to 0-6 (SUN=0).
// Step counts after '/' and weekday names are copied unchanged.
func shiftQuartzWeekdays(f string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(f); {
		if f[i] < '0' || f[i] > '9' {
			b.WriteByte(f[i])
			i++
			continue
		}
		j := i
		for j < len(f) && f[j] >= '0' && f[j] <= '9' {
			j++
		}
		if i > 0 && f[i-1] == '/' {
			b.WriteString(f[i:j])
		} else {
			n, _ := strconv.Atoi(f[i:j])
			if n < 1 || n > 7 {
				return "", fmt.Errorf("cron day-of-week %d out of range 1-7", n)
			}
			b.WriteString(strconv.Itoa(n - 1))
		}
		i = j
	}
	return b.String(), nil
}

func intervalSpec(v string) (ParsedSpec, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return ParsedSpec{}, fmt.Errorf("interval required")
	}
	if m := reHHMM.FindStringSubmatch(v); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return ParsedSpec{}, fmt.Errorf("invalid minutes in %q", v)
		}
		d := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
		if d <= 0 {
			return ParsedSpec{}, fmt.Errorf("interval must be > 0")
		}
		return ParsedSpec{Kind: SpecInterval, Every: d, Source: "hhmm"}, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return ParsedSpec{}, fmt.Errorf("invalid interval %q (use HH:MM or Go duration like '55m')", v)
	}
	if d <= 0 {
		return ParsedSpec{}, fmt.Errorf("interval must be > 0")
	}
	return ParsedSpec{Kind: SpecInterval, Every: d, Source: "duration"}, nil
}
