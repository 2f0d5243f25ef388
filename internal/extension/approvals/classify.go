package approvals

import (
	"context"
	"strings"
	"unicode"

	"crest/internal/digest"
	"crest/internal/source/terrain"
	logx "crest/pkg/logx"
)

var achievements = digest.NewTable(digest.UnknownAchievement, map[string]digest.Classification{
	"intro_scouting":      {Emoji: "⚜️", Text: "Introduction to Scouting"},
	"intro_section":       {Emoji: "🗣️", Text: "Introduction to Section"},
	"course_reflection":   {Emoji: "📚", Text: "Personal Development Course"},
	"adventurous_journey": {Emoji: "🚀", Text: "Adventurous Journey"},
	"personal_reflection": {Emoji: "📐", Text: "Personal Reflection"},
	"peak_award":          {Emoji: "⭐", Text: "Peak Award"},
})

var streams = map[string]string{
	"alpine":      "❄️",
	"aquatics":    "🏊",
	"boating":     "⛵",
	"bushcraft":   "🏞️",
	"bushwalking": "🥾",
	"camping":     "⛺",
	"cycling":     "🚲",
	"paddling":    "🛶",
	"vertical":    "🧗",
}

func streamEmoji(stream string) string {
	if e, ok := streams[strings.ToLower(strings.TrimSpace(stream))]; ok {
		return e
	}
	return digest.UnknownAchievement.Emoji
}

var interestAreas = digest.NewTable(digest.Classification{Text: "Unknown"}, map[string]digest.Classification{
	"sia_adventure_sport":    {Emoji: "🏈", Text: "Adventure & Sport"},
	"sia_art_literature":     {Emoji: "🎭", Text: "Arts & Literature"},
	"sia_better_world":       {Emoji: "🌏", Text: "Creating a Better World"},
	"sia_environment":        {Emoji: "♻️", Text: "Environment"},
	"sia_growth_development": {Emoji: "🌱", Text: "Growth & Development"},
	"sia_stem_innovation":    {Emoji: "🔎", Text: "STEM & Innovation"},
})

const (
	typeOAS       = "outdoor_adventure_skill"
	typeSIA       = "special_interest_area"
	typeMilestone = "milestone"
)

// AchievementLister fetches a member's achievement record.
type AchievementLister interface {
	MemberAchievements(ctx context.Context, member string) ([]terrain.MemberAchievement, error)
}

// classifier renders submissions for one run. Member records are fetched at
// most once per member.
type classifier struct {
	src   AchievementLister
	log   logx.Logger
	cache map[string][]terrain.MemberAchievement
}

func newClassifier(src AchievementLister, log logx.Logger) *classifier {
	return &classifier{src: src, log: log, cache: map[string][]terrain.MemberAchievement{}}
}

// Describe returns the display line for s, or "" when the detail it needs
// cannot be found.
func (c *classifier) Describe(ctx context.Context, s terrain.Submission) string {
	tag := s.Achievement.Type
	switch tag {
	case typeOAS, typeSIA, typeMilestone:
	default:
		return achievements.Lookup(tag).String()
	}

	a, ok := c.find(ctx, s)
	if !ok {
		return ""
	}
	switch tag {
	case typeOAS:
		return digest.Classification{
			Emoji: streamEmoji(string(a.Meta.Stream)),
			Text:  branchTitle(string(a.Meta.Branch)) + " stage " + string(a.Meta.Stage),
		}.String()
	case typeSIA:
		sel, _ := a.Answer("special_interest_area_selection")
		name, _ := a.Answer("project_name")
		name = strings.TrimSpace(name)
		if name == "" {
			name = "Unnamed project"
		}
		return interestAreas.Lookup(sel).String() + " SIA - " + name + " (" + s.Submission.Type + ")"
	default:
		return "👣 Milestone " + string(a.Meta.Stage)
	}
}

func (c *classifier) find(ctx context.Context, s terrain.Submission) (terrain.MemberAchievement, bool) {
	member := s.Member.ID
	list, cached := c.cache[member]
	if !cached {
		var err error
		list, err = c.src.MemberAchievements(ctx, member)
		if err != nil {
			c.log.Warn("member achievements unavailable",
				logx.String("member", member),
				logx.Err(err),
			)
			list = nil
		}
		c.cache[member] = list
	}
	for _, a := range list {
		if a.ID == s.Achievement.ID {
			return a, true
		}
	}
	c.log.Debug("achievement detail not found",
		logx.String("member", member),
		logx.String("achievement", s.Achievement.ID),
	)
	return terrain.MemberAchievement{}, false
}

// branchTitle turns "cross-country-skiing" into "Cross Country Skiing".
func branchTitle(v string) string {
	words := strings.FieldsFunc(v, func(r rune) bool { return r == '-' || unicode.IsSpace(r) })
	for i, w := range words {
		rs := []rune(strings.ToLower(w))
		rs[0] = unicode.ToUpper(rs[0])
		words[i] = string(rs)
	}
	return strings.Join(words, " ")
}
