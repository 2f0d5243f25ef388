package digest

// Classification is the display form of a classification tag.
type Classification struct {
	Text  string
	Emoji string
}

// String renders "emoji text", or just the text when there is no emoji.
func (c Classification) String() string {
	if c.Emoji == "" {
		return c.Text
	}
	return c.Emoji + " " + c.Text
}

// UnknownAchievement is the fallback for tags no table knows.
var UnknownAchievement = Classification{Text: "Unknown achievement", Emoji: "❓"}

// Table is a read-only tag lookup with an explicit fallback.
type Table struct {
	fallback Classification
	entries  map[string]Classification
}

func NewTable(fallback Classification, entries map[string]Classification) Table {
	m := make(map[string]Classification, len(entries))
	for k, v := range entries {
		m[k] = v
	}
	return Table{fallback: fallback, entries: m}
}

// Lookup never fails: unknown tags resolve to the fallback.
func (t Table) Lookup(tag string) Classification {
	if c, ok := t.entries[tag]; ok {
		return c
	}
	return t.fallback
}

// Has reports whether tag has its own entry.
func (t Table) Has(tag string) bool {
	_, ok := t.entries[tag]
	return ok
}
