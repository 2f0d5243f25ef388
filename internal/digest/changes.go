package digest

// Record is anything observed upstream that can appear in a digest at most once.
type Record interface {
	RecordID() int
	// Eligible is false for records that must never be announced, e.g. closed events.
	Eligible() bool
}

// SeenIDs is the append-only list of ids already announced.
type SeenIDs []int

func (s SeenIDs) Contains(id int) bool {
	for _, v := range s {
		if v == id {
			return true
		}
	}
	return false
}

// FilterNew returns the eligible records whose ids are not in seen, in input order,
// together with seen extended by their ids. Ids are added as records are accepted,
// so a duplicate later in the batch is suppressed. The input seen slice is not modified.
func FilterNew[R Record](records []R, seen SeenIDs) ([]R, SeenIDs) {
	known := make(map[int]struct{}, len(seen)+len(records))
	for _, id := range seen {
		known[id] = struct{}{}
	}
	next := append(SeenIDs(nil), seen...)

	var out []R
	for _, r := range records {
		if !r.Eligible() {
			continue
		}
		id := r.RecordID()
		if _, ok := known[id]; ok {
			continue
		}
		known[id] = struct{}{}
		next = append(next, id)
		out = append(out, r)
	}
	return out, next
}
