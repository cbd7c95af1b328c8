package engine

import "strings"

// FilterAny is the permissive value for gender and country filters. Missing
// or malformed preference fields collapse to it rather than being rejected.
const FilterAny = "any"

// State is a user's position in the pairing lifecycle.
type State int

const (
	// StateIdle: connected, no preferences declared, not searchable.
	StateIdle State = iota
	// StateWaiting: preferences set, sitting in the waiting queue.
	StateWaiting
	// StateMatched: bound to exactly one session.
	StateMatched
)

// String implements fmt.Stringer for log readability.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaiting:
		return "waiting"
	case StateMatched:
		return "matched"
	default:
		return "unknown"
	}
}

// Preferences is the client-declared matching input from the join event.
type Preferences struct {
	Gender    string
	Country   string
	Interests []string
	Avatar    string
}

// User is a registry entry. Owned exclusively by the Engine; all mutation
// happens under the engine mutex.
type User struct {
	ID        string
	Gender    string // gender filter: male | female | any
	Country   string // country filter: country code | any
	Interests []string
	Avatar    string // opaque display glyph, not used in matching
	Ghost     bool   // excluded from being offered as a match target
	State     State
	SessionID string // set only in StateMatched
}

// applyPreferences normalizes and stores the declared preferences.
// Blank filters become FilterAny; interests are lower-cased, trimmed,
// deduplicated, and capped at max.
func (u *User) applyPreferences(p Preferences, max int) {
	u.Gender = normalizeFilter(p.Gender)
	u.Country = normalizeFilter(p.Country)
	u.Interests = normalizeInterests(p.Interests, max)
	u.Avatar = p.Avatar
}

func normalizeFilter(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return FilterAny
	}
	return v
}

// normalizeInterests lower-cases and trims tags, drops empties and
// duplicates, and keeps at most max tags in declared order.
func normalizeInterests(tags []string, max int) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
		if len(out) == max {
			break
		}
	}
	return out
}
