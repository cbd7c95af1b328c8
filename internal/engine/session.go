package engine

import "time"

// Session is the bound pairing of exactly two users for the duration of one
// chat. SharedInterests is computed once at creation for display only; it
// plays no further role in relaying.
type Session struct {
	ID              string
	UserA           string
	UserB           string
	CreatedAt       time.Time
	SharedInterests []string
}

// Partner returns the other participant's ID, or "" when id is not a
// participant.
func (s *Session) Partner(id string) string {
	switch id {
	case s.UserA:
		return s.UserB
	case s.UserB:
		return s.UserA
	default:
		return ""
	}
}

// IsParticipant reports whether id is one of the two participants.
func (s *Session) IsParticipant(id string) bool {
	return id == s.UserA || id == s.UserB
}

// sharedInterests returns the intersection of two normalized tag sets in a's
// declared order. Empty when either side declared no interests: an empty set
// means "match with anyone", so there is nothing meaningful to display.
func sharedInterests(a, b []string) []string {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	set := make(map[string]bool, len(b))
	for _, t := range b {
		set[t] = true
	}
	var out []string
	for _, t := range a {
		if set[t] {
			out = append(out, t)
		}
	}
	return out
}
