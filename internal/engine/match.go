package engine

// Join registers (or replaces) the user's preferences, moves it to Waiting,
// and runs the matchmaker. On success both participants receive a MatchFound
// notice; otherwise the user is appended to the waiting queue tail.
//
// A Matched user calling Join is treated like Next: its current session is
// torn down first so that a user never occupies two sessions.
func (e *Engine) Join(id string, prefs Preferences) []Notice {
	e.mu.Lock()
	defer e.mu.Unlock()

	u, ok := e.users[id]
	if !ok {
		return nil
	}

	var notices []Notice
	if u.State == StateMatched {
		notices = append(notices, e.releasePeerLocked(u)...)
	}

	u.applyPreferences(prefs, e.cfg.MaxInterests)
	u.State = StateWaiting
	e.removeFromQueueLocked(id)

	return append(notices, e.matchOrEnqueueLocked(u)...)
}

// Next ends the user's current session, if any, and immediately searches for
// a new partner. The abandoned peer is notified, returned to Waiting, and
// re-enters the queue; matching the same pair again is allowed.
func (e *Engine) Next(id string) []Notice {
	e.mu.Lock()
	defer e.mu.Unlock()

	u, ok := e.users[id]
	if !ok {
		return nil
	}

	var notices []Notice
	if u.State == StateMatched {
		notices = append(notices, e.releasePeerLocked(u)...)
	}

	u.State = StateWaiting
	e.removeFromQueueLocked(id)

	return append(notices, e.matchOrEnqueueLocked(u)...)
}

// releasePeerLocked ends u's session on an explicit leave. The peer gets a
// PartnerLeft notice and goes back to Waiting at the queue tail: an explicit
// leave is not the peer's fault, so it keeps searching automatically.
func (e *Engine) releasePeerLocked(u *User) []Notice {
	peer := e.endSessionLocked(u.SessionID, u.ID)
	if peer == nil {
		return nil
	}
	peer.State = StateWaiting
	e.enqueueLocked(peer.ID)
	return []Notice{{To: peer.ID, Event: PartnerLeft{}}}
}

// matchOrEnqueueLocked runs one matchmaker pass for u. The waiting queue is
// scanned in FIFO order and the first candidate satisfying the compatibility
// predicate wins; find-candidate, queue removal, and session creation happen
// under the one engine lock, so no concurrent event can claim the candidate
// mid-sequence. Without a match u lands at the queue tail.
func (e *Engine) matchOrEnqueueLocked(u *User) []Notice {
	for _, cid := range e.queue {
		if cid == u.ID {
			continue
		}
		cand, ok := e.users[cid]
		if !ok || cand.State != StateWaiting {
			continue
		}
		// Ghost users search but are never found. Deliberately
		// one-directional: u itself may be a ghost and still match.
		if cand.Ghost {
			continue
		}
		if !Compatible(u, cand) {
			continue
		}

		e.removeFromQueueLocked(cid)
		return e.createSessionLocked(u, cand)
	}

	e.enqueueLocked(u.ID)
	return nil
}

// createSessionLocked binds two Waiting users into a fresh session and
// produces the MatchFound notice for each side.
func (e *Engine) createSessionLocked(a, b *User) []Notice {
	s := &Session{
		ID:              e.newID(),
		UserA:           a.ID,
		UserB:           b.ID,
		CreatedAt:       e.now(),
		SharedInterests: sharedInterests(a.Interests, b.Interests),
	}
	e.sessions[s.ID] = s

	a.State = StateMatched
	a.SessionID = s.ID
	b.State = StateMatched
	b.SessionID = s.ID

	return []Notice{
		{To: a.ID, Event: MatchFound{
			SessionID:       s.ID,
			SharedInterests: s.SharedInterests,
			PartnerID:       b.ID,
			PartnerAvatar:   b.Avatar,
		}},
		{To: b.ID, Event: MatchFound{
			SessionID:       s.ID,
			SharedInterests: s.SharedInterests,
			PartnerID:       a.ID,
			PartnerAvatar:   a.Avatar,
		}},
	}
}

// Compatible evaluates the pairing predicate for two users. It is symmetric
// by construction: every clause treats a and b identically.
//
//   - gender filter: either side "any", or the two filters equal.
//   - country filter: same rule.
//   - interests: either set empty, or at least one shared normalized tag.
//
// Ghost visibility is intentionally NOT part of the predicate; it is a
// one-directional rule applied by the queue scan.
func Compatible(a, b *User) bool {
	if !filterCompatible(a.Gender, b.Gender) {
		return false
	}
	if !filterCompatible(a.Country, b.Country) {
		return false
	}
	return interestsCompatible(a.Interests, b.Interests)
}

func filterCompatible(a, b string) bool {
	return a == FilterAny || b == FilterAny || a == b
}

func interestsCompatible(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return true
	}
	return len(sharedInterests(a, b)) > 0
}
