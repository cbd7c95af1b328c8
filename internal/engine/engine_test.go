package engine

import (
	"fmt"
	"testing"
	"time"
)

// newTestEngine returns an engine with a fixed clock and deterministic
// session IDs (s1, s2, ...).
func newTestEngine(cfg Config) *Engine {
	e := New(cfg)
	e.now = func() time.Time { return time.Unix(1700000000, 0) }
	n := 0
	e.newID = func() string {
		n++
		return fmt.Sprintf("s%d", n)
	}
	return e
}

// join connects a user and declares preferences in one step.
func join(e *Engine, id string, prefs Preferences) []Notice {
	e.Connect(id)
	return e.Join(id, prefs)
}

// noticesFor filters notices addressed to a given user.
func noticesFor(notices []Notice, id string) []Notice {
	var out []Notice
	for _, n := range notices {
		if n.To == id {
			out = append(out, n)
		}
	}
	return out
}

// checkInvariants verifies the queue and session table invariants:
// every queued id is a Waiting registry entry and appears once; session
// participants are distinct, Matched, and never queued.
func checkInvariants(t *testing.T, e *Engine) {
	t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()

	seen := make(map[string]bool)
	for _, id := range e.queue {
		if seen[id] {
			t.Fatalf("id %s appears twice in the waiting queue", id)
		}
		seen[id] = true
		u, ok := e.users[id]
		if !ok {
			t.Fatalf("queued id %s has no registry entry", id)
		}
		if u.State != StateWaiting {
			t.Fatalf("queued id %s is %s, want waiting", id, u.State)
		}
	}

	inSession := make(map[string]string)
	for sid, s := range e.sessions {
		if s.UserA == s.UserB {
			t.Fatalf("session %s has identical participants %s", sid, s.UserA)
		}
		for _, id := range []string{s.UserA, s.UserB} {
			if seen[id] {
				t.Fatalf("session participant %s is also in the waiting queue", id)
			}
			if other, dup := inSession[id]; dup {
				t.Fatalf("user %s is in sessions %s and %s", id, other, sid)
			}
			inSession[id] = sid
			if u, ok := e.users[id]; ok && u.State != StateMatched {
				t.Fatalf("session participant %s is %s, want matched", id, u.State)
			}
		}
	}
}

func TestJoin_MatchesCompatiblePair(t *testing.T) {
	e := newTestEngine(DefaultConfig())

	notices := join(e, "a", Preferences{Gender: "any", Country: "US", Interests: []string{"gaming"}})
	if len(notices) != 0 {
		t.Fatalf("first user should wait, got notices %+v", notices)
	}

	notices = join(e, "b", Preferences{Gender: "any", Country: "US", Interests: []string{"gaming", "music"}})
	if len(notices) != 2 {
		t.Fatalf("expected 2 match notices, got %d", len(notices))
	}

	for _, id := range []string{"a", "b"} {
		ns := noticesFor(notices, id)
		if len(ns) != 1 {
			t.Fatalf("expected exactly one notice for %s, got %d", id, len(ns))
		}
		mf, ok := ns[0].Event.(MatchFound)
		if !ok {
			t.Fatalf("expected MatchFound for %s, got %T", id, ns[0].Event)
		}
		if mf.SessionID != "s1" {
			t.Errorf("session id = %q, want s1", mf.SessionID)
		}
		if len(mf.SharedInterests) != 1 || mf.SharedInterests[0] != "gaming" {
			t.Errorf("shared interests = %v, want [gaming]", mf.SharedInterests)
		}
	}

	snap := e.Snapshot()
	if snap.Waiting != 0 || snap.Sessions != 1 {
		t.Errorf("snapshot = %+v, want 0 waiting / 1 session", snap)
	}
	checkInvariants(t, e)
}

func TestJoin_CountryMismatchStaysQueued(t *testing.T) {
	e := newTestEngine(DefaultConfig())

	join(e, "a", Preferences{Country: "US", Interests: []string{"gaming"}})
	notices := join(e, "b", Preferences{Country: "UK", Interests: []string{"gaming"}})
	if len(notices) != 0 {
		t.Fatalf("US/UK pair must not match, got %+v", notices)
	}

	snap := e.Snapshot()
	if snap.Waiting != 2 || snap.Sessions != 0 {
		t.Errorf("snapshot = %+v, want 2 waiting / 0 sessions", snap)
	}
	checkInvariants(t, e)
}

func TestJoin_FIFOPriority(t *testing.T) {
	e := newTestEngine(DefaultConfig())

	// Both queued users are compatible with c but not with each other;
	// the one waiting longest wins.
	join(e, "first", Preferences{Country: "US"})
	join(e, "second", Preferences{Country: "DE"})

	notices := join(e, "c", Preferences{})
	mf := noticesFor(notices, "c")[0].Event.(MatchFound)
	if mf.PartnerID != "first" {
		t.Errorf("expected FIFO winner first, got %s", mf.PartnerID)
	}
	checkInvariants(t, e)
}

func TestJoin_GhostIsNeverFoundButCanSearch(t *testing.T) {
	e := newTestEngine(DefaultConfig())

	join(e, "ghost", Preferences{})
	e.SetGhost("ghost", true)

	// A searching user must skip the queued ghost.
	notices := join(e, "seeker", Preferences{})
	if len(notices) != 0 {
		t.Fatalf("ghost must not be offered as a target, got %+v", notices)
	}

	// But the ghost itself may initiate a search and claim a visible user.
	notices = e.Next("ghost")
	if len(notices) != 2 {
		t.Fatalf("ghost-initiated search should match, got %d notices", len(notices))
	}
	checkInvariants(t, e)
}

func TestJoin_MalformedPreferencesArePermissive(t *testing.T) {
	e := newTestEngine(DefaultConfig())

	join(e, "a", Preferences{Gender: "", Country: "  "})
	notices := join(e, "b", Preferences{Gender: "male", Country: "JP"})
	if len(notices) != 2 {
		t.Fatalf("blank filters must behave as any/any, got %d notices", len(notices))
	}
}

func TestNext_ReleasesPeerBackToWaiting(t *testing.T) {
	e := newTestEngine(DefaultConfig())

	join(e, "a", Preferences{})
	join(e, "b", Preferences{})

	notices := e.Next("a")

	// b is notified first, then rematches with a (the only other waiter).
	bs := noticesFor(notices, "b")
	if len(bs) != 2 {
		t.Fatalf("expected partner_left + rematch for abandoned peer, got %d", len(bs))
	}
	if _, ok := bs[0].Event.(PartnerLeft); !ok {
		t.Fatalf("expected PartnerLeft for peer, got %T", bs[0].Event)
	}

	// a immediately rematches with b in a fresh session.
	as := noticesFor(notices, "a")
	if len(as) != 1 {
		t.Fatalf("expected a to rematch, got %d notices", len(as))
	}
	mf := as[0].Event.(MatchFound)
	if mf.PartnerID != "b" || mf.SessionID == "s1" {
		t.Errorf("rematch = %+v, want partner b in a fresh session", mf)
	}
	checkInvariants(t, e)
}

func TestDisconnect_CleansUpAndNotifiesOnce(t *testing.T) {
	e := newTestEngine(DefaultConfig())

	join(e, "a", Preferences{})
	join(e, "b", Preferences{})

	notices := e.Disconnect("a")
	if len(notices) != 1 {
		t.Fatalf("expected exactly one partner_left, got %d: %+v", len(notices), notices)
	}
	if notices[0].To != "b" {
		t.Errorf("notice addressed to %s, want b", notices[0].To)
	}
	if _, ok := notices[0].Event.(PartnerLeft); !ok {
		t.Errorf("expected PartnerLeft, got %T", notices[0].Event)
	}

	snap := e.Snapshot()
	if snap.Sessions != 0 {
		t.Errorf("session must be gone, snapshot = %+v", snap)
	}

	// Default policy: the survivor parks Idle, it does not auto re-queue.
	e.mu.Lock()
	b := e.users["b"]
	if b.State != StateIdle || b.SessionID != "" {
		t.Errorf("survivor state = %s session=%q, want idle with no session", b.State, b.SessionID)
	}
	if _, gone := e.users["a"]; gone {
		t.Error("disconnected user still has a registry entry")
	}
	e.mu.Unlock()
	checkInvariants(t, e)
}

func TestDisconnect_RequeuePolicy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequeueOnPartnerDisconnect = true
	e := newTestEngine(cfg)

	join(e, "a", Preferences{})
	join(e, "b", Preferences{})
	join(e, "c", Preferences{}) // waits alone

	notices := e.Disconnect("a")

	// b gets partner_left, then immediately rematches with c.
	bs := noticesFor(notices, "b")
	if len(bs) != 2 {
		t.Fatalf("expected partner_left + match for survivor, got %d notices", len(bs))
	}
	if _, ok := bs[0].Event.(PartnerLeft); !ok {
		t.Fatalf("first survivor notice = %T, want PartnerLeft", bs[0].Event)
	}
	if mf, ok := bs[1].Event.(MatchFound); !ok || mf.PartnerID != "c" {
		t.Fatalf("second survivor notice = %+v, want match with c", bs[1].Event)
	}
	checkInvariants(t, e)
}

func TestDisconnect_WhileWaitingRemovesQueueSlot(t *testing.T) {
	e := newTestEngine(DefaultConfig())

	join(e, "a", Preferences{Country: "US"})
	if notices := e.Disconnect("a"); len(notices) != 0 {
		t.Fatalf("lone waiter disconnect should produce no notices, got %+v", notices)
	}
	if snap := e.Snapshot(); snap.Waiting != 0 || snap.Users != 0 {
		t.Errorf("snapshot = %+v, want empty engine", snap)
	}
}

func TestSendMessage_ScopedToSession(t *testing.T) {
	e := newTestEngine(DefaultConfig())

	join(e, "a", Preferences{Country: "US"})
	notices := join(e, "b", Preferences{Country: "US"})
	sid := noticesFor(notices, "a")[0].Event.(MatchFound).SessionID

	join(e, "c", Preferences{Country: "JP"}) // unrelated third user

	out := e.SendMessage("a", sid, KindText, "hello", "")
	if len(out) != 2 {
		t.Fatalf("expected delivery to both participants, got %d", len(out))
	}
	for _, n := range out {
		if n.To == "c" {
			t.Fatal("message leaked to a third user")
		}
		msg := n.Event.(Message)
		if msg.From != "a" || msg.Text != "hello" || msg.Kind != KindText {
			t.Errorf("message = %+v", msg)
		}
		if msg.Ts == 0 {
			t.Error("missing server-assigned timestamp")
		}
	}

	// Sender echo is required.
	if len(noticesFor(out, "a")) != 1 {
		t.Error("sender did not receive its own message back")
	}
}

func TestSendMessage_ImageKindCarriesReference(t *testing.T) {
	e := newTestEngine(DefaultConfig())

	join(e, "a", Preferences{})
	notices := join(e, "b", Preferences{})
	sid := noticesFor(notices, "a")[0].Event.(MatchFound).SessionID

	out := e.SendMessage("b", sid, KindImage, "", "https://img.example/x.png")
	msg := out[0].Event.(Message)
	if msg.Kind != KindImage || msg.ImageURL == "" {
		t.Errorf("image message = %+v", msg)
	}
}

func TestSendMessage_StaleSessionDroppedSilently(t *testing.T) {
	e := newTestEngine(DefaultConfig())

	e.Connect("a")
	if out := e.SendMessage("a", "no-such-session", KindText, "hi", ""); out != nil {
		t.Errorf("stale session send = %+v, want nil", out)
	}

	// A non-participant naming a real session is dropped too.
	join(e, "x", Preferences{})
	notices := join(e, "y", Preferences{})
	sid := noticesFor(notices, "x")[0].Event.(MatchFound).SessionID
	if out := e.SendMessage("a", sid, KindText, "hi", ""); out != nil {
		t.Errorf("outsider send = %+v, want nil", out)
	}
}

func TestTyping_ForwardedToPartnerOnly(t *testing.T) {
	e := newTestEngine(DefaultConfig())

	join(e, "a", Preferences{})
	notices := join(e, "b", Preferences{})
	sid := noticesFor(notices, "a")[0].Event.(MatchFound).SessionID

	out := e.Typing("a", sid, true)
	if len(out) != 1 || out[0].To != "b" {
		t.Fatalf("typing notices = %+v, want exactly one to b", out)
	}
	if ev := out[0].Event.(Typing); !ev.IsTyping {
		t.Errorf("typing event = %+v, want is_typing=true", ev)
	}

	out = e.Typing("b", sid, false)
	if len(out) != 1 || out[0].To != "a" {
		t.Fatalf("typing notices = %+v, want exactly one to a", out)
	}
}

func TestReport_RequiresSharedSession(t *testing.T) {
	e := newTestEngine(DefaultConfig())

	join(e, "a", Preferences{})
	join(e, "b", Preferences{})
	join(e, "c", Preferences{Country: "JP", Gender: "male"})

	rec := e.Report("a", "b")
	if rec == nil {
		t.Fatal("expected a record for an in-session report")
	}
	if rec.ReporterID != "a" || rec.ReportedID != "b" || rec.SessionID == "" || rec.Ts == 0 {
		t.Errorf("record = %+v", rec)
	}

	// Reporting a stranger yields nothing.
	if rec := e.Report("a", "c"); rec != nil {
		t.Errorf("stranger report = %+v, want nil", rec)
	}

	// Two identical reports are two independent records, and matching
	// behavior is untouched.
	rec2 := e.Report("a", "b")
	if rec2 == nil {
		t.Fatal("second identical report must also produce a record")
	}
	if snap := e.Snapshot(); snap.Sessions != 1 {
		t.Errorf("report must not end the session, snapshot = %+v", snap)
	}
}

func TestJoin_WhileMatchedEndsOldSessionFirst(t *testing.T) {
	e := newTestEngine(DefaultConfig())

	join(e, "a", Preferences{})
	join(e, "b", Preferences{})

	// a re-declares preferences while matched: old session ends, b is
	// released to Waiting, and a rematches (with b again, by FIFO).
	notices := e.Join("a", Preferences{Interests: []string{"music"}})
	bs := noticesFor(notices, "b")
	if len(bs) < 1 {
		t.Fatal("peer was not notified about the ended session")
	}
	if _, ok := bs[0].Event.(PartnerLeft); !ok {
		t.Fatalf("first peer notice = %T, want PartnerLeft", bs[0].Event)
	}
	checkInvariants(t, e)
}
