// Package engine implements the pairing core: the in-memory registry of
// connected users, the FIFO matchmaker, session lifecycle management, and the
// session-scoped message relay. All shared state lives in one Engine value
// guarded by a single mutex; every inbound event is one method call that runs
// to completion under the lock and returns the outbound notices it produced.
// Nothing in this package performs I/O, which keeps the match-then-bind
// sequence atomic and the whole core deterministic under test.
package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Config holds tunable engine policies.
type Config struct {
	// RequeueOnPartnerDisconnect controls what happens to the surviving
	// participant when its partner drops: true returns it to Waiting and
	// re-runs the matchmaker, false parks it Idle until the client
	// explicitly asks for a new chat.
	RequeueOnPartnerDisconnect bool

	// MaxInterests caps the number of interest tags kept per user.
	MaxInterests int
}

// DefaultConfig returns the default engine policies.
func DefaultConfig() Config {
	return Config{
		RequeueOnPartnerDisconnect: false,
		MaxInterests:               5,
	}
}

// Engine owns the registry, waiting queue, and session table.
type Engine struct {
	mu       sync.Mutex
	cfg      Config
	users    map[string]*User
	queue    []string // user IDs in Waiting state, FIFO scan order
	sessions map[string]*Session

	now   func() time.Time // injectable clock for tests
	newID func() string    // injectable session ID source for tests
}

// New creates an empty Engine with the given config.
func New(cfg Config) *Engine {
	if cfg.MaxInterests <= 0 {
		cfg.MaxInterests = DefaultConfig().MaxInterests
	}
	return &Engine{
		cfg:      cfg,
		users:    make(map[string]*User),
		sessions: make(map[string]*Session),
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

// Connect registers a fresh connection in Idle state. Preferences arrive
// later via Join; until then the user is invisible to the matchmaker.
func (e *Engine) Connect(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.users[id] = &User{ID: id, State: StateIdle}
}

// Disconnect removes every trace of the user in one atomic step: registry
// entry, queue slot, and session membership. If the user was Matched, the
// surviving participant receives exactly one partner_left notice and is
// handled per Config.RequeueOnPartnerDisconnect.
func (e *Engine) Disconnect(id string) []Notice {
	e.mu.Lock()
	defer e.mu.Unlock()

	u, ok := e.users[id]
	if !ok {
		return nil
	}

	var notices []Notice
	if u.State == StateMatched {
		peer := e.endSessionLocked(u.SessionID, id)
		if peer != nil {
			notices = append(notices, Notice{To: peer.ID, Event: PartnerLeft{}})
			if e.cfg.RequeueOnPartnerDisconnect {
				peer.State = StateWaiting
				notices = append(notices, e.matchOrEnqueueLocked(peer)...)
			} else {
				peer.State = StateIdle
			}
		}
	}

	e.removeFromQueueLocked(id)
	delete(e.users, id)
	return notices
}

// SetGhost toggles ghost mode. A ghost user is skipped as a match candidate
// but may still initiate searches; the toggle itself never triggers matching.
func (e *Engine) SetGhost(id string, on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if u, ok := e.users[id]; ok {
		u.Ghost = on
	}
}

// Stats is a point-in-time snapshot of engine occupancy for metrics.
type Stats struct {
	Users    int
	Waiting  int
	Sessions int
}

// Snapshot returns current occupancy counts.
func (e *Engine) Snapshot() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	return Stats{
		Users:    len(e.users),
		Waiting:  len(e.queue),
		Sessions: len(e.sessions),
	}
}

// endSessionLocked tears down a session and returns the participant other
// than leaving, already reset to a sessionless state. Returns nil when the
// session is gone or the peer has no registry entry (concurrent disconnect).
func (e *Engine) endSessionLocked(sessionID, leaving string) *User {
	s, ok := e.sessions[sessionID]
	if !ok {
		return nil
	}
	delete(e.sessions, sessionID)

	if leaver, ok := e.users[leaving]; ok {
		leaver.SessionID = ""
	}

	peer, ok := e.users[s.Partner(leaving)]
	if !ok {
		return nil
	}
	peer.SessionID = ""
	return peer
}

// removeFromQueueLocked deletes id from the waiting queue if present.
func (e *Engine) removeFromQueueLocked(id string) {
	for i, qid := range e.queue {
		if qid == id {
			e.queue = append(e.queue[:i], e.queue[i+1:]...)
			return
		}
	}
}

// enqueueLocked appends id to the queue tail unless already present,
// preserving the at-most-once queue invariant.
func (e *Engine) enqueueLocked(id string) {
	for _, qid := range e.queue {
		if qid == id {
			return
		}
	}
	e.queue = append(e.queue, id)
}
