package engine

// Message kinds accepted by the relay. Image payloads are opaque references;
// the engine never interprets or stores image bytes.
const (
	KindText  = "text"
	KindImage = "image"
)

// SendMessage relays a chat payload within a session. The sender must be a
// current participant of the named session; anything stale (unknown session,
// sender not a member) is dropped silently, since the peer may have
// legitimately disconnected a moment earlier. The message is stamped with
// server time and delivered to BOTH participants: the echo back to the
// sender is what gives each side one consistent ordered view.
func (e *Engine) SendMessage(id, sessionID, kind, text, imageURL string) []Notice {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[sessionID]
	if !ok || !s.IsParticipant(id) {
		return nil
	}

	if kind != KindImage {
		kind = KindText
	}

	msg := Message{
		SessionID: sessionID,
		From:      id,
		Kind:      kind,
		Text:      text,
		ImageURL:  imageURL,
		Ts:        e.now().UnixMilli(),
	}
	return []Notice{
		{To: s.UserA, Event: msg},
		{To: s.UserB, Event: msg},
	}
}

// Typing forwards a typing indicator to the other participant only, never
// back to the sender. No state is kept: a new signal supersedes the last.
func (e *Engine) Typing(id, sessionID string, isTyping bool) []Notice {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[sessionID]
	if !ok || !s.IsParticipant(id) {
		return nil
	}

	return []Notice{{To: s.Partner(id), Event: Typing{IsTyping: isTyping}}}
}

// ReportRecord is an append-only moderation log entry. Reports carry no
// enforcement: filing one never changes matching or relaying behavior, and
// filing the same pair twice yields two independent records.
type ReportRecord struct {
	ReporterID string
	ReportedID string
	SessionID  string
	Ts         int64 // unix milliseconds
}

// Report validates that reporter and reported currently share a session and
// returns the record to append. Returns nil for anything stale or for
// reports against strangers; the caller still answers the client with
// success either way, so a reporter learns nothing from the outcome.
func (e *Engine) Report(reporterID, reportedID string) *ReportRecord {
	e.mu.Lock()
	defer e.mu.Unlock()

	reporter, ok := e.users[reporterID]
	if !ok || reporter.State != StateMatched {
		return nil
	}
	s, ok := e.sessions[reporter.SessionID]
	if !ok || s.Partner(reporterID) != reportedID {
		return nil
	}

	return &ReportRecord{
		ReporterID: reporterID,
		ReportedID: reportedID,
		SessionID:  s.ID,
		Ts:         e.now().UnixMilli(),
	}
}
