package engine

// Notice is one outbound notification produced by an engine operation.
// The transport layer maps the Event to a wire message and delivers it to
// the connection identified by To. Returning notices instead of writing
// sockets keeps the engine free of I/O under its lock.
type Notice struct {
	To    string
	Event interface{}
}

// MatchFound announces a new session to one of its participants.
type MatchFound struct {
	SessionID       string
	SharedInterests []string
	PartnerID       string
	PartnerAvatar   string
}

// Message is a relayed chat payload. Delivered to both participants,
// including the sender, so each side sees one consistent ordered view.
type Message struct {
	SessionID string
	From      string
	Kind      string // "text" or "image"
	Text      string
	ImageURL  string // opaque reference for image messages, never stored
	Ts        int64  // server-assigned, unix milliseconds
}

// Typing is a partner's typing indicator. Forwarded only to the other
// participant; a new signal simply supersedes the previous one.
type Typing struct {
	IsTyping bool
}

// PartnerLeft signals that the session ended because the partner
// disconnected or explicitly moved on.
type PartnerLeft struct{}
