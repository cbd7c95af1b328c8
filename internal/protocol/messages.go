// Package protocol defines the WebSocket message types and structures used
// for communication between the client and server. All messages are
// serialized as JSON and follow a consistent envelope format with a type
// discriminator.
package protocol

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypeJoin        = "join"
	TypeMessage     = "message"
	TypeTyping      = "typing"
	TypeNext        = "next"
	TypeToggleGhost = "toggle_ghost"
	TypeReport      = "report"
	TypePing        = "ping"
)

// Server -> Client message types. Message and typing reuse the client-side
// type strings on the way out.
const (
	TypeConnected   = "connected"
	TypeMatchFound  = "match_found"
	TypePartnerLeft = "partner_left"
	TypeError       = "error"
	TypePong        = "pong"
)

// ---------------------------------------------------------------------------
// Envelope — used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It captures the
// full raw bytes and extracts only the "type" field so that the rest of the
// payload can be decoded later into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// JoinMsg declares the user's matching preferences and enters the pool.
// Missing fields are permissive: a blank filter means "any" and an absent
// interest list means match with anyone.
type JoinMsg struct {
	Type      string   `json:"type"`
	Gender    string   `json:"gender"`
	Country   string   `json:"country"`
	Interests []string `json:"interests"`
	Avatar    string   `json:"avatar"`
}

// ChatMsg is a chat payload sent by the client within a session. Kind is
// "text" or "image"; for images the payload is an opaque URL reference.
type ChatMsg struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Kind      string `json:"kind"`
	Text      string `json:"text"`
	ImageURL  string `json:"image_url,omitempty"`
}

// TypingMsg indicates whether the client is currently typing.
type TypingMsg struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	IsTyping  bool   `json:"is_typing"`
}

// NextMsg asks the server to end the current chat, if any, and search for a
// new partner.
type NextMsg struct {
	Type string `json:"type"`
}

// ToggleGhostMsg switches ghost mode on or off.
type ToggleGhostMsg struct {
	Type    string `json:"type"`
	Enabled bool   `json:"enabled"`
}

// ReportMsg files a report against the current chat partner.
type ReportMsg struct {
	Type       string `json:"type"`
	ReportedID string `json:"reported_id"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// ConnectedMsg is sent once after the WebSocket upgrade with the user's
// connection id.
type ConnectedMsg struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
}

// PartnerInfo is the display-only peer description inside MatchFoundMsg.
type PartnerInfo struct {
	ID     string `json:"id"`
	Avatar string `json:"avatar"`
}

// MatchFoundMsg announces a new session to one participant.
type MatchFoundMsg struct {
	Type            string      `json:"type"`
	SessionID       string      `json:"session_id"`
	SharedInterests []string    `json:"shared_interests"`
	Partner         PartnerInfo `json:"partner"`
}

// ServerChatMsg is a chat payload relayed by the server to both session
// participants, including the sender.
type ServerChatMsg struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	From      string `json:"from"`
	Kind      string `json:"kind"`
	Text      string `json:"text"`
	ImageURL  string `json:"image_url,omitempty"`
	Ts        int64  `json:"ts"`
}

// ServerTypingMsg relays the partner's typing indicator.
type ServerTypingMsg struct {
	Type     string `json:"type"`
	IsTyping bool   `json:"is_typing"`
}

// PartnerLeftMsg is sent when the partner has disconnected or moved on.
type PartnerLeftMsg struct {
	Type string `json:"type"`
}

// ErrorMsg is sent by the server to communicate an error condition.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg is the server's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client message.
// It returns the message type string, the decoded struct, and any error
// encountered during parsing. An error is returned for unknown or
// server-only message types.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeJoin:
		var m JoinMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeMessage:
		var m ChatMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeTyping:
		var m TypingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeNext:
		var m NextMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeToggleGhost:
		var m ToggleGhostMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeReport:
		var m ReportMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage creates a JSON-encoded byte slice for a server message.
// The msgType is injected into the payload under the "type" key. The payload
// should be one of the server message structs; this function marshals it to
// JSON, injects the type field, and returns the final bytes.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}
