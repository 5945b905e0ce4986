package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Event names carried in the signaling envelope.
const (
	EventJoinSession   = "join_session"
	EventLeaveSession  = "leave_session"
	EventJoined        = "joined"
	EventOffer         = "webrtc-offer"
	EventAnswer        = "webrtc-answer"
	EventICE           = "webrtc-ice"
	EventChat          = "chat_message"
	EventReaction      = "reaction"
	EventUserJoined    = "user_joined"
	EventUserLeft      = "user_left"
	EventViewerCount   = "viewer_count"
	EventSessionEnded  = "session_ended"
	EventDisconnected  = "disconnected"
	ReasonSessionEnded = "SESSION_ENDED"
)

// Message is one signaling message. The concrete type identifies the event.
type Message interface {
	Event() string
}

type JoinSession struct {
	SessionID string `json:"sessionId"`
}

type LeaveSession struct {
	SessionID string `json:"sessionId"`
}

type Joined struct {
	SessionID string `json:"sessionId,omitempty"`
}

// Offer is the broadcaster's session description.
type Offer struct {
	SessionID  string      `json:"sessionId"`
	Offer      *SDPPayload `json:"offer"`
	FromUserID string      `json:"fromUserId"`
}

// Answer is sent back to the offer's sender.
type Answer struct {
	SessionID string     `json:"sessionId"`
	To        string     `json:"to"`
	Answer    SDPPayload `json:"answer"`
}

// ICE travels both ways: To is set outbound, FromUserID inbound.
type ICE struct {
	SessionID  string               `json:"sessionId"`
	To         string               `json:"to,omitempty"`
	FromUserID string               `json:"fromUserId,omitempty"`
	Candidate  *ICECandidatePayload `json:"candidate"`
}

type Chat struct {
	SessionID string    `json:"sessionId"`
	UserID    string    `json:"userId,omitempty"`
	Username  string    `json:"username,omitempty"`
	Message   string    `json:"message"`
	Timestamp *Timestamp `json:"timestamp,omitempty"`
}

type Reaction struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId,omitempty"`
	Emoji     string `json:"emoji"`
}

// Presence covers user_joined, user_left and viewer_count.
type Presence struct {
	Kind      string `json:"-"`
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId,omitempty"`
	Count     int    `json:"count,omitempty"`
}

// SessionEnded covers session_ended and disconnected.
type SessionEnded struct {
	Kind   string `json:"-"`
	Reason string `json:"reason,omitempty"`
}

// Terminal reports whether the event ends the attachment.
func (m SessionEnded) Terminal() bool {
	return m.Kind == EventSessionEnded || m.Reason == ReasonSessionEnded
}

func (JoinSession) Event() string  { return EventJoinSession }
func (LeaveSession) Event() string { return EventLeaveSession }
func (Joined) Event() string       { return EventJoined }
func (Offer) Event() string        { return EventOffer }
func (Answer) Event() string       { return EventAnswer }
func (ICE) Event() string          { return EventICE }
func (Chat) Event() string         { return EventChat }
func (Reaction) Event() string     { return EventReaction }
func (m Presence) Event() string   { return m.Kind }
func (m SessionEnded) Event() string {
	if m.Kind == "" {
		return EventSessionEnded
	}
	return m.Kind
}

// Timestamp accepts RFC 3339 strings or epoch milliseconds.
type Timestamp struct {
	time.Time
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("parse timestamp %q: %w", s, err)
		}
		t.Time = parsed
		return nil
	}
	ms, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("parse timestamp %s: %w", data, err)
	}
	t.Time = time.UnixMilli(int64(ms))
	return nil
}
