package signal

import (
	"encoding/json"
	"fmt"

	"modview/native/internal/domain"
)

// envelope is the generic WebSocket message frame.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode wraps msg in an envelope.
func Encode(msg domain.Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", msg.Event(), err)
	}
	return json.Marshal(envelope{Event: msg.Event(), Data: data})
}

// Decode parses a frame into its typed message. Unknown events return
// (nil, nil) so the caller can log and skip them.
func Decode(frame []byte) (domain.Message, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	var msg domain.Message
	switch env.Event {
	case domain.EventJoined:
		var m domain.Joined
		if err := unmarshalData(env, &m); err != nil {
			return nil, err
		}
		msg = m
	case domain.EventOffer:
		var m domain.Offer
		if err := unmarshalData(env, &m); err != nil {
			return nil, err
		}
		msg = m
	case domain.EventICE:
		var m domain.ICE
		if err := unmarshalData(env, &m); err != nil {
			return nil, err
		}
		msg = m
	case domain.EventChat:
		var m domain.Chat
		if err := unmarshalData(env, &m); err != nil {
			return nil, err
		}
		msg = m
	case domain.EventReaction:
		var m domain.Reaction
		if err := unmarshalData(env, &m); err != nil {
			return nil, err
		}
		msg = m
	case domain.EventUserJoined, domain.EventUserLeft, domain.EventViewerCount:
		m := domain.Presence{Kind: env.Event}
		if err := unmarshalData(env, &m); err != nil {
			return nil, err
		}
		msg = m
	case domain.EventSessionEnded, domain.EventDisconnected:
		m := domain.SessionEnded{Kind: env.Event}
		if err := unmarshalData(env, &m); err != nil {
			return nil, err
		}
		msg = m
	case domain.EventAnswer:
		var m domain.Answer
		if err := unmarshalData(env, &m); err != nil {
			return nil, err
		}
		msg = m
	case domain.EventJoinSession:
		var m domain.JoinSession
		if err := unmarshalData(env, &m); err != nil {
			return nil, err
		}
		msg = m
	case domain.EventLeaveSession:
		var m domain.LeaveSession
		if err := unmarshalData(env, &m); err != nil {
			return nil, err
		}
		msg = m
	default:
		return nil, nil
	}
	return msg, nil
}

func unmarshalData(env envelope, v any) error {
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", env.Event, err)
	}
	return nil
}
