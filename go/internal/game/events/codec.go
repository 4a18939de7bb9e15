package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrRejectedMessage marks inbound data that is not a valid message. Such
// messages are dropped, never applied.
var ErrRejectedMessage = errors.New("rejected message")

// Envelope is the wire form of a broadcast.
type Envelope struct {
	Event   EventType       `json:"event"`
	GameID  string          `json:"gameId"`
	Sender  string          `json:"sender,omitempty"`
	SentAt  time.Time       `json:"sentAt"`
	Payload json.RawMessage `json:"payload"`
}

// Encode wraps msg in an envelope.
func Encode(gameID, sender string, msg Message, at time.Time) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("encode: nil message")
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msg.Type(), err)
	}
	data, err := json.Marshal(Envelope{
		Event:   msg.Type(),
		GameID:  gameID,
		Sender:  sender,
		SentAt:  at.UTC(),
		Payload: payload,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return data, nil
}

// Decode parses an envelope and its payload. Every failure wraps
// ErrRejectedMessage.
func Decode(data []byte) (Envelope, Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, nil, fmt.Errorf("%w: malformed envelope: %v", ErrRejectedMessage, err)
	}
	if env.GameID == "" {
		return env, nil, fmt.Errorf("%w: missing game id", ErrRejectedMessage)
	}
	msg, err := ParsePayload(env.Event, env.Payload)
	if err != nil {
		return env, nil, err
	}
	return env, msg, nil
}

// ParsePayload decodes a payload by event type.
func ParsePayload(eventType EventType, payload json.RawMessage) (Message, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: %s without payload", ErrRejectedMessage, eventType)
	}

	switch eventType {
	case EventTypeGameStateUpdate:
		var raw struct {
			GameState *json.RawMessage `json:"gameState"`
		}
		if err := json.Unmarshal(payload, &raw); err != nil || raw.GameState == nil {
			return nil, fmt.Errorf("%w: game_state_update needs gameState", ErrRejectedMessage)
		}
		var msg GameStateUpdate
		if err := json.Unmarshal(payload, &msg); err != nil {
			return nil, fmt.Errorf("%w: game_state_update: %v", ErrRejectedMessage, err)
		}
		return msg, nil

	case EventTypePlayerJoin:
		var msg PlayerJoin
		if err := json.Unmarshal(payload, &msg); err != nil {
			return nil, fmt.Errorf("%w: player_join: %v", ErrRejectedMessage, err)
		}
		if !msg.PlayerID.Valid() {
			return nil, fmt.Errorf("%w: player_join for unknown slot %q", ErrRejectedMessage, msg.PlayerID)
		}
		msg.PlayerData.ID = msg.PlayerID
		return msg, nil

	case EventTypePlayerLeave:
		var msg PlayerLeave
		if err := json.Unmarshal(payload, &msg); err != nil {
			return nil, fmt.Errorf("%w: player_leave: %v", ErrRejectedMessage, err)
		}
		if !msg.PlayerID.Valid() {
			return nil, fmt.Errorf("%w: player_leave for unknown slot %q", ErrRejectedMessage, msg.PlayerID)
		}
		return msg, nil

	case EventTypeHostUpdate:
		var msg HostUpdate
		if err := json.Unmarshal(payload, &msg); err != nil {
			return nil, fmt.Errorf("%w: host_update: %v", ErrRejectedMessage, err)
		}
		if msg.HostName == "" {
			return nil, fmt.Errorf("%w: host_update without hostName", ErrRejectedMessage)
		}
		return msg, nil

	case EventTypeVideoRoomUpdate:
		var msg VideoRoomUpdate
		if err := json.Unmarshal(payload, &msg); err != nil {
			return nil, fmt.Errorf("%w: video_room_update: %v", ErrRejectedMessage, err)
		}
		return msg, nil

	default:
		return nil, fmt.Errorf("%w: unknown event type %q", ErrRejectedMessage, eventType)
	}
}

// EncodePresence marshals a presence event.
func EncodePresence(ev PresenceEvent) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal presence: %w", err)
	}
	return data, nil
}

// DecodePresence parses a presence event.
func DecodePresence(data []byte) (PresenceEvent, error) {
	var ev PresenceEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, fmt.Errorf("%w: malformed presence: %v", ErrRejectedMessage, err)
	}
	switch ev.Kind {
	case PresenceTrack, PresenceUntrack, PresenceHeartbeat, PresenceSync:
	default:
		return ev, fmt.Errorf("%w: unknown presence kind %q", ErrRejectedMessage, ev.Kind)
	}
	if ev.Participant.ID == "" {
		return ev, fmt.Errorf("%w: presence without participant id", ErrRejectedMessage)
	}
	return ev, nil
}

// DecodeRowChange parses a row change from the change stream.
func DecodeRowChange(data []byte) (RowChange, error) {
	var rc RowChange
	if err := json.Unmarshal(data, &rc); err != nil {
		return rc, fmt.Errorf("%w: malformed row change: %v", ErrRejectedMessage, err)
	}
	if rc.GameID == "" {
		return rc, fmt.Errorf("%w: row change without game id", ErrRejectedMessage)
	}
	return rc, nil
}

// EncodeRowChange marshals a row change for the change stream.
func EncodeRowChange(rc RowChange) ([]byte, error) {
	data, err := json.Marshal(rc)
	if err != nil {
		return nil, fmt.Errorf("marshal row change: %w", err)
	}
	return data, nil
}
