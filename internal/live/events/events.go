package events

import (
	"encoding/json"
	"time"
)

// Envelope is the wire format for every message in both directions.
// Commands from clients and events to clients share the same shape:
// a kind, the session the message is scoped to, and a kind-specific payload.
type Envelope struct {
	Type      Kind            `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Kind identifies a command or event type on the wire.
type Kind string

// Commands accepted from clients.
const (
	KindJoinSession   Kind = "join-session"
	KindLeaveSession  Kind = "leave-session"
	KindTimerStart    Kind = "timer-start"
	KindTimerPause    Kind = "timer-pause"
	KindTimerResume   Kind = "timer-resume"
	KindTimerStop     Kind = "timer-stop"
	KindTimerSetGame  Kind = "timer-set-game"
	KindGameCompleted Kind = "game-completed"
	KindSessionNote   Kind = "session-note"
)

// Events emitted to clients.
const (
	KindTimerState           Kind = "timer-state"
	KindTimerStopped         Kind = "timer-stopped"
	KindUserJoined           Kind = "user-joined"
	KindUserLeft             Kind = "user-left"
	KindGameCompletionUpdate Kind = "game-completion-update"
	KindNoteUpdate           Kind = "note-update"
)

// JoinSessionPayload carries the display identity of the joining user.
// The service treats userId as an opaque label supplied upstream.
type JoinSessionPayload struct {
	UserID string `json:"userId"`
}

// TimerStartPayload starts (or replaces) the session countdown.
type TimerStartPayload struct {
	Duration  int `json:"duration"`
	GameIndex int `json:"gameIndex"`
}

// TimerSetGamePayload moves the game focus without touching the countdown.
type TimerSetGamePayload struct {
	GameIndex int `json:"gameIndex"`
}

// GameCompletedPayload marks a game's completion toggle for the room.
type GameCompletedPayload struct {
	GameID    string `json:"gameId"`
	Completed bool   `json:"completed"`
}

// SessionNotePayload carries a freeform note for a game.
type SessionNotePayload struct {
	GameID string `json:"gameId"`
	Note   string `json:"note"`
}

// TimerStatePayload is the full timer snapshot broadcast on every
// timer mutation and sent to late joiners on recovery.
type TimerStatePayload struct {
	Running                   bool      `json:"running"`
	AnchorTime                time.Time `json:"anchorTime"`
	DurationRemainingAtAnchor int       `json:"durationRemainingAtAnchor"`
	CurrentGameIndex          int       `json:"currentGameIndex"`
}

// UserJoinedPayload notifies existing members of a new connection.
type UserJoinedPayload struct {
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId"`
	MemberCount  int    `json:"memberCount"`
}

// UserLeftPayload notifies remaining members after a leave or disconnect.
type UserLeftPayload struct {
	ConnectionID string `json:"connectionId"`
	MemberCount  int    `json:"memberCount"`
}

// GameCompletionUpdatePayload relays a completion toggle to the room.
type GameCompletionUpdatePayload struct {
	GameID    string `json:"gameId"`
	Completed bool   `json:"completed"`
}

// NoteUpdatePayload relays a freeform note to the room.
type NoteUpdatePayload struct {
	GameID string `json:"gameId"`
	Note   string `json:"note"`
}

// Marshal builds a wire-ready envelope for the given kind and payload.
func Marshal(kind Kind, sessionID string, payload any) ([]byte, error) {
	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		data = raw
	}
	return json.Marshal(Envelope{Type: kind, SessionID: sessionID, Data: data})
}

// ParseCommandPayload parses an inbound envelope's data into the payload
// struct for its kind. Kinds with no payload and unknown kinds both return
// (nil, nil); the caller decides whether to dispatch or drop.
func ParseCommandPayload(env *Envelope) (any, error) {
	switch env.Type {
	case KindJoinSession:
		var payload JoinSessionPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case KindTimerStart:
		var payload TimerStartPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case KindTimerSetGame:
		var payload TimerSetGamePayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case KindGameCompleted:
		var payload GameCompletedPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case KindSessionNote:
		var payload SessionNotePayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	default:
		return nil, nil
	}
}
