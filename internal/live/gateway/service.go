package gateway

import (
	"encoding/json"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/coachdeck/livesync/internal/live/events"
	"github.com/coachdeck/livesync/internal/live/rooms"
	"github.com/coachdeck/livesync/internal/live/timer"
)

// Sender delivers a payload to one connection, best-effort. A false return
// means the connection was unreachable; the caller never retries because the
// current state is always re-derivable via join-recovery.
type Sender interface {
	Send(connID string, payload []byte) bool
}

// Service is the live session synchronization service: the single dispatch
// point every client command flows through. It owns the room registry and
// timer machine and fans resulting state out to room members.
//
// Commands either apply with a well-defined effect or are silent no-ops;
// after any burst of concurrent commands the authoritative state is whatever
// the last-applied command produced, and every change is rebroadcast so all
// clients reconverge.
type Service struct {
	// mu serializes command application together with its fan-out. A
	// mutation and the broadcast of its resulting snapshot form one
	// critical section, so every member observes state changes in the
	// same order and concurrent commands cannot interleave their
	// rebroadcasts. Sends inside the section never block: delivery is
	// drop-on-full per connection.
	mu sync.Mutex

	rooms  *rooms.Registry
	timers *timer.Machine
	sender Sender
}

// NewService creates the sync service on the given transport and clock.
func NewService(sender Sender, clock clockwork.Clock) *Service {
	return &Service{
		rooms:  rooms.NewRegistry(),
		timers: timer.NewMachine(clock),
		sender: sender,
	}
}

// HandleCommand applies one inbound client message. Malformed or unknown
// messages are logged and dropped; the connection stays open.
func (s *Service) HandleCommand(connID, userLabel string, raw []byte) {
	var env events.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Debug().
			Err(err).
			Str("connection_id", connID).
			Msg("dropping malformed message")
		return
	}
	if env.SessionID == "" {
		log.Debug().
			Str("connection_id", connID).
			Str("type", string(env.Type)).
			Msg("dropping message without session id")
		return
	}

	payload, err := events.ParseCommandPayload(&env)
	if err != nil {
		log.Debug().
			Err(err).
			Str("connection_id", connID).
			Str("type", string(env.Type)).
			Msg("dropping message with malformed payload")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch env.Type {
	case events.KindJoinSession:
		p := payload.(events.JoinSessionPayload)
		if p.UserID == "" {
			p.UserID = userLabel
		}
		s.join(env.SessionID, connID, p.UserID)

	case events.KindLeaveSession:
		s.leave(env.SessionID, connID)

	case events.KindTimerStart:
		p := payload.(events.TimerStartPayload)
		st := s.timers.Start(env.SessionID, p.Duration, p.GameIndex)
		s.broadcastTimerState(env.SessionID, st)

	case events.KindTimerPause:
		if st, ok := s.timers.Pause(env.SessionID); ok {
			s.broadcastTimerState(env.SessionID, st)
		}

	case events.KindTimerResume:
		if st, ok := s.timers.Resume(env.SessionID); ok {
			s.broadcastTimerState(env.SessionID, st)
		}

	case events.KindTimerStop:
		s.timers.Stop(env.SessionID)
		s.broadcast(env.SessionID, "", events.KindTimerStopped, nil)

	case events.KindTimerSetGame:
		p := payload.(events.TimerSetGamePayload)
		if st, ok := s.timers.SetGame(env.SessionID, p.GameIndex); ok {
			s.broadcastTimerState(env.SessionID, st)
		}

	case events.KindGameCompleted:
		p := payload.(events.GameCompletedPayload)
		s.broadcast(env.SessionID, connID, events.KindGameCompletionUpdate, events.GameCompletionUpdatePayload{
			GameID:    p.GameID,
			Completed: p.Completed,
		})

	case events.KindSessionNote:
		p := payload.(events.SessionNotePayload)
		s.broadcast(env.SessionID, connID, events.KindNoteUpdate, events.NoteUpdatePayload{
			GameID: p.GameID,
			Note:   p.Note,
		})

	default:
		log.Debug().
			Str("connection_id", connID).
			Str("type", string(env.Type)).
			Msg("dropping message of unknown type")
	}
}

// Disconnect removes the connection from every room it had joined and
// notifies the remaining members. This is the only cleanup path for clients
// that vanish without a leave-session (crash, network loss, tab close), and
// it is idempotent with an explicit leave that raced the disconnect.
func (s *Service) Disconnect(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sessionID := range s.rooms.SessionsOf(connID) {
		s.leave(sessionID, connID)
	}
}

func (s *Service) join(sessionID, connID, userID string) {
	added, count := s.rooms.Join(sessionID, connID)
	if added {
		s.broadcast(sessionID, connID, events.KindUserJoined, events.UserJoinedPayload{
			ConnectionID: connID,
			UserID:       userID,
			MemberCount:  count,
		})
	}

	// Join-recovery: a late joiner gets the authoritative snapshot, not
	// merely a subscription to future events.
	if st, ok := s.timers.Snapshot(sessionID); ok {
		s.sendTo(connID, sessionID, events.KindTimerState, timerStatePayload(st))
	}
}

func (s *Service) leave(sessionID, connID string) {
	removed, count := s.rooms.Leave(sessionID, connID)
	if !removed {
		return
	}
	s.broadcast(sessionID, "", events.KindUserLeft, events.UserLeftPayload{
		ConnectionID: connID,
		MemberCount:  count,
	})
}

// broadcastTimerState echoes the server-computed snapshot to the whole room,
// originator included, so clients converge on the server's state rather
// than their own optimistic guess.
func (s *Service) broadcastTimerState(sessionID string, st timer.State) {
	s.broadcast(sessionID, "", events.KindTimerState, timerStatePayload(st))
}

func (s *Service) broadcast(sessionID, excludeConnID string, kind events.Kind, payload any) {
	data, err := events.Marshal(kind, sessionID, payload)
	if err != nil {
		log.Error().
			Err(err).
			Str("session_id", sessionID).
			Str("type", string(kind)).
			Msg("failed to marshal event for broadcast")
		return
	}

	delivered := 0
	for _, connID := range s.rooms.Members(sessionID) {
		if connID == excludeConnID {
			continue
		}
		if s.sender.Send(connID, data) {
			delivered++
		}
	}

	log.Debug().
		Str("session_id", sessionID).
		Str("type", string(kind)).
		Int("delivered", delivered).
		Msg("event broadcasted")
}

func (s *Service) sendTo(connID, sessionID string, kind events.Kind, payload any) {
	data, err := events.Marshal(kind, sessionID, payload)
	if err != nil {
		log.Error().
			Err(err).
			Str("session_id", sessionID).
			Str("type", string(kind)).
			Msg("failed to marshal event")
		return
	}
	s.sender.Send(connID, data)
}

func timerStatePayload(st timer.State) events.TimerStatePayload {
	return events.TimerStatePayload{
		Running:                   st.Running,
		AnchorTime:                st.AnchorTime,
		DurationRemainingAtAnchor: st.DurationRemainingAtAnchor,
		CurrentGameIndex:          st.CurrentGameIndex,
	}
}
