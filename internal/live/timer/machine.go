package timer

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// State is one session's countdown record. Remaining time is always derived
// from AnchorTime at read time; nothing in the service ticks.
type State struct {
	Running                   bool      `json:"running"`
	AnchorTime                time.Time `json:"anchorTime"`
	DurationRemainingAtAnchor int       `json:"durationRemainingAtAnchor"`
	CurrentGameIndex          int       `json:"currentGameIndex"`
}

// Remaining returns the seconds left at the given instant. While running
// the countdown is AnchorTime-relative; while paused it is frozen. The
// server does not clamp at zero, reaching zero is a display concern.
func (s State) Remaining(now time.Time) int {
	if !s.Running {
		return s.DurationRemainingAtAnchor
	}
	return s.DurationRemainingAtAnchor - int(now.Sub(s.AnchorTime).Seconds())
}

// Machine holds at most one timer State per session and applies the
// start/pause/resume/stop/set-game commands. Every command either applies
// immediately or is a silent no-op; redundant commands from racing clients
// must never surface errors. All time arithmetic goes through the injected
// clock so tests can drive it deterministically.
type Machine struct {
	clock  clockwork.Clock
	mu     sync.Mutex
	states map[string]*State
}

// NewMachine creates a timer machine on the given clock. Production wiring
// passes clockwork.NewRealClock().
func NewMachine(clock clockwork.Clock) *Machine {
	return &Machine{
		clock:  clock,
		states: make(map[string]*State),
	}
}

// Start creates or replaces the session's timer. A start on an already
// running session is last-writer-wins: the prior record is discarded whole,
// never merged.
func (m *Machine) Start(sessionID string, duration, gameIndex int) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := &State{
		Running:                   true,
		AnchorTime:                m.clock.Now(),
		DurationRemainingAtAnchor: duration,
		CurrentGameIndex:          gameIndex,
	}
	m.states[sessionID] = st

	log.Debug().
		Str("session_id", sessionID).
		Int("duration", duration).
		Int("game_index", gameIndex).
		Msg("timer started")
	return *st
}

// Pause freezes the countdown, folding the elapsed whole seconds into
// DurationRemainingAtAnchor. No-op when there is no timer or it is
// already paused: two coaches pressing pause at once must not crash
// either one.
func (m *Machine) Pause(sessionID string) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.states[sessionID]
	if !ok || !st.Running {
		return State{}, false
	}

	now := m.clock.Now()
	elapsed := int(now.Sub(st.AnchorTime).Seconds())
	st.DurationRemainingAtAnchor -= elapsed
	st.AnchorTime = now
	st.Running = false

	log.Debug().
		Str("session_id", sessionID).
		Int("remaining", st.DurationRemainingAtAnchor).
		Msg("timer paused")
	return *st, true
}

// Resume restarts the countdown from the frozen remaining value. No-op when
// there is no paused timer.
func (m *Machine) Resume(sessionID string) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.states[sessionID]
	if !ok || st.Running {
		return State{}, false
	}

	st.AnchorTime = m.clock.Now()
	st.Running = true

	log.Debug().
		Str("session_id", sessionID).
		Int("remaining", st.DurationRemainingAtAnchor).
		Msg("timer resumed")
	return *st, true
}

// Stop deletes the session's timer entirely. Always succeeds, including
// when no timer existed; a stopped timer leaves nothing to resume from.
func (m *Machine) Stop(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.states[sessionID]; ok {
		delete(m.states, sessionID)
		log.Debug().Str("session_id", sessionID).Msg("timer stopped")
	}
}

// SetGame moves the game focus without touching the countdown or its
// run status. No-op when there is no timer.
func (m *Machine) SetGame(sessionID string, gameIndex int) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.states[sessionID]
	if !ok {
		return State{}, false
	}
	st.CurrentGameIndex = gameIndex
	return *st, true
}

// Snapshot returns the session's current timer state, if any. Used for
// join-recovery so late joiners see the authoritative countdown.
func (m *Machine) Snapshot(sessionID string) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.states[sessionID]
	if !ok {
		return State{}, false
	}
	return *st, true
}
