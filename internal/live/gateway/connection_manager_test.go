package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coachdeck/livesync/internal/live/events"
)

func newTestServer(t *testing.T) (*ConnectionManager, *httptest.Server) {
	t.Helper()
	cm := NewConnectionManager(DefaultConnectionConfig(), clockwork.NewRealClock())
	handler := NewWebSocketHandler(cm)

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	t.Cleanup(cm.CloseAll)
	return cm, srv
}

func dialTestClient(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/live?user_id=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func writeCommand(t *testing.T, conn *websocket.Conn, kind events.Kind, sessionID string, payload any) {
	t.Helper()
	raw, err := events.Marshal(kind, sessionID, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))
}

// readUntilKind reads envelopes until one of the wanted kind arrives,
// skipping anything else the room may have broadcast in between.
func readUntilKind(t *testing.T, conn *websocket.Conn, kind events.Kind) events.Envelope {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", kind)

		var env events.Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		if env.Type == kind {
			return env
		}
	}
}

func TestWebSocketRoundTrip(t *testing.T) {
	_, srv := newTestServer(t)

	c1 := dialTestClient(t, srv, "ana")
	writeCommand(t, c1, events.KindJoinSession, "s1", events.JoinSessionPayload{UserID: "ana"})

	c2 := dialTestClient(t, srv, "ben")
	writeCommand(t, c2, events.KindJoinSession, "s1", events.JoinSessionPayload{UserID: "ben"})

	joined := readUntilKind(t, c1, events.KindUserJoined)
	var joinedPayload events.UserJoinedPayload
	require.NoError(t, json.Unmarshal(joined.Data, &joinedPayload))
	assert.Equal(t, "ben", joinedPayload.UserID)
	assert.Equal(t, 2, joinedPayload.MemberCount)

	// Both members see the server-computed timer state, originator included.
	writeCommand(t, c1, events.KindTimerStart, "s1", events.TimerStartPayload{Duration: 300, GameIndex: 0})
	for _, conn := range []*websocket.Conn{c1, c2} {
		env := readUntilKind(t, conn, events.KindTimerState)
		var state events.TimerStatePayload
		require.NoError(t, json.Unmarshal(env.Data, &state))
		assert.True(t, state.Running)
		assert.Equal(t, 300, state.DurationRemainingAtAnchor)
	}
}

func TestDisconnectReconcilesRoom(t *testing.T) {
	_, srv := newTestServer(t)

	c1 := dialTestClient(t, srv, "ana")
	writeCommand(t, c1, events.KindJoinSession, "s1", events.JoinSessionPayload{UserID: "ana"})

	c2 := dialTestClient(t, srv, "ben")
	writeCommand(t, c2, events.KindJoinSession, "s1", events.JoinSessionPayload{UserID: "ben"})
	readUntilKind(t, c1, events.KindUserJoined)

	require.NoError(t, c2.Close())

	left := readUntilKind(t, c1, events.KindUserLeft)
	var leftPayload events.UserLeftPayload
	require.NoError(t, json.Unmarshal(left.Data, &leftPayload))
	assert.Equal(t, 1, leftPayload.MemberCount)
}

// A broadcast racing a disconnect must never hit a closed send channel:
// Send holds the read lock across the channel send while unregister closes
// the channel under the write lock, so a found connection stays sendable
// and a removed one is not found. Run under -race this also proves the
// close/send pair cannot overlap.
func TestSendRacingUnregisterIsSafe(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig(), clockwork.NewRealClock())

	for i := 0; i < 100; i++ {
		conn := &Connection{
			ID:      "c1",
			Send:    make(chan []byte, 256),
			Manager: cm,
		}
		cm.registerConnection(conn)

		var wg sync.WaitGroup
		for g := 0; g < 4; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for k := 0; k < 50; k++ {
					cm.Send("c1", []byte("payload"))
				}
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			cm.unregisterConnection(conn)
		}()
		wg.Wait()

		assert.False(t, cm.Send("c1", []byte("payload")))
	}
}

func TestConnectionStats(t *testing.T) {
	cm, srv := newTestServer(t)

	c1 := dialTestClient(t, srv, "ana")
	writeCommand(t, c1, events.KindJoinSession, "s1", events.JoinSessionPayload{UserID: "ana"})

	c2 := dialTestClient(t, srv, "ben")
	writeCommand(t, c2, events.KindJoinSession, "s1", events.JoinSessionPayload{UserID: "ben"})
	readUntilKind(t, c1, events.KindUserJoined)

	stats := cm.GetStats()
	assert.Equal(t, 2, stats.TotalConnections)
	assert.Equal(t, 1, stats.ActiveSessions)

	resp, err := http.Get(srv.URL + "/ws/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, stats, body)
}
