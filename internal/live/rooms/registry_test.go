package rooms

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJoinCreatesRoomLazily(t *testing.T) {
	r := NewRegistry()

	assert.Equal(t, 0, r.Count("s1"))
	assert.Equal(t, 0, r.ActiveRooms())

	added, count := r.Join("s1", "c1")
	assert.True(t, added)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, r.ActiveRooms())
	assert.ElementsMatch(t, []string{"c1"}, r.Members("s1"))
}

func TestJoinIsIdempotent(t *testing.T) {
	r := NewRegistry()

	r.Join("s1", "c1")
	added, count := r.Join("s1", "c1")

	assert.False(t, added)
	assert.Equal(t, 1, count)
	assert.ElementsMatch(t, []string{"c1"}, r.Members("s1"))
}

func TestLeaveIsIdempotent(t *testing.T) {
	r := NewRegistry()

	r.Join("s1", "c1")
	r.Join("s1", "c2")

	removed, count := r.Leave("s1", "c1")
	assert.True(t, removed)
	assert.Equal(t, 1, count)

	removed, count = r.Leave("s1", "c1")
	assert.False(t, removed)
	assert.Equal(t, 1, count)

	// Leaving a room never joined is a no-op, not an error.
	removed, _ = r.Leave("s9", "c1")
	assert.False(t, removed)
}

func TestEmptyRoomIsDeleted(t *testing.T) {
	r := NewRegistry()

	r.Join("s1", "c1")
	r.Leave("s1", "c1")

	assert.Equal(t, 0, r.ActiveRooms())
	assert.Nil(t, r.Members("s1"))

	// Rejoining recreates the room from scratch.
	added, count := r.Join("s1", "c1")
	assert.True(t, added)
	assert.Equal(t, 1, count)
}

func TestSessionsOfTracksEveryJoinedRoom(t *testing.T) {
	r := NewRegistry()

	r.Join("a", "c1")
	r.Join("b", "c1")
	r.Join("a", "c2")

	assert.ElementsMatch(t, []string{"a", "b"}, r.SessionsOf("c1"))
	assert.ElementsMatch(t, []string{"a"}, r.SessionsOf("c2"))

	r.Leave("a", "c1")
	assert.ElementsMatch(t, []string{"b"}, r.SessionsOf("c1"))

	r.Leave("b", "c1")
	assert.Nil(t, r.SessionsOf("c1"))
}

func TestCountComesFromAuthoritativeSet(t *testing.T) {
	r := NewRegistry()

	r.Join("s1", "c1")
	r.Join("s1", "c2")
	r.Join("s1", "c3")
	assert.Equal(t, 3, r.Count("s1"))

	r.Leave("s1", "c2")
	assert.Equal(t, 2, r.Count("s1"))
	assert.ElementsMatch(t, []string{"c1", "c3"}, r.Members("s1"))
}
