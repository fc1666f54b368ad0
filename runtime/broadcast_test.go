package runtime

import (
	"fmt"
	"sync"
	"tchat/domain"
	"testing"

	"github.com/stretchr/testify/require"
)

type fixture struct {
	sessions    *SessionRegistry
	rooms       *RoomDirectory
	broadcaster *Broadcaster
	peers       map[string]*recordingPeer
}

func newFixture(t *testing.T, names ...string) fixture {
	log := testLogger()
	f := fixture{
		sessions: NewSessionRegistry(log),
		rooms:    NewRoomDirectory(log),
		peers:    make(map[string]*recordingPeer),
	}
	f.broadcaster = NewBroadcaster(log, f.sessions, f.rooms)
	for _, name := range names {
		peer := &recordingPeer{}
		_, err := f.sessions.Register(name, peer, "")
		require.NoError(t, err)
		f.peers[name] = peer
	}
	return f
}

func TestBroadcast_Excludes_Sender_And_Stays_In_Room(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, "Alice", "Bob", "Carol", "Dave")
	code := f.rooms.Create("Alice", true, false)
	req.NoError(f.rooms.Join("Bob", code))
	req.NoError(f.rooms.Join("Carol", code))

	// When Bob says hello
	delivered := f.broadcaster.Broadcast(code, domain.ChatLine("Bob", "hello"), "Bob")

	// Then every other member got it, nobody outside did
	req.Equal(2, delivered)
	req.Equal([]string{"Bob > hello"}, f.peers["Alice"].Lines())
	req.Equal([]string{"Bob > hello"}, f.peers["Carol"].Lines())
	req.Empty(f.peers["Bob"].Lines())
	req.Empty(f.peers["Dave"].Lines())
}

func TestBroadcast_Without_Exclusion(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, "Alice", "Bob")
	code := f.rooms.Create("Alice", true, true)
	req.NoError(f.rooms.Join("Bob", code))

	req.Equal(2, f.broadcaster.Broadcast(code, domain.KickedLine("Dave"), ""))
	req.Equal([]string{"Dave was kicked by admin"}, f.peers["Alice"].Lines())
}

func TestBroadcast_Failure_Does_Not_Stop_Others(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, "Alice", "Bob", "Carol")
	code := f.rooms.Create("Alice", true, false)
	req.NoError(f.rooms.Join("Bob", code))
	req.NoError(f.rooms.Join("Carol", code))
	req.NoError(f.rooms.Join("Ghost", code))
	f.peers["Bob"].failSend = true

	delivered := f.broadcaster.Broadcast(code, "hey", "Alice")

	// Then Carol still receives it, Bob and the sessionless member are skipped
	req.Equal(1, delivered)
	req.Equal([]string{"hey"}, f.peers["Carol"].Lines())
}

func TestBroadcast_Unknown_Room(t *testing.T) {
	f := newFixture(t, "Alice")
	require.Zero(t, f.broadcaster.Broadcast("9999999999", "hey", ""))
}

func TestBroadcast_FIFO_Per_Sender(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, "Alice", "Bob", "Carol")
	code := f.rooms.Create("Alice", true, false)
	req.NoError(f.rooms.Join("Bob", code))
	req.NoError(f.rooms.Join("Carol", code))

	// When Bob and Carol talk concurrently
	var wg sync.WaitGroup
	for _, sender := range []string{"Bob", "Carol"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				f.broadcaster.Broadcast(code, fmt.Sprintf("%s %d", sender, i), sender)
			}
		}()
	}
	wg.Wait()

	// Then Alice observes each sender's lines in the order they were sent
	next := map[string]int{"Bob": 0, "Carol": 0}
	for _, line := range f.peers["Alice"].Lines() {
		var sender string
		var i int
		_, err := fmt.Sscanf(line, "%s %d", &sender, &i)
		req.NoError(err)
		req.Equal(next[sender], i)
		next[sender]++
	}
	req.Equal(map[string]int{"Bob": 50, "Carol": 50}, next)
}
