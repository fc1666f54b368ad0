package domain

import (
	"sync"
	"tchat/errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRoom_Join_And_Leave(t *testing.T) {
	req := require.New(t)
	room := NewRoom("1234567890", RoomName("Alice"), true, time.Now())

	// When two participants join
	req.NoError(room.Join("Alice"))
	req.NoError(room.Join("Bob"))

	// Then both are members
	req.Equal([]string{"Alice", "Bob"}, room.Members())
	req.Equal(RoomSummary{Code: "1234567890", Name: "Alice's Room", Members: 2}, room.Summary())

	// When Bob leaves twice
	req.True(room.Leave("Bob"))
	req.False(room.Leave("Bob"))

	// Then only Alice is left
	req.Equal([]string{"Alice"}, room.Members())
}

func TestRoom_Without_Admin(t *testing.T) {
	req := require.New(t)
	room := NewGlobalRoom(time.Now())
	req.NoError(room.Join("Alice"))
	req.NoError(room.Join("Bob"))

	admin, ok := room.Admin()
	req.False(ok)
	req.Empty(admin)
	req.False(room.IsAdmin(""))

	// Then nobody can moderate an adminless room
	req.ErrorIs(room.Kick("Alice", "Bob"), errors.ErrNotAdmin)
	req.ErrorIs(room.Ban("", "Bob"), errors.ErrNotAdmin)
	_, err := room.Close("Alice")
	req.ErrorIs(err, errors.ErrNotAdmin)
	req.True(room.IsMember("Bob"))
}

func TestRoom_Ban_Is_Sticky(t *testing.T) {
	req := require.New(t)
	room := NewRoom("1111111111", RoomName("Carol"), false, time.Now()).WithAdmin("Carol")
	req.NoError(room.Join("Carol"))
	req.NoError(room.Join("Dave"))

	// When a non admin tries to ban
	req.ErrorIs(room.Ban("Dave", "Carol"), errors.ErrNotAdmin)
	req.True(room.IsMember("Carol"))

	// When the admin bans Dave
	req.NoError(room.Ban("Carol", "Dave"))

	// Then Dave is out and can never come back
	req.False(room.IsMember("Dave"))
	req.True(room.IsBanned("Dave"))
	req.ErrorIs(room.Join("Dave"), errors.ErrBanned)
	req.ErrorIs(room.Join("Dave"), errors.ErrBanned)

	// And banning someone absent is reported
	req.ErrorIs(room.Ban("Carol", "Dave"), errors.ErrTargetNotInRoom)
}

func TestRoom_Kick_Does_Not_Ban(t *testing.T) {
	req := require.New(t)
	room := NewRoom("2222222222", RoomName("Carol"), true, time.Now()).WithAdmin("Carol")
	req.NoError(room.Join("Carol"))
	req.NoError(room.Join("Dave"))

	req.NoError(room.Kick("Carol", "Dave"))
	req.False(room.IsMember("Dave"))
	req.ErrorIs(room.Kick("Carol", "Dave"), errors.ErrTargetNotInRoom)

	// Then Dave may join again
	req.NoError(room.Join("Dave"))
}

func TestRoom_Close(t *testing.T) {
	req := require.New(t)
	room := NewRoom("3333333333", RoomName("Eve"), true, time.Now()).WithAdmin("Eve")
	req.NoError(room.Join("Eve"))
	req.NoError(room.Join("Frank"))

	members, err := room.Close("Eve")
	req.NoError(err)
	req.Equal([]string{"Eve", "Frank"}, members)

	// Then the room is gone for every operation
	req.ErrorIs(room.Join("Grace"), errors.ErrRoomNotFound)
	_, err = room.Close("Eve")
	req.ErrorIs(err, errors.ErrRoomNotFound)
	req.ErrorIs(room.Kick("Eve", "Frank"), errors.ErrRoomNotFound)
	req.Empty(room.Members())
}

func TestRoom_RetireIfEmpty(t *testing.T) {
	req := require.New(t)
	room := NewRoom("4444444444", RoomName("Alice"), true, time.Now())
	req.NoError(room.Join("Alice"))

	req.False(room.RetireIfEmpty())
	room.Leave("Alice")
	req.True(room.RetireIfEmpty())
	req.False(room.RetireIfEmpty())
	req.ErrorIs(room.Join("Alice"), errors.ErrRoomNotFound)
}

func TestRoom_Concurrent_Joins(t *testing.T) {
	req := require.New(t)
	room := NewGlobalRoom(time.Now())
	var wg sync.WaitGroup
	for _, name := range []string{"aaa", "bbb", "ccc", "ddd", "eee", "fff"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = room.Join(name)
			room.Leave(name)
			_ = room.Join(name)
		}()
	}
	wg.Wait()
	req.Len(room.Members(), 6)
}
