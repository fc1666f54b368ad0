package runtime

import (
	"sync"
	"tchat/domain"
	"tchat/errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func sequence(codes ...domain.RoomCode) func() domain.RoomCode {
	var mu sync.Mutex
	i := 0
	return func() domain.RoomCode {
		mu.Lock()
		defer mu.Unlock()
		code := codes[i%len(codes)]
		i++
		return code
	}
}

func TestRandomRoomCode(t *testing.T) {
	req := require.New(t)
	for range 100 {
		code := RandomRoomCode()
		req.Len(string(code), domain.RoomCodeLength)
		req.Regexp(`^[0-9]{10}$`, string(code))
	}
}

func TestDirectory_EnsureGlobalRoom_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	directory := NewRoomDirectory(testLogger())

	first := directory.EnsureGlobalRoom()
	second := directory.EnsureGlobalRoom()

	req.Same(first, second)
	req.Equal(1, directory.Count())
	req.Equal([]domain.RoomSummary{{Code: domain.GlobalRoomCode, Name: domain.GlobalRoomName}}, directory.ListPublic())
}

func TestDirectory_Create_Checks_Collisions(t *testing.T) {
	req := require.New(t)
	directory := NewRoomDirectory(testLogger()).
		WithCodeGenerator(sequence("0000000000", "1111111111", "1111111111", "2222222222"))
	directory.EnsureGlobalRoom()

	// When two rooms are created while the generator repeats itself
	first := directory.Create("Alice", true, false)
	second := directory.Create("Bob", false, true)

	// Then codes never clash with each other nor with the global room
	req.Equal(domain.RoomCode("1111111111"), first)
	req.Equal(domain.RoomCode("2222222222"), second)
	req.Equal([]string{"Alice"}, directory.Members(first))
	req.False(directory.IsAdmin(first, "Alice"))
	req.True(directory.IsAdmin(second, "Bob"))
}

func TestDirectory_Join_Leave(t *testing.T) {
	req := require.New(t)
	directory := NewRoomDirectory(testLogger())
	code := directory.Create("Alice", true, false)

	req.ErrorIs(directory.Join("Bob", "9999999999"), errors.ErrRoomNotFound)

	// When Bob joins
	req.NoError(directory.Join("Bob", code))
	req.Equal([]string{"Alice", "Bob"}, directory.Members(code))

	// When Bob leaves, twice
	directory.Leave("Bob", code)
	directory.Leave("Bob", code)
	directory.Leave("Bob", "9999999999")
	req.Equal([]string{"Alice"}, directory.Members(code))
}

func TestDirectory_LeaveAll_Prunes_Every_Room(t *testing.T) {
	req := require.New(t)
	directory := NewRoomDirectory(testLogger())
	directory.EnsureGlobalRoom()
	req.NoError(directory.Join("Alice", domain.GlobalRoomCode))
	first := directory.Create("Alice", true, false)
	second := directory.Create("Bob", true, false)
	req.NoError(directory.Join("Alice", second))

	left := directory.LeaveAll("Alice")

	req.ElementsMatch([]domain.RoomCode{domain.GlobalRoomCode, first, second}, left)
	req.Empty(directory.Members(first))
	req.Equal([]string{"Bob"}, directory.Members(second))
	req.Empty(directory.Members(domain.GlobalRoomCode))
	req.Empty(directory.LeaveAll("Alice"))
}

func TestDirectory_ListPublic(t *testing.T) {
	req := require.New(t)
	directory := NewRoomDirectory(testLogger()).
		WithCodeGenerator(sequence("3000000000", "2000000000", "1000000000"))
	directory.EnsureGlobalRoom()
	public := directory.Create("Alice", true, false)
	directory.Create("Bob", false, false)
	other := directory.Create("Carol", true, true)
	req.NoError(directory.Join("Dave", other))

	req.Equal([]domain.RoomSummary{
		{Code: domain.GlobalRoomCode, Name: "Global Chat", Members: 0},
		{Code: other, Name: "Carol's Room", Members: 2},
		{Code: public, Name: "Alice's Room", Members: 1},
	}, directory.ListPublic())
	req.Len(directory.Rooms(), 4)
}

func TestDirectory_Only_Admin_Moderates(t *testing.T) {
	req := require.New(t)
	directory := NewRoomDirectory(testLogger())
	code := directory.Create("Carol", true, true)
	req.NoError(directory.Join("Dave", code))
	req.NoError(directory.Join("Erin", code))

	// When a plain member tries every admin command
	req.ErrorIs(directory.Kick("Dave", code, "Erin"), errors.ErrNotAdmin)
	req.ErrorIs(directory.Ban("Dave", code, "Erin"), errors.ErrNotAdmin)
	_, err := directory.Remove("Dave", code)
	req.ErrorIs(err, errors.ErrNotAdmin)

	// Then nothing changed
	req.Equal([]string{"Carol", "Dave", "Erin"}, directory.Members(code))
	req.True(directory.Exists(code))

	// And missing rooms or targets are reported to the admin
	req.ErrorIs(directory.Kick("Carol", code, "Ghost"), errors.ErrTargetNotInRoom)
	req.ErrorIs(directory.Ban("Carol", "9999999999", "Dave"), errors.ErrRoomNotFound)
}

func TestDirectory_Ban_Is_Sticky(t *testing.T) {
	req := require.New(t)
	directory := NewRoomDirectory(testLogger())
	code := directory.Create("Carol", false, true)
	req.NoError(directory.Join("Dave", code))

	req.NoError(directory.Ban("Carol", code, "Dave"))

	// Then Dave is out, even after a disconnection and reconnection
	req.Equal([]string{"Carol"}, directory.Members(code))
	directory.LeaveAll("Dave")
	req.ErrorIs(directory.Join("Dave", code), errors.ErrBanned)
	req.ErrorIs(directory.Join("Dave", code), errors.ErrBanned)
}

func TestDirectory_Kick(t *testing.T) {
	req := require.New(t)
	directory := NewRoomDirectory(testLogger())
	code := directory.Create("Carol", true, true)
	req.NoError(directory.Join("Dave", code))

	req.NoError(directory.Kick("Carol", code, "Dave"))

	req.Equal([]string{"Carol"}, directory.Members(code))
	req.NoError(directory.Join("Dave", code))
}

func TestDirectory_Remove(t *testing.T) {
	req := require.New(t)
	directory := NewRoomDirectory(testLogger())
	code := directory.Create("Eve", true, true)
	req.NoError(directory.Join("Frank", code))

	members, err := directory.Remove("Eve", code)

	req.NoError(err)
	req.Equal([]string{"Eve", "Frank"}, members)
	req.False(directory.Exists(code))
	req.Empty(directory.ListPublic())
	req.ErrorIs(directory.Join("Frank", code), errors.ErrRoomNotFound)
	_, err = directory.Remove("Eve", code)
	req.ErrorIs(err, errors.ErrRoomNotFound)
}

func TestDirectory_Reap(t *testing.T) {
	req := require.New(t)
	directory := NewRoomDirectory(testLogger())
	directory.EnsureGlobalRoom()
	empty := directory.Create("Alice", true, false)
	busy := directory.Create("Bob", true, false)
	directory.Leave("Alice", empty)

	req.Equal(1, directory.Reap())

	// Then the global room survives even when empty
	req.False(directory.Exists(empty))
	req.True(directory.Exists(busy))
	req.True(directory.Exists(domain.GlobalRoomCode))
	req.Zero(directory.Reap())
}

func TestDirectory_Concurrent_Mutations(t *testing.T) {
	req := require.New(t)
	directory := NewRoomDirectory(testLogger())
	code := directory.Create("Carol", true, true)
	names := []string{"u01", "u02", "u03", "u04", "u05", "u06", "u07", "u08"}

	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req.NoError(directory.Join(name, code))
		}()
	}
	wg.Wait()

	for _, name := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req.NoError(directory.Ban("Carol", code, name))
		}()
	}
	wg.Wait()

	req.Equal([]string{"Carol"}, directory.Members(code))
	for _, name := range names {
		req.ErrorIs(directory.Join(name, code), errors.ErrBanned)
	}
}
