package runtime

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"tchat/domain"
	"tchat/errors"
	"time"

	"github.com/samber/lo"
)

// RoomDirectory owns every Room. The table lock guards insertion and deletion of
// rooms only; membership and bans are serialized by each room's own lock.
type RoomDirectory struct {
	mu      sync.RWMutex
	log     *slog.Logger
	rooms   map[domain.RoomCode]*domain.Room
	newCode func() domain.RoomCode
	now     func() time.Time
}

func NewRoomDirectory(log *slog.Logger) *RoomDirectory {
	return &RoomDirectory{
		log:     log,
		rooms:   make(map[domain.RoomCode]*domain.Room),
		newCode: RandomRoomCode,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithCodeGenerator replaces the random code source.
func (d *RoomDirectory) WithCodeGenerator(newCode func() domain.RoomCode) *RoomDirectory {
	d.newCode = newCode
	return d
}

// RandomRoomCode draws a numeric code of domain.RoomCodeLength digits.
func RandomRoomCode() domain.RoomCode {
	b := make([]byte, domain.RoomCodeLength)
	for i := range b {
		b[i] = byte('0' + rand.IntN(10))
	}
	return domain.RoomCode(b)
}

// EnsureGlobalRoom creates the global room on first use and returns it.
func (d *RoomDirectory) EnsureGlobalRoom() *domain.Room {
	d.mu.Lock()
	defer d.mu.Unlock()

	if room, ok := d.rooms[domain.GlobalRoomCode]; ok {
		return room
	}
	room := domain.NewGlobalRoom(d.now())
	d.rooms[domain.GlobalRoomCode] = room
	d.log.Info("Global room created", "room", room.Code)
	return room
}

// Create opens a new room with owner as its only member.
func (d *RoomDirectory) Create(owner string, public, makeOwnerAdmin bool) domain.RoomCode {
	d.mu.Lock()
	defer d.mu.Unlock()

	code := d.newCode()
	for d.taken(code) {
		code = d.newCode()
	}

	room := domain.NewRoom(code, domain.RoomName(owner), public, d.now())
	if makeOwnerAdmin {
		room.WithAdmin(owner)
	}
	// A room nobody else can see yet accepts its owner unconditionally.
	_ = room.Join(owner)
	d.rooms[code] = room

	d.log.Info("Room created", "room", code, "owner", owner, "public", public, "admin", makeOwnerAdmin)
	return code
}

func (d *RoomDirectory) taken(code domain.RoomCode) bool {
	if code == domain.GlobalRoomCode {
		return true
	}
	_, ok := d.rooms[code]
	return ok
}

func (d *RoomDirectory) Join(name string, code domain.RoomCode) error {
	room, ok := d.lookup(code)
	if !ok {
		return fmt.Errorf("%w: %s", errors.ErrRoomNotFound, code)
	}
	if err := room.Join(name); err != nil {
		return fmt.Errorf("%w: %s", err, code)
	}
	return nil
}

// ListPublic returns a snapshot of the public rooms ordered by code.
func (d *RoomDirectory) ListPublic() []domain.RoomSummary {
	rooms := lo.Filter(d.snapshot(), func(room *domain.Room, _ int) bool {
		return room.Public
	})
	return summarize(rooms)
}

// Rooms returns a snapshot of every room, public or not.
func (d *RoomDirectory) Rooms() []domain.RoomSummary {
	return summarize(d.snapshot())
}

func summarize(rooms []*domain.Room) []domain.RoomSummary {
	summaries := lo.Map(rooms, func(room *domain.Room, _ int) domain.RoomSummary {
		return room.Summary()
	})
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Code < summaries[j].Code
	})
	return summaries
}

func (d *RoomDirectory) Leave(name string, code domain.RoomCode) {
	if room, ok := d.lookup(code); ok {
		room.Leave(name)
	}
}

// LeaveAll prunes name from every room and returns the codes it was removed from.
func (d *RoomDirectory) LeaveAll(name string) []domain.RoomCode {
	var left []domain.RoomCode
	for _, room := range d.snapshot() {
		if room.Leave(name) {
			left = append(left, room.Code)
		}
	}
	return left
}

func (d *RoomDirectory) Ban(admin string, code domain.RoomCode, target string) error {
	room, ok := d.lookup(code)
	if !ok {
		return fmt.Errorf("%w: %s", errors.ErrRoomNotFound, code)
	}
	if err := room.Ban(admin, target); err != nil {
		return err
	}
	d.log.Info("User banned", "room", code, "admin", admin, "target", target)
	return nil
}

func (d *RoomDirectory) Kick(admin string, code domain.RoomCode, target string) error {
	room, ok := d.lookup(code)
	if !ok {
		return fmt.Errorf("%w: %s", errors.ErrRoomNotFound, code)
	}
	if err := room.Kick(admin, target); err != nil {
		return err
	}
	d.log.Info("User kicked", "room", code, "admin", admin, "target", target)
	return nil
}

// Remove deletes the room on behalf of its admin and returns the members that
// were inside so the caller can notify and disconnect them.
func (d *RoomDirectory) Remove(admin string, code domain.RoomCode) ([]string, error) {
	room, ok := d.lookup(code)
	if !ok {
		return nil, fmt.Errorf("%w: %s", errors.ErrRoomNotFound, code)
	}
	members, err := room.Close(admin)
	if err != nil {
		return nil, err
	}
	d.drop(room)
	d.log.Info("Room removed", "room", code, "admin", admin, "members", len(members))
	return members, nil
}

// Reap deletes empty rooms other than the global room.
func (d *RoomDirectory) Reap() int {
	reaped := 0
	for _, room := range d.snapshot() {
		if room.Code == domain.GlobalRoomCode {
			continue
		}
		if room.RetireIfEmpty() {
			d.drop(room)
			reaped++
		}
	}
	if reaped > 0 {
		d.log.Debug("Empty rooms reaped", "count", reaped)
	}
	return reaped
}

func (d *RoomDirectory) IsAdmin(code domain.RoomCode, name string) bool {
	room, ok := d.lookup(code)
	return ok && room.IsAdmin(name)
}

// Members returns the current members of code, or nil if the room does not exist.
func (d *RoomDirectory) Members(code domain.RoomCode) []string {
	room, ok := d.lookup(code)
	if !ok {
		return nil
	}
	return room.Members()
}

func (d *RoomDirectory) Exists(code domain.RoomCode) bool {
	_, ok := d.lookup(code)
	return ok
}

func (d *RoomDirectory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rooms)
}

func (d *RoomDirectory) lookup(code domain.RoomCode) (*domain.Room, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	room, ok := d.rooms[code]
	return room, ok
}

func (d *RoomDirectory) snapshot() []*domain.Room {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return lo.Values(d.rooms)
}

// drop removes room from the table unless the code was already reused.
func (d *RoomDirectory) drop(room *domain.Room) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if current, ok := d.rooms[room.Code]; ok && current == room {
		delete(d.rooms, room.Code)
	}
}
