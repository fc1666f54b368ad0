// Package domain contains core concepts of the chat system.
// This file defines Room entities and their membership and ban invariants.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"sort"
	"sync"
	"tchat/errors"
	"time"
)

type RoomCode string

const (
	GlobalRoomCode RoomCode = "0000000000"
	GlobalRoomName          = "Global Chat"
	RoomCodeLength          = 10
)

type Set map[string]struct{}

// Room is a named group of sessions with an optional admin and a permanent ban list.
// Every mutation is serialized by the room's own mutex, so two rooms never contend.
type Room struct {
	mu        sync.Mutex
	Code      RoomCode
	Name      string
	Public    bool
	CreatedAt time.Time
	admin     string
	hasAdmin  bool
	members   Set
	banned    Set
	removed   bool
}

type RoomSummary struct {
	Code    RoomCode
	Name    string
	Members int
}

func NewRoom(code RoomCode, name string, public bool, at time.Time) *Room {
	return &Room{
		Code:      code,
		Name:      name,
		Public:    public,
		CreatedAt: at,
		members:   make(Set),
		banned:    make(Set),
	}
}

// NewGlobalRoom builds the public, adminless room every session joins on connect.
func NewGlobalRoom(at time.Time) *Room {
	return NewRoom(GlobalRoomCode, GlobalRoomName, true, at)
}

// RoomName is the display name given to a room created by owner.
func RoomName(owner string) string {
	return owner + "'s Room"
}

// WithAdmin grants admin rights. It must only be called before the room is published.
func (r *Room) WithAdmin(name string) *Room {
	r.admin = name
	r.hasAdmin = true
	return r
}

// Admin returns the admin identity, if the room has one.
func (r *Room) Admin() (string, bool) {
	return r.admin, r.hasAdmin
}

func (r *Room) IsAdmin(name string) bool {
	return r.hasAdmin && r.admin == name
}

func (r *Room) Join(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.removed {
		return errors.ErrRoomNotFound
	}
	if _, ok := r.banned[name]; ok {
		return errors.ErrBanned
	}
	r.members[name] = struct{}{}
	return nil
}

// Leave removes name from the members and reports whether it was present.
func (r *Room) Leave(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[name]; !ok {
		return false
	}
	delete(r.members, name)
	return true
}

// Ban moves target from the members to the ban list in one step.
func (r *Room) Ban(admin, target string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkAdminCommand(admin, target); err != nil {
		return err
	}
	r.banned[target] = struct{}{}
	delete(r.members, target)
	return nil
}

func (r *Room) Kick(admin, target string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkAdminCommand(admin, target); err != nil {
		return err
	}
	delete(r.members, target)
	return nil
}

func (r *Room) checkAdminCommand(admin, target string) error {
	if r.removed {
		return errors.ErrRoomNotFound
	}
	if !r.IsAdmin(admin) {
		return errors.ErrNotAdmin
	}
	if _, ok := r.members[target]; !ok {
		return errors.ErrTargetNotInRoom
	}
	return nil
}

// Close retires the room on behalf of its admin and hands back the members
// that were still inside, so the caller can notify them.
func (r *Room) Close(admin string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.removed {
		return nil, errors.ErrRoomNotFound
	}
	if !r.IsAdmin(admin) {
		return nil, errors.ErrNotAdmin
	}
	members := r.sortedMembers()
	r.removed = true
	r.members = make(Set)
	return members, nil
}

// RetireIfEmpty marks an empty room as removed. Joins racing with the retirement
// observe ErrRoomNotFound instead of landing in a room nobody can reach.
func (r *Room) RetireIfEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.removed || len(r.members) > 0 {
		return false
	}
	r.removed = true
	return true
}

func (r *Room) Members() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sortedMembers()
}

func (r *Room) sortedMembers() []string {
	members := make([]string, 0, len(r.members))
	for name := range r.members {
		members = append(members, name)
	}
	sort.Strings(members)
	return members
}

func (r *Room) IsMember(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.members[name]
	return ok
}

func (r *Room) IsBanned(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.banned[name]
	return ok
}

func (r *Room) Summary() RoomSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RoomSummary{Code: r.Code, Name: r.Name, Members: len(r.members)}
}
