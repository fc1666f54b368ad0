// Package domain contains core concepts of the chat system.
// This file defines the persisted profile of a participant.
// No runtime, network, or UI logic should be added here.
package domain

import "time"

// Profile records when a name was first and last seen on the server.
type Profile struct {
	Name       string    `json:"-"`
	FirstSeen  time.Time `json:"first_seen"`
	LastActive time.Time `json:"last_active"`
}
