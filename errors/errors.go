package errors

import (
	"errors"
	"fmt"
)

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")
	ErrEmptyWords  = fmt.Errorf("no words have been found")

	ErrInvalidName      = fmt.Errorf("invalid username")
	ErrNameInUse        = fmt.Errorf("username already in use")
	ErrRoomNotFound     = fmt.Errorf("room not found")
	ErrBanned           = fmt.Errorf("banned from room")
	ErrNotAdmin         = fmt.Errorf("not the room admin")
	ErrTargetNotInRoom  = fmt.Errorf("user not found in room")
	ErrPeerDisconnected = fmt.Errorf("peer disconnected")
	ErrTransport        = fmt.Errorf("transport error")
	ErrSlowConsumer     = fmt.Errorf("peer outbound queue full")
	ErrProfileNotFound  = fmt.Errorf("profile not found")
	ErrBind             = fmt.Errorf("failed to bind")
)

// Is lets callers match sentinels without importing both error packages.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
