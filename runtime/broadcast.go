package runtime

import (
	"log/slog"
	"tchat/domain"
	"tchat/errors"
)

// Broadcaster delivers one line to every member of a room except an optional sender.
//
// Delivery is fire-and-forget per recipient: a failed recipient is logged and
// skipped. Each peer owns a single ordered outbound queue and a sender enqueues
// from its own goroutine, so one sender's lines reach any recipient in order.
type Broadcaster struct {
	log      *slog.Logger
	sessions *SessionRegistry
	rooms    *RoomDirectory
	onSlow   func()
}

func NewBroadcaster(log *slog.Logger, sessions *SessionRegistry, rooms *RoomDirectory) *Broadcaster {
	return &Broadcaster{log: log, sessions: sessions, rooms: rooms}
}

// OnSlowConsumer registers f, called each time a recipient is dropped for not keeping up.
func (b *Broadcaster) OnSlowConsumer(f func()) *Broadcaster {
	b.onSlow = f
	return b
}

// Broadcast returns how many recipients accepted the line.
func (b *Broadcaster) Broadcast(code domain.RoomCode, message, exclude string) int {
	delivered := 0
	for _, member := range b.rooms.Members(code) {
		if member == exclude {
			continue
		}
		if err := b.sessions.Send(member, message); err != nil {
			if errors.Is(err, errors.ErrSlowConsumer) {
				b.log.Warn("Slow consumer disconnected", "room", code, "name", member)
				if b.onSlow != nil {
					b.onSlow()
				}
				continue
			}
			b.log.Debug("Broadcast skipped recipient", "room", code, "name", member, "error", err)
			continue
		}
		delivered++
	}
	return delivered
}
