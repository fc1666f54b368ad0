package workers

import (
	"context"
	"log/slog"
	"time"
)

// RoomReaper is satisfied by the room directory.
type RoomReaper interface {
	Reap() int
}

// ReaperWorker periodically deletes empty rooms. The global room is never reaped.
type ReaperWorker struct {
	log      *slog.Logger
	rooms    RoomReaper
	interval time.Duration
}

func NewReaperWorker(log *slog.Logger, rooms RoomReaper, interval time.Duration) *ReaperWorker {
	return &ReaperWorker{log: log, rooms: rooms, interval: interval}
}

func (w *ReaperWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping reaper")
			return nil
		case <-ticker.C:
			if n := w.rooms.Reap(); n > 0 {
				w.log.Info("Empty rooms removed", "count", n)
			}
		}
	}
}
