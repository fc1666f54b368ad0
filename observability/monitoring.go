package observability

import (
	"log/slog"
	"os"
	"runtime"
	"sync/atomic"
	"tchat/domain"
	"time"

	"github.com/shirou/gopsutil/process"
)

// SessionCounter is satisfied by the session registry.
type SessionCounter interface {
	Count() int
}

// RoomLister is satisfied by the room directory.
type RoomLister interface {
	Count() int
	ListPublic() []domain.RoomSummary
}

// MonitoringStats is the point-in-time view served on /stats and logged by the health worker.
type MonitoringStats struct {
	At     time.Time `json:"at"`
	Uptime string    `json:"uptime"`

	// --- CHAT METRICS ---
	Sessions            int    `json:"sessions"`
	Rooms               int    `json:"rooms"`
	PublicRooms         int    `json:"public_rooms"`
	ConnectionsAccepted uint64 `json:"connections_accepted"`
	MessagesRelayed     uint64 `json:"messages_relayed"`
	MessagesCensored    uint64 `json:"messages_censored"`
	MessagesThrottled   uint64 `json:"messages_throttled"`
	SlowConsumers       uint64 `json:"slow_consumers"`

	// --- SYSTEM METRICS ---
	Goroutines int     `json:"goroutines"`
	AllocMemMb uint64  `json:"alloc_mem_mb"`
	NumGC      uint32  `json:"num_gc"`
	RSSBytes   uint64  `json:"rss_bytes"`
	CPUPercent float64 `json:"cpu_percent"`
	PidStatus  string  `json:"pid_status"`
}

// MonitoringManager keeps the chat counters and samples the process on demand.
type MonitoringManager struct {
	log      *slog.Logger
	started  time.Time
	sessions SessionCounter
	rooms    RoomLister
	proc     *process.Process

	connectionsAccepted atomic.Uint64
	messagesRelayed     atomic.Uint64
	messagesCensored    atomic.Uint64
	messagesThrottled   atomic.Uint64
	slowConsumers       atomic.Uint64
}

func NewMonitoringManager(log *slog.Logger, sessions SessionCounter, rooms RoomLister) *MonitoringManager {
	mm := &MonitoringManager{
		log:      log,
		started:  time.Now(),
		sessions: sessions,
		rooms:    rooms,
	}
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warn("Process metrics unavailable", "error", err)
	} else {
		mm.proc = p
	}
	return mm
}

func (mm *MonitoringManager) IncrConnections() {
	mm.connectionsAccepted.Add(1)
}

func (mm *MonitoringManager) IncrMessages() {
	mm.messagesRelayed.Add(1)
}

func (mm *MonitoringManager) IncrCensored() {
	mm.messagesCensored.Add(1)
}

func (mm *MonitoringManager) IncrThrottled() {
	mm.messagesThrottled.Add(1)
}

func (mm *MonitoringManager) IncrSlowConsumers() {
	mm.slowConsumers.Add(1)
}

// GetLatest builds a fresh snapshot. Process metrics are left at zero when gopsutil cannot read them.
func (mm *MonitoringManager) GetLatest() MonitoringStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	stats := MonitoringStats{
		At:                  time.Now().UTC(),
		Uptime:              time.Since(mm.started).Round(time.Second).String(),
		Sessions:            mm.sessions.Count(),
		Rooms:               mm.rooms.Count(),
		PublicRooms:         len(mm.rooms.ListPublic()),
		ConnectionsAccepted: mm.connectionsAccepted.Load(),
		MessagesRelayed:     mm.messagesRelayed.Load(),
		MessagesCensored:    mm.messagesCensored.Load(),
		MessagesThrottled:   mm.messagesThrottled.Load(),
		SlowConsumers:       mm.slowConsumers.Load(),
		Goroutines:          runtime.NumGoroutine(),
		AllocMemMb:          m.Alloc / 1024 / 1024,
		NumGC:               m.NumGC,
	}

	if mm.proc != nil {
		rss, cpu, status, err := SelfStats(mm.proc)
		if err != nil {
			mm.log.Debug("Failed to collect self stats", "error", err)
		} else {
			stats.RSSBytes, stats.CPUPercent, stats.PidStatus = rss, cpu, status
		}
	}
	return stats
}

// SelfStats retrieves technical metrics (Memory, CPU, and OS Status) for the given process.
func SelfStats(p *process.Process) (uint64, float64, string, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, "", err
	}

	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, "", err
	}

	status, err := p.Status()
	if err != nil {
		return 0, 0, "", err
	}
	return memInfo.RSS, cpuPercent, status, nil
}
