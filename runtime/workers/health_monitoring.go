package workers

import (
	"context"
	"log/slog"
	"tchat/observability"
	"time"
)

// StatsProvider is satisfied by observability.MonitoringManager.
type StatsProvider interface {
	GetLatest() observability.MonitoringStats
}

// HealthMonitoringWorker logs a health line every metric interval.
type HealthMonitoringWorker struct {
	log            *slog.Logger
	stats          StatsProvider
	metricInterval time.Duration
}

func NewHealthMonitoringWorker(log *slog.Logger, stats StatsProvider, metricInterval time.Duration) *HealthMonitoringWorker {
	return &HealthMonitoringWorker{log: log, stats: stats, metricInterval: metricInterval}
}

func (w *HealthMonitoringWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping health monitoring")
			return nil
		case <-ticker.C:
			s := w.stats.GetLatest()
			w.log.Info("Health",
				"sessions", s.Sessions,
				"rooms", s.Rooms,
				"public_rooms", s.PublicRooms,
				"messages", s.MessagesRelayed,
				"goroutines", s.Goroutines,
				"rss_bytes", s.RSSBytes,
				"cpu", s.CPUPercent,
				"status", s.PidStatus,
			)
		}
	}
}
