package workers

import (
	"context"
	"dm-lab/observability"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// ConnectionStats reports how many users and connections are live.
type ConnectionStats interface {
	Stats() (users int, connections int)
}

// HeartbeatWorker publishes process and connection gauges on every tick.
type HeartbeatWorker struct {
	log      *slog.Logger
	stats    ConnectionStats
	interval time.Duration
}

func NewHeartbeatWorker(log *slog.Logger, stats ConnectionStats, interval time.Duration) *HeartbeatWorker {
	return &HeartbeatWorker{log: log, stats: stats, interval: interval}
}

func (w *HeartbeatWorker) Run(ctx context.Context) error {
	w.log.Info("Starting heartbeat worker", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.Beat(p)
		}
	}
}

// Beat samples once. Process stats failures only skip the process gauges.
func (w *HeartbeatWorker) Beat(p *process.Process) {
	users, connections := w.stats.Stats()
	observability.OnlineUsers.Set(float64(users))
	observability.ActiveConnections.Set(float64(connections))

	rss, cpu, err := getSelfStats(p)
	if err != nil {
		w.log.Error("Failed to collect self stats", "err", err)
		return
	}
	observability.ProcessRSSBytes.Set(float64(rss))
	observability.ProcessCPUPercent.Set(cpu)
	w.log.Debug("Heartbeat", "users", users, "connections", connections, "rss", rss, "cpu", cpu)
}

// getSelfStats retrieves memory and CPU usage for the given process.
func getSelfStats(p *process.Process) (uint64, float64, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, err
	}
	return memInfo.RSS, cpuPercent, nil
}
