package workers

import (
	"dm-lab/observability"
	"log/slog"
	"os"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shirou/gopsutil/process"
	"github.com/stretchr/testify/require"
)

type fixedStats struct{ users, connections int }

func (s fixedStats) Stats() (int, int) { return s.users, s.connections }

func TestHeartbeatWorker_Beat(t *testing.T) {
	req := require.New(t)
	p, err := process.NewProcess(int32(os.Getpid()))
	req.NoError(err)

	NewHeartbeatWorker(slog.Default(), fixedStats{users: 2, connections: 3}, 0).Beat(p)

	req.Equal(float64(2), testutil.ToFloat64(observability.OnlineUsers))
	req.Equal(float64(3), testutil.ToFloat64(observability.ActiveConnections))
	req.Greater(testutil.ToFloat64(observability.ProcessRSSBytes), float64(0))
}
