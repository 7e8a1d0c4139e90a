package rtc

import (
	"context"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/pion/webrtc/v3"
)

const statsInterval = 3 * time.Second

// StatsReport summarises inbound audio health for one poll.
type StatsReport struct {
	PacketsLost   int32
	Jitter        float64
	RoundTripTime float64
}

// pollStats logs connection health every statsInterval. Advisory only:
// failures are logged and never affect the call.
func (m *Manager) pollStats(ctx context.Context) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			pc := m.pc
			m.mu.Unlock()
			if pc == nil {
				return
			}
			for _, report := range collectStats(pc.GetStats()) {
				log.Debugf("connection stats | lost: %d, jitter: %.4f, rtt: %.4f",
					report.PacketsLost, report.Jitter, report.RoundTripTime)
			}
		}
	}
}

func collectStats(stats webrtc.StatsReport) []StatsReport {
	var reports []StatsReport
	for _, s := range stats {
		if ri, ok := s.(webrtc.RemoteInboundRTPStreamStats); ok {
			reports = append(reports, StatsReport{
				PacketsLost:   ri.PacketsLost,
				Jitter:        ri.Jitter,
				RoundTripTime: ri.RoundTripTime,
			})
		}
	}
	return reports
}
