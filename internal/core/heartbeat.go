package core

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/driftline/chatwire/internal/metrics"
	"github.com/driftline/chatwire/proto"
)

// Monitor drives the ping/pong liveness check. Every interval it enqueues a
// ping on each live session and evicts sessions whose last pong is older
// than twice the interval. This bounds the staleness of room membership to
// roughly one interval.
type Monitor struct {
	registry *Registry
	interval time.Duration
	log      *zerolog.Logger
}

// NewMonitor constructs a heartbeat monitor.
func NewMonitor(registry *Registry, interval time.Duration, logger *zerolog.Logger) *Monitor {
	return &Monitor{
		registry: registry,
		interval: interval,
		log:      logger,
	}
}

// Run blocks until the context is cancelled, sweeping once per interval.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(time.Now())
		}
	}
}

// Sweep evicts stale sessions and pings the rest.
func (m *Monitor) Sweep(now time.Time) {
	deadline := now.Add(-2 * m.interval)

	for _, session := range m.registry.All() {
		if session.LastPong().Before(deadline) {
			session.Close(CloseReasonHeartbeat)
			m.registry.Remove(session.ID)
			metrics.HeartbeatTimeouts.Inc()
			metrics.SessionsEvicted.WithLabelValues(metrics.ReasonHeartbeat).Inc()
			m.log.Info().
				Str("session_id", session.ID).
				Str("user_id", session.UserID).
				Str("room_id", session.RoomID).
				Time("last_pong", session.LastPong()).
				Msg("session evicted after heartbeat timeout")
			continue
		}

		ping, err := proto.NewFrame(proto.TypePing, session.RoomID, proto.Heartbeat{
			Timestamp: now.UnixNano(),
		})
		if err != nil {
			m.log.Error().Err(err).Msg("encode ping")
			continue
		}
		// Pings ride the ordinary outbound queue: a stalled writer misses
		// its pong deadline and falls to the eviction branch above.
		session.TryEnqueue(ping)
	}
}
