package lifecycle

import (
	"context"
	"time"

	"github.com/loykin/servhub/internal/history"
	"github.com/loykin/servhub/internal/metrics"
	"github.com/loykin/servhub/internal/procctl"
	"github.com/loykin/servhub/internal/record"
	"github.com/loykin/servhub/internal/registry"
)

// armHealthCheck schedules the first ping after the grace delay. The cancel
// hook is installed on the runtime so a terminal event can disarm it.
func (m *Manager) armHealthCheck(rec record.ServerRecord, rt *registry.Runtime, desc procctl.Descriptor) {
	t := m.clock.AfterFunc(m.grace, func() {
		m.healthCheck(rec, rt, desc)
	})
	rt.ArmHealthCancel(func() { _ = t.Stop() })
}

// healthCheck runs one ping attempt. A false result and a ping error are
// equivalent: both schedule a retry, until the cumulative elapsed time
// since the start timestamp crosses the hard ceiling. The transitions to
// running and to error are compare-and-set, so a terminal event that raced
// ahead wins and the late check becomes a no-op.
func (m *Manager) healthCheck(rec record.ServerRecord, rt *registry.Runtime, desc procctl.Descriptor) {
	if rt.Status() != registry.StatusStarting {
		return
	}

	ok, err := m.ctl.Ping(context.Background(), desc)
	if err == nil && ok {
		if rt.CompareAndSwapStatus(registry.StatusStarting, registry.StatusRunning) {
			metrics.IncHealthCheck(rec.Name, "ok")
			m.observeTransition(rec.Name, registry.StatusStarting, registry.StatusRunning)
			m.recordHistory(history.EventStart, rec, registry.StatusRunning)
			m.logger.Info("server is healthy", "server", rec.Key)
		}
		return
	}
	if err != nil {
		m.logger.Debug("ping failed", "server", rec.Key, "error", err)
	}
	metrics.IncHealthCheck(rec.Name, "retry")

	elapsed := time.Duration(m.clock.Now().UnixMilli()-rt.StartedAtMS()) * time.Millisecond
	if elapsed > m.timeout {
		if rt.CompareAndSwapStatus(registry.StatusStarting, registry.StatusError) {
			metrics.IncHealthCheck(rec.Name, "timeout")
			m.observeTransition(rec.Name, registry.StatusStarting, registry.StatusError)
			m.recordHistory(history.EventError, rec, registry.StatusError)
			m.logger.Warn("server failed to become healthy", "server", rec.Key, "elapsed", elapsed)
			// The attempt is abandoned: close its event channel so the late
			// exit of the reclaimed process cannot reach a future attempt.
			m.broker.Destroy(rt.ChannelID())
			// Best-effort reclaim of the unhealthy process.
			_ = m.ctl.Stop(context.Background(), desc)
		}
		return
	}

	t := m.clock.AfterFunc(m.retry, func() {
		m.healthCheck(rec, rt, desc)
	})
	rt.ArmHealthCancel(func() { _ = t.Stop() })
}
