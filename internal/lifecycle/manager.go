// Package lifecycle validates and executes start/stop/delete against the
// server state machine, supervises health checks after a start, and folds
// asynchronous process events into runtime state.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/loykin/servhub/internal/discovery"
	"github.com/loykin/servhub/internal/events"
	"github.com/loykin/servhub/internal/history"
	"github.com/loykin/servhub/internal/metrics"
	"github.com/loykin/servhub/internal/procctl"
	"github.com/loykin/servhub/internal/record"
	"github.com/loykin/servhub/internal/registry"
)

// Health-check schedule: first ping after the grace delay, then a retry
// every interval until the hard ceiling measured from the start timestamp.
const (
	DefaultHealthGrace   = 10 * time.Second
	DefaultHealthRetry   = 5 * time.Second
	DefaultHealthTimeout = 5 * time.Minute
)

// Config wires the manager's collaborators.
type Config struct {
	Records    *record.Store
	Registry   *registry.Registry
	Scanner    *discovery.Scanner
	Controller procctl.Controller
	Broker     *events.Broker
	Clock      Clock
	Logger     *slog.Logger
	LogDir     string

	HealthGrace   time.Duration
	HealthRetry   time.Duration
	HealthTimeout time.Duration
}

// Manager owns the lifecycle state machine. Status mutations go through
// atomic compare-and-set on the runtime entry, so racing operations on the
// same instance resolve deterministically: exactly one wins, the rest fail
// with StatusError.
type Manager struct {
	records *record.Store
	reg     *registry.Registry
	scanner *discovery.Scanner
	ctl     procctl.Controller
	broker  *events.Broker
	clock   Clock
	logger  *slog.Logger
	logDir  string
	sinks   []history.Sink

	grace   time.Duration
	retry   time.Duration
	timeout time.Duration
}

func New(cfg Config) *Manager {
	m := &Manager{
		records: cfg.Records,
		reg:     cfg.Registry,
		scanner: cfg.Scanner,
		ctl:     cfg.Controller,
		broker:  cfg.Broker,
		clock:   cfg.Clock,
		logger:  cfg.Logger,
		logDir:  cfg.LogDir,
		grace:   cfg.HealthGrace,
		retry:   cfg.HealthRetry,
		timeout: cfg.HealthTimeout,
	}
	if m.reg == nil {
		m.reg = registry.New()
	}
	if m.broker == nil {
		m.broker = events.NewBroker()
	}
	if m.clock == nil {
		m.clock = RealClock()
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.logDir == "" {
		m.logDir = "logs"
	}
	if m.grace <= 0 {
		m.grace = DefaultHealthGrace
	}
	if m.retry <= 0 {
		m.retry = DefaultHealthRetry
	}
	if m.timeout <= 0 {
		m.timeout = DefaultHealthTimeout
	}
	return m
}

// SetHistorySinks configures external audit sinks. Passing none clears the
// list.
func (m *Manager) SetHistorySinks(sinks ...history.Sink) {
	m.sinks = append([]history.Sink(nil), sinks...)
}

// Broker exposes the event broker so process collaborators can publish
// into channels the manager opened.
func (m *Manager) Broker() *events.Broker { return m.broker }

// ServerStatus joins a persisted record with its current runtime status
// for display. Never persisted.
type ServerStatus struct {
	record.ServerRecord
	Status string `json:"status"`
}

// List returns all records, newest first, with their runtime status.
func (m *Manager) List() []ServerStatus {
	recs := m.records.List()
	out := make([]ServerStatus, 0, len(recs))
	for _, r := range recs {
		out = append(out, ServerStatus{
			ServerRecord: r,
			Status:       m.reg.GetOrCreate(r.Key).Status().String(),
		})
	}
	return out
}

// Status returns the runtime status for one instance.
func (m *Manager) Status(key string) (registry.Status, error) {
	if _, ok := m.records.Get(key); !ok {
		return registry.StatusStopped, fmt.Errorf("%w: %s", ErrUnknownServer, key)
	}
	return m.reg.GetOrCreate(key).Status(), nil
}

// Refresh merges freshly discovered local instances into the record store.
// New records start out stopped.
func (m *Manager) Refresh(ctx context.Context) error {
	discovered, err := m.scanner.Scan()
	if err != nil {
		return err
	}
	inserted, err := m.records.Merge(ctx, discovered)
	for _, key := range inserted {
		m.reg.GetOrCreate(key)
	}
	if len(inserted) > 0 {
		m.logger.Info("discovered new servers", "count", len(inserted))
	}
	return err
}

// UpdateSetting shallow-merges partial into the record's setting map.
func (m *Manager) UpdateSetting(ctx context.Context, key string, partial map[string]any) error {
	return m.records.UpdateSetting(ctx, key, partial)
}

// Start transitions stopped|error -> starting, opens the event channel,
// delegates to the process controller and arms the health-check
// supervisor. Any other current state yields a StatusError with no side
// effect.
func (m *Manager) Start(ctx context.Context, key string) error {
	rec, ok := m.records.Get(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownServer, key)
	}
	rt := m.reg.GetOrCreate(key)

	prev, swapped := rt.SwapStatusFrom(registry.StatusStarting, registry.StatusStopped, registry.StatusError)
	if !swapped {
		return &StatusError{Key: key, Op: "start", Status: prev}
	}
	m.observeTransition(rec.Name, prev, registry.StatusStarting)

	now := m.clock.Now()
	logFile := filepath.Join(m.logDir, fmt.Sprintf("%s_%s_%s_%d.log",
		rec.Name, rec.Version, now.Format("20060102"), now.UnixMilli()))
	rt.MarkStarted(now.UnixMilli(), logFile)

	var chID string
	chID = m.broker.Create(func(msg events.Message) {
		m.onEvent(rec, rt, chID, msg)
	})
	rt.SetChannelID(chID)

	desc := m.descriptor(rec, rt)
	if err := m.ctl.Start(ctx, desc); err != nil {
		if rt.CompareAndSwapStatus(registry.StatusStarting, registry.StatusError) {
			m.observeTransition(rec.Name, registry.StatusStarting, registry.StatusError)
		}
		m.broker.Destroy(chID)
		return err
	}

	metrics.IncStart(rec.Name)
	m.armHealthCheck(rec, rt, desc)
	return nil
}

// Stop transitions running -> stopping and delegates to the process
// controller. The terminal state (stopped or error) is set by the event
// channel when the process actually exits.
func (m *Manager) Stop(ctx context.Context, key string) error {
	rec, ok := m.records.Get(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownServer, key)
	}
	rt := m.reg.GetOrCreate(key)

	prev, swapped := rt.SwapStatusFrom(registry.StatusStopping, registry.StatusRunning)
	if !swapped {
		return &StatusError{Key: key, Op: "stop", Status: prev}
	}
	m.observeTransition(rec.Name, prev, registry.StatusStopping)

	if err := m.ctl.Stop(ctx, m.descriptor(rec, rt)); err != nil {
		// The process state is unknown after a failed stop dispatch.
		if rt.CompareAndSwapStatus(registry.StatusStopping, registry.StatusError) {
			m.observeTransition(rec.Name, registry.StatusStopping, registry.StatusError)
		}
		return err
	}
	metrics.IncStop(rec.Name)
	return nil
}

// Delete removes a stopped or errored instance: its directory for local
// records, its persisted record and its runtime entry.
func (m *Manager) Delete(ctx context.Context, key string) error {
	rec, ok := m.records.Get(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownServer, key)
	}
	rt := m.reg.GetOrCreate(key)

	if st := rt.Status(); st != registry.StatusStopped && st != registry.StatusError {
		return &StatusError{Key: key, Op: "delete", Status: st}
	}

	if rec.Type == record.TypeLocal && rec.LocalPath != "" {
		if err := os.RemoveAll(rec.LocalPath); err != nil {
			return fmt.Errorf("failed to remove server directory: %w", err)
		}
	}
	if err := m.records.Remove(ctx, key); err != nil {
		return err
	}
	m.reg.Delete(key)
	return nil
}

// onEvent folds one asynchronous process event into runtime state. The
// channel is destroyed on the first terminal event; a pending health-check
// timer is cancelled so a late retry cannot overwrite the newer state.
// Events carry the channel id of the attempt that opened them: a terminal
// event from a superseded attempt closes its own channel and is dropped,
// so it cannot clobber the state or the timer of a newer attempt.
func (m *Manager) onEvent(rec record.ServerRecord, rt *registry.Runtime, chID string, msg events.Message) {
	switch msg.Type {
	case events.TypeSuccess:
		if !m.claimTerminal(rec, rt, chID) {
			return
		}
		m.setStatus(rec.Name, rt, registry.StatusStopped)
		m.recordHistory(history.EventStop, rec, registry.StatusStopped)
	case events.TypeError:
		if !m.claimTerminal(rec, rt, chID) {
			return
		}
		m.setStatus(rec.Name, rt, registry.StatusError)
		m.recordHistory(history.EventError, rec, registry.StatusError)
	case events.TypeStarting:
		m.logger.Debug("server reported starting", "server", rec.Key)
	default:
		m.logger.Warn("ignoring unknown event type", "server", rec.Key, "type", msg.Type)
	}
}

// claimTerminal closes the event channel and reports whether it still
// belongs to the runtime's current start attempt.
func (m *Manager) claimTerminal(rec record.ServerRecord, rt *registry.Runtime, chID string) bool {
	m.broker.Destroy(chID)
	if rt.ChannelID() != chID {
		m.logger.Debug("dropping exit event from a superseded start attempt",
			"server", rec.Key, "channel", chID)
		return false
	}
	rt.CancelHealth()
	return true
}

func (m *Manager) descriptor(rec record.ServerRecord, rt *registry.Runtime) procctl.Descriptor {
	path := rec.LocalPath
	if abs, err := filepath.Abs(path); err == nil && path != "" {
		path = abs
	}
	return procctl.Descriptor{
		Path:      path,
		Name:      rec.Name,
		Version:   rec.Version,
		Setting:   rec.Setting,
		LogFile:   rt.LogFile(),
		ChannelID: rt.ChannelID(),
	}
}

func (m *Manager) setStatus(name string, rt *registry.Runtime, to registry.Status) {
	from := rt.Status()
	rt.SetStatus(to)
	m.observeTransition(name, from, to)
}

func (m *Manager) observeTransition(name string, from, to registry.Status) {
	metrics.RecordStateTransition(name, from.String(), to.String())
	metrics.SetCurrentState(name, from.String(), false)
	metrics.SetCurrentState(name, to.String(), true)
}

func (m *Manager) recordHistory(t history.EventType, rec record.ServerRecord, st registry.Status) {
	if len(m.sinks) == 0 {
		return
	}
	evt := history.Event{
		Type:       t,
		Key:        rec.Key,
		Name:       rec.Name,
		Version:    rec.Version,
		Status:     st.String(),
		OccurredAt: m.clock.Now().UTC(),
	}
	for _, s := range m.sinks {
		if err := s.Send(context.Background(), evt); err != nil {
			m.logger.Warn("failed to record history event", "server", rec.Key, "error", err)
		}
	}
}
