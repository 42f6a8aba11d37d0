// Package registry holds the transient runtime state of managed server
// instances. Entries are keyed by instance key, created lazily, and never
// serialized; a restart always begins from a clean, all-stopped registry.
package registry

import (
	"sync"
	"sync/atomic"
)

// Status is the lifecycle state of one server instance.
type Status int32

const (
	StatusStopped Status = iota
	StatusStarting
	StatusRunning
	StatusStopping
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusStarting:
		return "starting"
	case StatusRunning:
		return "running"
	case StatusStopping:
		return "stopping"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Runtime is the transient side of a server instance: status, the start
// timestamp of the current attempt, the log path assigned for this run and
// the cancel hook of the pending health-check timer.
//
// Status transitions go through CompareAndSwap so that two racing callers
// cannot both pass a precondition check; the loser observes the new state.
type Runtime struct {
	status atomic.Int32

	mu           sync.Mutex
	startedAtMS  int64
	logFile      string
	channelID    string
	healthCancel func()
}

func (r *Runtime) Status() Status { return Status(r.status.Load()) }

// SetStatus unconditionally writes the status. Used by the event bridge,
// which folds authoritative process-exit events.
func (r *Runtime) SetStatus(s Status) { r.status.Store(int32(s)) }

// CompareAndSwapStatus transitions from exactly `from` to `to`, returning
// false if the current status is anything else.
func (r *Runtime) CompareAndSwapStatus(from, to Status) bool {
	return r.status.CompareAndSwap(int32(from), int32(to))
}

// SwapStatusFrom transitions to `to` if the current status is one of
// `from`, atomically. It reports the status it observed and whether the
// swap happened.
func (r *Runtime) SwapStatusFrom(to Status, from ...Status) (Status, bool) {
	for {
		cur := r.status.Load()
		allowed := false
		for _, f := range from {
			if cur == int32(f) {
				allowed = true
				break
			}
		}
		if !allowed {
			return Status(cur), false
		}
		if r.status.CompareAndSwap(cur, int32(to)) {
			return Status(cur), true
		}
	}
}

// MarkStarted records the wall-clock start of the current attempt and the
// log file assigned to it.
func (r *Runtime) MarkStarted(atMS int64, logFile string) {
	r.mu.Lock()
	r.startedAtMS = atMS
	r.logFile = logFile
	r.mu.Unlock()
}

func (r *Runtime) StartedAtMS() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.startedAtMS
}

func (r *Runtime) LogFile() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.logFile
}

// SetChannelID records the event channel opened for the current start
// attempt.
func (r *Runtime) SetChannelID(id string) {
	r.mu.Lock()
	r.channelID = id
	r.mu.Unlock()
}

func (r *Runtime) ChannelID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.channelID
}

// ArmHealthCancel installs the cancel hook for a newly scheduled
// health-check timer. Arming a new timer invalidates the previous one, so
// any prior hook is invoked first.
func (r *Runtime) ArmHealthCancel(cancel func()) {
	r.mu.Lock()
	prev := r.healthCancel
	r.healthCancel = cancel
	r.mu.Unlock()
	if prev != nil {
		prev()
	}
}

// CancelHealth cancels the pending health-check timer, if any.
func (r *Runtime) CancelHealth() {
	r.mu.Lock()
	cancel := r.healthCancel
	r.healthCancel = nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Registry maps instance keys to their Runtime entries.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Runtime
}

func New() *Registry {
	return &Registry{entries: make(map[string]*Runtime)}
}

// GetOrCreate returns the entry for key, inserting a fresh stopped one when
// absent. Idempotent.
func (g *Registry) GetOrCreate(key string) *Runtime {
	g.mu.RLock()
	rt := g.entries[key]
	g.mu.RUnlock()
	if rt != nil {
		return rt
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if rt = g.entries[key]; rt != nil {
		return rt
	}
	rt = &Runtime{}
	g.entries[key] = rt
	return rt
}

// Delete removes the entry for key. No-op when absent. Any pending
// health-check timer is cancelled so it cannot touch a deleted instance.
func (g *Registry) Delete(key string) {
	g.mu.Lock()
	rt := g.entries[key]
	delete(g.entries, key)
	g.mu.Unlock()
	if rt != nil {
		rt.CancelHealth()
	}
}
