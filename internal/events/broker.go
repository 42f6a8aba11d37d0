// Package events is the asynchronous bridge between the process-control
// collaborator and the lifecycle state machine. One channel is created per
// start attempt and destroyed exactly once, on the first terminal event.
package events

import (
	"strconv"
	"sync"
	"sync/atomic"
)

// Type classifies a message delivered on a channel.
type Type string

const (
	TypeSuccess  Type = "success"
	TypeError    Type = "error"
	TypeStarting Type = "starting"
)

// Message is an asynchronous notification from the process collaborator.
type Message struct {
	Type Type `json:"type"`
	Data any  `json:"data,omitempty"`
}

// Callback receives messages published on a channel.
type Callback func(Message)

// Broker manages event channels by id.
type Broker struct {
	mu    sync.RWMutex
	next  atomic.Uint64
	chans map[string]Callback
}

func NewBroker() *Broker {
	return &Broker{chans: make(map[string]Callback)}
}

// Create registers a callback and returns its channel id.
func (b *Broker) Create(cb Callback) string {
	id := "ch-" + strconv.FormatUint(b.next.Add(1), 10)
	b.mu.Lock()
	b.chans[id] = cb
	b.mu.Unlock()
	return id
}

// Destroy removes a channel. Idempotent; late publishes to a destroyed
// channel are dropped.
func (b *Broker) Destroy(id string) {
	b.mu.Lock()
	delete(b.chans, id)
	b.mu.Unlock()
}

// Publish delivers msg to the channel's callback in the caller goroutine.
// It reports whether the channel still existed.
func (b *Broker) Publish(id string, msg Message) bool {
	b.mu.RLock()
	cb := b.chans[id]
	b.mu.RUnlock()
	if cb == nil {
		return false
	}
	cb(msg)
	return true
}
