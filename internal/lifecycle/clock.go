package lifecycle

import "time"

// Clock abstracts wall-clock time and timer scheduling so the health-check
// supervisor can be driven in tests without real waits.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable pending callback.
type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealClock returns the wall-clock implementation used outside tests.
func RealClock() Clock { return realClock{} }
