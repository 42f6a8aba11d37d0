package registry

import (
	"sync"
	"testing"
)

func TestGetOrCreateIdempotent(t *testing.T) {
	g := New()
	a := g.GetOrCreate("alpha@1.0.0")
	b := g.GetOrCreate("alpha@1.0.0")
	if a != b {
		t.Fatal("GetOrCreate returned distinct entries for the same key")
	}
	if a.Status() != StatusStopped {
		t.Fatalf("fresh runtime status = %v, want stopped", a.Status())
	}
}

func TestDeleteNoOpWhenAbsent(t *testing.T) {
	g := New()
	g.Delete("ghost@1.0.0") // must not panic
	g.GetOrCreate("alpha@1.0.0")
	g.Delete("alpha@1.0.0")
	// A new entry after delete starts from scratch.
	rt := g.GetOrCreate("alpha@1.0.0")
	if rt.Status() != StatusStopped {
		t.Fatalf("status after recreate = %v, want stopped", rt.Status())
	}
}

func TestDeleteCancelsPendingTimer(t *testing.T) {
	g := New()
	rt := g.GetOrCreate("alpha@1.0.0")
	cancelled := false
	rt.ArmHealthCancel(func() { cancelled = true })
	g.Delete("alpha@1.0.0")
	if !cancelled {
		t.Fatal("delete did not cancel the pending health timer")
	}
}

func TestSwapStatusFrom(t *testing.T) {
	var rt Runtime

	if st, ok := rt.SwapStatusFrom(StatusStarting, StatusStopped, StatusError); !ok || st != StatusStopped {
		t.Fatalf("swap from stopped = (%v, %v)", st, ok)
	}
	if rt.Status() != StatusStarting {
		t.Fatalf("status = %v, want starting", rt.Status())
	}

	// Starting is not a legal source for another start.
	if st, ok := rt.SwapStatusFrom(StatusStarting, StatusStopped, StatusError); ok {
		t.Fatalf("swap from starting succeeded, observed %v", st)
	}

	rt.SetStatus(StatusError)
	if _, ok := rt.SwapStatusFrom(StatusStarting, StatusStopped, StatusError); !ok {
		t.Fatal("swap from error failed")
	}
}

func TestSwapStatusFromSingleWinner(t *testing.T) {
	var rt Runtime
	const n = 16
	var wg sync.WaitGroup
	results := make([]bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = rt.SwapStatusFrom(StatusStarting, StatusStopped, StatusError)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, ok := range results {
		if ok {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}
}

func TestArmHealthCancelInvalidatesPrevious(t *testing.T) {
	var rt Runtime
	firstCancelled := false
	rt.ArmHealthCancel(func() { firstCancelled = true })
	rt.ArmHealthCancel(func() {})
	if !firstCancelled {
		t.Fatal("arming a new timer did not cancel the previous one")
	}

	rt.CancelHealth()
	// Second CancelHealth is a no-op.
	rt.CancelHealth()
}

func TestMarkStarted(t *testing.T) {
	var rt Runtime
	rt.MarkStarted(1717243200000, "logs/alpha_1.0.0_20240601_1717243200000.log")
	if rt.StartedAtMS() != 1717243200000 {
		t.Fatalf("startedAtMS = %d", rt.StartedAtMS())
	}
	if rt.LogFile() == "" {
		t.Fatal("log file not recorded")
	}
}
