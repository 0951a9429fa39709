package status

import (
	"sync"
	"testing"
)

func TestToggleTwiceRestores(t *testing.T) {
	for _, initial := range []bool{true, false} {
		s := NewStore(initial)

		if got := s.Toggle(); got == initial {
			t.Errorf("first toggle from %v returned %v", initial, got)
		}
		if got := s.Toggle(); got != initial {
			t.Errorf("second toggle from %v returned %v", initial, got)
		}
		if s.Healthy() != initial {
			t.Errorf("expected %v after two toggles, got %v", initial, s.Healthy())
		}
	}
}

func TestSet(t *testing.T) {
	s := NewStore(true)

	var calls int
	s.OnChange(func(bool) { calls++ })
	calls = 0

	s.Set(true)
	if calls != 0 {
		t.Errorf("setting the same value should not notify, got %d calls", calls)
	}

	s.Set(false)
	if s.Healthy() {
		t.Error("expected unhealthy after Set(false)")
	}
	if calls != 1 {
		t.Errorf("expected 1 notification, got %d", calls)
	}
}

func TestOnChangeReceivesCurrentValue(t *testing.T) {
	s := NewStore(false)

	var seen []bool
	s.OnChange(func(h bool) { seen = append(seen, h) })
	s.Toggle()
	s.Toggle()

	want := []bool{false, true, false}
	if len(seen) != len(want) {
		t.Fatalf("expected %d notifications, got %v", len(want), seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("notification %d = %v, want %v", i, seen[i], want[i])
		}
	}
}

func TestConcurrentTogglesNeverLoseFlips(t *testing.T) {
	const n = 1000
	s := NewStore(true)

	var last bool
	s.OnChange(func(h bool) { last = h })

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Toggle()
		}()
	}
	wg.Wait()

	// an even number of flips returns to the start
	if !s.Healthy() {
		t.Error("expected healthy after an even number of toggles")
	}
	if last != s.Healthy() {
		t.Errorf("last listener call saw %v, store is %v", last, s.Healthy())
	}
}
