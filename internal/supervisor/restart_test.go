package supervisor

import (
	"testing"
	"time"
)

func TestRestartBudgetBackoff(t *testing.T) {
	b := newRestartBudget(100*time.Millisecond, time.Second, 10)
	now := time.Unix(1000, 0)

	want := []time.Duration{
		0,
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}
	for i, w := range want {
		got, ok := b.next(now.Add(time.Duration(i) * time.Second))
		if !ok {
			t.Fatalf("restart %d: budget exhausted early", i+1)
		}
		if got != w {
			t.Errorf("restart %d: delay = %v, want %v", i+1, got, w)
		}
	}
}

func TestRestartBudgetLimit(t *testing.T) {
	b := newRestartBudget(time.Millisecond, time.Millisecond, 3)
	now := time.Unix(1000, 0)

	for i := 0; i < 3; i++ {
		if _, ok := b.next(now); !ok {
			t.Fatalf("restart %d refused, want allowed", i+1)
		}
	}
	if _, ok := b.next(now.Add(time.Second)); ok {
		t.Fatal("fourth restart inside the window allowed, want refused")
	}
	if b.recent() != 3 {
		t.Errorf("recent() = %d, want 3", b.recent())
	}
}

func TestRestartBudgetWindowSlides(t *testing.T) {
	b := newRestartBudget(time.Millisecond, 10*time.Millisecond, 2)
	now := time.Unix(1000, 0)

	b.next(now)
	b.next(now.Add(time.Second))

	later := now.Add(restartWindow + 2*time.Second)
	delay, ok := b.next(later)
	if !ok {
		t.Fatal("restart after the window refused")
	}
	if delay != 0 {
		t.Errorf("first restart of a fresh window delay = %v, want 0", delay)
	}
}
