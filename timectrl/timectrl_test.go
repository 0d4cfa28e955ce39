package timectrl

import (
	"testing"
	"time"
)

func TestVirtualClockAdvanceTo(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	c := NewVirtualClock(start)

	newNow := start.Add(42 * time.Second)
	if !c.AdvanceTo(newNow) {
		t.Fatalf("AdvanceTo(%v) returned false", newNow)
	}
	if got := c.Now(); !got.Equal(newNow) {
		t.Fatalf("Now() = %v, want %v", got, newNow)
	}
	if got := c.Elapsed(); got != 42*time.Second {
		t.Fatalf("Elapsed() = %v, want 42s", got)
	}
}

func TestVirtualClockIsMonotonic(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	c := NewVirtualClock(start)
	c.Advance(10 * time.Second)

	if c.AdvanceTo(start.Add(5 * time.Second)) {
		t.Fatalf("AdvanceTo into the past must be refused")
	}
	c.Advance(-time.Second)

	if got := c.Now(); !got.Equal(start.Add(10 * time.Second)) {
		t.Fatalf("Now() = %v, want %v", got, start.Add(10*time.Second))
	}
}
