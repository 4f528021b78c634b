package replacer

import "testing"

// TestClockPolicyScenario walks the exact sequence from the Clock
// replacer scenario: capacity 7, unpin 1,2,3,4,5,6,1 in order, three
// victims in order 1,2,3, a no-op pin(3), pin(4), unpin(4), then three
// more victims in order 5,6,4.
func TestClockPolicyScenario(t *testing.T) {
	c := NewClockReplacer(7)

	for _, f := range []FrameID{1, 2, 3, 4, 5, 6, 1} {
		c.Unpin(f)
	}
	if got := c.Size(); got != 6 {
		t.Fatalf("size after unpinning 1..6 (1 twice) = %d, want 6", got)
	}

	for _, want := range []FrameID{1, 2, 3} {
		got, ok := c.Victim()
		if !ok {
			t.Fatalf("victim() returned ok=false, want frame %d", want)
		}
		if got != want {
			t.Fatalf("victim() = %d, want %d", got, want)
		}
	}

	c.Pin(3) // already evicted: no-op
	c.Pin(4)
	c.Unpin(4)

	for _, want := range []FrameID{5, 6, 4} {
		got, ok := c.Victim()
		if !ok {
			t.Fatalf("victim() returned ok=false, want frame %d", want)
		}
		if got != want {
			t.Fatalf("victim() = %d, want %d", got, want)
		}
	}

	if _, ok := c.Victim(); ok {
		t.Fatalf("expected empty replacer after scenario, victim() still returned ok=true")
	}
}

func TestVictimOnEmptyReplacer(t *testing.T) {
	c := NewClockReplacer(4)
	if _, ok := c.Victim(); ok {
		t.Fatalf("victim() on empty replacer should report ok=false")
	}
}

func TestPinRemovesFromEligibleSet(t *testing.T) {
	c := NewClockReplacer(3)
	c.Unpin(0)
	c.Unpin(1)
	if got := c.Size(); got != 2 {
		t.Fatalf("size = %d, want 2", got)
	}
	c.Pin(0)
	if got := c.Size(); got != 1 {
		t.Fatalf("size after pin = %d, want 1", got)
	}
	got, ok := c.Victim()
	if !ok || got != 1 {
		t.Fatalf("victim() = (%d, %v), want (1, true)", got, ok)
	}
}
