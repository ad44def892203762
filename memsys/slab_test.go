package memsys

import (
	"errors"
	"testing"

	"github.com/ais-cache/memd/cmn"
)

func newTestSlabAllocator(t *testing.T, limit int64) *slabAllocator {
	t.Helper()
	a, err := newArena(limit, cmn.MiB, false)
	if err != nil {
		t.Fatalf("newArena: %v", err)
	}
	return newSlabAllocator(a, cmn.MiB, 1.25, 128)
}

func TestSlabClassifyZeroAndOverflow(t *testing.T) {
	sa := newTestSlabAllocator(t, 64*cmn.MiB)
	if id := sa.classify(0); id != 0 {
		t.Fatalf("classify(0) = %d, want 0", id)
	}
	if id := sa.classify(2 * cmn.MiB); id != 0 {
		t.Fatalf("classify(oversize) = %d, want 0", id)
	}
	if id := sa.classify(128); id != powerSmallest {
		t.Fatalf("classify(128) = %d, want %d", id, powerSmallest)
	}
}

// allocChunk must pop a free slot before bumping the page, and bump the
// page before growing a new one.
func TestSlabAllocOrderPopBeforeGrow(t *testing.T) {
	sa := newTestSlabAllocator(t, 64*cmn.MiB)
	id := powerSmallest
	c := sa.classes[id]

	chunk, err := sa.allocChunk(c.size, id)
	if err != nil {
		t.Fatalf("allocChunk: %v", err)
	}
	if c.slabs != 1 {
		t.Fatalf("slabs = %d, want 1 after first alloc", c.slabs)
	}
	sa.freeChunk(chunk, c.size, id)
	if len(c.slots) != 1 {
		t.Fatalf("slots = %d, want 1 after free", len(c.slots))
	}

	if _, err := sa.allocChunk(c.size, id); err != nil {
		t.Fatalf("allocChunk after free: %v", err)
	}
	if c.slabs != 1 {
		t.Fatalf("slabs = %d, want still 1 (popped the freed slot instead of growing)", c.slabs)
	}
	if len(c.slots) != 0 {
		t.Fatalf("slots = %d, want 0 after the pop", len(c.slots))
	}
}

func TestSlabGrowRefusedBeyondCeiling(t *testing.T) {
	sa := newTestSlabAllocator(t, cmn.MiB) // one page's worth, no headroom for a second class
	id := sa.powerLargest
	if _, err := sa.allocChunk(sa.classes[id].size, id); err != nil {
		t.Fatalf("first allocChunk on the largest class: %v", err)
	}
	// Any other class's growth now exceeds the 1 MiB ceiling, and no
	// class but class 0 ever has a reservation target.
	other := powerSmallest
	_, err := sa.allocChunk(sa.classes[other].size, other)
	if err == nil {
		t.Fatalf("expected OutOfMemory, got nil")
	}
	var oom *cmn.OutOfMemoryError
	if !errors.As(err, &oom) {
		t.Fatalf("expected *cmn.OutOfMemoryError, got %T", err)
	}
	if oom.Reason != "ceiling" {
		t.Fatalf("reason = %q, want %q", oom.Reason, "ceiling")
	}
}

func TestReservationBootstrapFiresNotifier(t *testing.T) {
	sa := newTestSlabAllocator(t, 5*cmn.MiB)
	fired := 0
	sa.onBootstrap = func() { fired++ }

	id := sa.classify(900 * cmn.KiB)
	for i := 0; i < 16; i++ {
		if sa.classes[0].rsvdSlabs != rsvdSlabsUndefined {
			break
		}
		if _, err := sa.allocChunk(sa.classes[id].size, id); err != nil {
			break
		}
	}
	if sa.classes[0].rsvdSlabs == rsvdSlabsUndefined {
		t.Fatalf("class 0 reservation never bootstrapped")
	}
	if fired == 0 {
		t.Fatalf("onBootstrap notifier never fired")
	}
}
