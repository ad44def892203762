package memsys

import (
	"testing"

	"github.com/ais-cache/memd/cmn"
)

func newTestEngine(t *testing.T, memLimit int64) *Engine {
	t.Helper()
	e, err := NewEngine(Config{MemLimit: memLimit, ItemSizeMax: cmn.MiB, SkipInitialSlabsAlloc: true})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

// used_chunks + |slots| + end_page_free == slabs*perslab, for every slab
// class, before and after a round-trip.
func TestSlabClassAccountingRoundTrips(t *testing.T) {
	e := newTestEngine(t, 64*cmn.MiB)
	id := e.slabs.classify(300 * cmn.KiB)
	c := e.slabs.classes[id]

	checkBalanced := func() {
		t.Helper()
		if c.usedChunks()+int64(len(c.slots))+c.endPageFree != c.slabs*c.perslab {
			t.Fatalf("class accounting violated: used=%d slots=%d end_page_free=%d slabs*perslab=%d",
				c.usedChunks(), len(c.slots), c.endPageFree, c.slabs*c.perslab)
		}
	}
	checkBalanced()
	buf, err := e.Alloc(300 * cmn.KiB)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	checkBalanced()
	e.Free(buf, 300*cmn.KiB, id)
	checkBalanced()
}

// Free space splits exactly into small+avail while slots are live, and
// usedTotalSpace returns to 0 once every slot is released.
func TestSMASpaceAccounting(t *testing.T) {
	e := newTestEngine(t, 16*cmn.MiB)
	bufs := make([][]byte, 8)
	sizes := []int{40, 64, 100, 200, 40, 64, 500, 30}
	for i, sz := range sizes {
		buf, err := e.Alloc(sz)
		if err != nil {
			t.Fatalf("Alloc(%d): %v", sz, err)
		}
		bufs[i] = buf
	}
	var freeSum int64
	for i := 0; i < NumClasses; i++ {
		freeSum += e.sma.free[i].space
	}
	if freeSum != e.sma.freeSmallSpace+e.sma.freeAvailSpace {
		t.Fatalf("sum(free_slist.space)=%d != small(%d)+avail(%d)",
			freeSum, e.sma.freeSmallSpace, e.sma.freeAvailSpace)
	}
	for i, buf := range bufs {
		e.Free(buf, sizes[i], SMAClassID)
	}
	if e.sma.usedTotalSpace != 0 {
		t.Fatalf("usedTotalSpace after full release = %d, want 0", e.sma.usedTotalSpace)
	}
}

// usedMinID <= i <= usedMaxID for every occupied class, tight at both ends.
func TestSMAUsedRangeTight(t *testing.T) {
	e := newTestEngine(t, 16*cmn.MiB)
	sizes := []int{40, 400, 72}
	for _, sz := range sizes {
		if _, err := e.Alloc(sz); err != nil {
			t.Fatalf("Alloc(%d): %v", sz, err)
		}
	}
	minID, maxID := e.sma.usedMinID, e.sma.usedMaxID
	if e.sma.used[minID].count == 0 || e.sma.used[maxID].count == 0 {
		t.Fatalf("usedMinID/usedMaxID not tight: minID=%d(count=%d) maxID=%d(count=%d)",
			minID, e.sma.used[minID].count, maxID, e.sma.used[maxID].count)
	}
	for i := 0; i < minID; i++ {
		if e.sma.used[i].count != 0 {
			t.Fatalf("class %d below usedMinID has count %d", i, e.sma.used[i].count)
		}
	}
	for i := maxID + 1; i < NumClasses; i++ {
		if e.sma.used[i].count != 0 {
			t.Fatalf("class %d above usedMaxID has count %d", i, e.sma.used[i].count)
		}
	}
}

func TestSMAMinSlotSizeBoundary(t *testing.T) {
	if classOf(MinSlotSize) < 0 || classOf(MinSlotSize) >= NumClasses {
		t.Fatalf("classOf(MinSlotSize) out of range: %d", classOf(MinSlotSize))
	}
	if slotLenFor(0) != MinSlotSize {
		t.Fatalf("slotLenFor(0) = %d, want MinSlotSize", slotLenFor(0))
	}
}

// free(alloc(s)) round-trips accounting to the pre-call state, for a
// sequence of alloc/free pairs; each pair here acquires a fresh block and
// hands it back, since its slot is the block's only used slot.
func TestSMAAllocFreeRoundTrip(t *testing.T) {
	e := newTestEngine(t, 16*cmn.MiB)
	before := e.sma.usedTotalSpace

	for i := 0; i < 50; i++ {
		buf, err := e.Alloc(48)
		if err != nil {
			t.Fatalf("Alloc: %v", err)
		}
		e.Free(buf, 48, SMAClassID)
	}
	if e.sma.usedTotalSpace != before {
		t.Fatalf("usedTotalSpace drifted: before=%d after=%d", before, e.sma.usedTotalSpace)
	}
	if len(e.sma.live) != 0 {
		t.Fatalf("live map not empty after round-trips: %d entries", len(e.sma.live))
	}
}

func TestClassifyDispatchBoundary(t *testing.T) {
	e := newTestEngine(t, 16*cmn.MiB)
	if id := e.Classify(MaxSMValueSize); id != SMAClassID {
		t.Fatalf("Classify(MaxSMValueSize) = %d, want SMAClassID", id)
	}
	if id := e.Classify(MaxSMValueSize + 1); id == SMAClassID {
		t.Fatalf("Classify(MaxSMValueSize+1) routed to SMA, want slab")
	}
}

// Classify(0) must return 0, the same sentinel TooLarge uses, so a
// caller's "don't call Alloc at all" check is a single comparison; Alloc
// itself is a no-op on a zero size as a defense-in-depth backstop.
func TestClassifyAndAllocZero(t *testing.T) {
	e := newTestEngine(t, 16*cmn.MiB)
	if id := e.Classify(0); id != 0 {
		t.Fatalf("Classify(0) = %d, want 0", id)
	}
	if n := e.SpaceSize(0); n != 0 {
		t.Fatalf("SpaceSize(0) = %d, want 0", n)
	}
	before := e.sma.usedTotalSpace
	buf, err := e.Alloc(0)
	if err != nil {
		t.Fatalf("Alloc(0): %v", err)
	}
	if buf != nil {
		t.Fatalf("Alloc(0) returned a non-nil buffer")
	}
	if e.sma.usedTotalSpace != before {
		t.Fatalf("Alloc(0) mutated SMA accounting: before=%d after=%d", before, e.sma.usedTotalSpace)
	}
}

func TestAllocBoundarySizes(t *testing.T) {
	e := newTestEngine(t, 16*cmn.MiB)

	buf, err := e.Alloc(MaxSMValueSize)
	if err != nil {
		t.Fatalf("Alloc(MaxSMValueSize): %v", err)
	}
	if classOf(e.sma.live[slotKey(buf)].slen) == JumboClassID {
		t.Fatalf("Alloc(MaxSMValueSize) landed in the jumbo class, want the largest non-jumbo class")
	}
	e.Free(buf, MaxSMValueSize, SMAClassID)

	id := e.slabs.classify(int64(MaxSMValueSize + 1))
	buf2, err := e.slabs.allocChunk(int64(MaxSMValueSize+1), id)
	if err != nil {
		t.Fatalf("slab alloc for MaxSMValueSize+1: %v", err)
	}
	e.slabs.freeChunk(buf2, int64(MaxSMValueSize+1), id)
}

func TestSetMemLimitRules(t *testing.T) {
	e := newTestEngine(t, 5*cmn.MiB)
	id := e.slabs.classify(900 * cmn.KiB)
	for i := 0; i < 16 && e.slabs.classes[0].rsvdSlabs == rsvdSlabsUndefined; i++ {
		if _, err := e.Alloc(900 * cmn.KiB); err != nil {
			break
		}
		_ = id
	}
	if e.slabs.classes[0].rsvdSlabs == rsvdSlabsUndefined {
		t.Skip("reservation never bootstrapped under this size/limit combination")
	}

	if err := e.SetMemLimit(e.arena.memMalloced); err == nil {
		t.Fatalf("SetMemLimit(mem_malloced) should fail with BadValue")
	}
	if err := e.SetMemLimit(e.arena.memMalloced * 2); err != nil {
		t.Fatalf("SetMemLimit(mem_malloced*2): %v", err)
	}
	if e.ShortageLevel() != 0 {
		t.Fatalf("shortage_level() after headroom restored = %d, want 0", e.ShortageLevel())
	}
}
