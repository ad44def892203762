package memsys

import (
	"github.com/ais-cache/memd/3rdparty/glog"
	"github.com/ais-cache/memd/cmn"
	"github.com/ais-cache/memd/cmn/debug"
)

// slabClass is one per-size-class page list: intra-page bump pointer plus
// an explicit LIFO free list.
type slabClass struct {
	id      int
	size    int64 // chunk size, 8-byte aligned
	perslab int64 // chunks per slab page

	slabs     int64 // pages allocated
	rsvdSlabs int64 // reservation target; -1 == undefined (class 0 only, until first pressure event)

	endPagePtr  []byte // bump cursor into the most recently allocated page
	endPageFree int64  // unhanded chunks remaining in endPagePtr

	slots    [][]byte // explicit free-list stack (LIFO)
	slabList [][]byte // page base pointers

	requested int64 // running sum of user-requested (unrounded) bytes
}

const rsvdSlabsUndefined = -1

func newSlabClass(id int, size, perslab int64) *slabClass {
	return &slabClass{id: id, size: size, perslab: perslab, rsvdSlabs: rsvdSlabsUndefined}
}

// usedChunks satisfies the invariant used_chunks = slabs*perslab - |slots| - end_page_free.
func (c *slabClass) usedChunks() int64 {
	return c.slabs*c.perslab - int64(len(c.slots)) - c.endPageFree
}

// slabAllocator owns every slabClass plus the arena they grow from.
type slabAllocator struct {
	arena        *arena
	classes      []*slabClass // index 0..powerLargest
	powerLargest int
	pageSize     int64 // == itemSizeMax

	// onBootstrap fires each time growSlab defines class 0's rsvdSlabs
	// (the first time, and again after a resetReservation), regardless of
	// the current shortage level.
	onBootstrap EvictionNotifier
}

func newSlabAllocator(a *arena, itemSizeMax int64, growthFactor float64, chunkSize int64) *slabAllocator {
	sa := &slabAllocator{arena: a, pageSize: itemSizeMax}

	// Class 0 is reserved for SMA blocks: one BlockSize chunk each, as
	// many per page as fit in itemSizeMax.
	sa.classes = append(sa.classes, newSlabClass(0, BlockSize, itemSizeMax/BlockSize))

	// rsvdSlabs is only ever defined for class 0; every other class
	// keeps rsvdSlabsUndefined for its whole lifetime, so growSlab's
	// underReservation escape hatch never applies to them.
	size := chunkSize
	id := powerSmallest
	for size <= itemSizeMax/int64(growthFactor) {
		size = cmn.AlignUp(size)
		sa.classes = append(sa.classes, newSlabClass(id, size, itemSizeMax/size))
		size = int64(float64(size) * growthFactor)
		id++
	}
	// final class is always exactly itemSizeMax, one chunk per slab.
	sa.classes = append(sa.classes, newSlabClass(id, itemSizeMax, 1))
	sa.powerLargest = id
	return sa
}

// classify returns the smallest class id with class.size >= size, or 0 if
// size exceeds the largest class.
func (sa *slabAllocator) classify(size int64) int {
	if size == 0 {
		return 0
	}
	for id := powerSmallest; id <= sa.powerLargest; id++ {
		if sa.classes[id].size >= size {
			return id
		}
	}
	return 0
}

// allocChunk pops from the free-list stack, then the bump cursor, growing
// the class first if both are empty.
func (sa *slabAllocator) allocChunk(size int64, id int) ([]byte, error) {
	debug.Assert(id >= 0 && id <= sa.powerLargest, "slab class id out of range")
	c := sa.classes[id]

	if len(c.slots) == 0 && c.endPagePtr == nil {
		if !sa.growSlab(id) {
			reason := sa.lastRefusalReason(id)
			glog.Errorf("memsys: class %d refused growth (%s)", id, reason)
			return nil, cmn.NewOutOfMemory(id, reason)
		}
	}
	var chunk []byte
	if n := len(c.slots); n > 0 {
		chunk = c.slots[n-1]
		c.slots = c.slots[:n-1]
	} else {
		debug.Assert(c.endPagePtr != nil, "bump cursor must be live after growSlab")
		chunk = c.endPagePtr[:c.size]
		c.endPageFree--
		if c.endPageFree != 0 {
			c.endPagePtr = c.endPagePtr[c.size:]
		} else {
			c.endPagePtr = nil
		}
	}
	c.requested += size
	return chunk[:size:c.size], nil
}

func (sa *slabAllocator) lastRefusalReason(id int) string {
	c := sa.classes[id]
	if sa.arena.memMalloced+sa.pageSizeOf(c) > sa.arena.memLimit {
		return "ceiling"
	}
	return "system"
}

func (sa *slabAllocator) pageSizeOf(c *slabClass) int64 { return c.size * c.perslab }

// freeChunk returns a chunk to its class's free-list stack.
func (sa *slabAllocator) freeChunk(chunk []byte, size int64, id int) {
	c := sa.classes[id]
	c.slots = append(c.slots, chunk[:0:c.size])
	c.requested -= size
}

// growSlab is admitted when either the ceiling allows it, or the class is
// still under its reservation target.
func (sa *slabAllocator) growSlab(id int) bool {
	c := sa.classes[id]
	pageLen := sa.pageSizeOf(c)

	withinCeiling := sa.arena.memMalloced+pageLen <= sa.arena.memLimit
	underReservation := c.rsvdSlabs != rsvdSlabsUndefined && c.slabs < c.rsvdSlabs
	if !withinCeiling && !underReservation {
		return false
	}
	page := sa.arena.allocate(pageLen)
	if page == nil {
		return false
	}
	c.slabList = append(c.slabList, page)
	c.endPagePtr = page
	c.endPageFree = c.perslab
	c.slabs++
	sa.arena.memMalloced += pageLen

	sa.maybeBootstrapReservation()
	return true
}

// maybeBootstrapReservation locks in how far class 0 may grow under
// pressure: the first time any class's growth pushes the arena past the
// reserved threshold, and class 0's rsvdSlabs is still undefined, this
// sets it.
func (sa *slabAllocator) maybeBootstrapReservation() {
	if !sa.arena.shortOfHeadroom() {
		return
	}
	class0 := sa.classes[0]
	if class0.rsvdSlabs != rsvdSlabsUndefined {
		return
	}
	additional := cmn.MaxI64(MinReservedSlabs, (class0.slabs*ReservedSlabRatio)/100)
	class0.rsvdSlabs = class0.slabs + additional
	if glog.FastV(2, glog.SmoduleSlab) {
		glog.Infof("slab class 0: reservation bootstrapped at %d slabs (rsvd=%d)", class0.slabs, class0.rsvdSlabs)
	}
	notify(sa.onBootstrap)
}

// resetReservation undoes the bootstrap, e.g. after a memory limit change.
func (sa *slabAllocator) resetReservation() {
	sa.classes[0].rsvdSlabs = rsvdSlabsUndefined
}
