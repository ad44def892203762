package memsys

import "github.com/ais-cache/memd/cmn"

// arena is the page arena underlying every slab class: either a bump
// allocator over a single pre-allocated region, or a thin forward to the
// Go heap. It does not itself enforce memLimit — slab growth does that
// (see slab.go).
type arena struct {
	memLimit    int64
	memMalloced int64
	memReserved int64

	// bump-allocator state, populated only when preallocated
	memBase    []byte
	memCurrent int64 // offset into memBase
	memAvail   int64

	preallocated bool
}

func newArena(limit int64, itemSizeMax int64, prealloc bool) (*arena, error) {
	a := &arena{memLimit: limit}
	a.memReserved = cmn.MaxI64((limit/100)*ReservedSlabRatio, MinReservedSlabs*itemSizeMax)
	if prealloc {
		buf := make([]byte, limit)
		a.memBase = buf
		a.memCurrent = 0
		a.memAvail = limit
		a.preallocated = true
	}
	return a, nil
}

// allocate hands out size bytes, 8-byte aligned. Returns nil if the
// pre-allocated region is exhausted. Forwards to the Go heap when not
// pre-allocated.
func (a *arena) allocate(size int64) []byte {
	size = cmn.AlignUp(size)
	if !a.preallocated {
		return make([]byte, size)
	}
	if size > a.memAvail {
		return nil
	}
	buf := a.memBase[a.memCurrent : a.memCurrent+size]
	a.memCurrent += size
	a.memAvail -= size
	return buf
}

// setLimit recomputes memLimit/memReserved for a new memory limit; callers
// are responsible for the admission checks before calling this.
func (a *arena) setLimit(newLimit, itemSizeMax int64) {
	a.memLimit = newLimit
	a.memReserved = cmn.MaxI64((newLimit/100)*ReservedSlabRatio, MinReservedSlabs*itemSizeMax)
}

// shortOfHeadroom reports whether the reserved threshold has been crossed, i.e.
// mem_limit - mem_malloced < mem_reserved.
func (a *arena) shortOfHeadroom() bool {
	return a.memLimit <= a.memMalloced || (a.memLimit-a.memMalloced) < a.memReserved
}
