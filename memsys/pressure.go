package memsys

import "github.com/ais-cache/memd/cmn"

// shortageLevel computes the piecewise space-shortage score once the
// caller has already confirmed there is a reservation to measure against:
// avail and rsvd are both expressed in block-sized chunk units.
func shortageLevel(avail, rsvd int64) int {
	if rsvd <= 0 {
		return 0
	}
	if avail <= 0 {
		return MaxSpaceShortageLevel
	}
	if avail > rsvd {
		return 0
	}
	ratio := rsvd / avail
	if ratio == 1 {
		denom := rsvd / 6
		if denom == 0 {
			denom = 1
		}
		return clampLevel(int(1+(rsvd-avail)/denom), 1, 3)
	}
	return clampLevel(int(ratio)+2, 4, MaxSpaceShortageLevel)
}

func clampLevel(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// shortageLevelLocked computes the engine-wide pressure signal from live
// arena, slab-class-0, and SMA state. It must only be called with the
// engine mutex held. The result is 0 whenever the arena has not yet
// crossed its reserved threshold, or class 0's reservation has never
// been bootstrapped (see slab.go).
func (e *Engine) shortageLevelLocked() int {
	if !e.arena.shortOfHeadroom() {
		return 0
	}
	class0 := e.slabs.classes[0]
	if class0.rsvdSlabs == rsvdSlabsUndefined {
		return 0
	}
	perslab := class0.perslab
	rsvd := class0.rsvdSlabs * perslab * ReservedSlabRatio / 100
	avail := e.sma.freeAvailSpace/int64(BlockSize) +
		int64(len(class0.slots)) +
		class0.endPageFree +
		cmn.MaxI64(0, (class0.rsvdSlabs-class0.slabs)*perslab)
	return shortageLevel(avail, rsvd)
}
