package memsys

import (
	"github.com/ais-cache/memd/3rdparty/glog"
	"github.com/ais-cache/memd/cmn"
	"github.com/ais-cache/memd/cmn/debug"
)

// classBucket is one entry of free_slist / used_slist: a doubly-linked
// in-place list (free lists only; used_slist is stats-only) plus its
// aggregate byte count.
type classBucket struct {
	head  slotRef
	count int64
	space int64
}

// sma is the small-object allocator: variable-length slots carved out of
// BlockSize blocks that are themselves slab-class-0 chunks.
type sma struct {
	bm *blockManager

	free [NumClasses]classBucket
	used [NumClasses]classBucket // head unused; count/space only

	usedMinID, usedMaxID int // inclusive populated range, -1 when empty
	freeMinID, freeMaxID int // same, excluding the jumbo class (always available)

	usedTotalSpace int64
	freeSmallSpace int64 // free bytes in classes < usedMaxID (unreachable)
	freeAvailSpace int64 // free bytes in classes >= usedMaxID, plus jumbo
	requestedTotal int64

	// live maps a caller-visible payload's first byte to the slot that
	// backs it. Because a used slot's header aliases that very payload
	// (see consts.go), Free cannot trust bytes inside the slot to
	// recover its own boundaries once the caller may have written to
	// it — this table stands in for raw pointer arithmetic, giving Free
	// a checked way to recover a slot's bounds from its payload slice.
	live map[*byte]allocInfo
}

type allocInfo struct {
	blockID uint32
	offset  uint16
	slen    uint32
	class   int
}

func newSMA(bm *blockManager) *sma {
	s := &sma{bm: bm, usedMinID: -1, usedMaxID: -1, freeMinID: -1, freeMaxID: -1, live: make(map[*byte]allocInfo)}
	return s
}

// classOf buckets a slot's full length into one of NumClasses classes:
// 8-byte-granular below 8192, a single jumbo class above.
func classOf(length uint32) int {
	if length < 8192 {
		return int(length / 8)
	}
	return JumboClassID
}

// slotLenFor computes the full slot length backing a size-byte
// allocation: size rounded up plus the 8-byte tail. The header is not
// additional overhead — it aliases the front of the payload itself.
func slotLenFor(size int) uint32 {
	return uint32(cmn.MaxI64(MinSlotSize, cmn.AlignUp(int64(size)+slotTailSize)))
}

func (s *sma) view(r slotRef) blockView { return viewOf(s.bm.get(r.blockID)) }

// alloc runs the free-slot search policy: try the target class, else
// scan upward to 2x the target class through free_maxid, else fall back
// to the single largest free class, else the jumbo class. When none of
// those has room, a new block is requested from slab class 0 and
// formatted as one whole-body free slot, then the search is retried.
func (s *sma) alloc(size int) ([]byte, error) {
	slen := slotLenFor(size)
	target := classOf(slen)

	ref, committed, ok := s.popFit(target, slen)
	if !ok {
		if _, err := s.growBlock(); err != nil {
			return nil, err
		}
		ref, committed, ok = s.popFit(target, slen)
		debug.Assert(ok, "freshly grown block must satisfy any slot request up to BlockSize")
	}

	v := s.view(ref)
	v.writeHeader(ref.offset, statusUsed, committed)
	v.writeTail(ref.offset, committed, true)

	class := classOf(committed)
	s.usedAdd(class)
	s.used[class].space += int64(committed)
	s.usedTotalSpace += int64(committed)
	s.requestedTotal += int64(size)

	cap8 := uint16(committed) - slotTailSize
	payload := v.raw[ref.offset : ref.offset+uint16(size) : ref.offset+cap8]
	info := allocInfo{blockID: ref.blockID, offset: ref.offset, slen: committed, class: class}
	s.live[slotKey(payload)] = info
	return payload, nil
}

// slotKey returns a stable identity for the slice a slot backs, even when
// size is 0 (an empty slice cannot be indexed, but MinSlotSize guarantees
// cap is always at least 1, so re-slicing within cap is always safe).
func slotKey(buf []byte) *byte { return &buf[:1][0] }

// popFit removes one free slot able to host slen bytes per pickClass's
// search order. If the leftover residual is too small to stand on its own
// as a free slot (< MinSlotSize — possible only via the "largest
// available" and jumbo fallback steps of the search order, never the
// exact-class or 2x-target steps, since a class's slot length is exactly
// 8x its id), it is absorbed into the committed slot instead of being
// split off, so the allocator never creates an invalid free slot.
func (s *sma) popFit(target int, slen uint32) (ref slotRef, committed uint32, ok bool) {
	id := s.pickClass(target)
	if id < 0 {
		return nilRef, 0, false
	}
	ref = s.free[id].head
	full := s.view(ref).headerLength(ref.offset)
	s.unlinkFree(id, ref)

	residual := full - slen
	if residual < MinSlotSize {
		return ref, full, true
	}
	s.linkFree(slotRef{blockID: ref.blockID, offset: ref.offset + uint16(slen)}, residual)
	return ref, slen, true
}

// pickClass resolves the class-search order into a single free class id,
// or -1 if nothing can serve.
func (s *sma) pickClass(target int) int {
	if s.free[target].count > 0 {
		return target
	}
	hi := s.freeMaxID
	lo := 2 * target
	if hi >= 0 && lo <= hi {
		for id := lo; id <= hi; id++ {
			if s.free[id].count > 0 {
				return id
			}
		}
	}
	if hi >= target && hi >= 0 && s.free[hi].count > 0 {
		return hi
	}
	if s.free[JumboClassID].count > 0 {
		return JumboClassID
	}
	return -1
}

// growBlock pulls one new block from slab class 0 and formats its whole
// body as a single free slot, always landing in the jumbo class.
func (s *sma) growBlock() (*smaBlock, error) {
	b, err := s.bm.alloc()
	if err != nil {
		return nil, err
	}
	if glog.FastV(2, glog.SmoduleSma) {
		glog.Infof("sma: grew block %d (%d bytes)", b.id, blockBodySize)
	}
	s.linkFree(slotRef{blockID: b.id, offset: blockHeaderSize}, blockBodySize)
	return b, nil
}

// linkFree formats raw[off:off+length] as a free slot (header, tail, and
// free-list pointers) and pushes it onto the head of free class
// classOf(length), maintaining the free_minid/free_maxid cursors and the
// small/available space split for whichever bucket it currently falls
// into.
func (s *sma) linkFree(ref slotRef, length uint32) {
	id := classOf(length)
	bucket := &s.free[id]
	v := s.view(ref)
	v.writeHeader(ref.offset, statusFree, length)
	v.writeLinks(ref.offset, nilRef, bucket.head)
	v.writeTail(ref.offset, length, false)
	if !bucket.head.isNil() {
		s.view(bucket.head).setLinkPrev(bucket.head.offset, ref)
	}
	bucket.head = ref
	bucket.count++
	bucket.space += int64(length)

	if s.isSmallClass(id) {
		s.freeSmallSpace += int64(length)
	} else {
		s.freeAvailSpace += int64(length)
	}
	if id != JumboClassID {
		if id > s.freeMaxID {
			s.freeMaxID = id
		}
		if s.freeMinID < 0 || id < s.freeMinID {
			s.freeMinID = id
		}
	}
}

func (s *sma) unlinkFree(id int, ref slotRef) {
	v := s.view(ref)
	next := v.linkNext(ref.offset)
	prev := v.linkPrev(ref.offset)
	bucket := &s.free[id]
	if bucket.head == ref {
		bucket.head = next
	} else {
		s.view(prev).setLinkNext(prev.offset, next)
	}
	if !next.isNil() {
		s.view(next).setLinkPrev(next.offset, prev)
	}
	length := v.headerLength(ref.offset)
	bucket.count--
	bucket.space -= int64(length)

	if s.isSmallClass(id) {
		s.freeSmallSpace -= int64(length)
	} else {
		s.freeAvailSpace -= int64(length)
	}
	if id != JumboClassID && bucket.count == 0 {
		if id == s.freeMaxID || id == s.freeMinID {
			s.recomputeFreeCursors()
		}
	}
}

func (s *sma) recomputeFreeCursors() {
	min, max := -1, -1
	for id := 0; id < JumboClassID; id++ {
		if s.free[id].count > 0 {
			if min < 0 {
				min = id
			}
			max = id
		}
	}
	s.freeMinID, s.freeMaxID = min, max
}

// isSmallClass reports whether free class id currently counts toward
// free_small_space (unreachable by ordinary allocation) rather than
// free_avail_space — true for non-jumbo classes strictly below
// usedMaxID, once any used slot exists.
func (s *sma) isSmallClass(id int) bool {
	if id == JumboClassID || s.usedMaxID < 0 {
		return false
	}
	return id < s.usedMaxID
}

// reclassify moves the free-space aggregate for classes [lo,hi) between
// the small/available buckets without touching individual slots — used
// when used_maxid crosses a boundary.
func (s *sma) reclassify(lo, hi int, toSmall bool) {
	if lo < 0 {
		lo = 0
	}
	if hi > JumboClassID {
		hi = JumboClassID
	}
	for id := lo; id < hi; id++ {
		amt := s.free[id].space
		if amt == 0 {
			continue
		}
		if toSmall {
			s.freeAvailSpace -= amt
			s.freeSmallSpace += amt
		} else {
			s.freeSmallSpace -= amt
			s.freeAvailSpace += amt
		}
	}
}

// usedAdd records one more used slot in class id, extending
// used_minid/used_maxid and reclassifying free space below a growing
// used_maxid on the class's first occupant.
func (s *sma) usedAdd(id int) {
	bucket := &s.used[id]
	first := bucket.count == 0
	bucket.count++
	if !first {
		return
	}
	oldMax := s.usedMaxID
	if s.usedMinID < 0 || id < s.usedMinID {
		s.usedMinID = id
	}
	if id > s.usedMaxID {
		s.usedMaxID = id
	}
	if s.usedMaxID > oldMax {
		s.reclassify(oldMax, s.usedMaxID, true)
	}
}

// usedDel removes one used slot from class id, shrinking
// used_minid/used_maxid and reclassifying free space back to available
// when used_maxid retreats.
func (s *sma) usedDel(id int) {
	bucket := &s.used[id]
	bucket.count--
	if bucket.count > 0 {
		return
	}
	oldMax := s.usedMaxID
	newMin, newMax := -1, -1
	for i := 0; i < NumClasses; i++ {
		if s.used[i].count > 0 {
			if newMin < 0 {
				newMin = i
			}
			newMax = i
		}
	}
	s.usedMinID, s.usedMaxID = newMin, newMax
	if newMax < oldMax {
		s.reclassify(newMax, oldMax, false)
	}
}

// free locates buf's owning slot via identity, merges it with any free
// left/right neighbor in the same block, and either relinks the
// (possibly coalesced) slot onto a free class or, if the merge spans the
// block's entire body, returns the block to slab class 0.
func (s *sma) free(buf []byte, size int) {
	key := slotKey(buf)
	info, ok := s.live[key]
	debug.Assert(ok, "Free called with a buffer sma did not allocate")
	delete(s.live, key)

	s.usedTotalSpace -= int64(info.slen)
	s.requestedTotal -= int64(size)

	b := s.bm.get(info.blockID)
	off, length := info.offset, info.slen

	// Left neighbor: read the tail immediately before off. Any tail
	// length ≤ slotTailSize — not strictly only 0 — marks the neighbor
	// as free.
	if off > blockHeaderSize {
		bv := viewOf(b)
		lstart, lmark := bv.tailAt(off - slotTailSize)
		if tailMarksFree(lmark) {
			llen := bv.headerLength(lstart)
			s.unlinkFree(classOf(llen), slotRef{blockID: info.blockID, offset: lstart})
			off, length = lstart, length+llen
		}
	}
	// Right neighbor: starts immediately after this (possibly
	// left-merged) slot, if this slot does not reach the block end. A
	// used neighbor's header aliases caller data, so it is recognized
	// through the live table; any other neighbor is a free slot whose
	// header status is authoritative.
	rightEnd := int(off) + int(length)
	if rightEnd+slotHeaderSize <= BlockSize {
		rightOff := uint16(rightEnd)
		bv := viewOf(b)
		if _, inUse := s.live[&b.raw[rightOff]]; !inUse && bv.headerStatus(rightOff) == statusFree {
			rlen := bv.headerLength(rightOff)
			s.unlinkFree(classOf(rlen), slotRef{blockID: info.blockID, offset: rightOff})
			length += rlen
		}
	}

	if off == blockHeaderSize && length == blockBodySize {
		s.bm.free(b)
	} else {
		s.linkFree(slotRef{blockID: info.blockID, offset: off}, length)
	}
	s.used[info.class].space -= int64(info.slen)
	s.usedDel(info.class)
}
