package memsys

import "encoding/binary"

// smaBlock is one 64KiB block carved out of a slab-class-0 chunk and handed
// to the small-object allocator. All slot metadata lives in-place inside
// raw, addressed by block-absolute byte offset (header included) rather
// than through a separate index structure — the offset of the first slot
// in a fresh block is blockHeaderSize (16).
type smaBlock struct {
	id  uint32
	raw []byte // length == BlockSize, backed by the slab-class-0 chunk

	prev, next *smaBlock // used_blist linkage
}

// slotRef names a slot by the block it lives in plus its block-absolute
// byte offset — the in-place substitute for a pointer that lets the left
// neighbor of a freed slot be found without raw pointer arithmetic or the
// unsafe package.
type slotRef struct {
	blockID uint32
	offset  uint16
}

var nilRef = slotRef{}

func (r slotRef) isNil() bool { return r.blockID == 0 && r.offset == 0 }

// blockView is a checked byte-view over one smaBlock's raw bytes.
type blockView struct{ raw []byte }

func viewOf(b *smaBlock) blockView { return blockView{raw: b.raw} }

func (v blockView) u16(off uint16) uint16       { return binary.LittleEndian.Uint16(v.raw[off:]) }
func (v blockView) putU16(off uint16, x uint16) { binary.LittleEndian.PutUint16(v.raw[off:], x) }
func (v blockView) u32(off uint16) uint32       { return binary.LittleEndian.Uint32(v.raw[off:]) }
func (v blockView) putU32(off uint16, x uint32) { binary.LittleEndian.PutUint32(v.raw[off:], x) }

// --- slot header (12 bytes, written at the slot's start offset) ---
//
// status uint32 @0   statusFree or statusUsed
// offset uint32 @4   block-absolute offset of the slot start (self-reference)
// length uint32 @8   slot length (free slots only; a used slot's header is
//                    overwritten by caller data the moment it writes its
//                    own first bytes, so nothing here is trusted once a
//                    slot is marked used — see sma.go)

func (v blockView) writeHeader(off uint16, status uint32, length uint32) {
	v.putU32(off, status)
	v.putU32(off+4, uint32(off))
	v.putU32(off+8, length)
}

func (v blockView) headerStatus(off uint16) uint32 { return v.u32(off) }
func (v blockView) headerLength(off uint16) uint32 { return v.u32(off + 8) }

// --- free-slot link pair (12 bytes, immediately after the header) ---
//
// prevBlockID uint32 @0
// prevOffset  uint16 @4
// nextBlockID uint32 @6
// nextOffset  uint16 @10

func (v blockView) writeLinks(off uint16, prev, next slotRef) {
	base := off + slotHeaderSize
	v.putU32(base, prev.blockID)
	v.putU16(base+4, prev.offset)
	v.putU32(base+6, next.blockID)
	v.putU16(base+10, next.offset)
}

func (v blockView) linkPrev(off uint16) slotRef {
	base := off + slotHeaderSize
	return slotRef{blockID: v.u32(base), offset: v.u16(base + 4)}
}
func (v blockView) linkNext(off uint16) slotRef {
	base := off + slotHeaderSize
	return slotRef{blockID: v.u32(base + 6), offset: v.u16(base + 10)}
}
func (v blockView) setLinkPrev(off uint16, r slotRef) {
	base := off + slotHeaderSize
	v.putU32(base, r.blockID)
	v.putU16(base+4, r.offset)
}
func (v blockView) setLinkNext(off uint16, r slotRef) {
	base := off + slotHeaderSize
	v.putU32(base+6, r.blockID)
	v.putU16(base+10, r.offset)
}

// --- tail (8 bytes, the slot's last 8 bytes) ---
//
// offset uint32 @0  block-absolute offset of the slot start — lets a
//                   right-hand neighbor locate this slot's header in O(1)
//                   when it is freed
// length uint32 @4  0 (or anything ≤8) marks free; otherwise the slot's
//                   full length

func tailOffsetOf(slotOff uint16, slotLen uint32) uint16 {
	return slotOff + uint16(slotLen) - slotTailSize
}

func (v blockView) writeTail(slotOff uint16, slotLen uint32, used bool) {
	tailOff := tailOffsetOf(slotOff, slotLen)
	v.putU32(tailOff, uint32(slotOff))
	if used {
		v.putU32(tailOff+4, slotLen)
	} else {
		v.putU32(tailOff+4, 0)
	}
}

func (v blockView) tailAt(tailOff uint16) (slotOff uint16, length uint32) {
	return uint16(v.u32(tailOff)), v.u32(tailOff + 4)
}

// tailMarksFree treats any value ≤ slotTailSize as the free marker,
// rather than strictly only 0.
func tailMarksFree(length uint32) bool { return length <= slotTailSize }
