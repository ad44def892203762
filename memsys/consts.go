package memsys

import "github.com/ais-cache/memd/cmn"

// Bit-exact layout and sizing constants shared across the allocator.
const (
	// BlockSize is the size of one SMA block, carved from a slab-class-0
	// chunk.
	BlockSize = 64 * cmn.KiB

	// MinSlotSize is the smallest slot the SMA will ever hand out.
	MinSlotSize = 32

	// SlotAlign is the alignment every slot length and block offset must
	// honor; equal to cmn.AlignBytes but named locally for readability in
	// this package's arithmetic.
	SlotAlign = cmn.AlignBytes

	// NumClasses is the number of SMA size classes: 0..1023 cover
	// 8-byte-granular lengths from 0 to 8191, class 1024 is jumbo.
	NumClasses   = 1025
	JumboClassID = NumClasses - 1

	// ReservedSlabRatio and MinReservedSlabs parametrize the reservation
	// bootstrap and the headroom computation.
	ReservedSlabRatio = 4 // percent
	MinReservedSlabs  = 4

	// MaxSpaceShortageLevel is the ceiling of shortage_level()'s range.
	MaxSpaceShortageLevel = 100

	// SMAClassID is the sentinel "class id" routed to by Classify for
	// sizes that belong to the small-object allocator rather than to a
	// slab class.
	SMAClassID = -1

	// powerSmallest is always 1: class 0 is reserved for SMA blocks.
	powerSmallest = 1
)

// In-block layout (see sma_block.go). Offsets are absolute from the start
// of the block (header included); the first slot of a fresh block sits
// at offset 16.
const (
	blockHeaderSize = 16 // left unwritten; the used-block list linkage lives in smaBlock.prev/next
	blockBodySize   = BlockSize - blockHeaderSize

	// slotHeaderSize is the status/offset/length triple written at every
	// slot's start. For a used slot, it *aliases* the first bytes of the
	// buffer returned to the caller — slotLenFor reserves only
	// slotTailSize bytes of overhead beyond the requested size, exactly
	// mirroring the original allocator, which hands back the slot-start
	// pointer itself. See sma.go for how Free recovers slot boundaries
	// despite the header being fair game for caller writes.
	slotHeaderSize = 12

	// slotLinkSize is the free-list prev/next reference pair, written
	// only in free slots, immediately after the header (free slots have
	// no live caller data to preserve there).
	slotLinkSize = 12

	slotTailSize = 8
)

// MaxSMValueSize is the dispatch threshold: sizes at or below it route
// to the SMA, larger sizes route to the slab path. It is exactly the
// largest user size whose slot still lands in the largest non-jumbo
// class ((JumboClassID-1)*SlotAlign - slotTailSize == 8176), so
// MaxSMValueSize+1 always pushes slotLenFor into the jumbo class, which
// the dispatcher deliberately never routes to.
const MaxSMValueSize = (JumboClassID-1)*SlotAlign - slotTailSize

// Slot header status sentinel. Free slots always carry statusFree
// (0x00000000) exactly. statusUsed is a non-zero, unlikely-to-collide
// marker rather than a plain 1, since a used slot's status word aliases
// caller data and could in principle be overwritten to anything.
const (
	statusFree uint32 = 0
	statusUsed uint32 = 0xFFFFFFFF
)
