package memsys

import "github.com/ais-cache/memd/cmn/debug"

// blockManager owns every smaBlock currently alive, each one a BlockSize
// chunk carved out of slab class 0. It is the sole place that talks to
// the slab allocator on the SMA's behalf, and the sole place that polls
// the pressure hook (notify.go) after a new block's arrival — the hook
// itself decides whether the shortage level actually warrants waking
// eviction.
type blockManager struct {
	slabs *slabAllocator

	blocks      map[uint32]*smaBlock
	nextBlockID uint32

	// usedHead is the head of a doubly-linked list of blocks that hold at
	// least one used slot; a block leaves this list the moment its last
	// slot is freed (see sma.go), at which point it is also handed back
	// to slab class 0.
	usedHead *smaBlock

	onPressure func() // polled after every successful block alloc; see notify.go
}

func newBlockManager(sa *slabAllocator) *blockManager {
	return &blockManager{slabs: sa, blocks: make(map[uint32]*smaBlock)}
}

func (bm *blockManager) get(id uint32) *smaBlock {
	b, ok := bm.blocks[id]
	debugAssertBlockFound(ok, id)
	return b
}

func debugAssertBlockFound(ok bool, id uint32) {
	debug.Assertf(ok, "memsys: unknown block id %d referenced by a slot ref", id)
}

// alloc obtains one fresh block from slab class 0, registers it, links it
// into usedHead, and polls the pressure hook. The returned block's body is
// NOT yet formatted as a free slot — the caller (sma.go) does that.
func (bm *blockManager) alloc() (*smaBlock, error) {
	chunk, err := bm.slabs.allocChunk(BlockSize, 0)
	if err != nil {
		return nil, err
	}
	bm.nextBlockID++
	b := &smaBlock{id: bm.nextBlockID, raw: chunk}
	bm.blocks[b.id] = b
	bm.linkUsed(b)
	if debug.Enabled {
		debug.Infof("sma block %d granted, %d blocks live", b.id, bm.count())
	}
	if bm.onPressure != nil {
		bm.onPressure()
	}
	return b, nil
}

// free returns a block, now fully free, to slab class 0 and forgets it.
func (bm *blockManager) free(b *smaBlock) {
	bm.unlinkUsed(b)
	delete(bm.blocks, b.id)
	bm.slabs.freeChunk(b.raw, BlockSize, 0)
	if debug.Enabled {
		debug.Infof("sma block %d released, %d blocks live", b.id, bm.count())
	}
}

func (bm *blockManager) linkUsed(b *smaBlock) {
	b.next = bm.usedHead
	if bm.usedHead != nil {
		bm.usedHead.prev = b
	}
	b.prev = nil
	bm.usedHead = b
}

func (bm *blockManager) unlinkUsed(b *smaBlock) {
	if b.prev != nil {
		b.prev.next = b.next
	} else if bm.usedHead == b {
		bm.usedHead = b.next
	}
	if b.next != nil {
		b.next.prev = b.prev
	}
	b.prev, b.next = nil, nil
}

func (bm *blockManager) count() int64 { return int64(len(bm.blocks)) }

// totalBytes reports the aggregate body capacity of every live block.
func (bm *blockManager) totalBytes() int64 {
	return bm.count() * int64(blockBodySize)
}
