package memsys

import (
	"sync"

	"github.com/google/uuid"

	"github.com/ais-cache/memd/3rdparty/atomic"
	"github.com/ais-cache/memd/3rdparty/glog"
	"github.com/ais-cache/memd/cmn"
	"github.com/ais-cache/memd/cmn/debug"
)

// Engine is the allocator's public façade: one mutex guarding one arena,
// one set of slab classes, and one SMA. Multiple Engines may coexist,
// each independent.
type Engine struct {
	// ID gives every instance a stable identity for stats/logs, generated
	// rather than hard-coded, since Engine is not a singleton.
	ID string

	mu sync.Mutex

	arena *arena
	slabs *slabAllocator
	sma   *sma
	bm    *blockManager

	notifier EvictionNotifier

	cfg Config

	// shortageCache lets ShortageLevel be read without the mutex by
	// callers that only need an approximate, recently-computed value
	// (e.g. a metrics scraper); Alloc, Free and a successful SetMemLimit
	// refresh it before releasing mu.
	shortageCache atomic.Int32
}

// NewEngine builds one allocator instance. Config zero values fall back
// to defaults, or to the T_MEMD_* environment hooks for the test-hook
// fields.
func NewEngine(cfg Config) (*Engine, error) {
	cfg.env()
	cfg.setDefaults()

	a, err := newArena(cfg.MemLimit, cfg.ItemSizeMax, cfg.Prealloc)
	if err != nil {
		return nil, err
	}
	a.memMalloced = cfg.InitialMalloc

	sa := newSlabAllocator(a, cfg.ItemSizeMax, cfg.GrowthFactor, cfg.ChunkSize)
	bm := newBlockManager(sa)
	s := newSMA(bm)

	e := &Engine{
		ID:    uuid.New().String(),
		arena: a,
		slabs: sa,
		sma:   s,
		bm:    bm,
		cfg:   cfg,
	}
	e.notifier = cfg.Notifier
	sa.onBootstrap = e.notifier
	bm.onPressure = func() {
		if e.shortageLevelLocked() > 0 {
			notify(e.notifier)
		}
	}

	if !cfg.SkipInitialSlabsAlloc {
		for id := powerSmallest; id <= sa.powerLargest; id++ {
			if !sa.growSlab(id) {
				glog.Warningf("memsys: engine %s: initial page grant refused for class %d", e.ID, id)
				break
			}
		}
	}
	if glog.FastV(2, glog.SmoduleMemsys) {
		glog.Infof("memsys: engine %s initialized, mem_limit=%d item_size_max=%d", e.ID, cfg.MemLimit, cfg.ItemSizeMax)
	}
	return e, nil
}

// Classify returns 0 for a zero size (no allocation should be attempted),
// the slab class id for slab-routed sizes, or SMAClassID for sizes
// dispatched to the small-object allocator, or 0 when size exceeds every
// class.
func (e *Engine) Classify(size int) int {
	if size == 0 {
		return 0
	}
	if size <= MaxSMValueSize {
		return SMAClassID
	}
	return e.slabs.classify(int64(size))
}

// SpaceSize returns the rounded byte footprint size would actually
// occupy once allocated, or 0 if size is zero or too large for any class.
func (e *Engine) SpaceSize(size int) int {
	if size == 0 {
		return 0
	}
	if size <= MaxSMValueSize {
		return int(slotLenFor(size))
	}
	id := e.slabs.classify(int64(size))
	if id == 0 {
		return 0
	}
	return int(e.slabs.classes[id].size)
}

// Alloc dispatches by size: MaxSMValueSize and below go to the SMA, the
// rest to the slab path. alloc(0) is a no-op, matching Classify(0) == 0.
// The class id to later pass to Free/AdjustRequested is Classify(size) —
// callers are expected to have already called Classify to decide whether
// to call Alloc at all (TooLarge is signaled by Classify returning 0 for
// a nonzero size, not by Alloc).
func (e *Engine) Alloc(size int) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var (
		buf []byte
		err error
	)
	if size <= MaxSMValueSize {
		buf, err = e.sma.alloc(size)
	} else {
		id := e.slabs.classify(int64(size))
		debug.Assert(id != 0, "Alloc called with a size TooLarge already should have rejected")
		buf, err = e.slabs.allocChunk(int64(size), id)
	}
	e.refreshShortageLocked()
	return buf, err
}

// Free releases buf back to the allocator. id is whatever Classify(size)
// returned at alloc time (SMAClassID routes to the SMA, anything else to
// the named slab class).
func (e *Engine) Free(buf []byte, size int, id int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if id == SMAClassID {
		e.sma.free(buf, size)
	} else {
		e.slabs.freeChunk(buf, int64(size), id)
	}
	e.refreshShortageLocked()
}

// AdjustRequested updates the requested-bytes counter for id without
// moving memory, e.g. when a caller resizes a value in place.
func (e *Engine) AdjustRequested(id int, oldSize, newSize int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delta := int64(newSize - oldSize)
	if id == SMAClassID {
		e.sma.requestedTotal += delta
	} else {
		e.slabs.classes[id].requested += delta
	}
}

// SetMemLimit changes the arena's memory ceiling, subject to its
// admission rules: it is refused on a pre-allocated arena, refused if
// the new limit would sit below mem_malloced*1.1, and, while class 0's
// reservation is defined, refused if lowering it would leave less
// headroom than the new limit's reserved threshold. On success it clears
// any existing reservation bootstrap.
func (e *Engine) SetMemLimit(newLimit int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.arena.preallocated {
		return cmn.NewBadValue("set_memlimit: arena is pre-allocated")
	}
	if newLimit < (e.arena.memMalloced*11)/10 {
		return cmn.NewBadValue("set_memlimit: new limit %d below mem_malloced*1.1 (%d)", newLimit, e.arena.memMalloced)
	}

	class0 := e.slabs.classes[0]
	if class0.rsvdSlabs != rsvdSlabsUndefined && newLimit < e.arena.memLimit {
		newReserved := cmn.MaxI64((newLimit/100)*ReservedSlabRatio, MinReservedSlabs*e.cfg.ItemSizeMax)
		if newLimit-e.arena.memMalloced < newReserved {
			return cmn.NewBadValue("set_memlimit: reduced headroom would fall below the reserved threshold")
		}
	}

	e.arena.setLimit(newLimit, e.cfg.ItemSizeMax)
	e.slabs.resetReservation()
	e.refreshShortageLocked()
	return nil
}

// ShortageLevel returns the current space-shortage score, in [0,100],
// always recomputed fresh under the lock so a caller blocking on it
// never observes a stale value.
func (e *Engine) ShortageLevel() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.shortageLevelLocked()
}

// ShortageLevelCached returns the last value computed by a mutating
// call, without taking the lock — for metrics scrapers that can
// tolerate staleness of a few operations.
func (e *Engine) ShortageLevelCached() int {
	return int(e.shortageCache.Load())
}

func (e *Engine) refreshShortageLocked() {
	e.shortageCache.Store(int32(e.shortageLevelLocked()))
}

// Stats walks the engine's bookkeeping under lock and calls sink.Emit
// once per statistic: arena totals, the shortage level, the SMA class
// summary, and every slab class's counters.
func (e *Engine) Stats(sink StatsSink) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sink.Emit("mem.limit", e.arena.memLimit)
	sink.Emit("mem.malloced", e.arena.memMalloced)
	sink.Emit("mem.reserved", e.arena.memReserved)
	sink.Emit("shortage_level", e.shortageLevelLocked())

	emitSMAStats(sink, e.sma, e.bm.count())
	for _, c := range e.slabs.classes {
		emitClassStats(sink, c)
	}
}

// Settings returns a read-only layout snapshot, useful for introspecting
// class geometry without reaching into engine internals.
func (e *Engine) Settings() Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Settings{
		ItemSizeMax:  e.cfg.ItemSizeMax,
		GrowthFactor: e.cfg.GrowthFactor,
		ChunkSize:    e.cfg.ChunkSize,
		NumClasses:   len(e.slabs.classes),
	}
}

// Reclaimable reports how many free chunks slab class id could hand back
// if asked right now, without actually freeing anything — a hint for an
// eviction collaborator deciding where to focus.
func (e *Engine) Reclaimable(id int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if id < 0 || id >= len(e.slabs.classes) {
		return 0
	}
	return len(e.slabs.classes[id].slots)
}
