package memsys

import "fmt"

// StatsSink receives one Emit call per statistic: Engine.Stats walks the
// SMA class summary, per-slab-class counters, and arena totals, calling
// Emit(key, value) for each rather than handing back one prebuilt struct.
type StatsSink interface {
	Emit(key string, value interface{})
}

// StatsFunc adapts a plain function to StatsSink.
type StatsFunc func(key string, value interface{})

func (f StatsFunc) Emit(key string, value interface{}) { f(key, value) }

// StatsMap collects every emitted key/value pair, for callers that want
// a queryable snapshot rather than a streaming visitor.
type StatsMap map[string]interface{}

func (m StatsMap) Emit(key string, value interface{}) { m[key] = value }

// Settings is a read-only snapshot of layout constants — useful for
// tests and the CLI to assert class layout without reaching into
// engine internals.
type Settings struct {
	ItemSizeMax  int64
	GrowthFactor float64
	ChunkSize    int64
	NumClasses   int // slab classes, i.e. powerLargest+1
}

// emitClassStats emits one slabClass's chunk size, chunks per page,
// reserved/total pages, used/free chunks, bytes requested, and its
// derived fragmentation ratio.
func emitClassStats(sink StatsSink, c *slabClass) {
	used := c.usedChunks()
	prefix := fmt.Sprintf("slab.%d.", c.id)
	sink.Emit(prefix+"size", c.size)
	sink.Emit(prefix+"perslab", c.perslab)
	sink.Emit(prefix+"slabs", c.slabs)
	sink.Emit(prefix+"rsvd_slabs", c.rsvdSlabs) // rsvdSlabsUndefined (-1) if never bootstrapped
	sink.Emit(prefix+"used_chunks", used)
	sink.Emit(prefix+"free_slots", int64(len(c.slots)))
	sink.Emit(prefix+"requested", c.requested)
	sink.Emit(prefix+"page_bytes", c.slabs*c.size*c.perslab)

	var fragRatio float64
	if used > 0 {
		fragRatio = 1 - float64(c.requested)/float64(used*c.size)
	}
	sink.Emit(prefix+"frag_ratio", fragRatio)
}

// emitSMAStats emits the small-object allocator's class summary.
func emitSMAStats(sink StatsSink, s *sma, blocks int64) {
	sink.Emit("sma.blocks", blocks)
	sink.Emit("sma.used_total_space", s.usedTotalSpace)
	sink.Emit("sma.free_small_space", s.freeSmallSpace)
	sink.Emit("sma.free_avail_space", s.freeAvailSpace)
	sink.Emit("sma.requested_total", s.requestedTotal)
	sink.Emit("sma.used_minid", s.usedMinID)
	sink.Emit("sma.used_maxid", s.usedMaxID)
	sink.Emit("sma.free_minid", s.freeMinID)
	sink.Emit("sma.free_maxid", s.freeMaxID)
}
