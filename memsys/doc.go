// Package memsys implements the memory-allocator core of an in-memory
// cache engine: a powers-of-N slab allocator for large items (see
// slab.go, arena.go) and a variable-slot small-object allocator layered
// on top of slab class 0 for small items and collection nodes (see
// sma.go, sma_block.go, block_manager.go). A pressure oracle (pressure.go)
// derives an admission-pressure signal from both subsystems' state, and
// a single façade (engine.go) dispatches, locks, and reports stats.
//
// A typical sequence:
//
//	e, err := memsys.NewEngine(memsys.Config{MemLimit: 64 * cmn.MiB})
//	buf, err := e.Alloc(120)
//	...
//	e.Free(buf, 120, e.Classify(120))
package memsys
