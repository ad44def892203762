package memsys

import (
	"os"
	"strconv"

	"github.com/ais-cache/memd/cmn"
)

// Config drives NewEngine: every field has a zero-value-safe default
// filled in by NewEngine rather than requiring a builder.
type Config struct {
	// MemLimit is the ceiling on mem_malloced. If zero, DefaultMemLimit
	// is used.
	MemLimit int64

	// ItemSizeMax is the largest single slab-class chunk size (also the
	// SMA block's governing slab page size). If zero, DefaultItemSizeMax.
	ItemSizeMax int64

	// GrowthFactor is the per-class size multiplier slab classes grow by
	// between chunkSize and ItemSizeMax. If zero, DefaultGrowthFactor.
	GrowthFactor float64

	// ChunkSize is the smallest slab class's chunk size. If zero,
	// DefaultChunkSize.
	ChunkSize int64

	// Prealloc, when true, has the arena carve its region out of one
	// up-front allocation rather than forwarding each slab page to the
	// Go heap.
	Prealloc bool

	// Notifier is fired on every reservation bootstrap, and on an SMA
	// block allocation when the shortage level is above 0; nil is a
	// valid no-op notifier.
	Notifier EvictionNotifier

	// Test hooks mirroring the T_MEMD_INITIAL_MALLOC and T_MEMD_SLABS_ALLOC
	// environment variables — NewEngine reads the environment itself (see
	// env()) when these are left at their zero values, so tests can set
	// them directly instead of through the process environment.
	//
	// InitialMalloc pre-seeds mem_malloced, as though that many bytes
	// were already granted before any class grew.
	InitialMalloc int64

	// SkipInitialSlabsAlloc, when true, skips NewEngine's startup
	// pre-allocation of one page per slab class.
	SkipInitialSlabsAlloc bool
}

// env fills any Config field left at its zero value from the
// corresponding T_MEMD_* environment variable.
func (c *Config) env() {
	if c.InitialMalloc == 0 {
		if v := os.Getenv("T_MEMD_INITIAL_MALLOC"); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				c.InitialMalloc = n
			}
		}
	}
	if !c.SkipInitialSlabsAlloc {
		if v := os.Getenv("T_MEMD_SLABS_ALLOC"); v == "0" {
			c.SkipInitialSlabsAlloc = true
		}
	}
}

const (
	DefaultMemLimit     = 4 * cmn.GiB
	DefaultItemSizeMax  = 1 * cmn.MiB
	DefaultGrowthFactor = 1.25
	DefaultChunkSize    = 128
)

func (c *Config) setDefaults() {
	if c.MemLimit == 0 {
		c.MemLimit = DefaultMemLimit
	}
	if c.ItemSizeMax == 0 {
		c.ItemSizeMax = DefaultItemSizeMax
	}
	if c.GrowthFactor == 0 {
		c.GrowthFactor = DefaultGrowthFactor
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSize
	}
}
