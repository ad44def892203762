package memsys

// EvictionNotifier is the allocator's sole outward signal: a wake-up hook
// for the background eviction collaborator. It must be non-blocking and
// must never call back into the Engine — the allocator lock may still
// be held by the caller that triggered it.
type EvictionNotifier func()

// notify fires n if set, swallowing a nil hook so callers never need to
// check it themselves.
func notify(n EvictionNotifier) {
	if n != nil {
		n()
	}
}
