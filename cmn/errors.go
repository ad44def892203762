package cmn

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel error kinds of the allocator (see spec §7). The façade returns
// ErrOutOfMemory and ErrBadValue; an oversize request is signaled by
// Classify returning 0, not by ErrTooLarge. Callers match on these with
// errors.Is; internal invariant
// violations are not part of this set — they panic instead (see
// cmn/debug.Assert).
var (
	ErrOutOfMemory = errors.New("out of memory")
	ErrBadValue    = errors.New("bad value")
	ErrTooLarge    = errors.New("item too large")
)

// OutOfMemoryError carries the reason slab growth was refused, in
// addition to satisfying errors.Is(err, ErrOutOfMemory).
type OutOfMemoryError struct {
	Reason string // "ceiling" | "system"
	Class  int
}

func (e *OutOfMemoryError) Error() string {
	return fmt.Sprintf("out of memory: class %d refused (%s)", e.Class, e.Reason)
}

func (e *OutOfMemoryError) Unwrap() error { return ErrOutOfMemory }

func NewOutOfMemory(class int, reason string) error {
	return &OutOfMemoryError{Reason: reason, Class: class}
}

func NewBadValue(format string, args ...interface{}) error {
	return errors.Wrapf(ErrBadValue, format, args...)
}

func NewTooLarge(size int) error {
	return errors.Wrapf(ErrTooLarge, "size %d exceeds the maximum item size", size)
}
