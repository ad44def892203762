// Package debug provides cheap assertions and runtime-toggleable trace
// logging for internal invariants. Enabled is false unless MEMD_DEBUG is
// set in the environment; callers (or an init hook in a binary's main)
// may also flip it on.
package debug

import (
	"fmt"
	"os"
)

// Enabled gates the trace lines written by Infof, which are too costly
// to emit on every call in production. Assert itself
// always panics regardless of Enabled — it is reserved for invariants
// whose violation means a bug, not for optional extra verification.
var Enabled = os.Getenv("MEMD_DEBUG") != ""

// Assert panics with msg if cond is false. Internal invariant violations
// are bugs and are never recovered inside the allocator.
func Assert(cond bool, msg ...interface{}) {
	if !cond {
		panic(fmt.Sprint(append([]interface{}{"assertion failed: "}, msg...)...))
	}
}

func Assertf(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(fmt.Sprintf("assertion failed: "+format, args...))
	}
}

// Infof logs only when Enabled, for hot-path trace statements that
// should cost nothing in production.
func Infof(format string, args ...interface{}) {
	if Enabled {
		fmt.Fprintf(os.Stderr, "[debug] "+format+"\n", args...)
	}
}
