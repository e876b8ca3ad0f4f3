package dispatch

import (
	"bytes"
	"runtime"
	"strconv"
)

// goroutineID extracts the calling goroutine's id by parsing the header
// line of runtime.Stack, Go's only handle on "which thread am I" short of
// cgo. Spec §5: "the call stack... are thread-local" — Go has no
// thread-locals, so the call stack is keyed by goroutine id instead,
// giving each goroutine the isolated stack the spec assumes a thread has.
//
// This is a well-known trick, not a supported API: goroutine ids are an
// implementation detail of the runtime. It is good enough here because the
// id only needs to be a stable key for the lifetime of one goroutine, never
// persisted or compared across processes.
func goroutineID() uint64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	buf = buf[:n]

	buf = bytes.TrimPrefix(buf, []byte("goroutine "))
	if i := bytes.IndexByte(buf, ' '); i >= 0 {
		buf = buf[:i]
	}

	id, err := strconv.ParseUint(string(buf), 10, 64)
	if err != nil {
		// Should not happen with the standard runtime.Stack header format;
		// 0 is never a real goroutine id, so frames keyed by it simply
		// never collide with a real stack.
		return 0
	}
	return id
}
