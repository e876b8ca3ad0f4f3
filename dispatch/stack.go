package dispatch

import (
	"sync"

	"github.com/pypads-go/pypads/mapping"
)

// Frame is one entry of the per-goroutine call stack (spec §4.7 step 1):
// the algorithm mapping that justified wrapping the target, the container
// and target identity, and the receiver the call was made on (nil for a
// free function).
type Frame struct {
	Mapping   *mapping.Algorithm
	Container string
	Target    string
	Receiver  any
}

// sameTarget reports whether f and other name the same wrapped symbol,
// independent of receiver — used by the recursion_identity check (spec
// §4.7 step 3) to find the "same target" deeper in the stack.
func (f Frame) sameTarget(container, target string) bool {
	return f.Container == container && f.Target == target
}

// callStacks holds one stack per goroutine, keyed by goroutine id (see
// goroutine.go). It is the Go stand-in for the thread-local call stack
// spec §4.7/§5 assumes.
type callStacks struct {
	mu    sync.Mutex
	stack map[uint64][]Frame
}

func newCallStacks() *callStacks {
	return &callStacks{stack: make(map[uint64][]Frame)}
}

// push appends f to the calling goroutine's stack and returns the depth
// after pushing (1 for a top-level call).
func (c *callStacks) push(f Frame) int {
	id := goroutineID()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stack[id] = append(c.stack[id], f)
	return len(c.stack[id])
}

// pop removes the top frame of the calling goroutine's stack.
func (c *callStacks) pop() {
	id := goroutineID()
	c.mu.Lock()
	defer c.mu.Unlock()
	frames := c.stack[id]
	if len(frames) == 0 {
		return
	}
	frames = frames[:len(frames)-1]
	if len(frames) == 0 {
		delete(c.stack, id)
	} else {
		c.stack[id] = frames
	}
}

// snapshot returns a copy of the calling goroutine's stack, excluding the
// frame most recently pushed by this call (the "current" frame), so
// recursion checks see only the frames deeper than the one being entered.
func (c *callStacks) snapshot() []Frame {
	id := goroutineID()
	c.mu.Lock()
	defer c.mu.Unlock()
	frames := c.stack[id]
	if len(frames) <= 1 {
		return nil
	}
	out := make([]Frame, len(frames)-1)
	copy(out, frames[:len(frames)-1])
	return out
}

// depth reports the calling goroutine's current stack depth.
func (c *callStacks) depth() int {
	id := goroutineID()
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.stack[id])
}
