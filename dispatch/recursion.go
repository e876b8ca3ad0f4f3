package dispatch

import "github.com/pypads-go/pypads/config"

// shouldSkipHooks implements spec §4.7 step 3: given the frames already on
// the stack beneath the call being entered (deeper == earlier pushed) and
// the depth just reached by pushing it, decide whether hooks should be
// bypassed and the target invoked directly.
//
// RecursionDepth is interpreted as in config.Default(): -1 disables the
// depth check entirely; any value >= 0 (including 0, exercised by the
// "hooks never re-enter a target they are already inside" scenario) is an
// active bound. A configured depth of N lets hooks run on up to N+1 nested
// dispatches; the depth counts every wrapped call on the goroutine's stack,
// not only calls to the same target.
func shouldSkipHooks(cfg config.Configuration, beneath []Frame, depthReached int, entering Frame) bool {
	if cfg.RecursionDepth >= 0 && depthReached > cfg.RecursionDepth+1 {
		return true
	}

	if cfg.RecursionIdentity {
		for _, f := range beneath {
			if !f.sameTarget(entering.Container, entering.Target) {
				continue
			}
			if receiverIdentical(f.Receiver, entering.Receiver) {
				return true
			}
		}
	}

	return false
}

// receiverIdentical compares two receivers for the recursion_identity
// check. Comparable values (pointers, interfaces wrapping comparable
// types) compare with ==; for non-comparable receivers (e.g. a struct
// holding a slice) identity cannot be established and the check
// conservatively reports no match, matching the fail-open failure policy
// the rest of the dispatcher uses for ambiguous cases.
func receiverIdentical(a, b any) (identical bool) {
	if a == nil || b == nil {
		return a == b
	}
	defer func() {
		if recover() != nil {
			identical = false
		}
	}()
	return a == b
}
