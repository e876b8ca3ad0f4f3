package dispatch

import (
	"fmt"
	"reflect"

	"github.com/pypads-go/pypads/wrap"
)

// receiverOf extracts the receiver argument for a dispatched call, or nil
// for shapes with none (spec §3 Call record: "receiver-or-null"). For
// wrap.Method and wrap.Descriptor shapes the receiver is args[0] by
// convention (the Wrapping Engine always builds method dispatchers with
// the receiver as the first reflected argument, mirroring how a Go method
// value's underlying func looks once obtained via reflect.Value.Method or
// a manually bound closure).
func receiverOf(shape wrap.CallShape, args []reflect.Value) any {
	switch shape {
	case wrap.Method, wrap.Descriptor:
		if len(args) > 0 {
			return args[0].Interface()
		}
	}
	return nil
}

// receiverKey renders a receiver into a stable string for the duplicate-
// hook guard's per-receiver bookkeeping. Pointer receivers key on their
// address; everything else falls back to a %v rendering, which is only as
// precise as Go's default formatting — two distinct non-pointer receivers
// that format identically are treated as the same receiver. Mapping
// algorithms overwhelmingly wrap methods on pointer receivers, so this is
// the uncommon case, not the load-bearing one.
func receiverKey(v any) string {
	if v == nil {
		return "nil"
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr && !rv.IsNil() {
		return fmt.Sprintf("ptr:%v", rv.Pointer())
	}
	return fmt.Sprintf("val:%v", v)
}
