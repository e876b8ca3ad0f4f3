// Package wrap implements the Wrapping Engine (spec §4.5, C5): it produces
// dispatcher callables for targets of each supported call shape and
// preserves the original under a deterministic shadow key.
//
// Go has no duck-typed attribute rewriting, so wrapping operates over an
// explicit, addressable "slot" — a settable reflect.Value of func kind,
// typically obtained from a pointer to a package-level function variable
// or a struct field holding a func value (spec §9 Design Note: "a registry
// of interposers plus a code-generation step... for known targets").
package wrap

// CallShape tags the calling convention of a wrapped target, replacing
// Python's runtime duck-typing of "function vs method vs classmethod vs
// descriptor" with an explicit variant the Wrapping Engine dispatches on
// (spec §9 Design Note).
type CallShape int

const (
	// Free is a bare function value with no receiver (spec §4.5 "module
	// function").
	Free CallShape = iota
	// Method is an instance method value, called with a receiver as its
	// first argument at the reflect level (spec §4.5 "plain method").
	Method
	// Class marks a constructor-shaped target — the class/type itself is
	// recorded as wrapped (spec §4.5 "constructor").
	Class
	// Static is a function logically scoped to a type but taking no
	// receiver (spec §4.5 "staticmethod").
	Static
	// Descriptor is a receiver-bound wrapper installed after a
	// library-specific descriptor resolves (spec §4.5 "attribute-guarded
	// descriptor"), e.g. an interface method satisfied via an adapter.
	Descriptor
)

// String renders the shape name for diagnostics and telemetry attributes.
func (s CallShape) String() string {
	switch s {
	case Free:
		return "free"
	case Method:
		return "method"
	case Class:
		return "class"
	case Static:
		return "static"
	case Descriptor:
		return "descriptor"
	default:
		return "unknown"
	}
}
