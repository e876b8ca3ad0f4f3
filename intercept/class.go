package intercept

import (
	"context"
	"reflect"

	"github.com/pypads-go/pypads/wrap"
)

// Member names one settable method slot a factory offers up for wrapping,
// alongside the CallShape it should be wrapped as.
type Member struct {
	Name  string
	Shape wrap.CallShape
	Slot  reflect.Value
}

// WrapClass implements the class-granularity half of spec.md §4.6 step 2
// ("if the terminal object is a class, wrap the class"): reference names
// the class itself (e.g. "lib.a.Base"), containerID identifies it for
// shadow-key purposes, and members lists every method slot the owning
// package is willing to have wrapped. Each member is wrapped independently
// against the same class-level Algorithm; which members actually grow a
// hook chain at call time is decided later by the Hook/Event Resolver's
// selector match (spec §4.2), not here — WrapClass installs dispatchers
// unconditionally so later configuration changes take effect without
// re-wrapping.
func (i *Interceptor) WrapClass(ctx context.Context, reference, containerID string, members []Member) error {
	for _, m := range members {
		if _, _, err := i.WrapSymbol(ctx, reference, containerID, m.Name, m.Shape, m.Slot); err != nil {
			return err
		}
	}
	return nil
}
