package mapping

import "strings"

// Hook is a declared binding of an event to a set of member names on a
// library target (spec §3 GLOSSARY). Event is the string tag consumed by
// the Hook/Event Resolver; Selector is the applicability predicate.
type Hook struct {
	Event    string
	Selector Selector
}

// Algorithm is a resolved algorithm mapping (spec §3): the triple
// (reference, library, algorithm-meta, source-file, hooks). Reference is a
// dotted path "pkg/sub.Name[.Member]"; the longest prefix that resolves to
// a package identifies where wrapping is attempted (spec §4.6).
type Algorithm struct {
	// Reference is the normalized dotted path to the target symbol.
	Reference string
	// Library is the target library this reference belongs to, as named in
	// AlgorithmDoc.Implementation's key.
	Library string
	// Name is the canonical algorithm name (AlgorithmDoc.Name).
	Name string
	// OtherNames lists aliases under which this algorithm is also known.
	OtherNames []string
	// SourceFile is where the owning Document was loaded from.
	SourceFile string
	// Hooks declared for this algorithm, normalized from AlgorithmDoc.Hooks
	// (or DefaultHooks when the algorithm declares none).
	Hooks []Hook

	// InheritedFrom records the Reference of the ancestor this Algorithm
	// was synthesized from, when non-empty (spec §4.6, scenario S2). Empty
	// for directly-declared algorithms.
	InheritedFrom string
}

// Normalize converts a raw implementation reference (as it appears in a
// mapping document, using '.' consistently) into the normalized dotted
// form Algorithm.Reference expects. Mapping documents already use dotted
// form; Normalize trims whitespace and collapses duplicate separators so
// hand-edited documents tolerate minor formatting noise.
func Normalize(reference string) string {
	parts := strings.Split(reference, ".")
	out := parts[:0]
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return strings.Join(out, ".")
}

// PackagePath returns the longest prefix of reference that could plausibly
// identify a Go package: everything up to (but excluding) the final dotted
// segment. Intercept uses this as the starting point when descending
// attribute-by-attribute to the terminal symbol (spec §4.6).
func PackagePath(reference string) string {
	idx := strings.LastIndex(reference, ".")
	if idx < 0 {
		return reference
	}
	return reference[:idx]
}

// MemberPath returns the dotted path remainder after pkg, i.e. the
// attribute-by-attribute walk Intercept performs from the package object to
// the terminal symbol. Returns nil if reference does not start with pkg.
func MemberPath(reference, pkg string) []string {
	if pkg == "" {
		return strings.Split(reference, ".")
	}
	if reference == pkg {
		return nil
	}
	prefix := pkg + "."
	if !strings.HasPrefix(reference, prefix) {
		return nil
	}
	return strings.Split(reference[len(prefix):], ".")
}
