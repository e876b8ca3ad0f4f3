package mapping

import "gopkg.in/yaml.v3"

// Document is the decoded form of a mapping document (spec §3, §6): a
// versioned description of a target library's surface and which events
// each member emits. Documents are loaded once at initialization by a
// Registry and are immutable thereafter.
type Document struct {
	Metadata     Metadata       `yaml:"metadata"`
	DefaultHooks DefaultHooks   `yaml:"default_hooks"`
	Algorithms   []AlgorithmDoc `yaml:"algorithms"`

	// SourceFile records where this document was loaded from, for the
	// source-file component of a resolved Algorithm (spec §3).
	SourceFile string `yaml:"-"`
}

// Metadata identifies the library a Document binds and the document's own
// version, so the Registry can distinguish mappings with the same library
// name but incompatible shapes.
type Metadata struct {
	Author         string `yaml:"author"`
	Library        string `yaml:"library"`
	LibraryVersion string `yaml:"library_version"`
	MappingVersion string `yaml:"mapping_version"`
}

// DefaultHooks are the hooks applied at module, class and function
// granularity when an AlgorithmDoc does not declare its own hooks.
type DefaultHooks struct {
	Modules HookGroup `yaml:"modules"`
	Classes HookGroup `yaml:"classes"`
	Fns     HookGroup `yaml:"fns"`
}

// HookGroup holds the selector applied to a granularity level of
// DefaultHooks.
type HookGroup struct {
	Fns Selector `yaml:"fns"`
}

// AlgorithmDoc is a single algorithm entry as it appears in a mapping
// document: a canonical name, optional aliases, one implementation
// reference per target library, and optional hooks.
type AlgorithmDoc struct {
	Name            string            `yaml:"name"`
	OtherNames      []string          `yaml:"other_names"`
	Implementation  map[string]string `yaml:"implementation"`
	Hooks           map[string]Selector `yaml:"hooks"`
}

// Selector is a hook applicability predicate: either the literal value
// "always" or a set of member names (spec §3, §4.2).
//
// YAML allows either a bare string ("always") or a list of strings; both
// decode into this type so mapping documents can use whichever reads best.
type Selector struct {
	Always  bool
	Members map[string]struct{}
}

// UnmarshalYAML implements custom decoding for Selector so both forms in
// spec §6 ("always" or a member-name set) parse without a wrapper type.
func (s *Selector) UnmarshalYAML(value *yaml.Node) error {
	var str string
	if err := value.Decode(&str); err == nil {
		if str == "always" {
			s.Always = true
			return nil
		}
		s.Members = map[string]struct{}{str: {}}
		return nil
	}
	var list []string
	if err := value.Decode(&list); err != nil {
		return err
	}
	s.Members = make(map[string]struct{}, len(list))
	for _, m := range list {
		s.Members[m] = struct{}{}
	}
	return nil
}

// Matches reports whether member satisfies this selector.
func (s Selector) Matches(member string) bool {
	if s.Always {
		return true
	}
	_, ok := s.Members[member]
	return ok
}

// IsZero reports whether the selector carries no information (neither
// "always" nor any member names) — used to fall back to DefaultHooks.
func (s Selector) IsZero() bool {
	return !s.Always && len(s.Members) == 0
}
