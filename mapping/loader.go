package mapping

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"

	"github.com/pypads-go/pypads/pyerrors"
)

// documentSchemaJSON is the JSON Schema a mapping document's top-level
// shape must satisfy (spec §6): metadata, default_hooks, algorithms.
const documentSchemaJSON = `{
  "type": "object",
  "required": ["metadata", "algorithms"],
  "properties": {
    "metadata": {
      "type": "object",
      "required": ["library"],
      "properties": {
        "author": {"type": "string"},
        "library": {"type": "string"},
        "library_version": {"type": "string"},
        "mapping_version": {"type": "string"}
      }
    },
    "default_hooks": {"type": "object"},
    "algorithms": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "implementation"],
        "properties": {
          "name": {"type": "string"},
          "other_names": {"type": "array", "items": {"type": "string"}},
          "implementation": {"type": "object"},
          "hooks": {"type": "object"}
        }
      }
    }
  }
}`

var documentSchema *jsonschema.Schema

func init() {
	c := jsonschema.NewCompiler()
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(documentSchemaJSON))
	if err != nil {
		panic(fmt.Sprintf("mapping: invalid embedded document schema: %v", err))
	}
	const schemaURL = "https://pypads-go/mapping/document.schema.json"
	if err := c.AddResource(schemaURL, doc); err != nil {
		panic(fmt.Sprintf("mapping: invalid embedded document schema: %v", err))
	}
	documentSchema, err = c.Compile(schemaURL)
	if err != nil {
		panic(fmt.Sprintf("mapping: failed to compile embedded document schema: %v", err))
	}
}

// Parse decodes and validates a single mapping document from raw YAML
// bytes. On a schema violation or malformed YAML it returns a
// pyerrors.KindMappingLoad error; callers follow the spec §7 MappingLoad
// policy of logging and skipping the document rather than treating this as
// fatal.
func Parse(source string, raw []byte) (*Document, error) {
	var generic any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, pyerrors.Wrap(pyerrors.KindMappingLoad, err, "parse "+source)
	}
	instance := yamlToJSONCompatible(generic)
	if err := documentSchema.Validate(instance); err != nil {
		return nil, pyerrors.Wrap(pyerrors.KindMappingLoad, err, "validate "+source)
	}

	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, pyerrors.Wrap(pyerrors.KindMappingLoad, err, "decode "+source)
	}
	doc.SourceFile = source
	return &doc, nil
}

// yamlToJSONCompatible recursively converts the map[string]interface{} tree
// yaml.v3 produces (already string-keyed, unlike yaml.v2) into a tree that
// only uses types jsonschema.Validate accepts, normalizing any nested
// map[string]interface{} so embedded helper types validate cleanly.
func yamlToJSONCompatible(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = yamlToJSONCompatible(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = yamlToJSONCompatible(val)
		}
		return out
	default:
		return v
	}
}

// LoadFile reads and parses a single mapping document file.
func LoadFile(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, pyerrors.Wrap(pyerrors.KindMappingLoad, err, "read "+path)
	}
	return Parse(path, raw)
}

// LoadDir loads every *.yaml/*.yml file directly under dir. Documents that
// fail to parse or validate are skipped (logged, not returned as errors),
// per the MappingLoad policy (spec §7): one bad document must not prevent
// the rest of the search set from loading.
func (r *Registry) LoadDir(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}
		path := filepath.Join(dir, name)
		doc, err := LoadFile(path)
		if err != nil {
			r.logger.Warn(context.Background(), "skipping mapping document", "path", path, "error", err.Error())
			continue
		}
		r.LoadDocument(doc)
	}
}

// DefaultSearchPaths returns the default mapping document search set (spec
// §4.1: "a default search set"): a mappings/ directory next to the
// executable (read from disk, not embedded), plus any directories named by PYPADS_MAPPING_PATH
// (colon-separated, spec §6).
func DefaultSearchPaths() []string {
	var paths []string
	if exe, err := os.Executable(); err == nil {
		paths = append(paths, filepath.Join(filepath.Dir(exe), "mappings"))
	}
	if env := os.Getenv("PYPADS_MAPPING_PATH"); env != "" {
		paths = append(paths, strings.Split(env, ":")...)
	}
	return paths
}

// LoadDefaults loads every document found under DefaultSearchPaths and any
// additional user-supplied paths.
func (r *Registry) LoadDefaults(extra ...string) {
	for _, dir := range append(DefaultSearchPaths(), extra...) {
		r.LoadDir(dir)
	}
}
