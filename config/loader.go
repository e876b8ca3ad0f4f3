package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pypads-go/pypads/pyerrors"
)

// Load reads and validates a Configuration from a YAML file at path. A
// missing file is not an error: callers get Default() back so a run can
// proceed with no configured loggers.
func Load(path string) (Configuration, error) {
	if path == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return Configuration{}, pyerrors.Wrap(pyerrors.KindMappingLoad, err, "read configuration "+path)
	}
	return Parse(raw)
}

// Parse decodes and validates a Configuration from raw YAML bytes.
func Parse(raw []byte) (Configuration, error) {
	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Configuration{}, pyerrors.Wrap(pyerrors.KindMappingLoad, err, "parse configuration")
	}
	if err := cfg.Validate(); err != nil {
		return Configuration{}, err
	}
	return cfg, nil
}
