// Package config defines the run-scoped Configuration document (spec §3,
// §6): the process-wide settings, captured once per run and attached to
// the active run via a tag, that the Hook/Event Resolver and Dispatcher
// Runtime consult on every call.
package config

import (
	"fmt"

	"github.com/pypads-go/pypads/pyerrors"
)

// WellKnownTagKey is the tag key a Configuration is attached to the active
// run under (spec §6: "a nested document attached to the active run as a
// tag under a well-known key").
const WellKnownTagKey = "pypads.config"

// EventBinding is one entry of Configuration.Events: which declared hook
// events feed this user-facing event, fixed parameters to overlay, and the
// order used to sort the resulting logger chain (spec §3, §4.2).
type EventBinding struct {
	// On is the set of declared hook-events (spec GLOSSARY: Event) that
	// feed this configuration event. Required; spec §6 says its absence is
	// a configuration error.
	On []string `yaml:"on"`
	// With is a fixed parameter bag handed to the logger as Call.Params.
	// Loggers carry no static parameters of their own, so nothing is
	// merged into it. Defaults to empty.
	With map[string]any `yaml:"with"`
	// Order controls ascending sort position in the resolved logger chain.
	// Defaults to 1 (spec §3, §6).
	Order int `yaml:"order"`
}

// Configuration is the process-wide, run-scoped settings document (spec §3).
type Configuration struct {
	// Events maps a configuration event name to its binding. The event
	// name is also the Function Registry lookup key (spec §4.2, §4.3).
	Events map[string]EventBinding `yaml:"events"`

	// RecursionIdentity enables per-receiver-identity recursion cut-off
	// (spec §4.7 step 3, §9 Open Question 1).
	RecursionIdentity bool `yaml:"recursion_identity"`

	// RecursionDepth bounds nested re-entrant dispatch depth; -1 disables
	// the depth-based cut-off (spec §3, §4.7).
	RecursionDepth int `yaml:"recursion_depth"`

	// RetryOnFail enables the retry-on-failure path (spec §4.7 step 8, §9
	// Open Question 2).
	RetryOnFail bool `yaml:"retry_on_fail"`

	// LogOnFailure flushes captured stdout as an artifact before a failure
	// propagates (spec §4.7 step 8).
	LogOnFailure bool `yaml:"log_on_failure"`

	// MirrorGit records whether the backend should mirror the invoking
	// process's git state as run tags (spec §6; domain logic lives outside
	// the core, this only carries the toggle).
	MirrorGit bool `yaml:"mirror_git"`
}

// Default returns the zero-value-safe default Configuration: no events,
// recursion depth disabled (-1), retry and log-on-failure off.
func Default() Configuration {
	return Configuration{
		Events:         map[string]EventBinding{},
		RecursionDepth: -1,
	}
}

// Validate applies the configuration-error and default-filling rules of
// spec §6: Order absent defaults to 1, With absent defaults to empty, On
// absent is a configuration error.
func (c *Configuration) Validate() error {
	if c.Events == nil {
		c.Events = map[string]EventBinding{}
	}
	for name, binding := range c.Events {
		if len(binding.On) == 0 {
			return pyerrors.Newf(pyerrors.KindMappingLoad, "configuration event %q: \"on\" is required", name)
		}
		if binding.Order == 0 {
			binding.Order = 1
		}
		if binding.With == nil {
			binding.With = map[string]any{}
		}
		c.Events[name] = binding
	}
	return nil
}

// String renders a compact human-readable summary, useful in logs and
// error messages.
func (c Configuration) String() string {
	return fmt.Sprintf("Configuration{events=%d, recursion_depth=%d, recursion_identity=%t, retry_on_fail=%t}",
		len(c.Events), c.RecursionDepth, c.RecursionIdentity, c.RetryOnFail)
}
