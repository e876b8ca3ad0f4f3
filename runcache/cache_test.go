package runcache_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pypads-go/pypads/runcache"
)

func TestRunScopeClearedOnEndRun(t *testing.T) {
	c := runcache.New()
	run := c.Run("run-1")
	run.Add("seen/0", true)
	assert.True(t, run.Exists("seen/0"))

	c.EndRun("run-1")

	fresh := c.Run("run-1")
	assert.False(t, fresh.Exists("seen/0"), "run scope must be empty after EndRun")
}

func TestProcessScopePersistsAcrossRuns(t *testing.T) {
	c := runcache.New()
	c.Process().Add("global-counter", 1)

	c.Run("run-1").Add("local", true)
	c.EndRun("run-1")

	v, ok := c.Process().Get("global-counter")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestEndRunNeverPanicsEvenIfAlreadyCleared(t *testing.T) {
	c := runcache.New()
	assert.NotPanics(t, func() {
		c.EndRun("never-existed")
		c.EndRun("never-existed")
	})
}

func TestMergeUnionsWithoutOverwritingExisting(t *testing.T) {
	parent := runcache.New()
	parent.Run("run-1").Add("seen/0", "parent")

	child := runcache.New()
	child.Run("run-1").Add("seen/0", "child") // would-be conflicting write
	child.Run("run-1").Add("seen/1", "child")

	parent.Merge("run-1", child)

	v0, _ := parent.Run("run-1").Get("seen/0")
	assert.Equal(t, "parent", v0, "existing destination keys are not overwritten by merge")

	v1, ok := parent.Run("run-1").Get("seen/1")
	assert.True(t, ok)
	assert.Equal(t, "child", v1)
}

// TestCacheIsolationProperty validates invariant #8 (spec §8): run-scoped
// cache entries written during run R are not visible to run R' started
// after R ends; process-scoped entries are.
func TestCacheIsolationProperty(t *testing.T) {
	c := runcache.New()

	c.Run("R").Add("key", "value-from-R")
	c.EndRun("R")

	rPrime := c.Run("R-prime")
	assert.False(t, rPrime.Exists("key"), "R-prime must not see R's run-scoped writes")

	c.Process().Add("shared", "value")
	assert.True(t, c.Run("R-prime").Exists("shared") == false, "process scope is accessed via Process(), not Run()")
	v, ok := c.Process().Get("shared")
	assert.True(t, ok)
	assert.Equal(t, "value", v)
}
