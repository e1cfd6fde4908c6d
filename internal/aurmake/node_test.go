package aurmake

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNodeFailIsMonotonic(t *testing.T) {
	n := &Node{Name: "foo"}
	first := errors.New("first failure")
	n.Fail(first)
	n.Fail(errors.New("second failure"))

	assert.Same(t, first, n.Err, "first error sticks for the rest of the run")
}

func TestBuildStatusTransitionsOnce(t *testing.T) {
	n := &Node{Name: "foo", Origin: OriginLocal}
	assert.True(t, n.SetBuild(BuildBuilt))
	assert.False(t, n.SetBuild(BuildFailed), "terminal build status must not be overwritten")
	assert.Equal(t, BuildBuilt, n.Build)
}

func TestInstallStatusTransitions(t *testing.T) {
	n := &Node{Name: "foo"}
	assert.True(t, n.SetInstall(Installed))
	assert.False(t, n.SetInstall(NotInstalled))
	assert.Equal(t, Installed, n.Install)

	// An out-of-date install may still be upgraded exactly once.
	m := &Node{Name: "bar", Install: InstalledOtherVersion}
	assert.True(t, m.SetInstall(Installed))
	assert.False(t, m.SetInstall(InstallFailed))
	assert.Equal(t, Installed, m.Install)
}

func TestInstallNames(t *testing.T) {
	plain := &Node{Name: "foo"}
	assert.Equal(t, []string{"foo"}, plain.InstallNames())

	split := &Node{Name: "gcc", SplitNames: []string{"gcc", "gcc-libs"}}
	assert.Equal(t, []string{"gcc", "gcc-libs"}, split.InstallNames())
}
