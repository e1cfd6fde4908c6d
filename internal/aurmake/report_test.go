package aurmake

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReporter(reg *Registry) (*Reporter, *bytes.Buffer, *bytes.Buffer) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &Reporter{Reg: reg, Out: out, ErrOut: errOut}, out, errOut
}

func TestRenderFailureChain(t *testing.T) {
	reg := NewRegistry()
	c := &Node{Name: "c", Version: "1.0-1", Origin: OriginLocal, Build: BuildFailed}
	c.Fail(errors.New("compiler exploded"))
	b := &Node{Name: "b", Version: "1.0-1", Origin: OriginLocal, Build: BuildDepFailed, Depends: []string{"c"}}
	a := &Node{Name: "a", Version: "1.0-1", Origin: OriginLocal, Build: BuildDepFailed, Depends: []string{"b"}}
	reg.Put("a", a)
	reg.Put("b", b)
	reg.Put("c", c)

	rp, _, errOut := newTestReporter(reg)
	ok := rp.Render([]string{"a"})

	assert.False(t, ok)
	lines := strings.Split(strings.TrimRight(errOut.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "a 1.0-1: dependency failed", lines[0])
	assert.Equal(t, "└── b 1.0-1: dependency failed", lines[1])
	assert.Equal(t, "    └── c 1.0-1: failed: compiler exploded", lines[2])
}

func TestRenderConnectorsAlternate(t *testing.T) {
	reg := NewRegistry()
	reg.Put("x", &Node{Name: "x", Version: "1-1", Origin: OriginLocal, Build: BuildSkipped})
	reg.Put("y", &Node{Name: "y", Version: "1-1", Origin: OriginLocal, Build: BuildSkipped})
	reg.Put("top", &Node{Name: "top", Version: "1-1", Origin: OriginLocal, Build: BuildSkipped, Depends: []string{"x", "y"}})

	rp, out, _ := newTestReporter(reg)
	ok := rp.Render([]string{"top"})

	require.True(t, ok)
	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "├── x"), "non-last sibling uses ├──, got %q", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "└── y"), "last sibling uses └──, got %q", lines[2])
}

func TestRenderAncestorOfFailureEvenWhenOwnBuildSkipped(t *testing.T) {
	// The ancestor's own build step never ran, but a descendant failed:
	// the ancestor must still render as a dependency failure.
	reg := NewRegistry()
	leaf := &Node{Name: "leaf", Version: "1-1", Origin: OriginLocal, Build: BuildFailed}
	leaf.Fail(errors.New("boom"))
	mid := &Node{Name: "mid", Version: "1-1", Origin: OriginSystem, Install: Installed, Depends: []string{"leaf"}}
	reg.Put("leaf", leaf)
	reg.Put("mid", mid)

	rp, _, errOut := newTestReporter(reg)
	ok := rp.Render([]string{"mid"})

	assert.False(t, ok)
	assert.Contains(t, errOut.String(), "mid 1-1: dependency failed")
}

func TestRenderVersionOmittedWhenAbsent(t *testing.T) {
	reg := NewRegistry()
	n := &Node{Name: "ghost", Origin: OriginRemote}
	n.Fail(errPackageNotFound)
	reg.Put("ghost", n)

	rp, _, errOut := newTestReporter(reg)
	rp.Render([]string{"ghost"})

	assert.Contains(t, errOut.String(), "ghost: failed: package not found")
}

// A cycle victim carries both a primary error and BuildDepFailed; the line
// must show the error text, not the generic dependency-failed status.
func TestRenderCycleVictimShowsOwnError(t *testing.T) {
	reg := NewRegistry()
	a := &Node{Name: "a", Version: "1-1", Origin: OriginLocal, Build: BuildDepFailed, MakeDepends: []string{"b"}}
	a.Fail(errors.New("dependency cycle detected at a"))
	b := &Node{Name: "b", Version: "1-1", Origin: OriginLocal, Build: BuildDepFailed, MakeDepends: []string{"a"}}
	reg.Put("a", a)
	reg.Put("b", b)

	rp, _, errOut := newTestReporter(reg)
	ok := rp.Render([]string{"a"})

	assert.False(t, ok)
	assert.Contains(t, errOut.String(), "a 1-1: failed: dependency cycle detected at a")
	assert.Contains(t, errOut.String(), "b 1-1: dependency failed")
}

func TestRenderCyclicGraphTerminates(t *testing.T) {
	reg := NewRegistry()
	a := &Node{Name: "a", Version: "1-1", Origin: OriginLocal, Build: BuildDepFailed, MakeDepends: []string{"b"}}
	b := &Node{Name: "b", Version: "1-1", Origin: OriginLocal, Build: BuildDepFailed, MakeDepends: []string{"a"}}
	reg.Put("a", a)
	reg.Put("b", b)

	rp, _, errOut := newTestReporter(reg)
	ok := rp.Render([]string{"a"})

	assert.False(t, ok)
	assert.Contains(t, errOut.String(), "dependency cycle")
}

// End-to-end: repo package already installed at the requested version.
func TestScenarioSystemPackageAlreadyInstalled(t *testing.T) {
	idx := &fakeIndex{
		available: map[string]*IndexInfo{
			"foo": {Version: "1.0-1", Arch: "x86_64", Repository: "extra"},
		},
		installed: map[string]string{"foo": "1.0-1"},
	}
	rv, _, _ := newTestResolver(t, idx, nil, nil)
	n := rv.Resolve("foo", true, false)
	require.NoError(t, n.Err)

	cache := newFakeArtifacts()
	o, runner, installer := newTestOrchestrator(rv.Reg, cache)
	o.InstallAll = true
	o.Process("foo")

	assert.Empty(t, runner.built)
	assert.Empty(t, installer.repo, "already satisfied, nothing installed")

	rp, out, _ := newTestReporter(rv.Reg)
	ok := rp.Render([]string{"foo"})
	assert.True(t, ok)
	assert.Equal(t, "foo 1.0-1: installed\n", out.String())
}

// End-to-end: local package with a build-only local dependency, nothing
// cached: both are built bottom-up and the tool is installed as a side
// effect.
func TestScenarioLocalBuildWithBuildOnlyDep(t *testing.T) {
	idx := &fakeIndex{}
	rv, _, _ := newTestResolver(t, idx, map[string]string{
		"bar":      srcinfoFor("bar", "2.0", nil, []string{"bar-tool"}),
		"bar-tool": srcinfoFor("bar-tool", "0.5", nil, nil),
	}, nil)
	bar := rv.Resolve("bar", true, false)
	require.NoError(t, bar.Err)

	cache := newFakeArtifacts()
	cache.produces[bar.SourceDir] = []string{"bar"}
	cache.version[bar.SourceDir] = "2.0-1"
	tool := rv.Reg.Get("bar-tool")
	require.NotNil(t, tool)
	cache.produces[tool.SourceDir] = []string{"bar-tool"}
	cache.version[tool.SourceDir] = "0.5-1"

	o, runner, installer := newTestOrchestrator(rv.Reg, cache)
	o.Process("bar")

	assert.Equal(t, []string{"bar-tool", "bar"}, runner.built, "build order is dependency first")
	assert.Len(t, installer.artifacts, 1, "only the build-only dep is installed")
	assert.Equal(t, Installed, tool.Install)

	rp, out, errOut := newTestReporter(rv.Reg)
	ok := rp.Render([]string{"bar"})
	assert.True(t, ok)
	assert.Empty(t, errOut.String())
	assert.Contains(t, out.String(), "bar 2.0-1: Successfully built")
	assert.Contains(t, out.String(), "└── bar-tool 0.5-1: Successfully built")
}
