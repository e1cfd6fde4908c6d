package aurmake

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryPutIsIdempotent(t *testing.T) {
	reg := NewRegistry()
	first := &Node{Name: "foo", Version: "1.0-1"}
	reg.Put("foo", first)

	second := &Node{Name: "foo", Version: "2.0-1"}
	reg.Put("foo", second)

	got := reg.Get("foo")
	require.NotNil(t, got)
	assert.Same(t, first, got, "first registration must win")
	assert.Equal(t, "1.0-1", got.Version)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistryAliasResolvesToSameNode(t *testing.T) {
	reg := NewRegistry()
	n := &Node{Name: "gcc", SplitNames: []string{"gcc", "gcc-libs"}}
	reg.Put("gcc", n)
	reg.Alias("gcc-libs", n)

	assert.Same(t, n, reg.Get("gcc-libs"), "aliases are the same node, not a copy")
	assert.Same(t, n, reg.Get("gcc"))
	assert.Equal(t, 1, reg.Len(), "aliases do not count as nodes")
}

func TestRegistryAliasDoesNotShadowNode(t *testing.T) {
	reg := NewRegistry()
	a := &Node{Name: "a"}
	b := &Node{Name: "b"}
	reg.Put("a", a)
	reg.Put("b", b)
	reg.Alias("a", b)

	assert.Same(t, a, reg.Get("a"), "existing node must not be shadowed by an alias")
}

func TestRegistryGetMissing(t *testing.T) {
	reg := NewRegistry()
	assert.Nil(t, reg.Get("nope"))
}

func TestRegistryNamesSorted(t *testing.T) {
	reg := NewRegistry()
	reg.Put("zsh", &Node{Name: "zsh"})
	reg.Put("bash", &Node{Name: "bash"})
	reg.Put("fish", &Node{Name: "fish"})
	assert.Equal(t, []string{"bash", "fish", "zsh"}, reg.Names())
}
