package aurmake

import "sort"

// Registry is the single source of truth for nodes within one run. Nodes
// are stored once by canonical name; split-package artifact names are kept
// in a separate alias map pointing back at the canonical entry, so aliasing
// stays structurally explicit instead of relying on duplicate map values.
type Registry struct {
	nodes map[string]*Node
	alias map[string]string // any known name -> canonical name
}

func NewRegistry() *Registry {
	return &Registry{
		nodes: make(map[string]*Node),
		alias: make(map[string]string),
	}
}

// Get returns the node known under name, following aliases. Nil if absent.
func (r *Registry) Get(name string) *Node {
	if canon, ok := r.alias[name]; ok {
		name = canon
	}
	return r.nodes[name]
}

// Put registers a node under its canonical name. Inserting the same name
// twice is a no-op: the first registration wins.
func (r *Registry) Put(name string, n *Node) {
	if _, exists := r.nodes[name]; exists {
		return
	}
	if _, exists := r.alias[name]; exists {
		return
	}
	r.nodes[name] = n
}

// Alias registers an additional name resolving to the same node. A name
// already known (as node or alias) is left untouched.
func (r *Registry) Alias(name string, n *Node) {
	if _, exists := r.nodes[name]; exists {
		return
	}
	if _, exists := r.alias[name]; exists {
		return
	}
	r.alias[name] = n.Name
}

// Len counts distinct nodes, not aliases.
func (r *Registry) Len() int {
	return len(r.nodes)
}

// Names returns the canonical node names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.nodes))
	for name := range r.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
