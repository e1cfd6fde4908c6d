package aurmake

import (
	"fmt"
)

// SystemIndex is the slice of pacman the resolver needs.
type SystemIndex interface {
	IsAvailable(name string) bool
	Info(name string) (*IndexInfo, error)
	InstalledVersion(name string) (string, error)
	ResolveProvider(alias string) string
}

// SourceStore locates and stages local recipe checkouts.
type SourceStore interface {
	Locate(name string) (string, bool)
	Stage(name, dir string) (string, error)
}

// RemoteRepo looks up and fetches recipes from the user repository.
type RemoteRepo interface {
	Lookup(name string) (*RemoteEntry, error)
	Fetch(entry *RemoteEntry) (string, error)
}

// ArtifactStater answers cache-state questions from the drop dir snapshot.
type ArtifactStater interface {
	State(name, version, arch string) CacheState
}

// Resolver discovers the transitive dependency closure of requested
// packages, populating the registry. Classification order: sync repos
// first, then local checkouts, then the AUR. A node is inserted into the
// registry before its dependencies are visited, which is both the
// memoization for diamond graphs and the guard that keeps a dependency
// cycle from recursing forever.
type Resolver struct {
	Reg     *Registry
	Index   SystemIndex
	Sources SourceStore
	Remote  RemoteRepo
	Cache   ArtifactStater
}

// Resolve discovers name and everything it transitively needs. The
// returned node always exists; failures are recorded on it, never thrown.
func (rv *Resolver) Resolve(name string, explicit, buildOnly bool) *Node {
	name = rv.Index.ResolveProvider(name)

	if n := rv.Reg.Get(name); n != nil {
		return n
	}

	n := rv.classify(name)
	n.Explicit = explicit
	n.BuildOnly = buildOnly

	rv.Reg.Put(n.Name, n)
	if n.Name != name {
		rv.Reg.Alias(name, n)
	}
	for _, split := range n.SplitNames {
		rv.Reg.Alias(split, n)
	}

	rv.enrich(n)
	if n.Err != nil {
		// Terminal: leave its dependency edges unresolved.
		return n
	}

	// Recurse. Build dependencies are never needed at run time on the
	// dependent side, so they are forced build-only; runtime dependencies
	// inherit the caller's flag.
	n.Depends = rv.resolveEdges(n.Depends, buildOnly)
	n.MakeDepends = rv.resolveEdges(n.MakeDepends, true)
	return n
}

// resolveEdges resolves each dependency edge and rewrites the edge list to
// the concrete names the registry knows, so later walks need no further
// alias reduction.
func (rv *Resolver) resolveEdges(deps []string, buildOnly bool) []string {
	resolved := make([]string, 0, len(deps))
	for _, dep := range deps {
		child := rv.Resolve(dep, false, buildOnly)
		resolved = append(resolved, child.Name)
	}
	return resolved
}

func (rv *Resolver) classify(name string) *Node {
	// 1. Sync repositories. The package manager owns the transitive
	// closure of its own packages, so these are leaves.
	if rv.Index.IsAvailable(name) {
		info, err := rv.Index.Info(name)
		if err != nil {
			n := &Node{Name: name, Origin: OriginSystem}
			n.Fail(fmt.Errorf("failed to read repo metadata: %w", err))
			return n
		}
		return &Node{
			Name:    name,
			Version: info.Version,
			Arch:    info.Arch,
			License: info.License,
			Origin:  OriginSystem,
		}
	}

	// 2. Local checkout.
	if dir, ok := rv.Sources.Locate(name); ok {
		n := &Node{Name: name, Origin: OriginLocal}
		staged, err := rv.Sources.Stage(name, dir)
		if err != nil {
			n.Fail(fmt.Errorf("invalid package source: %w", err))
			return n
		}
		rv.applyRecipe(n, staged)
		return n
	}

	// 3. User repository.
	n := &Node{Name: name, Origin: OriginRemote}
	entry, err := rv.Remote.Lookup(name)
	if err != nil {
		if err == errPackageNotFound {
			n.Fail(fmt.Errorf("%w in repositories, local sources or the AUR", errPackageNotFound))
		} else {
			n.Fail(err)
		}
		return n
	}
	n.Name = entry.Name
	staged, err := rv.Remote.Fetch(entry)
	if err != nil {
		n.Fail(err)
		return n
	}
	rv.applyRecipe(n, staged)
	return n
}

// applyRecipe parses the staged recipe and copies its metadata onto the
// node, including the base/split-name indirection.
func (rv *Resolver) applyRecipe(n *Node, staged string) {
	n.SourceDir = staged
	recipe, err := ParseRecipe(staged)
	if err != nil {
		n.Fail(fmt.Errorf("invalid package source %s: %w", staged, err))
		return
	}
	n.Name = recipe.Base
	n.Version = recipe.Version
	n.Arch = recipe.Arch
	n.License = recipe.License
	n.Depends = recipe.Depends
	n.MakeDepends = recipe.MakeDepends
	n.Volatile = recipe.Volatile
	if len(recipe.Names) > 1 || (len(recipe.Names) == 1 && recipe.Names[0] != recipe.Base) {
		n.SplitNames = recipe.Names
	}
}

// enrich computes the initial cache and install state for a freshly
// classified node.
func (rv *Resolver) enrich(n *Node) {
	if n.Err != nil {
		return
	}
	if n.IsSource() {
		arch := n.Arch
		if arch == "" {
			arch = hostArch()
		}
		n.CacheState = rv.Cache.State(n.Name, n.Version, arch)
	}

	installed, err := rv.Index.InstalledVersion(n.Name)
	if err != nil {
		debugf("install query failed for %s: %v\n", n.Name, err)
		return
	}
	switch {
	case installed == "":
		// NotInstalled is the zero value.
	case installed == n.Version:
		n.Install = Installed
	default:
		n.Install = InstalledOtherVersion
	}
}
