package aurmake

import (
	"fmt"
)

// RebuildPolicy is the run-wide rule for rebuilding despite a cache hit.
type RebuildPolicy int

const (
	RebuildOnlyNew  RebuildPolicy = 0 // build only when no current artifact is cached
	RebuildExplicit RebuildPolicy = 1 // additionally rebuild user-requested targets
	RebuildAll      RebuildPolicy = 2 // rebuild everything
)

// BuildRunner runs the external build tool for one node.
type BuildRunner interface {
	Build(n *Node) error
	RefreshVersion(n *Node) error
}

// Installer installs packages, either from a built artifact file or
// straight from the sync repos.
type Installer interface {
	InstallArtifact(path string) error
	InstallRepo(name string) error
}

// CacheStore is the slice of the artifact cache the orchestrator mutates.
type CacheStore interface {
	ArtifactStater
	ArtifactPath(name, version string) (string, bool)
	Commit(srcDir string) ([]Artifact, error)
	Prune(name, version string)
}

// Orchestrator walks the resolved closure bottom-up, building source nodes
// as required and installing what the run needs. One node is processed at
// a time; builds share a scratch dir and the artifact cache, so the walk
// is deliberately serial.
type Orchestrator struct {
	Reg        *Registry
	Runner     BuildRunner
	Installer  Installer
	Cache      CacheStore
	Policy     RebuildPolicy
	InstallAll bool // install runtime deps too, not only build-time ones
	KeepOld    bool // keep superseded cached artifacts

	visiting map[string]bool
}

// Process handles one explicit top-level target and its closure.
func (o *Orchestrator) Process(name string) {
	if o.visiting == nil {
		o.visiting = make(map[string]bool)
	}
	o.process(name)
}

func (o *Orchestrator) process(name string) {
	n := o.Reg.Get(name)
	if n == nil {
		// Resolution never reached this name; nothing to do.
		return
	}
	if n.Err != nil {
		return
	}

	switch n.Origin {
	case OriginSystem:
		o.processSystem(n)
	case OriginLocal, OriginRemote:
		o.processSource(n)
	}
}

// processSystem installs a repo package when the run needs it present.
// No recursion: pacman owns the transitive closure of its own packages.
func (o *Orchestrator) processSystem(n *Node) {
	if !n.BuildOnly && !o.InstallAll {
		return
	}
	if n.Install == Installed {
		return
	}
	if err := o.Installer.InstallRepo(n.Name); err != nil {
		n.SetInstall(InstallFailed)
		n.Fail(err)
		return
	}
	n.SetInstall(Installed)
}

func (o *Orchestrator) processSource(n *Node) {
	if n.Build != BuildPending {
		return // already handled through another path in the graph
	}
	if o.visiting[n.Name] {
		// A genuine dependency cycle, not a diamond. Fail loudly instead
		// of recursing forever.
		n.Fail(fmt.Errorf("dependency cycle detected at %s", n.Name))
		n.SetBuild(BuildDepFailed)
		return
	}
	o.visiting[n.Name] = true
	defer delete(o.visiting, n.Name)

	// Dependencies complete before the dependent is evaluated.
	forceRebuild := false
	depFailed := false
	for _, dep := range append(append([]string{}, n.Depends...), n.MakeDepends...) {
		o.process(dep)
		child := o.Reg.Get(dep)
		if child == nil {
			continue
		}
		// A dep-failed child carries no error of its own; the failure lives
		// further down the tree. Both forms poison the dependent.
		if child.Err != nil || child.Build == BuildDepFailed {
			depFailed = true
			continue
		}
		// A dependency that was actually rebuilt invalidates our cached
		// artifact no matter what our own cache state says.
		if child.IsSource() && child.Build == BuildBuilt {
			forceRebuild = true
		}
	}
	if depFailed {
		n.SetBuild(BuildDepFailed)
		return
	}
	// The cycle guard may have failed this node while its own subtree was
	// being walked; never fall through to a build in that case.
	if n.Err != nil || n.Build != BuildPending {
		return
	}

	if o.shouldBuild(n, forceRebuild) {
		o.build(n)
	} else {
		n.SetBuild(BuildSkipped)
	}
	if n.Err != nil {
		return
	}

	// Install-as-side-effect: build-only deps must be present for their
	// consumers; -a extends that to everything.
	if (o.InstallAll || n.BuildOnly) && (n.Build == BuildBuilt || n.Build == BuildSkipped) {
		o.install(n)
	}
}

func (o *Orchestrator) shouldBuild(n *Node, forceRebuild bool) bool {
	if forceRebuild {
		return true
	}
	switch o.Policy {
	case RebuildOnlyNew:
		return n.CacheState != CacheCurrent
	case RebuildExplicit:
		return n.CacheState != CacheCurrent || n.Explicit
	case RebuildAll:
		return true
	}
	return false
}

func (o *Orchestrator) build(n *Node) {
	cPrintf(colArrow, "-> ")
	cPrintf(colInfo, "Building %s %s from %s\n", n.Name, n.Version, n.Origin)

	if err := o.Runner.Build(n); err != nil {
		n.SetBuild(BuildFailed)
		n.Fail(err)
		return
	}
	if n.Volatile {
		// The real version exists only after the checkout makepkg just did;
		// the artifact filename depends on it.
		if err := o.Runner.RefreshVersion(n); err != nil {
			n.SetBuild(BuildFailed)
			n.Fail(err)
			return
		}
	}
	if _, err := o.Cache.Commit(n.SourceDir); err != nil {
		n.SetBuild(BuildFailed)
		n.Fail(err)
		return
	}
	if !o.KeepOld {
		o.Prune(n)
	}
	n.SetBuild(BuildBuilt)
}

// Prune drops superseded cached versions for every name the node produces.
func (o *Orchestrator) Prune(n *Node) {
	for _, name := range n.InstallNames() {
		o.Cache.Prune(name, n.Version)
	}
}

// install installs every artifact name the node produces. Each split
// artifact reports its own failure without aborting its siblings; the node
// records the first failure.
func (o *Orchestrator) install(n *Node) {
	if n.Install == Installed {
		return
	}
	failed := false
	for _, name := range n.InstallNames() {
		path, ok := o.Cache.ArtifactPath(name, n.Version)
		if !ok {
			n.Fail(fmt.Errorf("no cached artifact for %s %s", name, n.Version))
			failed = true
			continue
		}
		if err := o.Installer.InstallArtifact(path); err != nil {
			n.Fail(err)
			failed = true
			cPrintf(colError, "failed to install %s: %v\n", name, err)
		}
	}
	if failed {
		n.SetInstall(InstallFailed)
		return
	}
	n.SetInstall(Installed)
}
