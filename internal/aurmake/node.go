package aurmake

// Origin classifies where a package comes from. The two source origins
// behave identically after resolution; system packages are handled by
// pacman and are leaves of the graph.
type Origin int

const (
	OriginSystem Origin = iota // available pre-built from the sync repos
	OriginLocal                // build recipe checked out under local_src
	OriginRemote               // build recipe fetched from the AUR
)

func (o Origin) String() string {
	switch o {
	case OriginSystem:
		return "system"
	case OriginLocal:
		return "local source"
	case OriginRemote:
		return "AUR"
	}
	return "unknown"
}

// CacheState describes whether a built artifact for a node already sits in
// the package drop directory.
type CacheState int

const (
	CacheAbsent CacheState = iota
	CacheStale             // same name and architecture, different version
	CacheCurrent
)

// BuildStatus is the per-node build state machine. All values other than
// BuildPending are terminal for the run.
type BuildStatus int

const (
	BuildPending BuildStatus = iota
	BuildBuilt
	BuildSkipped
	BuildFailed
	BuildDepFailed
)

// InstallStatus is the per-node install state machine.
type InstallStatus int

const (
	NotInstalled InstallStatus = iota
	Installed
	InstalledOtherVersion
	InstallFailed
)

// Node is the in-memory record for one package, whether it resolves from
// the sync repos or needs a build. It is created once per name by the
// resolver, mutated in place by the orchestrator, and read by the reporter.
type Node struct {
	Name    string
	Version string
	Arch    string
	License string
	Origin  Origin

	Depends     []string // runtime dependency names, in recipe order
	MakeDepends []string // build-time only dependency names

	CacheState CacheState
	Build      BuildStatus
	Install    InstallStatus
	Err        error

	// SplitNames lists every artifact name a split recipe produces; empty
	// for single-package recipes. All of them alias this node in the registry.
	SplitNames []string

	BuildOnly bool // pulled in purely as someone's make dependency
	Explicit  bool // a top-level user-requested target

	SourceDir string // staged recipe copy under the build scratch dir
	Volatile  bool   // VCS recipe; real version known only after a build
}

// IsSource reports whether the node needs a build rather than a repo install.
func (n *Node) IsSource() bool {
	return n.Origin != OriginSystem
}

// Fail records a primary error on the node. The first error wins; it is
// never cleared and ancestors discover it through the registry.
func (n *Node) Fail(err error) {
	if n.Err == nil {
		n.Err = err
	}
}

// SetBuild advances the build state machine. It refuses to overwrite a
// terminal value so a node revisited through a diamond is not reprocessed.
func (n *Node) SetBuild(s BuildStatus) bool {
	if n.Build != BuildPending {
		return false
	}
	n.Build = s
	return true
}

// SetInstall advances the install state machine. The resolver seeds the
// initial observed state; after that only NotInstalled and
// InstalledOtherVersion may move forward (an out-of-date package may still
// be upgraded once), and every other value is terminal.
func (n *Node) SetInstall(s InstallStatus) bool {
	switch n.Install {
	case NotInstalled:
		n.Install = s
		return true
	case InstalledOtherVersion:
		if s == Installed || s == InstallFailed {
			n.Install = s
			return true
		}
	}
	return false
}

// InstallNames returns every name this node installs under.
func (n *Node) InstallNames() []string {
	if len(n.SplitNames) > 0 {
		return n.SplitNames
	}
	return []string{n.Name}
}
