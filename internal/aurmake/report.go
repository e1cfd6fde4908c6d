package aurmake

import (
	"fmt"
	"io"
)

// Reporter renders the resolved graph as an indented tree, one line per
// node, mirroring exactly the dependency edges the resolver recorded.
type Reporter struct {
	Reg *Registry

	// Out receives successful lines, ErrOut failing ones. Both default to
	// the usual streams in Main; tests inject buffers.
	Out    io.Writer
	ErrOut io.Writer
	Color  bool
}

// Render prints the tree for the given top-level targets and reports
// whether every rendered subtree succeeded.
func (rp *Reporter) Render(roots []string) bool {
	ok := true
	for i, root := range roots {
		last := i == len(roots)-1
		if !rp.renderNode(root, "", "", last, len(roots) > 1, map[string]bool{}) {
			ok = false
		}
	}
	return ok
}

// renderNode emits one line for name and recurses into its dependency
// edges. A path-local visited set keeps a cyclic graph from recursing
// forever; diamonds legitimately render once per path, as the graph shape
// dictates.
func (rp *Reporter) renderNode(name, linePrefix, childPrefix string, last, connect bool, path map[string]bool) bool {
	n := rp.Reg.Get(name)

	prefix := linePrefix
	nextPrefix := childPrefix
	if connect {
		if last {
			prefix += "└── "
			nextPrefix += "    "
		} else {
			prefix += "├── "
			nextPrefix += "│   "
		}
	}

	if n == nil {
		rp.emit(prefix+name+": unresolved", false)
		return false
	}
	if path[n.Name] {
		rp.emit(prefix+rp.line(n, "dependency cycle"), false)
		return false
	}
	path[n.Name] = true
	defer delete(path, n.Name)

	children := append(append([]string{}, n.Depends...), n.MakeDepends...)
	childrenOK := true
	// Children are rendered after the node line but decide its status, so
	// walk the subtree status first.
	subtreeOK := rp.subtreeOK(children, map[string]bool{n.Name: true})
	if !subtreeOK {
		childrenOK = false
	}

	status, ownOK := rp.status(n, subtreeOK)
	rp.emit(prefix+rp.line(n, status), ownOK)

	for i, child := range children {
		lastChild := i == len(children)-1
		if !rp.renderNode(child, nextPrefix, nextPrefix, lastChild, true, path) {
			childrenOK = false
		}
	}
	return ownOK && childrenOK
}

// subtreeOK checks whether every descendant finished without an error or
// dependency failure.
func (rp *Reporter) subtreeOK(names []string, path map[string]bool) bool {
	for _, name := range names {
		n := rp.Reg.Get(name)
		if n == nil {
			return false
		}
		if path[n.Name] {
			return false
		}
		if n.Err != nil || n.Build == BuildDepFailed || n.Build == BuildFailed || n.Install == InstallFailed {
			return false
		}
		path[n.Name] = true
		if !rp.subtreeOK(append(append([]string{}, n.Depends...), n.MakeDepends...), path) {
			delete(path, n.Name)
			return false
		}
		delete(path, n.Name)
	}
	return true
}

// status derives the display status with the orchestrator's precedence:
// own error first, then dependency failure (own or propagated), then the
// terminal build/install state. A node can hold both a primary error and
// BuildDepFailed (a cycle victim does); the error text is the more useful
// diagnostic, so it wins.
func (rp *Reporter) status(n *Node, subtreeOK bool) (string, bool) {
	if n.Err != nil {
		return fmt.Sprintf("failed: %v", n.Err), false
	}
	if n.Build == BuildDepFailed || !subtreeOK {
		return "dependency failed", false
	}

	if n.IsSource() {
		switch n.Build {
		case BuildBuilt:
			if n.Install == Installed {
				return "Successfully built and installed", true
			}
			return "Successfully built", true
		case BuildSkipped:
			if n.Install == Installed {
				return "up to date, installed", true
			}
			return "up to date", true
		default:
			return "not built", true
		}
	}

	switch n.Install {
	case Installed:
		return "installed", true
	case InstalledOtherVersion:
		return "installed (different version)", true
	default:
		return "not installed", true
	}
}

// line formats "name version: status"; version is omitted when unknown.
func (rp *Reporter) line(n *Node, status string) string {
	if n.Version == "" {
		return fmt.Sprintf("%s: %s", n.Name, status)
	}
	return fmt.Sprintf("%s %s: %s", n.Name, n.Version, status)
}

func (rp *Reporter) emit(line string, ok bool) {
	if ok {
		if rp.Color {
			colInfo.Println(line)
			return
		}
		fmt.Fprintln(rp.Out, line)
		return
	}
	if rp.Color {
		colError.Println(line)
		return
	}
	fmt.Fprintln(rp.ErrOut, line)
}

// Summary prints the final one-line verdict under the tree.
func (rp *Reporter) Summary(ok bool) {
	if ok {
		cPrintf(colArrow, "-> ")
		cPrintln(colSuccess, "All requested packages processed")
		return
	}
	cPrintf(colArrow, "-> ")
	cPrintln(colError, "Some packages failed; see the tree above")
}
