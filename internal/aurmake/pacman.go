package aurmake

import (
	"fmt"
	"os/exec"
	"strings"
)

// Pacman wraps the system package manager binary. Queries run unprivileged;
// anything that mutates the system goes through the root executor.
type Pacman struct {
	Query *Executor // plain queries
	Root  *Executor // install/upgrade operations
}

// IsAvailable reports whether name exists in the sync repositories.
func (p *Pacman) IsAvailable(name string) bool {
	_, err := p.Query.Output(exec.Command("pacman", "-Si", name))
	return err == nil
}

// IndexInfo is what the sync repos know about a package.
type IndexInfo struct {
	Version    string
	Arch       string
	Repository string
	License    string
	Depends    []string
}

// Info fetches repository metadata for name via `pacman -Si`.
func (p *Pacman) Info(name string) (*IndexInfo, error) {
	out, err := p.Query.Output(exec.Command("pacman", "-Si", name))
	if err != nil {
		return nil, fmt.Errorf("pacman has no package %s: %w", name, err)
	}
	info := &IndexInfo{}
	for _, line := range strings.Split(out, "\n") {
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		switch key {
		case "Version":
			info.Version = val
		case "Architecture":
			info.Arch = val
		case "Repository":
			info.Repository = val
		case "Licenses":
			info.License = val
		case "Depends On":
			if val != "None" {
				info.Depends = strings.Fields(val)
			}
		}
	}
	if info.Version == "" {
		return nil, fmt.Errorf("unparseable pacman -Si output for %s", name)
	}
	return info, nil
}

// InstalledVersion returns the installed version of name, or "" when the
// package is not installed.
func (p *Pacman) InstalledVersion(name string) (string, error) {
	out, err := p.Query.Output(exec.Command("pacman", "-Q", name))
	if err != nil {
		// pacman -Q exits non-zero for packages that are not installed.
		return "", nil
	}
	fields := strings.Fields(out)
	if len(fields) < 2 {
		return "", fmt.Errorf("unparseable pacman -Q output for %s: %q", name, out)
	}
	return fields[1], nil
}

// ResolveProvider reduces a version-ranged or provider alias such as
// "foo>=2" or "libfoo.so" to a concrete package name. Falls back to the
// stripped alias text when the query fails (best effort, per the original
// behavior).
func (p *Pacman) ResolveProvider(alias string) string {
	name := alias
	for _, op := range []string{">=", "<=", "=", ">", "<"} {
		if idx := strings.Index(name, op); idx >= 0 {
			name = name[:idx]
			break
		}
	}
	name = strings.TrimSpace(name)
	if name == alias && !strings.Contains(alias, ".so") {
		return name
	}

	out, err := p.Query.Output(exec.Command("pacman", "-Ssq", "^"+name+"$"))
	if err != nil {
		return name
	}
	lines := strings.Fields(out)
	if len(lines) == 0 {
		return name
	}
	return lines[0]
}

// InstallArtifact installs a built package file with `pacman -U`.
func (p *Pacman) InstallArtifact(path string) error {
	cmd := exec.Command("pacman", "-U", "--noconfirm", "--needed", path)
	if out, err := p.Root.Output(cmd); err != nil {
		return fmt.Errorf("pacman -U failed for %s: %v: %s", path, err, strings.TrimSpace(out))
	}
	return nil
}

// InstallRepo installs a sync-repo package as a dependency.
func (p *Pacman) InstallRepo(name string) error {
	cmd := exec.Command("pacman", "-S", "--noconfirm", "--needed", "--asdeps", name)
	if out, err := p.Root.Output(cmd); err != nil {
		return fmt.Errorf("pacman -S failed for %s: %v: %s", name, err, strings.TrimSpace(out))
	}
	return nil
}

// Refresh runs a full sync upgrade (`pacman -Syu`). Used by the -p flag
// before any resolution starts; failure here is fatal for the run.
func (p *Pacman) Refresh() error {
	cmd := exec.Command("pacman", "-Syu", "--noconfirm")
	if err := p.Root.Run(cmd); err != nil {
		return fmt.Errorf("failed to upgrade packages with pacman: %w", err)
	}
	return nil
}
