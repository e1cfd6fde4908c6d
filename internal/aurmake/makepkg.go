package aurmake

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// Makepkg runs the external build tool for one staged recipe. Builds always
// execute as the unprivileged build identity; the surrounding orchestration
// may be root, which is what allows the chown handoff of the staged tree.
type Makepkg struct {
	Exec    *Executor
	Builder *Identity
	LogDir  string
}

// Build runs `makepkg --force --noconfirm` inside n.SourceDir, streaming
// output live and capturing it to a per-package log file.
func (m *Makepkg) Build(n *Node) error {
	if n.SourceDir == "" {
		return fmt.Errorf("no staged source directory for %s", n.Name)
	}

	// Hand the staged tree to the build user before dropping privileges.
	if err := chownTree(n.SourceDir, int(m.Builder.UID), int(m.Builder.GID)); err != nil {
		return fmt.Errorf("failed to chown %s to build user: %w", n.SourceDir, err)
	}

	if err := os.MkdirAll(m.LogDir, 0o755); err != nil {
		return err
	}
	logPath := filepath.Join(m.LogDir, n.Name+".log")
	logFile, err := os.Create(logPath)
	if err != nil {
		return fmt.Errorf("failed to create build log %s: %w", logPath, err)
	}
	defer logFile.Close()

	cmd := exec.Command("makepkg", "--force", "--noconfirm")
	cmd.Dir = n.SourceDir

	buildExec := &Executor{Context: m.Exec.Context, RunAs: m.Builder}
	if Verbose {
		err = buildExec.Stream(cmd, logFile, os.Stdout)
	} else {
		// Log only; the reporter summarizes the outcome.
		err = buildExec.Stream(cmd, logFile)
	}
	if err != nil {
		return fmt.Errorf("makepkg failed for %s (log: %s): %w", n.Name, logPath, err)
	}
	return nil
}

// RefreshVersion re-reads the recipe version after a build. VCS recipes
// rewrite pkgver during makepkg, and the artifact filename is derived from
// it, so the node must catch up before the cache move.
func (m *Makepkg) RefreshVersion(n *Node) error {
	cmd := exec.Command("makepkg", "--printsrcinfo")
	cmd.Dir = n.SourceDir
	buildExec := &Executor{Context: m.Exec.Context, RunAs: m.Builder}
	out, err := buildExec.Output(cmd)
	if err != nil {
		return fmt.Errorf("makepkg --printsrcinfo failed for %s: %w", n.Name, err)
	}

	tmp, err := os.CreateTemp("", "srcinfo-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(out); err != nil {
		tmp.Close()
		return err
	}
	tmp.Close()

	r, err := parseSrcinfo(tmp.Name())
	if err != nil {
		return fmt.Errorf("unparseable srcinfo for %s: %w", n.Name, err)
	}
	n.Version = r.Version
	return nil
}

// chownTree applies uid/gid to a directory tree.
func chownTree(root string, uid, gid int) error {
	if os.Geteuid() != 0 {
		// Only root can hand ownership across; a non-root run already owns
		// the staged tree.
		return nil
	}
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		return os.Lchown(path, uid, gid)
	})
}
