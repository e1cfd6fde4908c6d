package aurmake

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"
	"golang.org/x/sys/unix"
)

// Artifact describes one built package file sitting in the drop directory.
type Artifact struct {
	Name    string
	Version string // pkgver-pkgrel, with optional epoch prefix
	Arch    string
	Path    string
}

// Cache is a snapshot of the package drop directory, refreshed once before
// resolution starts and updated as builds commit artifacts into it.
type Cache struct {
	Dir      string
	OwnerUID int // ownership applied to committed artifacts; -1 leaves it alone
	OwnerGID int

	entries []Artifact
}

func NewCache(dir string, uid, gid int) *Cache {
	return &Cache{Dir: dir, OwnerUID: uid, OwnerGID: gid}
}

var artifactExts = []string{".pkg.tar.zst", ".pkg.tar.xz", ".pkg.tar.gz"}

// parseArtifactName splits "<name>-<pkgver>-<pkgrel>-<arch><ext>" from the
// right, since package names may themselves contain hyphens.
func parseArtifactName(base string) (*Artifact, bool) {
	var ext string
	for _, e := range artifactExts {
		if strings.HasSuffix(base, e) {
			ext = e
			break
		}
	}
	if ext == "" {
		return nil, false
	}
	stem := strings.TrimSuffix(base, ext)
	parts := strings.Split(stem, "-")
	if len(parts) < 4 {
		return nil, false
	}
	arch := parts[len(parts)-1]
	pkgrel := parts[len(parts)-2]
	pkgver := parts[len(parts)-3]
	name := strings.Join(parts[:len(parts)-3], "-")
	return &Artifact{
		Name:    name,
		Version: pkgver + "-" + pkgrel,
		Arch:    arch,
	}, true
}

// Refresh rebuilds the snapshot from the drop directory listing.
func (c *Cache) Refresh() error {
	c.entries = nil
	dirEntries, err := os.ReadDir(c.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return os.MkdirAll(c.Dir, 0o755)
		}
		return err
	}
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		art, ok := parseArtifactName(de.Name())
		if !ok {
			continue
		}
		art.Path = filepath.Join(c.Dir, de.Name())
		c.entries = append(c.entries, *art)
	}
	return nil
}

// State reports whether an artifact for name exists, and if so whether its
// version matches exactly.
func (c *Cache) State(name, version, arch string) CacheState {
	state := CacheAbsent
	for _, a := range c.entries {
		if a.Name != name {
			continue
		}
		if a.Arch != arch && a.Arch != "any" && arch != "any" {
			continue
		}
		if a.Version == version {
			return CacheCurrent
		}
		state = CacheStale
	}
	return state
}

// ArtifactPath returns the cached file for an exact name-version match.
func (c *Cache) ArtifactPath(name, version string) (string, bool) {
	for _, a := range c.entries {
		if a.Name == name && a.Version == version {
			return a.Path, true
		}
	}
	return "", false
}

// Commit moves every package file produced in srcDir into the drop
// directory, resets ownership, and folds the new artifacts into the
// snapshot. The directory is flocked during the move so concurrent
// invocations of the tool cannot interleave half-moved files.
func (c *Cache) Commit(srcDir string) ([]Artifact, error) {
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return nil, err
	}

	lock, err := os.OpenFile(filepath.Join(c.Dir, ".lock"), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache lock: %w", err)
	}
	defer lock.Close()
	if err := unix.Flock(int(lock.Fd()), unix.LOCK_EX); err != nil {
		return nil, fmt.Errorf("failed to lock cache dir: %w", err)
	}
	defer unix.Flock(int(lock.Fd()), unix.LOCK_UN)

	matches, err := os.ReadDir(srcDir)
	if err != nil {
		return nil, err
	}

	var committed []Artifact
	for _, de := range matches {
		art, ok := parseArtifactName(de.Name())
		if !ok {
			continue
		}
		src := filepath.Join(srcDir, de.Name())
		dst := filepath.Join(c.Dir, de.Name())
		if err := moveFile(src, dst); err != nil {
			return committed, fmt.Errorf("failed to move %s into cache: %w", de.Name(), err)
		}
		if c.OwnerUID >= 0 || c.OwnerGID >= 0 {
			if err := os.Chown(dst, c.OwnerUID, c.OwnerGID); err != nil {
				return committed, fmt.Errorf("failed to chown %s: %w", dst, err)
			}
		}
		art.Path = dst
		c.entries = append(c.entries, *art)
		committed = append(committed, *art)
	}
	if len(committed) == 0 {
		return nil, fmt.Errorf("build left no package artifact in %s", srcDir)
	}
	return committed, nil
}

// Prune removes cached artifacts for name whose version differs from
// version. Used after a successful build unless old versions are kept.
func (c *Cache) Prune(name, version string) {
	kept := c.entries[:0]
	for _, a := range c.entries {
		if a.Name == name && a.Version != version {
			if err := os.Remove(a.Path); err != nil {
				cPrintf(colWarn, "failed to remove old artifact %s: %v\n", a.Path, err)
				kept = append(kept, a)
			}
			continue
		}
		kept = append(kept, a)
	}
	c.entries = kept
}

// moveFile renames when possible and falls back to copy+remove across
// filesystems (the scratch dir is usually a tmpfs).
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

// ReadPkgInfo extracts the pkgname and pkgver fields from a package file's
// embedded .PKGINFO, handling zstd, xz and gzip compressed tarballs.
func ReadPkgInfo(path string) (name, version string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", err
	}
	defer f.Close()

	var r io.Reader
	switch {
	case strings.HasSuffix(path, ".zst"):
		zr, zerr := zstd.NewReader(f)
		if zerr != nil {
			return "", "", fmt.Errorf("failed to create zstd reader for %s: %w", path, zerr)
		}
		defer zr.Close()
		r = zr
	case strings.HasSuffix(path, ".xz"):
		xr, xerr := xz.NewReader(f)
		if xerr != nil {
			return "", "", fmt.Errorf("failed to create xz reader for %s: %w", path, xerr)
		}
		r = xr
	case strings.HasSuffix(path, ".gz"):
		gr, gerr := pgzip.NewReader(f)
		if gerr != nil {
			return "", "", fmt.Errorf("failed to create gzip reader for %s: %w", path, gerr)
		}
		defer gr.Close()
		r = gr
	default:
		return "", "", fmt.Errorf("unsupported package compression: %s", path)
	}

	tr := tar.NewReader(r)
	for {
		hdr, terr := tr.Next()
		if terr == io.EOF {
			break
		}
		if terr != nil {
			return "", "", terr
		}
		if filepath.Clean(hdr.Name) != ".PKGINFO" {
			continue
		}
		data, rerr := io.ReadAll(tr)
		if rerr != nil {
			return "", "", rerr
		}
		for _, line := range strings.Split(string(data), "\n") {
			parts := strings.SplitN(line, "=", 2)
			if len(parts) != 2 {
				continue
			}
			switch strings.TrimSpace(parts[0]) {
			case "pkgname":
				name = strings.TrimSpace(parts[1])
			case "pkgver":
				version = strings.TrimSpace(parts[1])
			}
		}
		if name == "" || version == "" {
			return "", "", fmt.Errorf("incomplete .PKGINFO in %s", path)
		}
		return name, version, nil
	}
	return "", "", fmt.Errorf("no .PKGINFO in %s", path)
}
