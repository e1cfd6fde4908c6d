package aurmake

import (
	"archive/tar"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/pgzip"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
	"lukechampine.com/blake3"
)

// RemoteEntry is one AUR lookup result.
type RemoteEntry struct {
	Name    string
	Base    string // pkgbase; snapshot tarballs and their top-level dir carry this name
	Version string
	URLPath string // snapshot download path, relative to the AUR base URL
}

// AUR talks to the Arch User Repository: RPC v5 for metadata, snapshot
// tarballs for recipe sources.
type AUR struct {
	BaseURL string
	Client  *http.Client
	Scratch string // where snapshots are downloaded and unpacked
	Quiet   bool
}

func NewAUR(baseURL, scratch string) *AUR {
	return &AUR{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 5 * time.Minute},
		Scratch: scratch,
	}
}

type aurRPCResponse struct {
	ResultCount int `json:"resultcount"`
	Results     []struct {
		Name        string `json:"Name"`
		PackageBase string `json:"PackageBase"`
		Version     string `json:"Version"`
		URLPath     string `json:"URLPath"`
	} `json:"results"`
}

// Lookup queries the AUR RPC for name. errPackageNotFound when the AUR has
// no such package.
func (a *AUR) Lookup(name string) (*RemoteEntry, error) {
	u := fmt.Sprintf("%s/rpc/?v=5&type=info&arg[]=%s", a.BaseURL, url.QueryEscape(name))
	resp, err := a.Client.Get(u)
	if err != nil {
		return nil, fmt.Errorf("AUR lookup for %s failed: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("AUR lookup for %s failed with status %s", name, resp.Status)
	}

	var rpc aurRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpc); err != nil {
		return nil, fmt.Errorf("bad AUR RPC response for %s: %w", name, err)
	}
	if rpc.ResultCount == 0 || len(rpc.Results) == 0 {
		return nil, errPackageNotFound
	}
	r := rpc.Results[0]
	return &RemoteEntry{Name: r.Name, Base: r.PackageBase, Version: r.Version, URLPath: r.URLPath}, nil
}

// Fetch downloads and unpacks the snapshot for entry, returning the
// directory holding the recipe. A blake3 sidecar is written next to the
// tarball so a later run can tell whether a cached snapshot changed.
func (a *AUR) Fetch(entry *RemoteEntry) (string, error) {
	if err := os.MkdirAll(a.Scratch, 0o755); err != nil {
		return "", err
	}
	// Split packages share one snapshot named after the pkgbase, and its
	// top-level directory carries that name too.
	base := entry.Base
	if base == "" {
		base = entry.Name
	}
	tarball := filepath.Join(a.Scratch, base+".tar.gz")
	if err := a.download(a.BaseURL+entry.URLPath, tarball); err != nil {
		return "", err
	}
	if err := writeChecksumSidecar(tarball); err != nil {
		return "", err
	}

	dest := filepath.Join(a.Scratch, base)
	if err := os.RemoveAll(dest); err != nil {
		return "", err
	}
	if err := extractSnapshot(tarball, a.Scratch); err != nil {
		return "", fmt.Errorf("failed to unpack snapshot for %s: %w", base, err)
	}
	if _, err := os.Stat(filepath.Join(dest, "PKGBUILD")); err != nil {
		return "", fmt.Errorf("snapshot for %s did not contain a PKGBUILD", base)
	}
	return dest, nil
}

func (a *AUR) download(rawURL, destFile string) error {
	resp, err := a.Client.Get(rawURL)
	if err != nil {
		return fmt.Errorf("download of %s failed: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download of %s failed with status %s", rawURL, resp.Status)
	}

	out, err := os.Create(destFile)
	if err != nil {
		return err
	}
	defer out.Close()

	var w io.Writer = out
	if !a.Quiet && term.IsTerminal(int(os.Stderr.Fd())) {
		bar := progressbar.DefaultBytes(resp.ContentLength, filepath.Base(destFile))
		w = io.MultiWriter(out, bar)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("failed to write %s: %w", destFile, err)
	}
	return nil
}

// writeChecksumSidecar records the blake3 sum of path in path+".b3".
func writeChecksumSidecar(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	h := blake3.New(32, nil)
	if _, err := io.Copy(h, f); err != nil {
		return err
	}
	sum := hex.EncodeToString(h.Sum(nil))
	return os.WriteFile(path+".b3", []byte(sum+"  "+filepath.Base(path)+"\n"), 0o644)
}

// extractSnapshot unpacks a gzip tarball into dest. Snapshot tarballs
// contain a single top-level directory named after the package base.
func extractSnapshot(tarballPath, dest string) error {
	f, err := os.Open(tarballPath)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader for %s: %w", tarballPath, err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		name := filepath.Clean(hdr.Name)
		if strings.HasPrefix(name, "..") || filepath.IsAbs(name) {
			return fmt.Errorf("refusing tar entry outside destination: %s", hdr.Name)
		}
		target := filepath.Join(dest, name)
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode).Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil && !os.IsExist(err) {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode).Perm())
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			out.Close()
		}
	}
}
