package aurmake

import (
	"archive/tar"
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// snapshotTarball builds a gzip tarball shaped like an AUR snapshot: one
// top-level directory holding the recipe files.
func snapshotTarball(t *testing.T, base string, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := pgzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:     base + "/",
		Typeflag: tar.TypeDir,
		Mode:     0o755,
	}))
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: base + "/" + name,
			Mode: 0o644,
			Size: int64(len(content)),
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gw.Close())
	return buf.Bytes()
}

func newAURServer(t *testing.T, rpcBody string, snapshots map[string][]byte) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/rpc/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(rpcBody))
	})
	mux.HandleFunc("/snapshot/", func(w http.ResponseWriter, r *http.Request) {
		body, ok := snapshots[filepath.Base(r.URL.Path)]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(body)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestAURLookup(t *testing.T) {
	srv := newAURServer(t, `{"resultcount":1,"results":[{"Name":"yay","Version":"12.3.5-1","URLPath":"/snapshot/yay.tar.gz"}]}`, nil)
	aur := NewAUR(srv.URL, t.TempDir())
	aur.Quiet = true

	entry, err := aur.Lookup("yay")
	require.NoError(t, err)
	assert.Equal(t, "yay", entry.Name)
	assert.Equal(t, "12.3.5-1", entry.Version)
	assert.Equal(t, "/snapshot/yay.tar.gz", entry.URLPath)
}

func TestAURLookupCarriesPackageBase(t *testing.T) {
	srv := newAURServer(t, `{"resultcount":1,"results":[{"Name":"toolkit-core","PackageBase":"toolkit","Version":"1.0-1","URLPath":"/snapshot/toolkit.tar.gz"}]}`, nil)
	aur := NewAUR(srv.URL, t.TempDir())
	aur.Quiet = true

	entry, err := aur.Lookup("toolkit-core")
	require.NoError(t, err)
	assert.Equal(t, "toolkit-core", entry.Name)
	assert.Equal(t, "toolkit", entry.Base)
}

func TestAURLookupNotFound(t *testing.T) {
	srv := newAURServer(t, `{"resultcount":0,"results":[]}`, nil)
	aur := NewAUR(srv.URL, t.TempDir())
	aur.Quiet = true

	_, err := aur.Lookup("ghost")
	assert.ErrorIs(t, err, errPackageNotFound)
}

func TestAURFetchUnpacksSnapshot(t *testing.T) {
	tarball := snapshotTarball(t, "yay", map[string]string{
		"PKGBUILD": "pkgname=yay\npkgver=12.3.5\npkgrel=1\narch=('any')\n",
		".SRCINFO": "pkgbase = yay\n\tpkgver = 12.3.5\n\tpkgrel = 1\n\tarch = any\n\npkgname = yay\n",
	})
	srv := newAURServer(t, "", map[string][]byte{"yay.tar.gz": tarball})

	scratch := t.TempDir()
	aur := NewAUR(srv.URL, scratch)
	aur.Quiet = true

	dir, err := aur.Fetch(&RemoteEntry{Name: "yay", URLPath: "/snapshot/yay.tar.gz"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(scratch, "yay"), dir)

	recipe, err := ParseRecipe(dir)
	require.NoError(t, err)
	assert.Equal(t, "yay", recipe.Base)

	// Integrity sidecar written next to the tarball.
	sum, err := os.ReadFile(filepath.Join(scratch, "yay.tar.gz.b3"))
	require.NoError(t, err)
	assert.Len(t, bytes.Fields(sum)[0], 64, "hex blake3-256 digest")
}

// A split package's snapshot is named after the pkgbase, not the requested
// pkgname; the fetch must follow the base.
func TestAURFetchSplitPackageUsesBase(t *testing.T) {
	tarball := snapshotTarball(t, "toolkit", map[string]string{
		"PKGBUILD": "pkgbase=toolkit\npkgname=('toolkit-core' 'toolkit-extras')\npkgver=1.0\npkgrel=1\narch=('any')\n",
		".SRCINFO": "pkgbase = toolkit\n\tpkgver = 1.0\n\tpkgrel = 1\n\tarch = any\n\npkgname = toolkit-core\n\npkgname = toolkit-extras\n",
	})
	srv := newAURServer(t, "", map[string][]byte{"toolkit.tar.gz": tarball})

	scratch := t.TempDir()
	aur := NewAUR(srv.URL, scratch)
	aur.Quiet = true

	dir, err := aur.Fetch(&RemoteEntry{
		Name:    "toolkit-core",
		Base:    "toolkit",
		URLPath: "/snapshot/toolkit.tar.gz",
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(scratch, "toolkit"), dir)

	recipe, err := ParseRecipe(dir)
	require.NoError(t, err)
	assert.Equal(t, "toolkit", recipe.Base)
	assert.Equal(t, []string{"toolkit-core", "toolkit-extras"}, recipe.Names)
}

func TestAURFetchMissingPkgbuild(t *testing.T) {
	tarball := snapshotTarball(t, "broken", map[string]string{"README": "no recipe here"})
	srv := newAURServer(t, "", map[string][]byte{"broken.tar.gz": tarball})

	aur := NewAUR(srv.URL, t.TempDir())
	aur.Quiet = true

	_, err := aur.Fetch(&RemoteEntry{Name: "broken", URLPath: "/snapshot/broken.tar.gz"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PKGBUILD")
}

func TestExtractSnapshotRejectsTraversal(t *testing.T) {
	var buf bytes.Buffer
	gw := pgzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	content := "evil"
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name: "../escape",
		Mode: 0o644,
		Size: int64(len(content)),
	}))
	_, err := tw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gw.Close())

	dir := t.TempDir()
	tarball := filepath.Join(dir, "evil.tar.gz")
	require.NoError(t, os.WriteFile(tarball, buf.Bytes(), 0o644))

	err = extractSnapshot(tarball, filepath.Join(dir, "dest"))
	require.Error(t, err)
}
