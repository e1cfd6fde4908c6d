package aurmake

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Recipe is the metadata extracted from a package build recipe.
type Recipe struct {
	Base        string   // pkgbase; equals the single pkgname for non-split recipes
	Names       []string // every pkgname the recipe produces
	Version     string   // [epoch:]pkgver-pkgrel
	Arch        string   // matched architecture (host arch or "any")
	License     string
	Depends     []string
	MakeDepends []string
	Volatile    bool // VCS recipe, version only knowable after checkout/build
}

// ParseRecipe reads package metadata from dir. A .SRCINFO file is preferred
// (AUR snapshots always ship one); otherwise the PKGBUILD is scraped for
// simple key=value assignments. Missing mandatory fields or an architecture
// the host cannot build are invalid-source errors.
func ParseRecipe(dir string) (*Recipe, error) {
	if _, err := os.Stat(filepath.Join(dir, ".SRCINFO")); err == nil {
		return parseSrcinfo(filepath.Join(dir, ".SRCINFO"))
	}
	pb := filepath.Join(dir, "PKGBUILD")
	if _, err := os.Stat(pb); err != nil {
		return nil, fmt.Errorf("no PKGBUILD in %s", dir)
	}
	return parsePkgbuild(pb)
}

func parseSrcinfo(path string) (*Recipe, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := &Recipe{}
	var pkgver, pkgrel, epoch string
	var arches []string

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		switch key {
		case "pkgbase":
			r.Base = val
		case "pkgname":
			r.Names = append(r.Names, val)
		case "pkgver":
			pkgver = val
		case "pkgrel":
			pkgrel = val
		case "epoch":
			epoch = val
		case "arch":
			arches = append(arches, val)
		case "license":
			if r.License == "" {
				r.License = val
			}
		case "depends":
			r.Depends = append(r.Depends, val)
		case "makedepends":
			r.MakeDepends = append(r.MakeDepends, val)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return finishRecipe(r, pkgver, pkgrel, epoch, arches)
}

// PKGBUILD scraping covers the simple assignments the original recipes use.
// Anything needing full shell evaluation belongs in a .SRCINFO instead.
var (
	rePkgbuildScalar = regexp.MustCompile(`(?m)^\s*(pkgbase|pkgname|pkgver|pkgrel|epoch|license)=([^\s(]+)\s*$`)
	rePkgbuildArray  = regexp.MustCompile(`(?m)^\s*(pkgname|arch|license|depends|makedepends)=\(([^)]*)\)`)
	rePkgverFunc     = regexp.MustCompile(`(?m)^\s*pkgver\s*\(\s*\)`)
)

func parsePkgbuild(path string) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	content := string(data)

	r := &Recipe{}
	var pkgver, pkgrel, epoch string
	var arches []string

	for _, m := range rePkgbuildScalar.FindAllStringSubmatch(content, -1) {
		val := strings.Trim(m[2], `"'`)
		switch m[1] {
		case "pkgbase":
			r.Base = val
		case "pkgname":
			r.Names = append(r.Names, val)
		case "pkgver":
			pkgver = val
		case "pkgrel":
			pkgrel = val
		case "epoch":
			epoch = val
		case "license":
			r.License = val
		}
	}
	for _, m := range rePkgbuildArray.FindAllStringSubmatch(content, -1) {
		vals := splitShellWords(m[2])
		switch m[1] {
		case "pkgname":
			r.Names = vals
		case "arch":
			arches = vals
		case "license":
			if r.License == "" && len(vals) > 0 {
				r.License = vals[0]
			}
		case "depends":
			r.Depends = vals
		case "makedepends":
			r.MakeDepends = vals
		}
	}
	if rePkgverFunc.MatchString(content) {
		r.Volatile = true
	}
	return finishRecipe(r, pkgver, pkgrel, epoch, arches)
}

func finishRecipe(r *Recipe, pkgver, pkgrel, epoch string, arches []string) (*Recipe, error) {
	if r.Base == "" && len(r.Names) > 0 {
		r.Base = r.Names[0]
	}
	if r.Base == "" || pkgver == "" || pkgrel == "" {
		return nil, fmt.Errorf("recipe is missing pkgname, pkgver or pkgrel")
	}
	if len(r.Names) == 0 {
		r.Names = []string{r.Base}
	}

	r.Version = pkgver + "-" + pkgrel
	if epoch != "" {
		r.Version = epoch + ":" + r.Version
	}

	host := hostArch()
	for _, a := range arches {
		if a == "any" || a == host {
			r.Arch = a
			break
		}
	}
	if r.Arch == "" {
		return nil, fmt.Errorf("recipe supports none of the host architectures (%s)", host)
	}

	// VCS recipes re-evaluate pkgver on every checkout.
	for _, suffix := range []string{"-git", "-svn", "-hg", "-bzr", "-nightly"} {
		if strings.HasSuffix(r.Base, suffix) {
			r.Volatile = true
		}
	}
	return r, nil
}

func splitShellWords(s string) []string {
	var out []string
	for _, w := range strings.Fields(s) {
		w = strings.Trim(w, `"'`)
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}

// LocalSources locates checked-out recipes under the local source
// directory and stages copies of them into the build scratch directory,
// so builds never run in the checkout itself.
type LocalSources struct {
	Dir     string // local_src checkout root
	Scratch string // build scratch root
}

// Locate returns the checkout directory for name, if one exists.
func (ls *LocalSources) Locate(name string) (string, bool) {
	dir := filepath.Join(ls.Dir, name)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", false
	}
	if _, err := os.Stat(filepath.Join(dir, "PKGBUILD")); err != nil {
		return "", false
	}
	return dir, true
}

// Stage copies the recipe checkout into the scratch directory and returns
// the staged path.
func (ls *LocalSources) Stage(name, dir string) (string, error) {
	if err := os.MkdirAll(ls.Scratch, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(ls.Scratch, name)
	if err := copyTree(dir, dst); err != nil {
		return "", fmt.Errorf("failed to stage %s: %w", name, err)
	}
	return dst, nil
}
