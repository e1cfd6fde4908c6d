package aurmake

import (
	"errors"
	"runtime"

	"github.com/gookit/color"
)

// Global variables
var (
	pkgDir      string // drop directory for built package artifacts
	localSrcDir string // checked-out build recipes, one subdirectory per package
	buildDir    string // scratch directory where builds actually run
	logDir      string // captured build logs, one file per package
	Debug       bool
	Verbose     bool
	ConfigFile  = "/etc/aurmake.conf"
	aurURL      = "https://aur.archlinux.org"
	version     = "dev"     // overridden at build time
	buildDate   = "unknown" // overridden at build time

	errPackageNotFound = errors.New("package not found")

	// Global executors (assigned in Main)
	UserExec *Executor
	RootExec *Executor
)

// pacmanArch maps GOARCH to the architecture names pacman uses.
var pacmanArch = map[string]string{
	"amd64": "x86_64",
	"arm64": "aarch64",
	"386":   "i686",
	"arm":   "armv7h",
}

// hostArch returns the pacman architecture name of the running host.
func hostArch() string {
	if a, ok := pacmanArch[runtime.GOARCH]; ok {
		return a
	}
	return runtime.GOARCH
}

// color helpers
var (
	colInfo    = color.Info // style provided by gookit/color
	colWarn    = color.Warn
	colError   = color.Error
	colSuccess = color.HEX("#1976D2")
	colArrow   = color.HEX("#FFEB3B")
)
