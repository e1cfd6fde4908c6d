package aurmake

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gookit/color"
	"golang.org/x/term"
)

// printHelp prints the commands table
func printHelp() {
	colSuccess.Println("Usage: aurmake [command] [arguments]")
	colSuccess.Println("With no command, arguments are treated as packages to build.")
	fmt.Println()
	color.Info.Println("Available Commands:")

	type cmdInfo struct {
		Cmd  string
		Args string
		Desc string
	}
	cmds := []cmdInfo{
		{"build", "[options] <pkg>...", "Resolve, build and install packages (default command)"},
		{"log", "", "TUI viewer for captured build logs"},
		{"upload", "", "Sync built artifacts to the configured S3 mirror"},
		{"version, --version", "", "Version information"},
		{"help, -h", "", "This help text"},
	}
	for _, c := range cmds {
		fmt.Print("  ")
		color.Bold.Print(c.Cmd)
		if c.Args != "" {
			fmt.Print(" ")
			color.Cyan.Print(c.Args)
		}
		fmt.Println()
		color.Info.Println("      " + c.Desc)
	}
	fmt.Println()
	color.Info.Println("Build options:")
	fmt.Println("  -r 0|1|2   rebuild policy: 0 only-new, 1 rebuild requested targets, 2 rebuild all")
	fmt.Println("  -a         install all resolved dependencies, not only build-time ones")
	fmt.Println("  -p         run a full pacman -Syu before resolving")
	fmt.Println("  -u uid     owner uid for produced artifacts (default: leave as root)")
	fmt.Println("  -g gid     owner gid for produced artifacts")
	fmt.Println("  -k         keep older cached versions after a newer build")
	fmt.Println("  -d         discard downloaded AUR sources after the run")
	fmt.Println("  -v         verbose build output on the terminal (always logged)")
}

// Main is the CLI entrypoint for cmd/aurmake. Returns the process exit code.
func Main() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cPrintln(colWarn, "\nInterrupted, cleaning up")
		cancel()
	}()

	cfg, err := loadConfig(ConfigFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		return 1
	}
	initConfig(cfg)

	UserExec = NewExecutor(ctx)
	RootExec = NewExecutor(ctx)
	RootExec.ShouldRunAsRoot = true

	args := os.Args[1:]
	if len(args) == 0 {
		printHelp()
		return 0
	}

	// Acquire the sudo ticket up front so a long resolve does not stall on
	// a password prompt halfway through.
	if needsRootPrivileges(args) {
		if err := RootExec.ensureSudo(); err != nil {
			cPrintf(colError, "Error: %v\n", err)
			return 1
		}
	}

	switch args[0] {
	case "help", "-h", "--help":
		printHelp()
		return 0
	case "version", "--version":
		fmt.Printf("aurmake %s (built %s)\n", version, buildDate)
		return 0
	case "log":
		return runLogViewer()
	case "upload":
		if err := handleUploadCommand(ctx, cfg); err != nil {
			cPrintf(colError, "Error: %v\n", err)
			return 1
		}
		return 0
	case "build", "b":
		args = args[1:]
	}

	if err := runBuild(ctx, cfg, args); err != nil {
		// Uncaught setup/resolution errors land here; per-package failures
		// are reported through the tree instead.
		cPrintf(colError, "Error: %v\n", err)
		return 1
	}
	return 0
}

// runBuild is the main build pipeline: flags, bootstrap, resolve,
// orchestrate, report.
func runBuild(ctx context.Context, cfg *Config, args []string) error {
	buildCmd := flag.NewFlagSet("build", flag.ExitOnError)
	policy := buildCmd.Int("r", 0, "Rebuild policy: 0 only-new, 1 rebuild explicit targets, 2 rebuild all.")
	installAll := buildCmd.Bool("a", false, "Install all resolved dependencies after building.")
	pacmanUpdate := buildCmd.Bool("p", false, "Upgrade system packages with pacman -Syu first.")
	ownerUID := buildCmd.Int("u", -1, "Owner uid for produced artifacts.")
	ownerGID := buildCmd.Int("g", -1, "Owner gid for produced artifacts.")
	keepOld := buildCmd.Bool("k", false, "Keep older versions of a package after a newer one is built.")
	discard := buildCmd.Bool("d", false, "Discard downloaded AUR sources after the run.")
	verbose := buildCmd.Bool("v", false, "Verbose build output.")
	if err := buildCmd.Parse(args); err != nil {
		return fmt.Errorf("error parsing build flags: %v", err)
	}
	targets := buildCmd.Args()
	if len(targets) == 0 {
		return fmt.Errorf("no package names given")
	}
	if *policy < 0 || *policy > 2 {
		return fmt.Errorf("invalid rebuild policy %d (want 0, 1 or 2)", *policy)
	}
	Verbose = *verbose

	for _, dir := range []string{pkgDir, buildDir, logDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	pacman := &Pacman{Query: UserExec, Root: RootExec}
	if *pacmanUpdate {
		cPrintf(colArrow, "-> ")
		cPrintln(colInfo, "Upgrading system packages")
		if err := pacman.Refresh(); err != nil {
			return err
		}
	}

	buildUserName := cfg.Values["AURMAKE_BUILD_USER"]
	if buildUserName == "" {
		buildUserName = "aurbuild"
	}
	builder, err := ensureBuildUser(buildUserName, RootExec)
	if err != nil {
		return err
	}

	cache := NewCache(pkgDir, *ownerUID, *ownerGID)
	if err := cache.Refresh(); err != nil {
		return fmt.Errorf("failed to scan package cache: %w", err)
	}

	aur := NewAUR(aurURL, buildDir)
	aur.Quiet = !term.IsTerminal(int(os.Stderr.Fd()))

	resolver := &Resolver{
		Reg:     NewRegistry(),
		Index:   pacman,
		Sources: &LocalSources{Dir: localSrcDir, Scratch: buildDir},
		Remote:  aur,
		Cache:   cache,
	}

	cPrintf(colArrow, "-> ")
	cPrintln(colInfo, "Resolving dependencies")
	roots := make([]string, 0, len(targets))
	for _, target := range targets {
		n := resolver.Resolve(target, true, false)
		roots = append(roots, n.Name)
	}

	orch := &Orchestrator{
		Reg:        resolver.Reg,
		Runner:     &Makepkg{Exec: UserExec, Builder: builder, LogDir: logDir},
		Installer:  pacman,
		Cache:      cache,
		Policy:     RebuildPolicy(*policy),
		InstallAll: *installAll,
		KeepOld:    *keepOld,
	}
	for _, root := range roots {
		orch.Process(root)
	}

	if *discard {
		if err := os.RemoveAll(buildDir); err != nil {
			cPrintf(colWarn, "failed to discard build sources: %v\n", err)
		}
	}

	reporter := &Reporter{
		Reg:    resolver.Reg,
		Out:    os.Stdout,
		ErrOut: os.Stderr,
		Color:  term.IsTerminal(int(os.Stdout.Fd())),
	}
	ok := reporter.Render(roots)
	reporter.Summary(ok)
	return nil
}
