package aurmake

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// Identity is the uid/gid a child process should run as. Threading it
// explicitly through every external call keeps the privilege boundary
// visible at each call site instead of mutating ambient process state.
type Identity struct {
	UID uint32
	GID uint32
}

// Executor provides a consistent interface for executing commands,
// abstracting away privilege escalation (sudo) and privilege dropping
// (running untrusted build steps as an unprivileged identity).
type Executor struct {
	Context         context.Context // The context to use for cancellation
	ShouldRunAsRoot bool            // ShouldRunAsRoot specifies whether the command MUST be executed with root privileges.
	RunAs           *Identity       // RunAs drops to this identity when we are root; mandatory for build steps.
	Interactive     bool            // Interactive indicates whether the command may prompt the user
}

// NewExecutor returns an Executor bound to ctx.
func NewExecutor(ctx context.Context) *Executor {
	return &Executor{Context: ctx}
}

// runInteractiveCommand executes a command attached to the TTY for interactive prompts.
// It does not use process group isolation, making it suitable for commands like `sudo -v`.
func runInteractiveCommand(ctx context.Context, name string, arg ...string) error {
	cmd := exec.CommandContext(ctx, name, arg...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// ensureSudo checks if the sudo ticket is still valid and re-prompts if necessary.
// No action needed if we are already root or the command doesn't require root.
func (e *Executor) ensureSudo() error {
	if os.Geteuid() == 0 || !e.ShouldRunAsRoot {
		return nil
	}
	checkCmd := exec.CommandContext(e.Context, "sudo", "-nv")
	checkCmd.Stdout = io.Discard
	checkCmd.Stderr = io.Discard
	if err := checkCmd.Run(); err == nil {
		return nil
	}

	colArrow.Print("-> ")
	colSuccess.Println("Sudo ticket has expired. Re-authenticating")
	if err := runInteractiveCommand(e.Context, "sudo", "-v"); err != nil {
		return fmt.Errorf("sudo re-authentication failed: %w", err)
	}
	return nil
}

// Run executes the given command, elevating via sudo -E only when needed and
// dropping to RunAs when we are root. It wires up stdio and isolates the
// child in its own process group for cleanup on cancellation.
func (e *Executor) Run(cmd *exec.Cmd) error {
	if cmd.Stdin == nil {
		cmd.Stdin = os.Stdin
	}
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	if err := e.ensureSudo(); err != nil {
		return err
	}

	var finalCmd *exec.Cmd
	basePath := cmd.Path
	baseArgs := cmd.Args[1:]

	if e.ShouldRunAsRoot && os.Geteuid() != 0 {
		args := append([]string{"-E", basePath}, baseArgs...)
		finalCmd = exec.CommandContext(e.Context, "sudo", args...)
		finalCmd.Dir = cmd.Dir
	} else {
		finalCmd = exec.CommandContext(e.Context, basePath, baseArgs...)
		finalCmd.Dir = cmd.Dir
	}

	if len(cmd.Env) > 0 {
		finalCmd.Env = cmd.Env
	} else {
		finalCmd.Env = os.Environ()
	}
	finalCmd.Stdin = cmd.Stdin
	finalCmd.Stdout = cmd.Stdout
	finalCmd.Stderr = cmd.Stderr

	attr := &syscall.SysProcAttr{}
	if !e.Interactive {
		attr.Setpgid = true
	}
	// Drop privileges for the child when we run as root and an identity was given.
	if e.RunAs != nil && os.Geteuid() == 0 {
		attr.Credential = &syscall.Credential{Uid: e.RunAs.UID, Gid: e.RunAs.GID}
	}
	finalCmd.SysProcAttr = attr

	if err := finalCmd.Start(); err != nil {
		return fmt.Errorf("failed to start command: %w", err)
	}

	if !e.Interactive {
		pgid := finalCmd.Process.Pid
		done := make(chan struct{})
		defer close(done)
		go func() {
			select {
			case <-e.Context.Done():
				syscall.Kill(-pgid, syscall.SIGKILL)
			case <-done:
			}
		}()
	}

	if waitErr := finalCmd.Wait(); waitErr != nil {
		if e.Context.Err() != nil {
			time.Sleep(100 * time.Millisecond)
			return fmt.Errorf("command aborted: %v", e.Context.Err())
		}
		return waitErr
	}
	return nil
}

// Output runs the command and returns its combined stdout, discarding the
// global stdio wiring. Used for pacman queries and other short commands.
func (e *Executor) Output(cmd *exec.Cmd) (string, error) {
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := e.Run(cmd)
	return out.String(), err
}

// Stream runs the command, forwarding its output line by line to each sink
// as it is produced. The incremental copy keeps long builds visible live
// while also capturing a full log.
func (e *Executor) Stream(cmd *exec.Cmd, sinks ...io.Writer) error {
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw
	cmd.Stdin = nil

	w := io.MultiWriter(sinks...)
	scanDone := make(chan struct{})
	go func() {
		defer close(scanDone)
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			fmt.Fprintln(w, scanner.Text())
		}
	}()

	err := e.Run(cmd)
	pw.Close()
	<-scanDone
	return err
}
