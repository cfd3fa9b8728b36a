package transport

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"syscall"

	"github.com/bazelment/yoloswe/agentwire/internal/procattr"
)

// ProcessSpec is everything a ProcessLauncher needs to start the CLI
// child. Argument-list construction is this package's concern (spec.md §6
// fixes the flags); CLI discovery and sandboxing are the launcher's.
type ProcessSpec struct {
	Path string
	Args []string
	Env  []string
	Dir  string
}

// Process is the minimal surface the transport needs from a launched
// child: its three pipes, a way to wait for and signal it. Launcher
// implementations (direct exec, a sandbox/container launcher) only need to
// satisfy this.
type Process interface {
	Stdin() io.WriteCloser
	Stdout() io.ReadCloser
	Stderr() io.ReadCloser
	Wait() error
	SignalGroup(sig syscall.Signal) error
	KillGroup() error
	Pid() int
}

// ProcessLauncher abstracts how the CLI child process is created, so the
// transport never hard-codes os/exec — a sandbox or container launcher can
// satisfy the same contract (spec.md's "bidirectional" and "sandbox
// bidirectional" transports collapse to one parameterized by this).
type ProcessLauncher interface {
	// Launch starts spec. startupCtx bounds only the time it takes to get
	// the process running; lifetimeCtx governs the process's lifetime and
	// is cancelled by Transport.Close as a last-resort kill switch.
	Launch(startupCtx, lifetimeCtx context.Context, spec ProcessSpec) (Process, error)
}

// execProcess adapts *exec.Cmd to the Process interface.
type execProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser
}

func (p *execProcess) Stdin() io.WriteCloser  { return p.stdin }
func (p *execProcess) Stdout() io.ReadCloser  { return p.stdout }
func (p *execProcess) Stderr() io.ReadCloser  { return p.stderr }
func (p *execProcess) Wait() error            { return p.cmd.Wait() }

func (p *execProcess) SignalGroup(sig syscall.Signal) error {
	if p.cmd.Process == nil {
		return nil
	}
	return procattr.SignalGroup(p.cmd.Process, sig)
}

func (p *execProcess) KillGroup() error {
	if p.cmd.Process == nil {
		return nil
	}
	return procattr.KillGroup(p.cmd.Process)
}

func (p *execProcess) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// DirectLauncher runs the CLI as a direct child process via os/exec. It is
// the transport's default ProcessLauncher; a sandbox or container launcher
// implements the same interface around a different spawn mechanism.
type DirectLauncher struct{}

// Launch implements ProcessLauncher.
func (DirectLauncher) Launch(startupCtx, lifetimeCtx context.Context, spec ProcessSpec) (Process, error) {
	cmd := exec.CommandContext(lifetimeCtx, spec.Path, spec.Args...)
	cmd.Env = spec.Env
	cmd.Dir = spec.Dir
	procattr.Set(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &ProcessLaunchError{Path: spec.Path, Cause: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &ProcessLaunchError{Path: spec.Path, Cause: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &ProcessLaunchError{Path: spec.Path, Cause: err}
	}

	startErr := make(chan error, 1)
	go func() { startErr <- cmd.Start() }()

	select {
	case err := <-startErr:
		if err != nil {
			if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
				return nil, &ProcessLaunchError{Path: spec.Path, Cause: err}
			}
			return nil, &ProcessLaunchError{Path: spec.Path, Cause: err}
		}
	case <-startupCtx.Done():
		return nil, &ProcessLaunchError{Path: spec.Path, Cause: startupCtx.Err()}
	}

	return &execProcess{cmd: cmd, stdin: stdin, stdout: stdout, stderr: stderr}, nil
}
