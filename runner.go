package tangelo

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
)

// CommandResult is the captured outcome of one tool invocation
type CommandResult struct {
	// Stdout is everything the tool wrote to standard output
	Stdout []byte
	// Stderr is everything the tool wrote to its diagnostic stream
	Stderr []byte
	// ExitCode is the tool's exit status
	ExitCode int
}

// Process is a handle on a child spawned by a Runner
type Process interface {
	// Pid returns the OS process id
	Pid() int
	// Signal delivers sig to the process
	Signal(sig os.Signal) error
	// Wait blocks until the process exits and releases its resources
	Wait() error
}

// Runner executes the control tool. Run returns an error only when the
// tool could not be spawned or its output could not be collected; a
// non-zero exit is reported through CommandResult.ExitCode.
type Runner interface {
	// Run executes name with args and waits for it to finish
	Run(ctx context.Context, name string, args ...string) (CommandResult, error)
	// Spawn starts name with args in the background, streaming its output
	// into stdout and stderr
	Spawn(name string, args []string, stdout, stderr io.Writer) (Process, error)
}

// ExecRunner runs commands with os/exec
type ExecRunner struct {
	// Dir is the working directory of spawned commands; empty means the
	// caller's directory
	Dir string
	// Env is appended to the caller's environment
	Env []string
	// WaitDelay bounds how long Run waits for the output pipes to close
	// once the command has exited or its context is done; a daemonizing
	// tool can leave a descendant holding them. Zero means
	// DefaultWaitDelay.
	WaitDelay time.Duration
}

// NewExecRunner creates an ExecRunner
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes a command, capturing stdout and stderr separately
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (CommandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	r.prepare(cmd)

	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = DefaultWaitDelay
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := CommandResult{
		Stdout: stdout.Bytes(),
		Stderr: stderr.Bytes(),
	}

	// exited cleanly, but a descendant kept the pipes open
	if errors.Is(err, exec.ErrWaitDelay) && ctx.Err() == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			err = errors.Join(err, ctx.Err())
		}
		return res, err
	}
	return res, nil
}

// Spawn starts a command without waiting for it
func (r *ExecRunner) Spawn(name string, args []string, stdout, stderr io.Writer) (Process, error) {
	cmd := exec.Command(name, args...)
	r.prepare(cmd)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &execProcess{cmd: cmd}, nil
}

func (r *ExecRunner) prepare(cmd *exec.Cmd) {
	cmd.Dir = r.Dir
	if len(r.Env) > 0 {
		cmd.Env = append(os.Environ(), r.Env...)
	}
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Signal(sig os.Signal) error {
	return p.cmd.Process.Signal(sig)
}

func (p *execProcess) Wait() error {
	return p.cmd.Wait()
}

// commandLine renders an invocation the way a user would type it
func commandLine(name string, args []string) string {
	return strings.Join(append([]string{name}, args...), " ")
}
