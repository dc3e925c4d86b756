// Package shell runs external tools (hg, git, make, condition scripts) and
// captures their output. Callers depend on the Runner interface so tests can
// substitute canned results.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
)

// Command describes one process invocation.
type Command struct {
	// Name of the program, resolved through PATH.
	Name string
	// Args, not including Name.
	Args []string
	// Working directory. Empty means the current directory.
	Dir string
	// Extra environment entries appended to the current environment.
	Env []string
	// Stdin, if set, is connected to the process.
	Stdin io.Reader
	// Passthrough receives a copy of stdout and stderr as they are written.
	Passthrough io.Writer
	// Timeout bounds the whole run. Zero means no limit.
	Timeout time.Duration
}

func (c *Command) String() string {
	return shellquote.Join(append([]string{c.Name}, c.Args...)...)
}

// Result is the captured output of a finished command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Combined returns stdout followed by stderr.
func (r Result) Combined() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	return r.Stdout + r.Stderr
}

// ExitError is returned when a command ran but exited nonzero.
type ExitError struct {
	Command  string
	ExitCode int
	Output   string
}

// errorTailLines caps how much output ExitError.Error carries. The full
// output stays available in the Output field.
const errorTailLines = 10

func (e *ExitError) Error() string {
	tail := Tail(e.Output, errorTailLines)
	if tail == "" {
		return fmt.Sprintf("%s: exit status %d", e.Command, e.ExitCode)
	}
	return fmt.Sprintf("%s: exit status %d: %s", e.Command, e.ExitCode, tail)
}

// Tail returns the last n lines of output, trimmed.
func Tail(output string, n int) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// ErrTimeout is wrapped by the error of a command that ran past its Timeout.
var ErrTimeout = errors.New("command timed out")

// Runner executes commands.
type Runner interface {
	Run(ctx context.Context, cmd *Command) (Result, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, cmd *Command) (Result, error)

func (f RunnerFunc) Run(ctx context.Context, cmd *Command) (Result, error) {
	return f(ctx, cmd)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run starts the command and waits for it. A nonzero exit is reported as
// *ExitError alongside the captured Result.
func (ExecRunner) Run(ctx context.Context, cmd *Command) (Result, error) {
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Stdin = cmd.Stdin
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr
	if cmd.Passthrough != nil {
		c.Stdout = io.MultiWriter(&stdout, cmd.Passthrough)
		c.Stderr = io.MultiWriter(&stderr, cmd.Passthrough)
	}

	err := c.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if c.ProcessState != nil {
		res.ExitCode = c.ProcessState.ExitCode()
	}

	if ctx.Err() == context.DeadlineExceeded {
		if cmd.Timeout > 0 {
			return res, fmt.Errorf("%s: %w after %s", cmd, ErrTimeout, cmd.Timeout)
		}
		return res, fmt.Errorf("%s: %w", cmd, ErrTimeout)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return res, &ExitError{Command: cmd.String(), ExitCode: res.ExitCode, Output: res.Combined()}
	}
	if err != nil {
		return res, fmt.Errorf("%s: %w", cmd, err)
	}
	return res, nil
}

// Parse splits a command line with shell quoting rules.
func Parse(commandLine string) (*Command, error) {
	words, err := shellquote.Split(commandLine)
	if err != nil {
		return nil, fmt.Errorf("failed to parse command %q: %w", commandLine, err)
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	return &Command{Name: words[0], Args: words[1:]}, nil
}
