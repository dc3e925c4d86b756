// Package vcs wraps the revision-control tools that own the working copy and
// the bisection primitive.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/jtodic/commit-builder/pkg/shell"
)

// Repository is a cached working copy plus its tool's bisect command. The
// bisect operations return the tool's free-text status.
type Repository interface {
	// Name of the backing tool, e.g. "hg".
	Name() string
	// Path of the working copy.
	Path() string

	// Ensure clones the working copy, or updates it to the latest upstream
	// revision. fresh discards any existing copy first.
	Ensure(ctx context.Context, fresh bool) error
	Tip(ctx context.Context) (string, error)
	// Identify returns the full id of rev.
	Identify(ctx context.Context, rev string) (string, error)
	Checkout(ctx context.Context, rev string) error
	// Current returns the id of the checked out revision.
	Current(ctx context.Context) (string, error)

	Reset(ctx context.Context) (string, error)
	Update(ctx context.Context, rev string) (string, error)
	// MarkGood marks rev, or the current revision when rev is empty.
	MarkGood(ctx context.Context, rev string) (string, error)
	// MarkBad marks rev, or the current revision when rev is empty.
	MarkBad(ctx context.Context, rev string) (string, error)
	Skip(ctx context.Context) (string, error)
	Extend(ctx context.Context) (string, error)
}

// ErrExtendUnsupported is returned by backends whose bisect has no extend step.
var ErrExtendUnsupported = errors.New("bisect extend is not supported")

// PrerequisiteMissingError reports a required external tool that is absent.
type PrerequisiteMissingError struct {
	Tool string
	Err  error
}

func (e *PrerequisiteMissingError) Error() string {
	return fmt.Sprintf("%s not installed on this system: %v", e.Tool, e.Err)
}

func (e *PrerequisiteMissingError) Unwrap() error { return e.Err }

// CheckPrerequisite verifies that tool is on PATH and answers --version.
func CheckPrerequisite(ctx context.Context, runner shell.Runner, tool string) error {
	if _, err := exec.LookPath(tool); err != nil {
		return &PrerequisiteMissingError{Tool: tool, Err: err}
	}
	if _, err := runner.Run(ctx, &shell.Command{Name: tool, Args: []string{"--version"}}); err != nil {
		return &PrerequisiteMissingError{Tool: tool, Err: err}
	}
	return nil
}

// Open returns the backend named kind for the working copy at path.
func Open(kind, path, url string, runner shell.Runner) (Repository, error) {
	switch strings.ToLower(kind) {
	case "hg", "mercurial", "":
		return NewMercurial(path, url, runner), nil
	case "git":
		return NewGit(path, url, runner), nil
	default:
		return nil, fmt.Errorf("unknown revision control backend %q", kind)
	}
}

// ShortID truncates a revision id to n characters.
func ShortID(rev string, n int) string {
	if len(rev) <= n {
		return rev
	}
	return rev[:n]
}
