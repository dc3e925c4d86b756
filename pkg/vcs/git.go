package vcs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/jtodic/commit-builder/pkg/shell"
)

// Git drives a git working copy. Repository queries and checkouts go through
// go-git; the bisection primitive is the git CLI's bisect command.
type Git struct {
	path   string
	url    string
	runner shell.Runner
}

// NewGit creates a Git backend for the working copy at path, cloned from url.
func NewGit(path, url string, runner shell.Runner) *Git {
	if runner == nil {
		runner = shell.ExecRunner{}
	}
	return &Git{path: path, url: url, runner: runner}
}

func (g *Git) Name() string { return "git" }

func (g *Git) Path() string { return g.path }

func (g *Git) open() (*git.Repository, error) {
	repo, err := git.PlainOpen(g.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository: %w", err)
	}
	return repo, nil
}

func (g *Git) Ensure(ctx context.Context, fresh bool) error {
	if fresh {
		if err := os.RemoveAll(g.path); err != nil {
			return fmt.Errorf("failed to remove working copy: %w", err)
		}
	}

	repo, err := git.PlainOpen(g.path)
	if err == nil {
		worktree, err := repo.Worktree()
		if err != nil {
			return fmt.Errorf("failed to get worktree: %w", err)
		}
		err = worktree.PullContext(ctx, &git.PullOptions{RemoteName: git.DefaultRemoteName})
		if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
			return fmt.Errorf("failed to pull: %w", err)
		}
		return nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return fmt.Errorf("failed to open repository: %w", err)
	}

	if err := os.RemoveAll(g.path); err != nil {
		return fmt.Errorf("failed to remove stale working copy: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(g.path), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	_, err = git.PlainCloneContext(ctx, g.path, false, &git.CloneOptions{URL: g.url})
	if err != nil {
		return fmt.Errorf("failed to clone %s: %w", g.url, err)
	}
	return nil
}

// Tip returns the upstream default branch head, falling back to the local
// main/master branch and finally HEAD.
func (g *Git) Tip(ctx context.Context) (string, error) {
	repo, err := g.open()
	if err != nil {
		return "", err
	}

	for _, name := range []string{"refs/remotes/origin/HEAD", "refs/heads/main", "refs/heads/master"} {
		ref, err := repo.Reference(plumbing.ReferenceName(name), true)
		if err == nil {
			return ref.Hash().String(), nil
		}
	}

	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to get HEAD: %w", err)
	}
	return head.Hash().String(), nil
}

func (g *Git) Identify(ctx context.Context, rev string) (string, error) {
	repo, err := g.open()
	if err != nil {
		return "", err
	}
	hash, err := repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return "", fmt.Errorf("failed to resolve revision %s: %w", rev, err)
	}
	return hash.String(), nil
}

func (g *Git) Current(ctx context.Context) (string, error) {
	repo, err := g.open()
	if err != nil {
		return "", err
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to get HEAD: %w", err)
	}
	return head.Hash().String(), nil
}

func (g *Git) Checkout(ctx context.Context, rev string) error {
	repo, err := g.open()
	if err != nil {
		return err
	}
	hash, err := repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return fmt.Errorf("failed to resolve revision %s: %w", rev, err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	err = worktree.Checkout(&git.CheckoutOptions{
		Hash:  *hash,
		Force: true,
	})
	if err != nil {
		return fmt.Errorf("failed to checkout: %w", err)
	}
	return nil
}

func (g *Git) bisect(ctx context.Context, args ...string) (string, error) {
	res, err := g.runner.Run(ctx, &shell.Command{
		Name: "git",
		Args: append([]string{"-C", g.path, "bisect"}, args...),
	})
	if err != nil && !isBisectStatus(err) {
		return res.Combined(), fmt.Errorf("git bisect %s: %w", strings.Join(args, " "), err)
	}
	return res.Combined(), nil
}

// isBisectStatus reports whether err is git bisect exiting nonzero to
// report a stopping condition, such as only skipped commits being left (2)
// or a bad merge base (11). Exit 1 and 128 are genuine failures.
func isBisectStatus(err error) bool {
	var exitErr *shell.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	return exitErr.ExitCode > 1 && exitErr.ExitCode != 128
}

// Reset abandons any bisection in progress and starts a new one.
func (g *Git) Reset(ctx context.Context) (string, error) {
	resetOut, err := g.bisect(ctx, "reset")
	if err != nil {
		return resetOut, err
	}
	startOut, err := g.bisect(ctx, "start")
	return resetOut + startOut, err
}

func (g *Git) Update(ctx context.Context, rev string) (string, error) {
	if err := g.Checkout(ctx, rev); err != nil {
		return "", err
	}
	return fmt.Sprintf("HEAD is now at %s\n", ShortID(rev, 12)), nil
}

func (g *Git) MarkGood(ctx context.Context, rev string) (string, error) {
	return g.bisect(ctx, withRev([]string{"good"}, rev)...)
}

func (g *Git) MarkBad(ctx context.Context, rev string) (string, error) {
	return g.bisect(ctx, withRev([]string{"bad"}, rev)...)
}

func (g *Git) Skip(ctx context.Context) (string, error) {
	return g.bisect(ctx, "skip")
}

func (g *Git) Extend(ctx context.Context) (string, error) {
	return "", ErrExtendUnsupported
}
