package vcs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jtodic/commit-builder/pkg/shell"
)

// Mercurial drives an hg working copy and hg bisect.
type Mercurial struct {
	path   string
	url    string
	runner shell.Runner
}

// NewMercurial creates a Mercurial backend for the working copy at path,
// cloned from url.
func NewMercurial(path, url string, runner shell.Runner) *Mercurial {
	if runner == nil {
		runner = shell.ExecRunner{}
	}
	return &Mercurial{path: path, url: url, runner: runner}
}

func (m *Mercurial) Name() string { return "hg" }

func (m *Mercurial) Path() string { return m.path }

// hg runs hg against the working copy and returns its combined output.
func (m *Mercurial) hg(ctx context.Context, args ...string) (string, error) {
	res, err := m.runner.Run(ctx, &shell.Command{
		Name: "hg",
		Args: append([]string{"-R", m.path}, args...),
	})
	if err != nil {
		return res.Combined(), fmt.Errorf("hg %s: %w", strings.Join(args, " "), err)
	}
	return res.Combined(), nil
}

func (m *Mercurial) Ensure(ctx context.Context, fresh bool) error {
	if fresh {
		if err := os.RemoveAll(m.path); err != nil {
			return fmt.Errorf("failed to remove working copy: %w", err)
		}
	}

	if _, err := os.Stat(filepath.Join(m.path, ".hg")); err == nil {
		_, err := m.hg(ctx, "pull", "-u")
		return err
	}

	if err := os.RemoveAll(m.path); err != nil {
		return fmt.Errorf("failed to remove stale working copy: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	_, err := m.runner.Run(ctx, &shell.Command{
		Name: "hg",
		Args: []string{"clone", m.url, m.path},
	})
	if err != nil {
		return fmt.Errorf("hg clone %s: %w", m.url, err)
	}
	return nil
}

func (m *Mercurial) node(ctx context.Context, rev string) (string, error) {
	out, err := m.hg(ctx, "log", "-r", rev, "--template", "{node}")
	if err != nil {
		return "", err
	}
	node := strings.TrimSpace(out)
	if node == "" {
		return "", fmt.Errorf("unknown revision %q", rev)
	}
	return node, nil
}

func (m *Mercurial) Tip(ctx context.Context) (string, error) {
	return m.node(ctx, "tip")
}

func (m *Mercurial) Identify(ctx context.Context, rev string) (string, error) {
	return m.node(ctx, rev)
}

func (m *Mercurial) Current(ctx context.Context) (string, error) {
	return m.node(ctx, ".")
}

func (m *Mercurial) Checkout(ctx context.Context, rev string) error {
	_, err := m.hg(ctx, "update", "-r", rev)
	return err
}

func (m *Mercurial) Reset(ctx context.Context) (string, error) {
	return m.hg(ctx, "bisect", "--reset")
}

func (m *Mercurial) Update(ctx context.Context, rev string) (string, error) {
	return m.hg(ctx, "update", "-r", rev)
}

func (m *Mercurial) MarkGood(ctx context.Context, rev string) (string, error) {
	return m.hg(ctx, withRev([]string{"bisect", "--good"}, rev)...)
}

func (m *Mercurial) MarkBad(ctx context.Context, rev string) (string, error) {
	return m.hg(ctx, withRev([]string{"bisect", "--bad"}, rev)...)
}

func (m *Mercurial) Skip(ctx context.Context) (string, error) {
	return m.hg(ctx, "bisect", "--skip")
}

func (m *Mercurial) Extend(ctx context.Context) (string, error) {
	return m.hg(ctx, "bisect", "--extend")
}

func withRev(args []string, rev string) []string {
	if rev == "" {
		return args
	}
	return append(args, rev)
}
