package vcs

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jtodic/commit-builder/pkg/bisect"
	"github.com/jtodic/commit-builder/pkg/shell"
)

// newHistory creates a repository with n commits, each rewriting file.txt, and
// returns the commit hashes oldest first.
func newHistory(t *testing.T, dir string, n int) []string {
	t.Helper()

	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	worktree, err := repo.Worktree()
	require.NoError(t, err)

	var hashes []string
	for i := 0; i < n; i++ {
		content := []byte{byte('a' + i), '\n'}
		require.NoError(t, os.WriteFile(filepath.Join(dir, "file.txt"), content, 0644))
		_, err := worktree.Add("file.txt")
		require.NoError(t, err)
		hash, err := worktree.Commit("commit", &git.CommitOptions{
			Author: &object.Signature{Name: "dev", Email: "dev@example.com", When: time.Unix(int64(1000+i), 0)},
		})
		require.NoError(t, err)
		hashes = append(hashes, hash.String())
	}
	return hashes
}

func TestGit_IdentifyCheckoutCurrent(t *testing.T) {
	dir := t.TempDir()
	hashes := newHistory(t, dir, 3)
	g := NewGit(dir, "", nil)
	ctx := context.Background()

	id, err := g.Identify(ctx, "HEAD~2")
	require.NoError(t, err)
	assert.Equal(t, hashes[0], id)

	require.NoError(t, g.Checkout(ctx, hashes[1]))
	current, err := g.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, hashes[1], current)

	data, err := os.ReadFile(filepath.Join(dir, "file.txt"))
	require.NoError(t, err)
	assert.Equal(t, "b\n", string(data))

	out, err := g.Update(ctx, hashes[0])
	require.NoError(t, err)
	assert.Contains(t, out, "HEAD is now at")
	current, err = g.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, hashes[0], current)
}

func TestGit_TipIgnoresDetachedHead(t *testing.T) {
	dir := t.TempDir()
	hashes := newHistory(t, dir, 3)
	g := NewGit(dir, "", nil)

	require.NoError(t, g.Checkout(context.Background(), hashes[0]))
	tip, err := g.Tip(context.Background())
	require.NoError(t, err)
	assert.Equal(t, hashes[2], tip)
}

func TestGit_UnknownRevision(t *testing.T) {
	dir := t.TempDir()
	newHistory(t, dir, 1)
	g := NewGit(dir, "", nil)

	_, err := g.Identify(context.Background(), "no-such-branch")
	assert.Error(t, err)
}

func TestGit_BisectCommands(t *testing.T) {
	rec := &recorder{}
	g := NewGit("/wc", "", rec)
	ctx := context.Background()

	_, err := g.Reset(ctx)
	require.NoError(t, err)
	_, err = g.MarkBad(ctx, "")
	require.NoError(t, err)
	_, err = g.MarkGood(ctx, "abc")
	require.NoError(t, err)
	_, err = g.Skip(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"git -C /wc bisect reset",
		"git -C /wc bisect start",
		"git -C /wc bisect bad",
		"git -C /wc bisect good abc",
		"git -C /wc bisect skip",
	}, rec.calls)

	_, err = g.Extend(ctx)
	assert.ErrorIs(t, err, ErrExtendUnsupported)
}

func TestGit_BisectStatusExitIsNotAnError(t *testing.T) {
	onlySkipped := "There are only 'skip'ped commits left to test.\n"
	rec := &recorder{fail: map[string]error{
		"git -C /wc bisect skip":      &shell.ExitError{Command: "git bisect skip", ExitCode: 2, Output: onlySkipped},
		"git -C /wc bisect good nope": &shell.ExitError{Command: "git bisect good nope", ExitCode: 128},
		"git -C /wc bisect bad":       &shell.ExitError{Command: "git bisect bad", ExitCode: 1},
	}}
	g := NewGit("/wc", "", rec)
	ctx := context.Background()

	_, err := g.Skip(ctx)
	assert.NoError(t, err)

	_, err = g.MarkGood(ctx, "nope")
	assert.Error(t, err)
	_, err = g.MarkBad(ctx, "")
	assert.Error(t, err)
}

func TestGit_OnlySkippedCommitsLeft(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	dir := t.TempDir()
	hashes := newHistory(t, dir, 6)
	g := NewGit(dir, "", nil)
	ctx := context.Background()

	_, err := g.Reset(ctx)
	require.NoError(t, err)
	_, err = g.Update(ctx, hashes[5])
	require.NoError(t, err)
	_, err = g.MarkBad(ctx, "")
	require.NoError(t, err)
	_, err = g.MarkGood(ctx, hashes[0])
	require.NoError(t, err)

	var out string
	for i := 0; i < 4; i++ {
		out, err = g.Skip(ctx)
		require.NoError(t, err, "skip %d", i+1)
	}
	assert.Contains(t, out, "only 'skip'ped commits left")

	detector, err := bisect.NewDetector(bisect.DefaultGitRules(), bisect.DefaultGitPatterns())
	require.NoError(t, err)
	assert.Equal(t, bisect.NeedsManualReinvocation, detector.Classify(out))

	_, err = g.Reset(ctx)
	assert.NoError(t, err)
}
