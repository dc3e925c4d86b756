package vcs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jtodic/commit-builder/pkg/shell"
)

// recorder is a shell.Runner that records invocations and replies from a
// table keyed by the joined argument list.
type recorder struct {
	calls   []string
	replies map[string]shell.Result
	fail    map[string]error
}

func (r *recorder) Run(ctx context.Context, cmd *shell.Command) (shell.Result, error) {
	key := strings.Join(append([]string{cmd.Name}, cmd.Args...), " ")
	r.calls = append(r.calls, key)
	if err, ok := r.fail[key]; ok {
		return shell.Result{Stderr: "abort: failure\n"}, err
	}
	return r.replies[key], nil
}

func TestMercurial_BisectCommands(t *testing.T) {
	rec := &recorder{replies: map[string]shell.Result{
		"hg -R /wc bisect --good abc": {Stdout: "Testing changeset 5:0123456789ab (4 changesets remaining, ~2 tests)\n"},
	}}
	m := NewMercurial("/wc", "https://hg.example.org/repo", rec)
	ctx := context.Background()

	_, err := m.Reset(ctx)
	require.NoError(t, err)
	_, err = m.Update(ctx, "def")
	require.NoError(t, err)
	_, err = m.MarkBad(ctx, "")
	require.NoError(t, err)
	out, err := m.MarkGood(ctx, "abc")
	require.NoError(t, err)
	assert.Contains(t, out, "Testing changeset 5")
	_, err = m.Skip(ctx)
	require.NoError(t, err)
	_, err = m.Extend(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"hg -R /wc bisect --reset",
		"hg -R /wc update -r def",
		"hg -R /wc bisect --bad",
		"hg -R /wc bisect --good abc",
		"hg -R /wc bisect --skip",
		"hg -R /wc bisect --extend",
	}, rec.calls)
}

func TestMercurial_Identify(t *testing.T) {
	rec := &recorder{replies: map[string]shell.Result{
		"hg -R /wc log -r abc --template {node}": {Stdout: "abcdef0123456789\n"},
		"hg -R /wc log -r tip --template {node}": {Stdout: "ffff0000"},
	}}
	m := NewMercurial("/wc", "", rec)

	node, err := m.Identify(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "abcdef0123456789", node)

	tip, err := m.Tip(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ffff0000", tip)

	_, err = m.Identify(context.Background(), "missing")
	assert.Error(t, err)
}

func TestMercurial_CommandFailureKeepsOutput(t *testing.T) {
	boom := errors.New("exit status 255")
	rec := &recorder{fail: map[string]error{"hg -R /wc bisect --skip": boom}}
	m := NewMercurial("/wc", "", rec)

	out, err := m.Skip(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, out, "abort")
}

func TestMercurial_EnsureClonesOrPulls(t *testing.T) {
	cache := t.TempDir()
	wc := filepath.Join(cache, "trunk")

	rec := &recorder{}
	m := NewMercurial(wc, "https://hg.example.org/repo", rec)
	require.NoError(t, m.Ensure(context.Background(), false))
	assert.Equal(t, []string{"hg clone https://hg.example.org/repo " + wc}, rec.calls)

	require.NoError(t, os.MkdirAll(filepath.Join(wc, ".hg"), 0755))
	rec.calls = nil
	require.NoError(t, m.Ensure(context.Background(), false))
	assert.Equal(t, []string{"hg -R " + wc + " pull -u"}, rec.calls)

	rec.calls = nil
	require.NoError(t, m.Ensure(context.Background(), true))
	assert.Equal(t, []string{"hg clone https://hg.example.org/repo " + wc}, rec.calls)
	_, err := os.Stat(filepath.Join(wc, ".hg"))
	assert.True(t, os.IsNotExist(err))
}

func TestOpen(t *testing.T) {
	repo, err := Open("hg", "/wc", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "hg", repo.Name())

	repo, err = Open("GIT", "/wc", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "git", repo.Name())

	_, err = Open("svn", "/wc", "", nil)
	assert.Error(t, err)
}

func TestCheckPrerequisite_Missing(t *testing.T) {
	err := CheckPrerequisite(context.Background(), &recorder{}, "cbx-no-such-tool")

	var missing *PrerequisiteMissingError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "cbx-no-such-tool", missing.Tool)
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "01234567", ShortID("0123456789abcdef", 8))
	assert.Equal(t, "abc", ShortID("abc", 8))
}
