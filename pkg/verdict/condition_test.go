package verdict

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/jtodic/commit-builder/pkg/shell"
)

type initCondition struct {
	inits   int
	calls   int
	initErr error
	result  bool
}

func (c *initCondition) Init(ctx context.Context, args []string) error {
	c.inits++
	return c.initErr
}

func (c *initCondition) Interesting(ctx context.Context, args []string, scratchDir string) (Verdict, error) {
	c.calls++
	return Parse(c.result)
}

func TestConditionEvaluator_BooleanTrueIsBad(t *testing.T) {
	var gotArgs []string
	var gotScratch string
	cond := BoolFunc(func(ctx context.Context, args []string, scratchDir string) (bool, error) {
		gotArgs = args
		gotScratch = scratchDir
		return true, nil
	})

	root := filepath.Join(t.TempDir(), "scratch")
	e, err := NewConditionEvaluator(context.Background(), cond, []string{"/obj", "-opt1"}, root, zaptest.NewLogger(t))
	require.NoError(t, err)

	v, err := e.Evaluate(context.Background(), "0123456789abcdef")
	require.NoError(t, err)
	assert.Equal(t, Bad, v)
	assert.Equal(t, []string{"/obj", "-opt1"}, gotArgs)
	assert.True(t, strings.HasPrefix(filepath.Base(gotScratch), "01234567-"))

	info, err := os.Stat(gotScratch)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestConditionEvaluator_InitRunsOnce(t *testing.T) {
	cond := &initCondition{}
	e, err := NewConditionEvaluator(context.Background(), cond, nil, t.TempDir(), zaptest.NewLogger(t))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		v, err := e.Evaluate(context.Background(), "abc")
		require.NoError(t, err)
		assert.Equal(t, Good, v)
	}
	assert.Equal(t, 1, cond.inits)
	assert.Equal(t, 3, cond.calls)
}

func TestConditionEvaluator_InitFailure(t *testing.T) {
	cond := &initCondition{initErr: errors.New("no display")}
	_, err := NewConditionEvaluator(context.Background(), cond, nil, t.TempDir(), nil)

	var evalErr *EvaluatorError
	require.True(t, errors.As(err, &evalErr))
	assert.Equal(t, "init", evalErr.Phase)
	assert.Zero(t, cond.calls)
}

func TestConditionEvaluator_EvaluationFailure(t *testing.T) {
	boom := errors.New("crashed")
	cond := Func(func(ctx context.Context, args []string, scratchDir string) (Verdict, error) {
		return "", boom
	})
	e, err := NewConditionEvaluator(context.Background(), cond, nil, t.TempDir(), nil)
	require.NoError(t, err)

	_, err = e.Evaluate(context.Background(), "abc")
	var evalErr *EvaluatorError
	require.True(t, errors.As(err, &evalErr))
	assert.Equal(t, "abc", evalErr.Revision)
	assert.ErrorIs(t, err, boom)
}

func TestConditionEvaluator_InvalidVerdict(t *testing.T) {
	cond := Func(func(ctx context.Context, args []string, scratchDir string) (Verdict, error) {
		return Verdict("perhaps"), nil
	})
	e, err := NewConditionEvaluator(context.Background(), cond, nil, t.TempDir(), nil)
	require.NoError(t, err)

	_, err = e.Evaluate(context.Background(), "abc")
	var evalErr *EvaluatorError
	assert.True(t, errors.As(err, &evalErr))
}

func scriptRunner(res shell.Result, err error, seen *[]*shell.Command) shell.Runner {
	return shell.RunnerFunc(func(ctx context.Context, cmd *shell.Command) (shell.Result, error) {
		*seen = append(*seen, cmd)
		return res, err
	})
}

func TestScriptCondition(t *testing.T) {
	tests := []struct {
		name string
		res  shell.Result
		err  error
		want Verdict
	}{
		{"prints bad", shell.Result{Stdout: "crash detected\nbad\n"}, nil, Bad},
		{"prints true", shell.Result{Stdout: "true\n"}, nil, Bad},
		{"prints skip", shell.Result{Stdout: "skip"}, nil, Skip},
		{"silent success", shell.Result{Stdout: "checked 3 pages\n"}, nil, Good},
		{"exit 1", shell.Result{ExitCode: 1}, &shell.ExitError{ExitCode: 1}, Bad},
		{"exit 125", shell.Result{ExitCode: 125}, &shell.ExitError{ExitCode: 125}, Skip},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen []*shell.Command
			cond, err := NewScriptCondition("cond.sh -x", false, scriptRunner(tt.res, tt.err, &seen), zaptest.NewLogger(t))
			require.NoError(t, err)

			v, err := cond.Interesting(context.Background(), []string{"/obj", "a"}, "/scratch")
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
			require.Len(t, seen, 1)
			assert.Equal(t, "cond.sh", seen[0].Name)
			assert.Equal(t, []string{"-x", "/obj", "a", "/scratch"}, seen[0].Args)
		})
	}
}

func TestScriptCondition_UnexpectedExit(t *testing.T) {
	var seen []*shell.Command
	cond, err := NewScriptCondition("cond.sh", false, scriptRunner(shell.Result{ExitCode: 2}, &shell.ExitError{ExitCode: 2}, &seen), nil)
	require.NoError(t, err)

	_, err = cond.Interesting(context.Background(), nil, "/scratch")
	assert.Error(t, err)
}

func TestScriptCondition_InitCapability(t *testing.T) {
	var seen []*shell.Command
	plain, err := NewScriptCondition("cond.sh", false, scriptRunner(shell.Result{}, nil, &seen), nil)
	require.NoError(t, err)
	_, ok := plain.(Initializer)
	assert.False(t, ok)

	withInit, err := NewScriptCondition("cond.sh", true, scriptRunner(shell.Result{}, nil, &seen), nil)
	require.NoError(t, err)
	initializer, ok := withInit.(Initializer)
	require.True(t, ok)
	require.NoError(t, initializer.Init(context.Background(), []string{"/obj"}))
	assert.Equal(t, []string{"--init", "/obj"}, seen[len(seen)-1].Args)
}

func TestLoadCondition_PicksImplementation(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "cond.go")
	require.NoError(t, os.WriteFile(script, []byte(`package main

func Interesting(args []string, scratch string) bool { return false }
`), 0644))

	cond, err := LoadCondition(script, false, nil, nil)
	require.NoError(t, err)
	_, isGo := cond.(*GoScriptCondition)
	assert.True(t, isGo)

	cond, err = LoadCondition("./cond.sh --fast", false, nil, nil)
	require.NoError(t, err)
	_, isScript := cond.(*ScriptCondition)
	assert.True(t, isScript)
}
