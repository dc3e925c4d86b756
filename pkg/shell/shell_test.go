package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipOnWindows(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
}

func TestExecRunner_CapturesOutput(t *testing.T) {
	skipOnWindows(t)

	var passthrough bytes.Buffer
	res, err := ExecRunner{}.Run(context.Background(), &Command{
		Name:        "sh",
		Args:        []string{"-c", "echo out; echo err >&2"},
		Passthrough: &passthrough,
	})
	require.NoError(t, err)
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
	assert.Equal(t, 0, res.ExitCode)
	assert.Contains(t, passthrough.String(), "out")
	assert.Contains(t, passthrough.String(), "err")
}

func TestExecRunner_NonzeroExit(t *testing.T) {
	skipOnWindows(t)

	res, err := ExecRunner{}.Run(context.Background(), &Command{
		Name: "sh",
		Args: []string{"-c", "echo broken; exit 3"},
	})
	require.Error(t, err)

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 3, exitErr.ExitCode)
	assert.Equal(t, 3, res.ExitCode)
	assert.Contains(t, exitErr.Output, "broken")
}

func TestExecRunner_Env(t *testing.T) {
	skipOnWindows(t)

	res, err := ExecRunner{}.Run(context.Background(), &Command{
		Name: "sh",
		Args: []string{"-c", "echo $CBX_TEST_VALUE"},
		Env:  []string{"CBX_TEST_VALUE=hello"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", strings.TrimSpace(res.Stdout))
}

func TestExecRunner_Timeout(t *testing.T) {
	skipOnWindows(t)

	_, err := ExecRunner{}.Run(context.Background(), &Command{
		Name:    "sleep",
		Args:    []string{"5"},
		Timeout: 50 * time.Millisecond,
	})
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestExecRunner_ParentDeadline(t *testing.T) {
	skipOnWindows(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := ExecRunner{}.Run(ctx, &Command{Name: "sleep", Args: []string{"5"}})
	require.ErrorIs(t, err, ErrTimeout)
	assert.NotContains(t, err.Error(), "after 0s")
}

func TestExitError_KeepsOutputTail(t *testing.T) {
	var lines []string
	for i := 0; i < 500; i++ {
		lines = append(lines, fmt.Sprintf("compiling unit %d", i))
	}
	lines = append(lines, "error: undefined reference to `main'")
	err := &ExitError{Command: "make", ExitCode: 2, Output: strings.Join(lines, "\n") + "\n"}

	msg := err.Error()
	assert.True(t, strings.HasPrefix(msg, "make: exit status 2: "))
	assert.Contains(t, msg, "undefined reference")
	assert.NotContains(t, msg, "compiling unit 0\n")
	assert.LessOrEqual(t, strings.Count(msg, "\n"), errorTailLines-1)
	assert.Len(t, strings.Split(err.Output, "\n"), 502)

	assert.Equal(t, "make: exit status 1", (&ExitError{Command: "make", ExitCode: 1, Output: "\n"}).Error())
}

func TestTail(t *testing.T) {
	assert.Equal(t, "b\nc", Tail("a\nb\nc\n", 2))
	assert.Equal(t, "a\nb", Tail("a\nb", 5))
	assert.Equal(t, "", Tail("", 3))
}

func TestExecRunner_MissingBinary(t *testing.T) {
	_, err := ExecRunner{}.Run(context.Background(), &Command{Name: "cbx-definitely-not-installed"})
	require.Error(t, err)

	var exitErr *ExitError
	assert.False(t, errors.As(err, &exitErr))
}

func TestParse(t *testing.T) {
	cmd, err := Parse(`make -f client.mk "build all"`)
	require.NoError(t, err)
	assert.Equal(t, "make", cmd.Name)
	assert.Equal(t, []string{"-f", "client.mk", "build all"}, cmd.Args)

	_, err = Parse("   ")
	assert.Error(t, err)

	_, err = Parse(`echo "unterminated`)
	assert.Error(t, err)
}
