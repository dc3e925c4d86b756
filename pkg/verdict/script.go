package verdict

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jtodic/commit-builder/pkg/shell"
)

// Exit statuses understood from condition scripts that print no verdict.
const (
	ExitGood = 0
	ExitBad  = 1
	ExitSkip = 125
)

// ScriptCondition runs an external program as the test condition. It is
// invoked as `<command> <args...> <scratchDir>`. The last non-empty line of
// stdout of a successful run is parsed as a verdict (good/bad/skip or
// true/false), defaulting to good. A nonzero exit status decides on its own:
// 1 is bad, 125 is skip, anything else is an error.
type ScriptCondition struct {
	command shell.Command
	runner  shell.Runner
	logger  *zap.Logger
}

// InitScriptCondition is a ScriptCondition that also runs
// `<command> --init <args...>` once before the first candidate.
type InitScriptCondition struct {
	*ScriptCondition
}

// NewScriptCondition parses commandLine (shell quoting allowed). With
// withInit the returned condition implements Initializer.
func NewScriptCondition(commandLine string, withInit bool, runner shell.Runner, logger *zap.Logger) (TestCondition, error) {
	cmd, err := shell.Parse(commandLine)
	if err != nil {
		return nil, err
	}
	if runner == nil {
		runner = shell.ExecRunner{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	sc := &ScriptCondition{command: *cmd, runner: runner, logger: logger}
	if withInit {
		return &InitScriptCondition{ScriptCondition: sc}, nil
	}
	return sc, nil
}

func (s *ScriptCondition) run(ctx context.Context, args []string) (shell.Result, error) {
	cmd := s.command
	cmd.Args = append(append([]string{}, s.command.Args...), args...)
	s.logger.Debug("Running test condition", zap.String("command", cmd.String()))
	return s.runner.Run(ctx, &cmd)
}

func (s *ScriptCondition) Interesting(ctx context.Context, args []string, scratchDir string) (Verdict, error) {
	res, err := s.run(ctx, append(append([]string{}, args...), scratchDir))

	var exitErr *shell.ExitError
	switch {
	case err == nil:
		if v, ok := lastLineVerdict(res.Stdout); ok {
			return v, nil
		}
		return Good, nil
	case errors.As(err, &exitErr):
		switch exitErr.ExitCode {
		case ExitBad:
			return Bad, nil
		case ExitSkip:
			return Skip, nil
		}
		return "", fmt.Errorf("condition exited with status %d: %w", exitErr.ExitCode, err)
	default:
		return "", err
	}
}

func (s *InitScriptCondition) Init(ctx context.Context, args []string) error {
	_, err := s.run(ctx, append([]string{"--init"}, args...))
	return err
}

func lastLineVerdict(stdout string) (Verdict, bool) {
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if last == "" {
		return "", false
	}
	v, err := Parse(last)
	if err != nil {
		return "", false
	}
	return v, true
}
