package verdict

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/jtodic/commit-builder/pkg/shell"
)

// TestCondition automates the verdict. Interesting reports whether the
// candidate shows the regression; its verdict is usually Bad or Good, and may
// be Skip.
type TestCondition interface {
	Interesting(ctx context.Context, args []string, scratchDir string) (Verdict, error)
}

// Initializer is an optional TestCondition capability, run once per session.
type Initializer interface {
	Init(ctx context.Context, args []string) error
}

// Func adapts a function to TestCondition.
type Func func(ctx context.Context, args []string, scratchDir string) (Verdict, error)

func (f Func) Interesting(ctx context.Context, args []string, scratchDir string) (Verdict, error) {
	return f(ctx, args, scratchDir)
}

// BoolFunc adapts a predicate to TestCondition: true means Bad.
type BoolFunc func(ctx context.Context, args []string, scratchDir string) (bool, error)

func (f BoolFunc) Interesting(ctx context.Context, args []string, scratchDir string) (Verdict, error) {
	interesting, err := f(ctx, args, scratchDir)
	if err != nil {
		return "", err
	}
	return Parse(interesting)
}

// EvaluatorError reports a condition that failed during Init or Interesting.
// It ends the session.
type EvaluatorError struct {
	Phase    string
	Revision string
	Err      error
}

func (e *EvaluatorError) Error() string {
	if e.Revision == "" {
		return fmt.Sprintf("test condition %s failed: %v", e.Phase, e.Err)
	}
	return fmt.Sprintf("test condition %s failed for %s: %v", e.Phase, e.Revision, e.Err)
}

func (e *EvaluatorError) Unwrap() error { return e.Err }

// ConditionEvaluator obtains verdicts from a TestCondition.
type ConditionEvaluator struct {
	cond        TestCondition
	args        []string
	scratchRoot string
	logger      *zap.Logger
}

// NewConditionEvaluator wraps cond. args are passed to every call, normally
// the object directory followed by the user's passthrough arguments. When cond
// is an Initializer, Init runs here, once.
func NewConditionEvaluator(ctx context.Context, cond TestCondition, args []string, scratchRoot string, logger *zap.Logger) (*ConditionEvaluator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if initializer, ok := cond.(Initializer); ok {
		logger.Debug("Initializing test condition", zap.Strings("args", args))
		if err := initializer.Init(ctx, args); err != nil {
			return nil, &EvaluatorError{Phase: "init", Err: err}
		}
	}
	return &ConditionEvaluator{
		cond:        cond,
		args:        args,
		scratchRoot: scratchRoot,
		logger:      logger,
	}, nil
}

// Evaluate runs the condition in a fresh scratch directory named after rev.
func (e *ConditionEvaluator) Evaluate(ctx context.Context, rev string) (Verdict, error) {
	if err := os.MkdirAll(e.scratchRoot, 0755); err != nil {
		return "", fmt.Errorf("failed to create scratch root: %w", err)
	}
	prefix := rev
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	scratch, err := os.MkdirTemp(e.scratchRoot, prefix+"-")
	if err != nil {
		return "", fmt.Errorf("failed to create scratch directory: %w", err)
	}

	v, err := e.cond.Interesting(ctx, e.args, scratch)
	if err != nil {
		return "", &EvaluatorError{Phase: "evaluation", Revision: rev, Err: err}
	}
	if !v.Valid() {
		return "", &EvaluatorError{Phase: "evaluation", Revision: rev, Err: fmt.Errorf("invalid verdict %q", v)}
	}

	e.logger.Info("Test condition verdict",
		zap.String("revision", rev),
		zap.Stringer("verdict", v),
		zap.String("scratch", scratch))
	return v, nil
}

// LoadCondition picks the condition implementation for commandLine: a single
// .go file is interpreted, anything else runs as an external program.
func LoadCondition(commandLine string, withInit bool, runner shell.Runner, logger *zap.Logger) (TestCondition, error) {
	cmd, err := shell.Parse(commandLine)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(cmd.Name, ".go") && len(cmd.Args) == 0 {
		return LoadGoScript(cmd.Name, logger)
	}
	return NewScriptCondition(commandLine, withInit, runner, logger)
}
