// Package bisect drives a revision-control tool's bisect command: it builds
// each candidate, obtains a verdict, and reads the tool's output to decide
// whether to continue, extend, stop, or report the first bad revision.
package bisect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jtodic/commit-builder/pkg/build"
	"github.com/jtodic/commit-builder/pkg/verdict"
)

// DefaultMaxExtends bounds consecutive extend requests after one verdict.
const DefaultMaxExtends = 8

// Primitive is the bisect command of the revision-control tool. Every call
// returns the tool's free-text status.
type Primitive interface {
	Identify(ctx context.Context, rev string) (string, error)
	Current(ctx context.Context) (string, error)
	Reset(ctx context.Context) (string, error)
	Update(ctx context.Context, rev string) (string, error)
	MarkGood(ctx context.Context, rev string) (string, error)
	MarkBad(ctx context.Context, rev string) (string, error)
	Skip(ctx context.Context) (string, error)
	Extend(ctx context.Context) (string, error)
}

// RangeResolver turns user supplied endpoints into revisions.
type RangeResolver interface {
	ResolveRange(ctx context.Context, good, bad string) (string, string, error)
}

// Executor builds one candidate.
type Executor interface {
	Execute(ctx context.Context, rev string) build.Outcome
}

// Reporter observes a session's progress.
type Reporter interface {
	StepStarted(step Step)
	StepFinished(step Step)
}

type Config struct {
	// MaxSteps stops a session that has not converged after this many
	// candidates. Zero means no limit.
	MaxSteps   int
	MaxExtends int
	Version    string
	Platform   string
}

type Deps struct {
	// Resolver is optional; without it endpoints must be revisions.
	Resolver  RangeResolver
	Primitive Primitive
	Executor  Executor
	Evaluator verdict.Evaluator
	Detector  *Detector
	Reporter  Reporter
	// Prepare runs once, after the range is validated and before the first
	// build.
	Prepare func(ctx context.Context) error
	// Out receives operator messages. Defaults to io.Discard.
	Out    io.Writer
	Logger *zap.Logger
	Now    func() time.Time
}

type Result struct {
	Session
	// Revision is the first bad revision when the session converged.
	Revision string
	// Suggested is the revision to restart from when the session halted.
	Suggested string
	Version   string
	Platform  string
}

// Found reports whether the first bad revision was located.
func (r *Result) Found() bool {
	return r.State == StateConverged && r.Revision != ""
}

// Banner is the line printed when the regression is found.
func (r *Result) Banner() string {
	return fmt.Sprintf("Regression found using cbx %s on %s at %s",
		r.Version, r.Platform, r.Finished.UTC().Format(time.RFC3339))
}

type Bisector struct {
	config  Config
	deps    Deps
	session *Session
}

func NewBisector(config Config, deps Deps) (*Bisector, error) {
	switch {
	case deps.Primitive == nil:
		return nil, errors.New("bisect primitive is required")
	case deps.Executor == nil:
		return nil, errors.New("build executor is required")
	case deps.Evaluator == nil:
		return nil, errors.New("verdict evaluator is required")
	case deps.Detector == nil:
		return nil, errors.New("termination detector is required")
	}
	if config.MaxExtends <= 0 {
		config.MaxExtends = DefaultMaxExtends
	}
	if deps.Out == nil {
		deps.Out = io.Discard
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Bisector{config: config, deps: deps}, nil
}

// Session returns the most recent session, including aborted ones.
func (b *Bisector) Session() *Session {
	return b.session
}

// FindRegression bisects between good and bad, each a revision or a
// YYYY-MM-DD date. A halted session is not an error: the result carries the
// suggested revision instead.
func (b *Bisector) FindRegression(ctx context.Context, good, bad string) (*Result, error) {
	s := newSession(b.deps.Now())
	b.session = s
	log := b.deps.Logger.With(zap.String("session", s.ID))

	s.State = StateResolving
	goodRev, badRev := good, bad
	if b.deps.Resolver != nil {
		var err error
		goodRev, badRev, err = b.deps.Resolver.ResolveRange(ctx, good, bad)
		if err != nil {
			return nil, b.abort(log, err)
		}
	}

	s.State = StateInitializing
	goodID, err := b.deps.Primitive.Identify(ctx, goodRev)
	if err != nil {
		return nil, b.abort(log, &InvalidRangeError{Good: goodRev, Bad: badRev, Reason: "cannot identify good revision", Err: err})
	}
	badID, err := b.deps.Primitive.Identify(ctx, badRev)
	if err != nil {
		return nil, b.abort(log, &InvalidRangeError{Good: goodRev, Bad: badRev, Reason: "cannot identify bad revision", Err: err})
	}
	if goodID == badID {
		return nil, b.abort(log, &InvalidRangeError{Good: goodRev, Bad: badRev, Reason: "good and bad are the same revision"})
	}
	s.Good, s.Bad = goodID, badID
	log.Info("Starting bisection", zap.String("good", goodID), zap.String("bad", badID))

	if b.deps.Prepare != nil {
		if err := b.deps.Prepare(ctx); err != nil {
			return nil, b.abort(log, fmt.Errorf("failed to prepare build: %w", err))
		}
	}

	out, err := b.start(ctx)
	if err != nil {
		return nil, b.abort(log, err)
	}
	s.State = StateStepping
	class, out, _, err := b.settle(ctx, out)
	if err != nil {
		return nil, b.abort(log, err)
	}
	remaining := b.remaining(out)

	for class == Continue {
		if err := ctx.Err(); err != nil {
			return nil, b.abort(log, err)
		}
		if b.config.MaxSteps > 0 && len(s.Steps) >= b.config.MaxSteps {
			return nil, b.abort(log, fmt.Errorf("%w (%d steps)", ErrStepLimit, len(s.Steps)))
		}

		step, err := b.step(ctx, log, len(s.Steps)+1, remaining)
		if err != nil {
			return nil, b.abort(log, err)
		}
		s.Steps = append(s.Steps, step)
		if b.deps.Reporter != nil {
			b.deps.Reporter.StepFinished(step)
		}
		class, out = step.Classification, step.Output
		remaining = b.remaining(out)
	}

	return b.finish(ctx, log, class, out)
}

// start resets the primitive and marks the endpoints. The output of the
// final mark is returned for classification, since adjacent endpoints
// converge immediately.
func (b *Bisector) start(ctx context.Context) (string, error) {
	p := b.deps.Primitive
	s := b.session

	if _, err := p.Reset(ctx); err != nil {
		return "", fmt.Errorf("failed to reset bisection: %w", err)
	}
	if _, err := p.Update(ctx, s.Bad); err != nil {
		return "", fmt.Errorf("failed to update to %s: %w", s.Bad, err)
	}
	if _, err := p.MarkBad(ctx, ""); err != nil {
		return "", fmt.Errorf("failed to mark %s bad: %w", s.Bad, err)
	}
	out, err := p.MarkGood(ctx, s.Good)
	if err != nil {
		return "", fmt.Errorf("failed to mark %s good: %w", s.Good, err)
	}
	b.echo(out)
	return out, nil
}

func (b *Bisector) step(ctx context.Context, log *zap.Logger, number, remaining int) (Step, error) {
	s := b.session
	rev, err := b.deps.Primitive.Current(ctx)
	if err != nil {
		return Step{}, fmt.Errorf("failed to read current candidate: %w", err)
	}
	s.Current = rev
	step := Step{Number: number, Revision: rev, Remaining: remaining}
	if b.deps.Reporter != nil {
		b.deps.Reporter.StepStarted(step)
	}
	log.Info("Testing candidate", zap.Int("step", number), zap.String("revision", rev))

	outcome := b.deps.Executor.Execute(ctx, rev)
	step.Duration = outcome.Duration
	if outcome.Failed {
		if err := ctx.Err(); err != nil {
			return Step{}, err
		}
		step.Verdict = verdict.Skip
		if outcome.Err != nil {
			step.BuildError = outcome.Err.Error()
		} else {
			step.BuildError = "build failed"
		}
		fmt.Fprintf(b.deps.Out, "⚠️  Build failed for %s, skipping\n", rev)
	} else {
		v, err := b.deps.Evaluator.Evaluate(ctx, rev)
		if err != nil {
			return Step{}, err
		}
		step.Verdict = v
	}

	out, err := b.submit(ctx, step.Verdict)
	if err != nil {
		return Step{}, err
	}
	b.echo(out)

	class, out, extended, err := b.settle(ctx, out)
	if err != nil {
		return Step{}, err
	}
	step.Classification = class
	step.Output = out
	step.Extended = extended
	return step, nil
}

func (b *Bisector) submit(ctx context.Context, v verdict.Verdict) (string, error) {
	var (
		out string
		err error
	)
	switch v {
	case verdict.Good:
		out, err = b.deps.Primitive.MarkGood(ctx, "")
	case verdict.Bad:
		out, err = b.deps.Primitive.MarkBad(ctx, "")
	case verdict.Skip:
		out, err = b.deps.Primitive.Skip(ctx)
	default:
		return "", fmt.Errorf("invalid verdict %q", v)
	}
	if err != nil {
		return "", fmt.Errorf("failed to submit %s verdict: %w", v, err)
	}
	return out, nil
}

// settle classifies out, extending the search while the primitive asks for
// it. The extend output replaces the verdict output.
func (b *Bisector) settle(ctx context.Context, out string) (Classification, string, bool, error) {
	class := b.deps.Detector.Classify(out)
	extended := false
	for extends := 0; class == NeedsExtend; extends++ {
		if extends >= b.config.MaxExtends {
			return class, out, extended, fmt.Errorf("%w %d times", ErrExtendLoop, extends)
		}
		b.session.State = StateExtendPending
		fmt.Fprintln(b.deps.Out, "🔄 Extending bisection range")

		var err error
		out, err = b.deps.Primitive.Extend(ctx)
		if err != nil {
			return class, out, extended, fmt.Errorf("failed to extend bisection: %w", err)
		}
		b.echo(out)
		extended = true
		class = b.deps.Detector.Classify(out)
	}
	b.session.State = StateStepping
	return class, out, extended, nil
}

func (b *Bisector) finish(ctx context.Context, log *zap.Logger, class Classification, out string) (*Result, error) {
	s := b.session
	s.Finished = b.deps.Now()
	result := &Result{Version: b.config.Version, Platform: b.config.Platform}

	switch class {
	case Converged:
		s.State = StateConverged
		rev, ok := b.deps.Detector.LocatedRevision(out)
		if !ok {
			current, err := b.deps.Primitive.Current(ctx)
			if err != nil {
				return nil, b.abort(log, fmt.Errorf("failed to read located revision: %w", err))
			}
			rev = current
		}
		result.Revision = rev
		result.Session = *s
		log.Info("Regression found", zap.String("revision", rev), zap.Int("steps", len(s.Steps)))
		fmt.Fprintln(b.deps.Out, result.Banner())
	case NeedsManualReinvocation:
		s.State = StateHalted
		result.Suggested, _ = b.deps.Detector.SuggestedRevision(out)
		result.Session = *s
		log.Warn("Bisection halted", zap.String("suggested", result.Suggested))
		if result.Suggested != "" {
			fmt.Fprintf(b.deps.Out, "🛑 Not all ancestors were checked; re-run with %s as the good revision\n", result.Suggested)
		} else {
			fmt.Fprintln(b.deps.Out, "🛑 Bisection halted; re-run with a new good revision")
		}
	default:
		return nil, b.abort(log, fmt.Errorf("session ended with %s", class))
	}
	return result, nil
}

func (b *Bisector) abort(log *zap.Logger, err error) error {
	b.session.State = StateAborted
	b.session.Finished = b.deps.Now()
	log.Error("Bisection aborted", zap.Error(err))
	return err
}

func (b *Bisector) remaining(out string) int {
	if n, ok := b.deps.Detector.RemainingTests(out); ok {
		return n
	}
	return -1
}

func (b *Bisector) echo(out string) {
	if out = strings.TrimSpace(out); out != "" {
		fmt.Fprintln(b.deps.Out, out)
	}
}
