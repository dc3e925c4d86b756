// Package build compiles the working copy at a candidate revision, packages
// distributables and launches the produced application.
package build

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// BuildFailedError means the candidate could not be built. It is never a
// verdict about the regression.
type BuildFailedError struct {
	Revision string
	Stage    string
	Err      error
}

func (e *BuildFailedError) Error() string {
	return fmt.Sprintf("%s failed for %s: %v", e.Stage, e.Revision, e.Err)
}

func (e *BuildFailedError) Unwrap() error { return e.Err }

// ErrBuildTimeout is wrapped by BuildFailedError when a build ran too long.
var ErrBuildTimeout = errors.New("build timed out")

// Builder compiles whatever revision is checked out.
type Builder interface {
	Build(ctx context.Context, rev string) error
}

// Checkouter switches the working copy to a revision.
type Checkouter interface {
	Checkout(ctx context.Context, rev string) error
}

// Launcher starts the built application and blocks until it exits.
type Launcher interface {
	Launch(ctx context.Context) error
}

// Outcome is the result of building one candidate.
type Outcome struct {
	Revision string
	Failed   bool
	// Err is a *BuildFailedError when Failed, or the context error when the
	// caller cancelled.
	Err      error
	Duration time.Duration
}

// Executor checks out and builds candidates. It is not safe for concurrent
// use: all calls share one working copy.
type Executor struct {
	checkouter Checkouter
	builder    Builder
	launcher   Launcher
	timeout    time.Duration
	logger     *zap.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithLauncher launches the application after each successful build.
func WithLauncher(l Launcher) ExecutorOption {
	return func(e *Executor) { e.launcher = l }
}

// WithTimeout bounds each build. A timeout counts as a failed build.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.timeout = d }
}

// NewExecutor creates an Executor.
func NewExecutor(checkouter Checkouter, builder Builder, logger *zap.Logger, opts ...ExecutorOption) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{checkouter: checkouter, builder: builder, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Launches reports whether Execute runs the application after building.
func (e *Executor) Launches() bool {
	return e.launcher != nil
}

// Execute checks out rev and builds it.
func (e *Executor) Execute(ctx context.Context, rev string) Outcome {
	start := time.Now()
	outcome := Outcome{Revision: rev}

	if err := e.checkouter.Checkout(ctx, rev); err != nil {
		return e.fail(ctx, outcome, start, "checkout", err)
	}

	buildCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		buildCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	e.logger.Info("Building", zap.String("revision", rev))
	if err := e.builder.Build(buildCtx, rev); err != nil {
		if ctx.Err() == nil && errors.Is(buildCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s: %v", ErrBuildTimeout, e.timeout, err)
		}
		return e.fail(ctx, outcome, start, "build", err)
	}
	outcome.Duration = time.Since(start)
	e.logger.Info("Build complete", zap.String("revision", rev), zap.Duration("duration", outcome.Duration))

	if e.launcher != nil {
		if err := e.launcher.Launch(ctx); err != nil {
			e.logger.Warn("Application exited with error", zap.String("revision", rev), zap.Error(err))
		}
	}
	return outcome
}

func (e *Executor) fail(ctx context.Context, outcome Outcome, start time.Time, stage string, err error) Outcome {
	outcome.Duration = time.Since(start)
	outcome.Failed = true
	if ctx.Err() != nil {
		outcome.Err = ctx.Err()
		return outcome
	}
	outcome.Err = &BuildFailedError{Revision: outcome.Revision, Stage: stage, Err: err}
	e.logger.Warn("Build failed", zap.String("revision", outcome.Revision), zap.String("stage", stage), zap.Error(err))
	return outcome
}
