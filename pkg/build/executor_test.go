package build

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeCheckouter struct {
	revs []string
	err  error
}

func (f *fakeCheckouter) Checkout(ctx context.Context, rev string) error {
	f.revs = append(f.revs, rev)
	return f.err
}

type builderFunc func(ctx context.Context, rev string) error

func (f builderFunc) Build(ctx context.Context, rev string) error { return f(ctx, rev) }

type countingLauncher struct{ calls int }

func (l *countingLauncher) Launch(ctx context.Context) error {
	l.calls++
	return errors.New("crashed")
}

func TestExecutor_Success(t *testing.T) {
	co := &fakeCheckouter{}
	var built []string
	launcher := &countingLauncher{}
	e := NewExecutor(co, builderFunc(func(ctx context.Context, rev string) error {
		built = append(built, rev)
		return nil
	}), zaptest.NewLogger(t), WithLauncher(launcher))

	outcome := e.Execute(context.Background(), "abc")
	assert.False(t, outcome.Failed)
	assert.NoError(t, outcome.Err)
	assert.Equal(t, []string{"abc"}, co.revs)
	assert.Equal(t, []string{"abc"}, built)
	assert.Equal(t, 1, launcher.calls, "launch errors are not build failures")
	assert.True(t, e.Launches())
}

func TestExecutor_BuildFailure(t *testing.T) {
	launcher := &countingLauncher{}
	e := NewExecutor(&fakeCheckouter{}, builderFunc(func(ctx context.Context, rev string) error {
		return errors.New("exit status 2")
	}), zaptest.NewLogger(t), WithLauncher(launcher))

	outcome := e.Execute(context.Background(), "abc")
	require.True(t, outcome.Failed)

	var failed *BuildFailedError
	require.True(t, errors.As(outcome.Err, &failed))
	assert.Equal(t, "build", failed.Stage)
	assert.Equal(t, "abc", failed.Revision)
	assert.Zero(t, launcher.calls)
}

func TestExecutor_CheckoutFailure(t *testing.T) {
	called := false
	e := NewExecutor(&fakeCheckouter{err: errors.New("abort: unknown revision")}, builderFunc(func(ctx context.Context, rev string) error {
		called = true
		return nil
	}), zaptest.NewLogger(t))

	outcome := e.Execute(context.Background(), "abc")
	require.True(t, outcome.Failed)
	assert.False(t, called)

	var failed *BuildFailedError
	require.True(t, errors.As(outcome.Err, &failed))
	assert.Equal(t, "checkout", failed.Stage)
}

func TestExecutor_TimeoutIsBuildFailure(t *testing.T) {
	e := NewExecutor(&fakeCheckouter{}, builderFunc(func(ctx context.Context, rev string) error {
		<-ctx.Done()
		return ctx.Err()
	}), zaptest.NewLogger(t), WithTimeout(20*time.Millisecond))

	outcome := e.Execute(context.Background(), "abc")
	require.True(t, outcome.Failed)
	assert.ErrorIs(t, outcome.Err, ErrBuildTimeout)

	var failed *BuildFailedError
	assert.True(t, errors.As(outcome.Err, &failed))
}

func TestExecutor_CallerCancellationIsNotBuildFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	e := NewExecutor(&fakeCheckouter{}, builderFunc(func(ctx context.Context, rev string) error {
		cancel()
		return ctx.Err()
	}), zaptest.NewLogger(t))

	outcome := e.Execute(ctx, "abc")
	require.True(t, outcome.Failed)
	assert.ErrorIs(t, outcome.Err, context.Canceled)

	var failed *BuildFailedError
	assert.False(t, errors.As(outcome.Err, &failed))
}
