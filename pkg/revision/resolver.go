// Package revision turns user supplied identifiers into concrete revisions.
//
// An identifier is either an explicit revision, which is returned unchanged,
// or a calendar day (YYYY-MM-DD) that is looked up in the repository's
// push-log.
package revision

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

// Bound selects which push of a day a date resolves to.
type Bound int

const (
	// Lower resolves to the first changeset of the earliest push of the day.
	Lower Bound = iota
	// Upper resolves to the first changeset of the latest push of the day.
	Upper
)

func (b Bound) String() string {
	if b == Upper {
		return "upper"
	}
	return "lower"
}

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// IsDate reports whether id should be resolved through the push-log.
func IsDate(id string) bool {
	return datePattern.MatchString(id)
}

// ResolutionError reports a failed date lookup.
type ResolutionError struct {
	Input string
	Bound Bound
	Err   error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve %q (%s bound): %v", e.Input, e.Bound, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// ErrNoPushes is wrapped by ResolutionError when a day has no recorded pushes.
var ErrNoPushes = errors.New("no pushes recorded")

// Resolver maps identifiers to revisions
type Resolver struct {
	pushlog PushLog
	logger  *zap.Logger
}

// NewResolver creates a Resolver backed by the given push-log
func NewResolver(pushlog PushLog, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{pushlog: pushlog, logger: logger}
}

// Resolve returns id unchanged unless it is a date, in which case the push-log
// is consulted and the first changeset of the earliest (Lower) or latest
// (Upper) push of that day is returned.
func (r *Resolver) Resolve(ctx context.Context, id string, bound Bound) (string, error) {
	if !IsDate(id) {
		return id, nil
	}

	day, err := time.Parse(dateLayout, id)
	if err != nil {
		return "", &ResolutionError{Input: id, Bound: bound, Err: err}
	}

	pushes, err := r.pushlog.PushesForDay(ctx, day)
	if err != nil {
		return "", &ResolutionError{Input: id, Bound: bound, Err: err}
	}
	if len(pushes) == 0 {
		return "", &ResolutionError{Input: id, Bound: bound, Err: ErrNoPushes}
	}

	push := pushes[0]
	if bound == Upper {
		push = pushes[len(pushes)-1]
	}
	if len(push.Changesets) == 0 {
		return "", &ResolutionError{
			Input: id,
			Bound: bound,
			Err:   fmt.Errorf("push %d has no changesets", push.ID),
		}
	}

	rev := push.Changesets[0]
	r.logger.Debug("Resolved date",
		zap.String("date", id),
		zap.Stringer("bound", bound),
		zap.Int("push", push.ID),
		zap.String("revision", rev))
	return rev, nil
}

// ResolveRange resolves a good (lower) and bad (upper) endpoint. Both must
// resolve; otherwise every failure is reported together.
func (r *Resolver) ResolveRange(ctx context.Context, good, bad string) (string, string, error) {
	var errs *multierror.Error

	goodRev, err := r.Resolve(ctx, good, Lower)
	if err != nil {
		errs = multierror.Append(errs, err)
	}
	badRev, err := r.Resolve(ctx, bad, Upper)
	if err != nil {
		errs = multierror.Append(errs, err)
	}

	if err := errs.ErrorOrNil(); err != nil {
		return "", "", err
	}
	return goodRev, badRev, nil
}
