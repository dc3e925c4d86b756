package bisect

import (
	"errors"
	"fmt"
)

// InvalidRangeError reports endpoints that cannot form a session. No build
// has run when it is returned.
type InvalidRangeError struct {
	Good   string
	Bad    string
	Reason string
	Err    error
}

func (e *InvalidRangeError) Error() string {
	msg := fmt.Sprintf("invalid range good=%s bad=%s: %s", e.Good, e.Bad, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InvalidRangeError) Unwrap() error { return e.Err }

var (
	// ErrStepLimit is returned when a session exceeds Config.MaxSteps.
	ErrStepLimit = errors.New("step limit reached before convergence")
	// ErrExtendLoop is returned when the primitive keeps asking to extend.
	ErrExtendLoop = errors.New("bisection kept requesting extend")
)
