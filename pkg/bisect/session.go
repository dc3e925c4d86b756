package bisect

import (
	"time"

	"github.com/google/uuid"

	"github.com/jtodic/commit-builder/pkg/verdict"
)

// State of a bisection session.
type State int

const (
	StateInitializing State = iota
	StateResolving
	StateStepping
	StateExtendPending
	// Terminal states.
	StateConverged
	StateHalted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateResolving:
		return "resolving"
	case StateStepping:
		return "stepping"
	case StateExtendPending:
		return "extend-pending"
	case StateConverged:
		return "converged"
	case StateHalted:
		return "halted"
	case StateAborted:
		return "aborted"
	}
	return "unknown"
}

// Terminal reports whether no further transitions happen from s.
func (s State) Terminal() bool {
	return s == StateConverged || s == StateHalted || s == StateAborted
}

// Step records one candidate of a session.
type Step struct {
	Number   int
	Revision string
	Verdict  verdict.Verdict
	// BuildError is set when the build failed and the candidate was skipped.
	BuildError     string
	Duration       time.Duration
	Classification Classification
	// Output is the primitive's text after the verdict, after any extends.
	Output string
	// Remaining is the primitive's estimate of steps left before this one,
	// -1 when unknown.
	Remaining int
	Extended  bool
}

// Session is the state of one bisection.
type Session struct {
	ID       string
	Good     string
	Bad      string
	Current  string
	State    State
	Steps    []Step
	Started  time.Time
	Finished time.Time
}

func newSession(now time.Time) *Session {
	return &Session{
		ID:      uuid.NewString(),
		State:   StateInitializing,
		Started: now,
	}
}

// Builds counts the steps whose build succeeded.
func (s *Session) Builds() int {
	n := 0
	for _, st := range s.Steps {
		if st.BuildError == "" {
			n++
		}
	}
	return n
}

// Skipped counts skipped candidates.
func (s *Session) Skipped() int {
	n := 0
	for _, st := range s.Steps {
		if st.Verdict == verdict.Skip {
			n++
		}
	}
	return n
}

// Elapsed is the session's wall-clock duration so far.
func (s *Session) Elapsed() time.Duration {
	if s.Finished.IsZero() {
		return time.Since(s.Started)
	}
	return s.Finished.Sub(s.Started)
}
