package bisect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jtodic/commit-builder/pkg/verdict"
)

func TestState(t *testing.T) {
	tests := []struct {
		state    State
		name     string
		terminal bool
	}{
		{StateInitializing, "initializing", false},
		{StateResolving, "resolving", false},
		{StateStepping, "stepping", false},
		{StateExtendPending, "extend-pending", false},
		{StateConverged, "converged", true},
		{StateHalted, "halted", true},
		{StateAborted, "aborted", true},
		{State(99), "unknown", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.state.String())
			assert.Equal(t, tt.terminal, tt.state.Terminal())
		})
	}
}

func TestSession_Counters(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := newSession(start)
	assert.Equal(t, StateInitializing, s.State)
	assert.NotEmpty(t, s.ID)

	s.Steps = []Step{
		{Number: 1, Verdict: verdict.Good},
		{Number: 2, Verdict: verdict.Skip, BuildError: "make: exit status 2"},
		{Number: 3, Verdict: verdict.Skip},
		{Number: 4, Verdict: verdict.Bad},
	}
	assert.Equal(t, 3, s.Builds())
	assert.Equal(t, 2, s.Skipped())

	s.Finished = start.Add(90 * time.Second)
	assert.Equal(t, 90*time.Second, s.Elapsed())
}
