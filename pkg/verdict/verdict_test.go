package verdict

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   any
		want Verdict
	}{
		{true, Bad},
		{false, Good},
		{"good", Good},
		{"BAD", Bad},
		{" skip\n", Skip},
		{"g", Good},
		{"true", Bad},
		{"false", Good},
		{Skip, Skip},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		require.NoError(t, err, "input %v", tt.in)
		assert.Equal(t, tt.want, got, "input %v", tt.in)
	}

	for _, bad := range []any{"maybe", 3, nil, Verdict("meh")} {
		_, err := Parse(bad)
		assert.Error(t, err, "input %v", bad)
	}
}

func TestPrompter_RepromptsUntilRecognized(t *testing.T) {
	var out bytes.Buffer
	p := NewPrompter(strings.NewReader("dunno\n\nyes\n  B \n"), &out)

	v, err := p.Evaluate(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, Bad, v)
	assert.Equal(t, 4, strings.Count(out.String(), PromptText))
}

func TestPrompter_Abbreviations(t *testing.T) {
	for in, want := range map[string]Verdict{"g\n": Good, "s\n": Skip, "good\n": Good, "skip": Skip} {
		v, err := NewPrompter(strings.NewReader(in), &bytes.Buffer{}).Evaluate(context.Background(), "abc")
		require.NoError(t, err)
		assert.Equal(t, want, v, "input %q", in)
	}
}

func TestPrompter_InputClosed(t *testing.T) {
	_, err := NewPrompter(strings.NewReader("what\n"), &bytes.Buffer{}).Evaluate(context.Background(), "abc")
	assert.Error(t, err)
}
