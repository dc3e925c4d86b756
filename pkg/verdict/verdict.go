// Package verdict decides whether a built candidate is good, bad, or cannot be
// judged, either by asking an operator or by running an automated condition.
package verdict

import (
	"context"
	"fmt"
	"strings"
)

// Verdict is the judgment for one candidate.
type Verdict string

const (
	Good Verdict = "good"
	Bad  Verdict = "bad"
	// Skip marks a candidate that cannot be judged. It never narrows the
	// search range.
	Skip Verdict = "skip"
)

func (v Verdict) String() string { return string(v) }

// Valid reports whether v is one of Good, Bad or Skip.
func (v Verdict) Valid() bool {
	return v == Good || v == Bad || v == Skip
}

// Evaluator produces a verdict for the checked out candidate.
type Evaluator interface {
	Evaluate(ctx context.Context, rev string) (Verdict, error)
}

// ParseToken maps operator or plugin text to a verdict. Abbreviations g, b
// and s are accepted; case and surrounding space are ignored.
func ParseToken(s string) (Verdict, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "good", "g":
		return Good, true
	case "bad", "b":
		return Bad, true
	case "skip", "s":
		return Skip, true
	}
	return "", false
}

// Parse maps a condition result to a verdict. Verdict strings map directly;
// a boolean means "interesting", so true is Bad and false is Good.
func Parse(result any) (Verdict, error) {
	switch r := result.(type) {
	case Verdict:
		if r.Valid() {
			return r, nil
		}
	case bool:
		if r {
			return Bad, nil
		}
		return Good, nil
	case string:
		if v, ok := ParseToken(r); ok {
			return v, nil
		}
		switch strings.ToLower(strings.TrimSpace(r)) {
		case "true":
			return Bad, nil
		case "false":
			return Good, nil
		}
	}
	return "", fmt.Errorf("unrecognized condition result %v (%T)", result, result)
}
