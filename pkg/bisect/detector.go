package bisect

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Classification is what the bisection primitive's output says about the
// session.
type Classification int

const (
	Continue Classification = iota
	NeedsExtend
	NeedsManualReinvocation
	Converged
)

func (c Classification) String() string {
	switch c {
	case NeedsExtend:
		return "needs-extend"
	case NeedsManualReinvocation:
		return "needs-manual-reinvocation"
	case Converged:
		return "converged"
	default:
		return "continue"
	}
}

// ParseClass parses the names printed by String.
func ParseClass(s string) (Classification, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "continue":
		return Continue, nil
	case "needs-extend", "extend":
		return NeedsExtend, nil
	case "needs-manual-reinvocation", "manual", "halt":
		return NeedsManualReinvocation, nil
	case "converged", "found":
		return Converged, nil
	}
	return Continue, fmt.Errorf("unknown classification %q", s)
}

// Rule maps a phrase found in the primitive's output to a classification.
type Rule struct {
	Phrase string
	Class  Classification
}

// Patterns extract revisions and progress from the primitive's output. Each
// pattern's first submatch is used. Empty patterns are skipped.
type Patterns struct {
	Located   string
	Suggested string
	Remaining string
}

// DefaultMercurialRules is ordered: hg prints the extend, ancestors and
// first-bad phrases together when unchecked ancestors remain, and extending
// must win. A range narrowed only by skips halts.
func DefaultMercurialRules() []Rule {
	return []Rule{
		{Phrase: "--extend", Class: NeedsExtend},
		{Phrase: "Not all ancestors", Class: NeedsManualReinvocation},
		{Phrase: "Due to skipped revisions", Class: NeedsManualReinvocation},
		{Phrase: "The first", Class: Converged},
	}
}

func DefaultMercurialPatterns() Patterns {
	return Patterns{
		Located:   `changeset:\s+\d+:([0-9a-f]+)`,
		Suggested: `ancestor, ([0-9a-f]+)`,
		Remaining: `~(\d+) tests?`,
	}
}

// DefaultGitRules has no extend rule; git bisect cannot extend.
func DefaultGitRules() []Rule {
	return []Rule{
		{Phrase: "is the first bad commit", Class: Converged},
		{Phrase: "The merge base", Class: NeedsManualReinvocation},
		{Phrase: "only 'skip'ped commits left", Class: NeedsManualReinvocation},
	}
}

func DefaultGitPatterns() Patterns {
	return Patterns{
		Located:   `(?m)^([0-9a-f]{7,40}) is the first bad commit`,
		Suggested: `merge base ([0-9a-f]+)`,
		Remaining: `roughly (\d+) steps?`,
	}
}

// Defaults returns the rule table and patterns for a revision-control tool.
func Defaults(vcs string) ([]Rule, Patterns) {
	if strings.EqualFold(vcs, "git") {
		return DefaultGitRules(), DefaultGitPatterns()
	}
	return DefaultMercurialRules(), DefaultMercurialPatterns()
}

// Detector classifies primitive output. The first rule whose phrase occurs in
// the output wins; output matching no rule is Continue.
type Detector struct {
	rules     []Rule
	located   *regexp.Regexp
	suggested *regexp.Regexp
	remaining *regexp.Regexp
}

// NewDetector compiles patterns. Rules with an empty phrase are rejected
// since they would match everything.
func NewDetector(rules []Rule, patterns Patterns) (*Detector, error) {
	for i, r := range rules {
		if r.Phrase == "" {
			return nil, fmt.Errorf("termination rule %d has an empty phrase", i)
		}
	}
	d := &Detector{rules: append([]Rule(nil), rules...)}

	var err error
	if d.located, err = compileOptional("located", patterns.Located); err != nil {
		return nil, err
	}
	if d.suggested, err = compileOptional("suggested", patterns.Suggested); err != nil {
		return nil, err
	}
	if d.remaining, err = compileOptional("remaining", patterns.Remaining); err != nil {
		return nil, err
	}
	return d, nil
}

func compileOptional(name, pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid %s pattern: %w", name, err)
	}
	if re.NumSubexp() < 1 {
		return nil, fmt.Errorf("%s pattern %q has no capture group", name, pattern)
	}
	return re, nil
}

// Classify never fails.
func (d *Detector) Classify(output string) Classification {
	for _, r := range d.rules {
		if strings.Contains(output, r.Phrase) {
			return r.Class
		}
	}
	return Continue
}

// LocatedRevision returns the first bad revision named in converged output.
func (d *Detector) LocatedRevision(output string) (string, bool) {
	return submatch(d.located, output)
}

// SuggestedRevision returns the revision the operator should restart from.
func (d *Detector) SuggestedRevision(output string) (string, bool) {
	return submatch(d.suggested, output)
}

// RemainingTests returns the primitive's estimate of steps left.
func (d *Detector) RemainingTests(output string) (int, bool) {
	s, ok := submatch(d.remaining, output)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

func submatch(re *regexp.Regexp, s string) (string, bool) {
	if re == nil {
		return "", false
	}
	m := re.FindStringSubmatch(s)
	if len(m) < 2 || m[1] == "" {
		return "", false
	}
	return m[1], true
}
