package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/schollz/progressbar/v3"

	"github.com/jtodic/commit-builder/pkg/bisect"
	"github.com/jtodic/commit-builder/pkg/verdict"
)

// StepResult is one candidate in a bisection report
type StepResult struct {
	Step           int     `json:"step"`
	Revision       string  `json:"revision"`
	Verdict        string  `json:"verdict"`
	BuildError     string  `json:"build_error,omitempty"`
	DurationSec    float64 `json:"duration_sec"`
	Classification string  `json:"classification"`
	Extended       bool    `json:"extended,omitempty"`
}

// BisectJSONReport is the document written by --report-format json
type BisectJSONReport struct {
	Session   string       `json:"session"`
	State     string       `json:"state"`
	Good      string       `json:"good"`
	Bad       string       `json:"bad"`
	Revision  string       `json:"first_bad,omitempty"`
	Suggested string       `json:"suggested_good,omitempty"`
	Started   time.Time    `json:"started"`
	Finished  time.Time    `json:"finished"`
	Version   string       `json:"version"`
	Platform  string       `json:"platform"`
	Steps     []StepResult `json:"steps"`
}

type reportFunc func(w io.Writer, result *bisect.Result) error

func reportWriterFor(format string) (reportFunc, error) {
	switch format {
	case "table":
		return generateTableReport, nil
	case "json":
		return generateJSONReport, nil
	case "csv":
		return generateCSVReport, nil
	case "markdown":
		return generateMarkdownReport, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func writeReport(result *bisect.Result, format, path string) error {
	generate, err := reportWriterFor(format)
	if err != nil {
		return err
	}

	output := os.Stdout
	if path != "" {
		output, err = os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer output.Close()
	}

	if err := generate(output, result); err != nil {
		return err
	}
	if path != "" {
		fmt.Fprintf(os.Stderr, "✅ Report saved to: %s\n", path)
	}
	return nil
}

func stepResults(result *bisect.Result) []StepResult {
	rows := make([]StepResult, 0, len(result.Steps))
	for _, s := range result.Steps {
		rows = append(rows, StepResult{
			Step:           s.Number,
			Revision:       s.Revision,
			Verdict:        s.Verdict.String(),
			BuildError:     s.BuildError,
			DurationSec:    s.Duration.Seconds(),
			Classification: s.Classification.String(),
			Extended:       s.Extended,
		})
	}
	return rows
}

func generateTableReport(w io.Writer, result *bisect.Result) error {
	fmt.Fprintf(w, "Bisection %s (%s)\n\n", result.ID, result.State)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Step", "Revision", "Verdict", "Build", "Status"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetColumnSeparator(" ")
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for _, s := range result.Steps {
		buildCol := formatDuration(s.Duration)
		if s.BuildError != "" {
			buildCol = "failed"
		}
		status := s.Classification.String()
		if s.Extended {
			status += " (extended)"
		}
		table.Append([]string{
			fmt.Sprintf("%d", s.Number),
			truncate(s.Revision, 12),
			s.Verdict.String(),
			buildCol,
			status,
		})
	}
	table.Render()

	fmt.Fprintln(w)
	if result.Found() {
		fmt.Fprintf(w, "First bad revision: %s\n", result.Revision)
		fmt.Fprintln(w, result.Banner())
	} else if result.Suggested != "" {
		fmt.Fprintf(w, "Restart with good revision: %s\n", result.Suggested)
	}
	return nil
}

func generateJSONReport(w io.Writer, result *bisect.Result) error {
	report := BisectJSONReport{
		Session:   result.ID,
		State:     result.State.String(),
		Good:      result.Good,
		Bad:       result.Bad,
		Revision:  result.Revision,
		Suggested: result.Suggested,
		Started:   result.Started.UTC(),
		Finished:  result.Finished.UTC(),
		Version:   result.Version,
		Platform:  result.Platform,
		Steps:     stepResults(result),
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

func generateCSVReport(w io.Writer, result *bisect.Result) error {
	fmt.Fprintf(w, "# Bisection %s: %s\n", result.ID, result.State)
	if result.Found() {
		fmt.Fprintf(w, "# first_bad,%s\n", result.Revision)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "step,revision,verdict,duration_sec,classification,build_error")
	for _, r := range stepResults(result) {
		fmt.Fprintf(w, "%d,%s,%s,%.1f,%s,\"%s\"\n",
			r.Step, r.Revision, r.Verdict, r.DurationSec, r.Classification,
			strings.ReplaceAll(r.BuildError, "\"", "\"\""))
	}
	return nil
}

func generateMarkdownReport(w io.Writer, result *bisect.Result) error {
	fmt.Fprintf(w, "# Bisection Report\n\n")
	fmt.Fprintf(w, "- **Session:** `%s`\n", result.ID)
	fmt.Fprintf(w, "- **Range:** `%s` (good) .. `%s` (bad)\n", result.Good, result.Bad)
	fmt.Fprintf(w, "- **Outcome:** %s\n", result.State)
	if result.Found() {
		fmt.Fprintf(w, "- **First bad revision:** `%s`\n", result.Revision)
	}
	if result.Suggested != "" {
		fmt.Fprintf(w, "- **Restart from:** `%s`\n", result.Suggested)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "| Step | Revision | Verdict | Build | Status |")
	fmt.Fprintln(w, "|------|----------|---------|-------|--------|")
	for _, s := range result.Steps {
		buildCol := formatDuration(s.Duration)
		if s.BuildError != "" {
			buildCol = "❌ failed"
		}
		fmt.Fprintf(w, "| %d | `%s` | %s | %s | %s |\n",
			s.Number, truncate(s.Revision, 12), verdictEmoji(s.Verdict), buildCol, s.Classification)
	}

	if result.Found() {
		fmt.Fprintf(w, "\n_%s_\n", result.Banner())
	}
	return nil
}

func verdictEmoji(v verdict.Verdict) string {
	switch v {
	case verdict.Good:
		return "✅ good"
	case verdict.Bad:
		return "🔴 bad"
	default:
		return "⏭️ skip"
	}
}

// consoleReporter prints one line per candidate. Used in interactive
// sessions, where a progress bar would fight with the prompt.
type consoleReporter struct {
	w io.Writer
}

func newConsoleReporter(w io.Writer) *consoleReporter {
	return &consoleReporter{w: w}
}

func (r *consoleReporter) StepStarted(step bisect.Step) {
	left := ""
	if step.Remaining >= 0 {
		left = fmt.Sprintf(" (~%d tests left)", step.Remaining)
	}
	fmt.Fprintf(r.w, "\n🔨 Step %d: building %s%s\n", step.Number, truncate(step.Revision, 12), left)
}

func (r *consoleReporter) StepFinished(step bisect.Step) {
	c := color.New(color.FgGreen)
	switch step.Verdict {
	case verdict.Bad:
		c = color.New(color.FgRed)
	case verdict.Skip:
		c = color.New(color.FgYellow)
	}
	c.Fprintf(r.w, "   %s marked %s\n", truncate(step.Revision, 12), step.Verdict)
}

// progressReporter drives a progress bar sized from bisect's own estimate
// of the remaining tests.
type progressReporter struct {
	w   io.Writer
	bar *progressbar.ProgressBar
}

func newProgressReporter(w io.Writer) *progressReporter {
	return &progressReporter{
		w: w,
		bar: progressbar.NewOptions(-1,
			progressbar.OptionSetWriter(w),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetDescription("[cyan]Bisecting...[reset]"),
		),
	}
}

func (r *progressReporter) StepStarted(step bisect.Step) {
	if step.Remaining >= 0 {
		r.bar.ChangeMax(step.Number + step.Remaining)
	}
	r.bar.Describe(fmt.Sprintf("[cyan]Testing %s...[reset]", truncate(step.Revision, 12)))
}

func (r *progressReporter) StepFinished(step bisect.Step) {
	r.bar.Add(1)
	if step.BuildError != "" && rootFlags.verbose {
		fmt.Fprintf(r.w, "\n  ⚠️ %s: %s\n", truncate(step.Revision, 12), step.BuildError)
	}
	if step.Classification != bisect.Continue {
		r.bar.Finish()
		fmt.Fprintln(r.w)
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
