package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jtodic/commit-builder/pkg/bisect"
	"github.com/jtodic/commit-builder/pkg/revision"
	"github.com/jtodic/commit-builder/pkg/verdict"
)

var bisectFlags struct {
	good          string
	bad           string
	condition     string
	conditionInit bool
	maxSteps      int
	timeout       string
	format        string
	output        string
	update        bool
}

var bisectCmd = &cobra.Command{
	Use:   "bisect -g <good> -b <bad> [-c condition] [-- condition args...]",
	Short: "Find the revision that introduced a regression",
	Long: `Use the revision control tool's bisect command to find the first bad revision
between a known good and a known bad endpoint.

Each endpoint is a revision or a date (YYYY-MM-DD). A good date resolves to the
first push of that day, a bad date to the last push of that day.

For every candidate cbx will:
1. Check out and build the candidate (failed builds are skipped)
2. Obtain a verdict: ask you, or run the test condition given with -c
3. Pass the verdict to bisect and read what it says next

A test condition is either an executable or a .go file. An executable is run as
'<condition> <objdir> <args...> <scratch dir>'; it prints good, bad, skip, true
or false on its last line, or exits 0 (good), 1 (bad) or 125 (skip). A .go file
declares 'func Interesting(args []string, scratch string) bool' and optionally
'func Init(args []string) error'. Arguments after -- are passed to the
condition.

The cached working copy is not pulled before a session. Pass --update, or run
'cbx trunk' first, to bisect against the latest pushes.`,
	Example: `  cbx bisect -g 2009-01-01 -b 2009-01-02
  cbx bisect -g 6a2f0e1c -b 9ab34cd0 -c ./crashes.sh -- --url http://localhost
  cbx bisect -g 6a2f0e1c -b tip -c checks/leak.go --report-format markdown -o report.md
  cbx bisect --update -g 2009-01-01 -b 2009-01-02`,
	Args: cobra.ArbitraryArgs,
	RunE: runBisect,
}

func init() {
	rootCmd.AddCommand(bisectCmd)

	bisectCmd.Flags().SetInterspersed(false)
	bisectCmd.Flags().StringVarP(&bisectFlags.good, "good", "g", "", "Known good revision or date (YYYY-MM-DD)")
	bisectCmd.Flags().StringVarP(&bisectFlags.bad, "bad", "b", "", "Known bad revision or date (YYYY-MM-DD)")
	bisectCmd.Flags().StringVarP(&bisectFlags.condition, "condition", "c", "", "Test condition deciding each verdict (default: ask)")
	bisectCmd.Flags().BoolVar(&bisectFlags.conditionInit, "condition-init", false, "Run '<condition> --init <args>' once before the first candidate")
	bisectCmd.Flags().IntVar(&bisectFlags.maxSteps, "max-steps", 0, "Give up after this many candidates (0 = no limit)")
	bisectCmd.Flags().StringVar(&bisectFlags.timeout, "timeout", "", "Per-build timeout, e.g. 45m; timed out builds are skipped")
	bisectCmd.Flags().StringVar(&bisectFlags.format, "report-format", "table", "Report format: table, json, csv, markdown")
	bisectCmd.Flags().StringVarP(&bisectFlags.output, "output", "o", "", "Report output file path (default stdout)")
	bisectCmd.Flags().BoolVarP(&bisectFlags.update, "update", "u", false, "Pull the latest pushes into the working copy before bisecting")

	bisectCmd.MarkFlagRequired("good")
	bisectCmd.MarkFlagRequired("bad")
}

func runBisect(cmd *cobra.Command, args []string) error {
	condition := bisectFlags.condition
	if condition == "" {
		condition = cfg.Bisect.Condition
	}
	interactive := condition == ""
	if interactive && len(args) > 0 {
		return fmt.Errorf("arguments %v given without a test condition", args)
	}
	if _, err := reportWriterFor(bisectFlags.format); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ws, err := openWorkspace(ctx, bisectFlags.update)
	if err != nil {
		return err
	}
	defer ws.Close()

	executor, err := ws.newExecutor(interactive)
	if err != nil {
		return fmt.Errorf("failed to create build executor: %w", err)
	}

	var (
		evaluator verdict.Evaluator
		reporter  bisect.Reporter
	)
	if interactive {
		evaluator = verdict.NewPrompter(os.Stdin, os.Stderr)
		reporter = newConsoleReporter(os.Stderr)
	} else {
		cond, err := verdict.LoadCondition(condition, bisectFlags.conditionInit || cfg.Bisect.ConditionInit, ws.runner, logger)
		if err != nil {
			return fmt.Errorf("failed to load test condition: %w", err)
		}
		condArgs := append([]string{cfg.ObjDir()}, args...)
		evaluator, err = verdict.NewConditionEvaluator(ctx, cond, condArgs, cfg.ScratchDir(), logger)
		if err != nil {
			return err
		}
		reporter = newProgressReporter(os.Stderr)
	}

	detector, err := cfg.Detector()
	if err != nil {
		return fmt.Errorf("invalid termination rules: %w", err)
	}

	resolver := revision.NewResolver(revision.NewPushLogClient(cfg.PushlogURL), logger)

	b, err := bisect.NewBisector(bisect.Config{
		MaxSteps:   cfg.Bisect.MaxSteps,
		MaxExtends: cfg.Bisect.MaxExtends,
		Version:    version,
		Platform:   string(ws.platform),
	}, bisect.Deps{
		Resolver:  resolver,
		Primitive: ws.repo,
		Executor:  executor,
		Evaluator: evaluator,
		Detector:  detector,
		Reporter:  reporter,
		Prepare:   ws.writeBuildConfig,
		Out:       os.Stderr,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create bisector: %w", err)
	}

	fmt.Fprintf(os.Stderr, "🔎 Starting bisect between %s (good) and %s (bad)...\n", bisectFlags.good, bisectFlags.bad)

	result, err := b.FindRegression(ctx, bisectFlags.good, bisectFlags.bad)
	if err != nil {
		return fmt.Errorf("bisect failed: %w", err)
	}

	printSummary(result)
	return writeReport(result, bisectFlags.format, bisectFlags.output)
}

func printSummary(result *bisect.Result) {
	fmt.Println()
	switch {
	case result.Found():
		color.New(color.FgRed, color.Bold).Printf("🎯 First bad revision: %s\n", result.Revision)
	case result.Suggested != "":
		color.New(color.FgYellow, color.Bold).Printf("🛑 Halted; restart with good revision %s\n", result.Suggested)
	default:
		color.New(color.FgYellow, color.Bold).Println("🛑 Halted without a suggested revision")
	}
	fmt.Printf("🔢 Candidates tested: %d (%d skipped)\n", len(result.Steps), result.Skipped())
	fmt.Printf("⏱️  Elapsed: %s\n", formatDuration(result.Elapsed()))
	fmt.Println()
}
