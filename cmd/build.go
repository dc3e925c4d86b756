package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/jtodic/commit-builder/pkg/build"
)

var buildFlags struct {
	run     bool
	timeout string
}

var buildCmd = &cobra.Command{
	Use:   "build <revision>",
	Short: "Build a single revision",
	Long: `Check out one revision in the cached working copy and build it with the
configured build command or Docker builder. With --run the built application
is started afterwards and cbx waits for it to exit.`,
	Example: `  cbx build 9ab34cd0
  cbx build tip --run -j 16`,
	Args: cobra.ExactArgs(1),
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().BoolVar(&buildFlags.run, "run", false, "Run the application after a successful build")
	buildCmd.Flags().StringVar(&buildFlags.timeout, "timeout", "", "Build timeout, e.g. 45m")
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ws, err := openWorkspace(ctx, false)
	if err != nil {
		return err
	}
	defer ws.Close()

	rev, err := ws.repo.Identify(ctx, args[0])
	if err != nil {
		return fmt.Errorf("unknown revision %s: %w", args[0], err)
	}
	if err := ws.writeBuildConfig(ctx); err != nil {
		return fmt.Errorf("failed to write build config: %w", err)
	}
	executor, err := ws.newExecutor(buildFlags.run)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "🔨 Building %s with %d jobs...\n", rev, cfg.Build.Jobs)
	outcome := executor.Execute(ctx, rev)
	if outcome.Failed {
		var buildErr *build.BuildFailedError
		if errors.As(outcome.Err, &buildErr) {
			return buildErr
		}
		return fmt.Errorf("build of %s did not finish: %w", rev, outcome.Err)
	}

	fmt.Printf("✅ Built %s in %s\n", rev, formatDuration(outcome.Duration))
	if binary, err := ws.binaryPath(); err == nil {
		fmt.Printf("📦 Binary: %s\n", binary)
	}
	return nil
}
