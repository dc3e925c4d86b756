package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jtodic/commit-builder/pkg/build"
)

var binaryCmd = &cobra.Command{
	Use:   "binary <revision>",
	Short: "Build and package a revision into the build cache",
	Long: `Build a revision, run the packaging step in the object directory, and move
the resulting archive into the build cache as <revision[:8]><ext>, where the
extension depends on the platform (.tar.gz, .dmg or .zip).`,
	Example: `  cbx binary 9ab34cd0`,
	Args:    cobra.ExactArgs(1),
	RunE:    runBinary,
}

func init() {
	rootCmd.AddCommand(binaryCmd)
}

func runBinary(cmd *cobra.Command, args []string) error {
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
	executor, err := ws.newExecutor(false)
	if err != nil {
		return err
	}

	packager := build.NewPackager(executor, build.PackagerConfig{
		ObjDir:    cfg.ObjDir(),
		BuildsDir: cfg.BuildsDir(),
		Platform:  ws.platform,
		Command:   cfg.Build.PackageCommand,
	}, ws.runner, logger)

	fmt.Fprintf(os.Stderr, "📦 Building and packaging %s...\n", rev)
	artifact, err := packager.Package(ctx, rev)
	if err != nil {
		return err
	}

	fmt.Printf("✅ %s\n", artifact.Path)
	fmt.Printf("💾 Size: %s\n", humanize.Bytes(uint64(artifact.Size)))
	return nil
}
