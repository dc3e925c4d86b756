package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var trunkCmd = &cobra.Command{
	Use:   "trunk",
	Short: "Clone or update the cached working copy",
	Long: `Clone the repository into the cache on first use, or pull and update it to
the newest upstream revision. With --fresh the cached copy is deleted and
cloned again.`,
	Example: `  cbx trunk
  cbx trunk --fresh -R https://hg.mozilla.org/integration/autoland`,
	Args: cobra.NoArgs,
	RunE: runTrunk,
}

func init() {
	rootCmd.AddCommand(trunkCmd)
}

func runTrunk(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ws, err := openWorkspace(ctx, true)
	if err != nil {
		return err
	}
	defer ws.Close()

	tip, err := ws.repo.Tip(ctx)
	if err != nil {
		return fmt.Errorf("failed to read tip: %w", err)
	}
	fmt.Printf("✅ %s is at %s\n", cfg.TrunkDir(), tip)
	return nil
}
