package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jtodic/commit-builder/pkg/revision"
)

var resolveFlags struct {
	upper bool
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <revision|date>",
	Short: "Print the revision a bisect endpoint resolves to",
	Long: `Resolve a date (YYYY-MM-DD) through the push-log the same way bisect does:
the first changeset of the day's earliest push, or of its latest push with
--upper. Anything else is printed unchanged.`,
	Example: `  cbx resolve 2009-01-01
  cbx resolve 2009-01-02 --upper`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)

	resolveCmd.Flags().BoolVar(&resolveFlags.upper, "upper", false, "Resolve to the day's latest push (as for a bad endpoint)")
}

func runResolve(cmd *cobra.Command, args []string) error {
	bound := revision.Lower
	if resolveFlags.upper {
		bound = revision.Upper
	}
	resolver := revision.NewResolver(revision.NewPushLogClient(cfg.PushlogURL), logger)
	rev, err := resolver.Resolve(cmd.Context(), args[0], bound)
	if err != nil {
		return err
	}
	fmt.Println(rev)
	return nil
}
