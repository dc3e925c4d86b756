package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jtodic/commit-builder/pkg/config"
)

// version is set at build time with -ldflags "-X .../cmd.version=...".
var version = "0.3.0"

var rootFlags struct {
	configFile  string
	verbose     bool
	jobs        int
	buildConfig string
	fresh       bool
	repo        string
	vcs         string
	cacheDir    string
	pushlog     string
	builder     string
}

var (
	cfg    *config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "cbx",
	Short: "cbx - Build past revisions and bisect regressions automatically",
	Long: `cbx (commit builder) keeps a cached working copy of a project, builds any
past revision of it, and drives hg bisect or git bisect for you.

During a bisection cbx builds every candidate, then asks you whether it is
good, bad, or should be skipped - or runs a test condition that decides on its
own. Builds that fail are skipped automatically. When the revision control
tool reports the first bad revision, cbx prints it and stops.

Endpoints may be revisions or dates (YYYY-MM-DD). Dates are resolved through
the repository's push-log.

Getting started:
  Run 'cbx trunk' once to clone the repository into the cache, then
  'cbx bisect -g <good> -b <bad>'.`,
	Example: `  # Interactive bisection between two dates
  cbx bisect -g 2009-01-01 -b 2009-01-02

  # Automated bisection, passing extra arguments to the condition
  cbx bisect -g 6a2f0e1c -b 9ab34cd0 -c ./crashes.sh -- --url http://localhost

  # Build one revision and run it
  cbx build 9ab34cd0 --run

  # Package a revision into the build cache
  cbx binary 9ab34cd0`,
	Version:      version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(rootFlags.configFile, cmd.Flags())
		if err != nil {
			return err
		}
		logger, err = newLogger(cfg.Logging, rootFlags.verbose)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.configFile, "config", "", "Config file (default ./config.yaml or ~/.config/cbx/config.yaml)")
	pf.BoolVarP(&rootFlags.verbose, "verbose", "v", false, "Verbose output")
	pf.IntVarP(&rootFlags.jobs, "jobs", "j", runtime.NumCPU(), "Number of parallel build jobs")
	pf.StringVarP(&rootFlags.buildConfig, "build-config", "m", "", "External build configuration file to start from")
	pf.BoolVarP(&rootFlags.fresh, "fresh", "f", false, "Discard the cached working copy and clone again")
	pf.StringVarP(&rootFlags.repo, "repo", "R", "", "Repository URL to clone from")
	pf.StringVar(&rootFlags.vcs, "vcs", "", "Revision control tool: hg or git")
	pf.StringVar(&rootFlags.cacheDir, "cache-dir", "", "Cache directory (default ~/.commit-builder-cache)")
	pf.StringVar(&rootFlags.pushlog, "pushlog", "", "Push-log base URL used to resolve dates")
	pf.StringVar(&rootFlags.builder, "builder", "", "Build backend: command or docker")
}

func newLogger(lc config.LoggingConfig, verbose bool) (*zap.Logger, error) {
	var zc zap.Config
	if lc.Format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.DisableStacktrace = true
	}
	level, err := zap.ParseAtomicLevel(lc.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", lc.Level, err)
	}
	zc.Level = level
	if verbose {
		zc.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}
