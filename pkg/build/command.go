package build

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/jtodic/commit-builder/pkg/shell"
)

// JobsPlaceholder in a build command argument is replaced by the job count.
const JobsPlaceholder = "{jobs}"

// CommandBuilder runs a build command (make by default) in the working copy.
type CommandBuilder struct {
	dir         string
	command     shell.Command
	jobs        int
	buildConfig string
	output      io.Writer
	runner      shell.Runner
	logger      *zap.Logger
}

// CommandBuilderConfig holds configuration for a CommandBuilder
type CommandBuilderConfig struct {
	// Dir is the working copy the command runs in.
	Dir string
	// Command is the full command line, e.g. "make -f client.mk build".
	Command string
	Jobs    int
	// BuildConfig is exported as MOZCONFIG when set.
	BuildConfig string
	// Output receives the build's output as it runs. Nil discards it.
	Output io.Writer
}

// NewCommandBuilder creates a CommandBuilder.
func NewCommandBuilder(cfg CommandBuilderConfig, runner shell.Runner, logger *zap.Logger) (*CommandBuilder, error) {
	cmd, err := shell.Parse(cfg.Command)
	if err != nil {
		return nil, err
	}
	if runner == nil {
		runner = shell.ExecRunner{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	jobs := cfg.Jobs
	if jobs < 1 {
		jobs = 1
	}
	return &CommandBuilder{
		dir:         cfg.Dir,
		command:     *cmd,
		jobs:        jobs,
		buildConfig: cfg.BuildConfig,
		output:      cfg.Output,
		runner:      runner,
		logger:      logger,
	}, nil
}

// Build runs the command once. A nonzero exit is returned as an error.
func (b *CommandBuilder) Build(ctx context.Context, rev string) error {
	cmd := b.command
	cmd.Dir = b.dir
	cmd.Passthrough = b.output

	jobs := strconv.Itoa(b.jobs)
	cmd.Args = make([]string, len(b.command.Args))
	for i, arg := range b.command.Args {
		cmd.Args[i] = strings.ReplaceAll(arg, JobsPlaceholder, jobs)
	}
	if b.buildConfig != "" {
		cmd.Env = append(cmd.Env, "MOZCONFIG="+b.buildConfig)
	}

	b.logger.Debug("Running build command",
		zap.String("revision", rev),
		zap.String("command", cmd.String()),
		zap.String("dir", cmd.Dir))

	if _, err := b.runner.Run(ctx, &cmd); err != nil {
		return fmt.Errorf("build command failed: %w", err)
	}
	return nil
}
