package build

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/jtodic/commit-builder/pkg/shell"
)

// ProcessLauncher runs the built application binary in the foreground.
type ProcessLauncher struct {
	binary string
	args   []string
	output io.Writer
	runner shell.Runner
	logger *zap.Logger
}

// NewProcessLauncher creates a launcher for binary.
func NewProcessLauncher(binary string, args []string, output io.Writer, runner shell.Runner, logger *zap.Logger) *ProcessLauncher {
	if runner == nil {
		runner = shell.ExecRunner{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProcessLauncher{binary: binary, args: args, output: output, runner: runner, logger: logger}
}

// Launch starts the application and waits for it to exit.
func (l *ProcessLauncher) Launch(ctx context.Context) error {
	if _, err := os.Stat(l.binary); err != nil {
		return fmt.Errorf("application binary not found: %w", err)
	}
	l.logger.Info("Starting application", zap.String("binary", l.binary))
	_, err := l.runner.Run(ctx, &shell.Command{
		Name:        l.binary,
		Args:        l.args,
		Stdin:       os.Stdin,
		Passthrough: l.output,
	})
	return err
}
