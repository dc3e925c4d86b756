package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/jtodic/commit-builder/pkg/build"
	"github.com/jtodic/commit-builder/pkg/shell"
	"github.com/jtodic/commit-builder/pkg/vcs"
)

// workspace bundles the collaborators shared by the build and bisect
// commands. All of them operate on the one cached working copy.
type workspace struct {
	repo     vcs.Repository
	runner   shell.Runner
	platform build.Platform
	builder  build.Builder
	closers  []io.Closer
}

// openWorkspace checks prerequisites and brings the cached working copy up
// to date.
func openWorkspace(ctx context.Context, update bool) (*workspace, error) {
	runner := shell.ExecRunner{}

	if err := vcs.CheckPrerequisite(ctx, runner, cfg.VCS); err != nil {
		return nil, err
	}
	repo, err := vcs.Open(cfg.VCS, cfg.TrunkDir(), cfg.RepoURL, runner)
	if err != nil {
		return nil, err
	}

	if update || rootFlags.fresh || !exists(cfg.TrunkDir()) {
		fmt.Fprintf(os.Stderr, "📥 Updating working copy in %s\n", cfg.TrunkDir())
		if err := repo.Ensure(ctx, rootFlags.fresh); err != nil {
			return nil, fmt.Errorf("failed to prepare working copy: %w", err)
		}
	}

	return &workspace{repo: repo, runner: runner, platform: build.CurrentPlatform()}, nil
}

func (w *workspace) Close() {
	for _, c := range w.closers {
		if err := c.Close(); err != nil {
			logger.Warn("Failed to release build resources", zap.Error(err))
		}
	}
}

// writeBuildConfig regenerates the build configuration file.
func (w *workspace) writeBuildConfig(ctx context.Context) error {
	return build.WriteBuildConfig(build.BuildConfigOptions{
		Path:     cfg.BuildConfigPath(),
		External: cfg.Build.ConfigFile,
		Jobs:     cfg.Build.Jobs,
		Platform: w.platform,
		ObjDir:   cfg.Build.ObjDir,
	})
}

func (w *workspace) buildOutput() io.Writer {
	if cfg.Build.ShowOutput || rootFlags.verbose {
		return os.Stderr
	}
	return nil
}

func (w *workspace) newBuilder() (build.Builder, error) {
	if w.builder != nil {
		return w.builder, nil
	}
	switch cfg.Build.Backend {
	case "docker":
		b, err := build.NewDockerBuilder(build.DockerBuilderConfig{
			ContextDir:  cfg.TrunkDir(),
			Dockerfile:  cfg.Build.Dockerfile,
			Jobs:        cfg.Build.Jobs,
			ExcludeDirs: append([]string{cfg.Build.ObjDir}, cfg.Build.ExcludeDirs...),
			Output:      w.buildOutput(),
		}, logger)
		if err != nil {
			return nil, err
		}
		w.closers = append(w.closers, b)
		w.builder = b
	default:
		b, err := build.NewCommandBuilder(build.CommandBuilderConfig{
			Dir:         cfg.TrunkDir(),
			Command:     cfg.Build.Command,
			Jobs:        cfg.Build.Jobs,
			BuildConfig: cfg.BuildConfigPath(),
			Output:      w.buildOutput(),
		}, w.runner, logger)
		if err != nil {
			return nil, err
		}
		w.builder = b
	}
	return w.builder, nil
}

func (w *workspace) binaryPath() (string, error) {
	if cfg.App.Binary != "" {
		return cfg.App.Binary, nil
	}
	return w.platform.BinaryPath(cfg.ObjDir())
}

// newExecutor returns an executor that launches the application after each
// build when launch is set.
func (w *workspace) newExecutor(launch bool) (*build.Executor, error) {
	builder, err := w.newBuilder()
	if err != nil {
		return nil, err
	}
	timeout, err := cfg.Build.TimeoutDuration()
	if err != nil {
		return nil, err
	}

	opts := []build.ExecutorOption{build.WithTimeout(timeout)}
	if launch {
		binary, err := w.binaryPath()
		if err != nil {
			return nil, err
		}
		opts = append(opts, build.WithLauncher(build.NewProcessLauncher(binary, cfg.App.Args, os.Stderr, w.runner, logger)))
	}
	return build.NewExecutor(w.repo, builder, logger, opts...), nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
