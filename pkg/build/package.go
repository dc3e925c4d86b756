package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/jtodic/commit-builder/pkg/shell"
)

// Artifact is a packaged build stored in the cache.
type Artifact struct {
	Revision string
	Path     string
	Name     string
	Size     int64
}

// Packager turns a revision into a distributable archive in the cache.
type Packager struct {
	executor *Executor
	objdir   string
	buildDir string
	platform Platform
	command  string
	runner   shell.Runner
	logger   *zap.Logger
}

// PackagerConfig holds configuration for a Packager
type PackagerConfig struct {
	// ObjDir is the absolute object directory the packaging step runs in.
	ObjDir string
	// BuildsDir receives the renamed archives.
	BuildsDir string
	Platform  Platform
	// Command is the packaging command line, "make package" by default.
	Command string
}

// NewPackager creates a Packager that builds through executor.
func NewPackager(executor *Executor, cfg PackagerConfig, runner shell.Runner, logger *zap.Logger) *Packager {
	if runner == nil {
		runner = shell.ExecRunner{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	command := cfg.Command
	if command == "" {
		command = "make package"
	}
	return &Packager{
		executor: executor,
		objdir:   cfg.ObjDir,
		buildDir: cfg.BuildsDir,
		platform: cfg.Platform,
		command:  command,
		runner:   runner,
		logger:   logger,
	}
}

// Package builds rev, runs the packaging step and moves the archive to
// <builds>/<rev[:8]><ext>.
func (p *Packager) Package(ctx context.Context, rev string) (*Artifact, error) {
	name, err := p.platform.ArtifactName(rev)
	if err != nil {
		return nil, err
	}
	ext, _ := p.platform.ArchiveExt()

	outcome := p.executor.Execute(ctx, rev)
	if outcome.Failed {
		return nil, outcome.Err
	}

	cmd, err := shell.Parse(p.command)
	if err != nil {
		return nil, err
	}
	cmd.Dir = p.objdir
	p.logger.Info("Making binary", zap.String("revision", rev), zap.String("command", cmd.String()))
	if _, err := p.runner.Run(ctx, cmd); err != nil {
		return nil, &BuildFailedError{Revision: rev, Stage: "package", Err: err}
	}

	matches, err := filepath.Glob(filepath.Join(p.objdir, "dist", "*"+ext))
	if err != nil {
		return nil, fmt.Errorf("failed to search for package: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no %s package found in %s", ext, filepath.Join(p.objdir, "dist"))
	}

	if err := os.MkdirAll(p.buildDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create builds directory: %w", err)
	}
	dest := filepath.Join(p.buildDir, name)
	if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to replace %s: %w", dest, err)
	}
	if err := os.Rename(matches[0], dest); err != nil {
		return nil, fmt.Errorf("failed to move package: %w", err)
	}

	info, err := os.Stat(dest)
	if err != nil {
		return nil, err
	}
	return &Artifact{Revision: rev, Path: dest, Name: name, Size: info.Size()}, nil
}
