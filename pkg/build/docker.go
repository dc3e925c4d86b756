package build

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	dockerbuild "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"go.uber.org/zap"
)

// vcsDirs never enter the Docker build context.
var vcsDirs = []string{".git", ".hg"}

// DockerBuilder builds the working copy inside a Docker image. A failing
// Dockerfile step is a failed build.
type DockerBuilder struct {
	client     *client.Client
	contextDir string
	dockerfile string
	ignored    []string
	jobs       int
	output     io.Writer
	logger     *zap.Logger
}

// DockerBuilderConfig holds configuration for a DockerBuilder
type DockerBuilderConfig struct {
	// ContextDir is the working copy sent as build context.
	ContextDir string
	// Dockerfile path relative to ContextDir.
	Dockerfile string
	// Jobs is passed as the JOBS build argument.
	Jobs int
	// ExcludeDirs are further context-relative directories left out of the
	// build context, typically the object directory.
	ExcludeDirs []string
	Output      io.Writer
}

// NewDockerBuilder connects to the Docker daemon from the environment.
func NewDockerBuilder(cfg DockerBuilderConfig, logger *zap.Logger) (*DockerBuilder, error) {
	cli, err := client.NewClientWithOpts(
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	// Ping to verify connection
	if _, err := cli.Ping(context.Background()); err != nil {
		cli.Close()
		return nil, fmt.Errorf("docker daemon not responding: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	return &DockerBuilder{
		client:     cli,
		contextDir: cfg.ContextDir,
		dockerfile: cfg.Dockerfile,
		ignored:    append(append([]string{}, vcsDirs...), cfg.ExcludeDirs...),
		jobs:       cfg.Jobs,
		output:     cfg.Output,
		logger:     logger,
	}, nil
}

// Build builds an image for rev and removes it again.
func (b *DockerBuilder) Build(ctx context.Context, rev string) error {
	buildContext, err := createBuildContext(b.contextDir, b.ignored)
	if err != nil {
		return fmt.Errorf("failed to create build context: %w", err)
	}

	tag := "cbx-build:" + strings.ToLower(shortRev(rev))
	jobs := strconv.Itoa(b.jobs)
	opts := dockerbuild.ImageBuildOptions{
		Tags:        []string{tag},
		Dockerfile:  b.dockerfile,
		Remove:      true,
		ForceRemove: true,
		NoCache:     true,
		BuildArgs:   map[string]*string{"JOBS": &jobs},
	}

	resp, err := b.client.ImageBuild(ctx, buildContext, opts)
	if err != nil {
		return fmt.Errorf("image build failed: %w", err)
	}
	defer resp.Body.Close()

	buildErr := processBuildOutput(resp.Body, b.output)

	if _, err := b.client.ImageRemove(ctx, tag, image.RemoveOptions{Force: true, PruneChildren: true}); err != nil {
		b.logger.Debug("Failed to remove build image", zap.String("tag", tag), zap.Error(err))
	}
	return buildErr
}

// Close closes the Docker client connection
func (b *DockerBuilder) Close() error {
	return b.client.Close()
}

// createBuildContext creates a tar archive of contextPath, skipping the
// top-level directories in ignored.
func createBuildContext(contextPath string, ignored []string) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	err := filepath.Walk(contextPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(contextPath, path)
		if err != nil {
			return err
		}
		if relPath == "." {
			return nil
		}

		top := strings.SplitN(filepath.ToSlash(relPath), "/", 2)[0]
		for _, dir := range ignored {
			if top == dir {
				if info.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(relPath)

		if err := tw.WriteHeader(header); err != nil {
			return err
		}

		if !info.Mode().IsRegular() {
			return nil
		}
		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()

		_, err = io.Copy(tw, file)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create tar: %w", err)
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish tar: %w", err)
	}

	return bytes.NewReader(buf.Bytes()), nil
}

// processBuildOutput drains the daemon's JSON message stream and reports the
// first build error in it.
func processBuildOutput(reader io.Reader, output io.Writer) error {
	decoder := json.NewDecoder(reader)

	for {
		var msg jsonmessage.JSONMessage
		if err := decoder.Decode(&msg); err != nil {
			if err == io.EOF {
				break
			}
			return err
		}

		if msg.Error != nil {
			return fmt.Errorf("build error: %s", msg.Error.Message)
		}

		if output != nil && msg.Stream != "" {
			fmt.Fprint(output, msg.Stream)
		}
	}

	return nil
}

func shortRev(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	if rev == "" {
		return "latest"
	}
	return rev
}
