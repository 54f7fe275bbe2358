// Copyright 2026 The Lackey Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/lackey-foundation/lackey/lib/schema"
)

// docker abstracts the docker CLI so tests can fake container runs.
type docker interface {
	// run executes `docker args...` and returns the exit code. Output
	// streams to the caller's stdio for run; inspect captures it.
	run(ctx context.Context, args ...string) (int, error)
	inspectImage(ctx context.Context, image string) bool
}

// execDocker shells out to the real docker CLI.
type execDocker struct{}

func (execDocker) run(ctx context.Context, args ...string) (int, error) {
	command := exec.CommandContext(ctx, "docker", args...)
	command.Stdout = os.Stdout
	command.Stderr = os.Stderr
	err := command.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, fmt.Errorf("docker %v: %w", args, err)
}

func (execDocker) inspectImage(ctx context.Context, image string) bool {
	return exec.CommandContext(ctx, "docker", "image", "inspect", image).Run() == nil
}

// Local launches runs in a hardened local Docker container: read-only
// root filesystem, tmpfs work directories, all capabilities dropped,
// non-root user. The repository is bind-mounted read-only; the runner
// clones it into tmpfs, so the host working copy is never touched.
type Local struct {
	// OutputBase is the directory run output directories are created
	// under, one per run ID.
	OutputBase string

	// BuildContext is the directory `docker build` runs in when the
	// image is missing. Empty disables the automatic build.
	BuildContext string

	Logger *slog.Logger

	docker docker
}

// NewLocal returns a Local backend writing run outputs under
// outputBase.
func NewLocal(outputBase string, logger *slog.Logger) *Local {
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{OutputBase: outputBase, Logger: logger, docker: execDocker{}}
}

// Launch implements [Backend].
func (local *Local) Launch(ctx context.Context, request Request) (*Result, error) {
	repoDir, err := filepath.Abs(request.RepoDir)
	if err != nil {
		return nil, fmt.Errorf("resolving repo path: %w", err)
	}
	if info, err := os.Stat(repoDir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("repo path %s is not a directory", repoDir)
	}

	outputDir := filepath.Join(local.OutputBase, request.RunID)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	if err := local.ensureImage(ctx, request.Image); err != nil {
		return nil, err
	}

	args := []string{
		"run", "--rm",
		"--read-only",
		"--tmpfs", "/work:size=4g,uid=1000,gid=1000",
		"--tmpfs", "/tmp:size=1g,uid=1000,gid=1000",
		"--cap-drop=ALL",
		"--security-opt=no-new-privileges",
		"--user", "1000:1000",
		"-v", repoDir + ":/repo:ro",
		"-v", outputDir + ":/output",
		"-e", "TASK=" + request.Task,
		"-e", "RUN_ID=" + request.RunID,
	}
	if request.Timeout > 0 {
		args = append(args, "-e", fmt.Sprintf("TIMEOUT=%d", int(request.Timeout.Seconds())))
	}
	for _, name := range sortedKeys(request.ExtraEnv) {
		args = append(args, "-e", name+"="+request.ExtraEnv[name])
	}
	if request.EnvFile != "" {
		args = append(args, "--env-file", request.EnvFile)
	}
	args = append(args, request.Image)

	local.Logger.Info("launching local run",
		"run_id", request.RunID, "repo", repoDir, "image", request.Image, "output", outputDir)

	exitCode, err := local.docker.run(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("running container: %w", err)
	}

	return collectResult(request.RunID, outputDir, exitCode), nil
}

// ensureImage builds the image from the build context when it is not
// present locally.
func (local *Local) ensureImage(ctx context.Context, image string) error {
	if local.docker.inspectImage(ctx, image) {
		return nil
	}
	if local.BuildContext == "" {
		return fmt.Errorf("image %s not found locally and no build context configured", image)
	}
	local.Logger.Info("building image", "image", image, "context", local.BuildContext)
	exitCode, err := local.docker.run(ctx, "build", "-t", image, local.BuildContext)
	if err != nil {
		return fmt.Errorf("building image %s: %w", image, err)
	}
	if exitCode != 0 {
		return fmt.Errorf("building image %s: exit code %d", image, exitCode)
	}
	return nil
}

// collectResult reads run_summary.json from the output directory. A
// container that died before writing one is classified by its exit
// code alone.
func collectResult(runID, outputDir string, exitCode int) *Result {
	result := &Result{
		RunID:       runID,
		ArtifactDir: outputDir,
		Runtime:     "local",
	}

	data, err := os.ReadFile(filepath.Join(outputDir, "run_summary.json"))
	if err != nil {
		if exitCode == 0 {
			result.Outcome = schema.OutcomeSuccess
		} else {
			result.Outcome = schema.OutcomeError
		}
		return result
	}

	var summary schema.RunSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		result.Outcome = schema.OutcomeError
		return result
	}
	result.Outcome = summary.Outcome
	result.Branch = summary.Branch
	result.PullRequestURL = summary.PullRequestURL
	if result.Outcome == "" {
		result.Outcome = schema.OutcomeError
	}
	return result
}

func sortedKeys(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
