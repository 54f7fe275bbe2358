// Copyright 2026 The Lackey Authors
// SPDX-License-Identifier: Apache-2.0

// lackey is the host-side CLI for launching unattended coding agent
// runs. It selects a backend, launches the run container, waits for it
// to finish, optionally uploads the artifacts to object storage, and
// prints the result.
//
// Usage:
//
//	lackey run "task description" [--repo path] [--timeout 10m]
//	       [--image name] [--config lackey.yaml] [--env-file .env]
//	       [--stubs]
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/lackey-foundation/lackey/lib/artifact"
	"github.com/lackey-foundation/lackey/lib/backend"
	"github.com/lackey-foundation/lackey/lib/config"
	"github.com/lackey-foundation/lackey/lib/objectstore"
	"github.com/lackey-foundation/lackey/lib/schema"
	"github.com/lackey-foundation/lackey/lib/version"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Println(version.Info())
		return
	}
	if len(os.Args) < 2 || os.Args[1] != "run" {
		fmt.Fprintln(os.Stderr, "usage: lackey run \"task description\" [flags]")
		os.Exit(2)
	}
	if err := run(os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		repoDir    string
		timeout    time.Duration
		image      string
		configPath string
		envFile    string
		outputBase string
		useStubs   bool
	)

	flagSet := pflag.NewFlagSet("lackey run", pflag.ContinueOnError)
	flagSet.StringVar(&repoDir, "repo", ".", "path to the repository to change")
	flagSet.DurationVar(&timeout, "timeout", 0, "run timeout (default from config)")
	flagSet.StringVar(&image, "image", "", "container image (default from config)")
	flagSet.StringVar(&configPath, "config", "", "path to lackey.yaml (default $LACKEY_CONFIG)")
	flagSet.StringVar(&envFile, "env-file", "", "env file passed to the container")
	flagSet.StringVar(&outputBase, "output", "/tmp/lackey", "base directory for run artifacts")
	flagSet.BoolVar(&useStubs, "stubs", false, "run with stub agents (no model calls)")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if flagSet.NArg() != 1 {
		return fmt.Errorf("expected exactly one task description, got %d arguments", flagSet.NArg())
	}
	task := flagSet.Arg(0)

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if image == "" {
		image = cfg.Image
	}
	if timeout == 0 {
		timeout = cfg.Timeout
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	runID := uuid.NewString()

	request := backend.Request{
		Task:    task,
		RunID:   runID,
		RepoDir: repoDir,
		Image:   image,
		Timeout: timeout,
		EnvFile: envFile,
		ExtraEnv: map[string]string{
			"LACKEY_MODEL": cfg.Model,
		},
	}
	if cfg.Repository != "" {
		request.ExtraEnv["REPO"] = cfg.Repository
	}
	if useStubs {
		request.ExtraEnv["LACKEY_STUBS"] = "1"
	}
	if cfg.ObjectStore.Enabled() {
		request.ExtraEnv["ARTIFACT_PREFIX"] = fmt.Sprintf("s3://%s/runs/%s/", cfg.ObjectStore.Bucket, runID)
	}

	local := backend.NewLocal(outputBase, logger)
	local.BuildContext = "."

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := local.Launch(ctx, request)
	if err != nil {
		return err
	}

	if cfg.ObjectStore.Enabled() {
		if err := uploadArtifacts(ctx, cfg.ObjectStore, result, logger); err != nil {
			logger.Warn("artifact upload failed", "error", err)
		}
	}

	fmt.Printf("\nRun %s finished: %s\n", result.RunID, result.Outcome)
	fmt.Printf("  runtime: %s\n", result.Runtime)
	if result.Branch != "" {
		fmt.Printf("  branch:  %s\n", result.Branch)
	}
	if result.PullRequestURL != "" {
		fmt.Printf("  pr:      %s\n", result.PullRequestURL)
	}
	fmt.Printf("  artifacts: %s\n", result.ArtifactDir)

	if result.Outcome != schema.OutcomeSuccess {
		os.Exit(1)
	}
	return nil
}

// uploadArtifacts bundles the output directory and syncs everything to
// the configured bucket.
func uploadArtifacts(ctx context.Context, storeConfig objectstore.Config, result *backend.Result, logger *slog.Logger) error {
	// The bundle must not include itself: write it next to the run
	// directory, then move it in once complete.
	stagedPath := filepath.Clean(result.ArtifactDir) + ".tar.zst"
	if err := artifact.Bundle(result.ArtifactDir, stagedPath); err != nil {
		return err
	}
	if err := os.Rename(stagedPath, filepath.Join(result.ArtifactDir, "artifacts.tar.zst")); err != nil {
		return err
	}

	uploader, err := objectstore.New(storeConfig, logger)
	if err != nil {
		return err
	}
	if err := uploader.EnsureBucket(ctx); err != nil {
		return err
	}
	keys, err := uploader.SyncRun(ctx, result.RunID, result.ArtifactDir)
	if err != nil {
		return err
	}
	logger.Info("artifacts uploaded", "bucket", storeConfig.Bucket, "objects", len(keys))
	return nil
}
