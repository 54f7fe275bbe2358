// Copyright 2026 The Lackey Authors
// SPDX-License-Identifier: Apache-2.0

// Package backend launches lackey runs in isolated runtimes. The host
// CLI picks a Backend, hands it a Request, and blocks until the run
// finishes; the container-side runner does the actual work.
package backend

import (
	"context"
	"time"

	"github.com/lackey-foundation/lackey/lib/schema"
)

// Request describes one run to launch.
type Request struct {
	// Task is the free-text task description.
	Task string

	// RunID uniquely identifies the run.
	RunID string

	// RepoDir is the host path of the repository to change.
	RepoDir string

	// Image is the container image to run.
	Image string

	// Timeout bounds the run inside the container.
	Timeout time.Duration

	// EnvFile optionally names a file of KEY=value lines passed to the
	// container (credentials stay out of the process argument list).
	EnvFile string

	// ExtraEnv adds environment variables to the container.
	ExtraEnv map[string]string
}

// Result is what a backend reports after the container exits.
type Result struct {
	RunID          string
	Outcome        schema.Outcome
	Branch         string
	PullRequestURL string

	// ArtifactDir is the host directory holding the run's artifacts.
	ArtifactDir string

	// Runtime names the backend that produced the result.
	Runtime string
}

// Backend launches a run and blocks until it completes. The error
// covers launch failures only; a run that executed and failed is a
// Result with a non-success outcome.
type Backend interface {
	Launch(ctx context.Context, request Request) (*Result, error)
}
