// Copyright 2026 The Lackey Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for Lackey.
//
// The host CLI loads a single YAML file named by the LACKEY_CONFIG
// environment variable or the --config flag. There is no automatic
// discovery and environment variables never override file values on
// the host side; this keeps host configuration deterministic and
// auditable.
//
// Inside the run container the situation is inverted: the runner is
// configured entirely from environment variables injected by the
// backend (FromEnvironment). The two sources never mix.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lackey-foundation/lackey/lib/objectstore"
	"github.com/lackey-foundation/lackey/lib/schema"
)

// DefaultModel is used when neither the config file nor LACKEY_MODEL
// names a model.
const DefaultModel = "claude-haiku-4-5"

// DefaultCommandTimeout bounds individual blueprint commands.
const DefaultCommandTimeout = 120 * time.Second

// Config is the host-side configuration for launching runs.
type Config struct {
	// Model is the model identifier passed to the LLM-backed agents.
	Model string `yaml:"model"`

	// Image is the container image runs execute in.
	Image string `yaml:"image"`

	// Timeout bounds a whole run. Zero disables the run deadline.
	Timeout time.Duration `yaml:"timeout"`

	// Repository is the GitHub repository slug (owner/name) pull
	// requests are opened against. Empty disables the publish step.
	Repository string `yaml:"repository"`

	// ObjectStore configures artifact uploads. An empty endpoint
	// disables uploads.
	ObjectStore objectstore.Config `yaml:"object_store"`
}

// Default returns the base configuration merged under any loaded file.
func Default() *Config {
	return &Config{
		Model:   DefaultModel,
		Image:   "lackey-runner",
		Timeout: 30 * time.Minute,
	}
}

// Load loads host configuration from the path in LACKEY_CONFIG, or
// returns defaults when the variable is unset.
func Load() (*Config, error) {
	path := os.Getenv("LACKEY_CONFIG")
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile loads host configuration from a specific YAML file, merged
// over defaults.
func LoadFile(path string) (*Config, error) {
	config := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return config, nil
}

// Validate checks the configuration for errors.
func (config *Config) Validate() error {
	var errs []error
	if config.Model == "" {
		errs = append(errs, fmt.Errorf("model is required"))
	}
	if config.Image == "" {
		errs = append(errs, fmt.Errorf("image is required"))
	}
	if config.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative"))
	}
	if config.ObjectStore.Enabled() {
		if err := config.ObjectStore.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Runner is the container-side configuration, assembled entirely from
// environment variables the backend injects.
type Runner struct {
	// Run carries the per-run identity and directories.
	Run schema.RunConfig

	// Blueprint optionally names the blueprint to use. Empty means
	// discovery must find exactly one.
	Blueprint string

	// Model is the model identifier for LLM-backed agents.
	Model string

	// UseStubs selects the stub agent registry instead of LLM-backed
	// agents. Used by integration tests and smoke runs.
	UseStubs bool

	// AnthropicAPIKey authenticates LLM requests. Required unless
	// UseStubs is set.
	AnthropicAPIKey string

	// GitHubToken and Repository configure the pull request step.
	// Either being empty disables publishing.
	GitHubToken string
	Repository  string

	// ArtifactPrefix is the remote artifact location the host will
	// upload to, advertised in the pull request body.
	ArtifactPrefix string
}

// FromEnvironment builds the runner configuration from the process
// environment. TASK is the only required variable.
func FromEnvironment(environ func(string) string) (*Runner, error) {
	task := environ("TASK")
	if task == "" {
		return nil, fmt.Errorf("TASK environment variable not set")
	}

	var timeout time.Duration
	if seconds := environ("TIMEOUT"); seconds != "" {
		parsed, err := strconv.Atoi(seconds)
		if err != nil || parsed < 0 {
			return nil, fmt.Errorf("invalid TIMEOUT %q: want seconds", seconds)
		}
		timeout = time.Duration(parsed) * time.Second
	}

	runner := &Runner{
		Run: schema.RunConfig{
			Task:      task,
			RunID:     envDefault(environ, "RUN_ID", "local"),
			WorkDir:   envDefault(environ, "WORK_DIR", "/work"),
			OutputDir: envDefault(environ, "OUTPUT_DIR", "/output"),
			Timeout:   timeout,
		},
		Blueprint:       environ("LACKEY_BLUEPRINT"),
		Model:           envDefault(environ, "LACKEY_MODEL", DefaultModel),
		UseStubs:        boolEnv(environ("LACKEY_STUBS")),
		AnthropicAPIKey: environ("ANTHROPIC_API_KEY"),
		GitHubToken:     environ("GITHUB_TOKEN"),
		Repository:      environ("REPO"),
		ArtifactPrefix:  environ("ARTIFACT_PREFIX"),
	}

	if !runner.UseStubs && runner.AnthropicAPIKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY not set; set it or enable LACKEY_STUBS")
	}
	return runner, nil
}

func envDefault(environ func(string) string, name, fallback string) string {
	if value := environ(name); value != "" {
		return value
	}
	return fallback
}

func boolEnv(value string) bool {
	switch strings.ToLower(value) {
	case "1", "true", "yes":
		return true
	}
	return false
}
