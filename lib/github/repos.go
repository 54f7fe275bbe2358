// Copyright 2026 The Lackey Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"context"
	"fmt"
	"strings"
)

// Repo identifies a repository as "owner/name".
type Repo struct {
	Owner string
	Name  string
}

// ParseRepo splits an "owner/name" string into a Repo.
func ParseRepo(full string) (Repo, error) {
	owner, name, found := strings.Cut(full, "/")
	if !found || owner == "" || name == "" || strings.Contains(name, "/") {
		return Repo{}, fmt.Errorf("github: invalid repository %q (want owner/name)", full)
	}
	return Repo{Owner: owner, Name: name}, nil
}

func (repo Repo) String() string {
	return repo.Owner + "/" + repo.Name
}

// Repository is the subset of GitHub's repository object the
// publisher needs.
type Repository struct {
	FullName      string `json:"full_name"`
	DefaultBranch string `json:"default_branch"`
}

// GetRepository retrieves repository metadata.
func (client *Client) GetRepository(ctx context.Context, repo Repo) (*Repository, error) {
	var repository Repository
	path := fmt.Sprintf("/repos/%s/%s", repo.Owner, repo.Name)
	if err := client.get(ctx, path, &repository); err != nil {
		return nil, fmt.Errorf("getting repository %s: %w", repo, err)
	}
	return &repository, nil
}

// DefaultBranch returns the repository's default branch, falling back
// to "main" when the API reports none.
func (client *Client) DefaultBranch(ctx context.Context, repo Repo) (string, error) {
	repository, err := client.GetRepository(ctx, repo)
	if err != nil {
		return "", err
	}
	if repository.DefaultBranch == "" {
		return "main", nil
	}
	return repository.DefaultBranch, nil
}
