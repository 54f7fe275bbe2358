// Copyright 2026 The Lackey Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"context"
	"fmt"
)

// PullRequest is the subset of GitHub's pull request object the
// publisher needs.
type PullRequest struct {
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
	State   string `json:"state"`
	Title   string `json:"title"`
}

// NewPullRequest is the request body for CreatePullRequest.
type NewPullRequest struct {
	Title string `json:"title"`
	Head  string `json:"head"`
	Base  string `json:"base"`
	Body  string `json:"body,omitempty"`
	Draft bool   `json:"draft,omitempty"`
}

// CreatePullRequest opens a pull request from head to base. A 422
// response usually means a pull request already exists for the
// branch; callers can detect that with IsValidationFailed.
func (client *Client) CreatePullRequest(ctx context.Context, repo Repo, request NewPullRequest) (*PullRequest, error) {
	var pullRequest PullRequest
	path := fmt.Sprintf("/repos/%s/%s/pulls", repo.Owner, repo.Name)
	if err := client.post(ctx, path, request, &pullRequest); err != nil {
		return nil, fmt.Errorf("creating PR %s (%s -> %s): %w", repo, request.Head, request.Base, err)
	}
	return &pullRequest, nil
}
