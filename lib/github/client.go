// Copyright 2026 The Lackey Authors
// SPDX-License-Identifier: Apache-2.0

// Package github provides a typed Go client for the small slice of
// the GitHub REST API the run publisher needs: repository metadata
// and pull request creation.
//
// The client authenticates with a personal access token or
// fine-grained token. Non-2xx responses are mapped to *APIError with
// GitHub's structured error body attached. All requests are made over
// HTTPS; the client refuses non-HTTPS base URLs.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// apiVersion is the GitHub REST API version header. Pinning the
// version ensures consistent behavior as GitHub evolves the API.
const apiVersion = "2022-11-28"

// defaultBaseURL is the base URL for the public GitHub API.
const defaultBaseURL = "https://api.github.com"

// Config holds configuration for creating a Client.
type Config struct {
	// BaseURL is the root URL for API requests. Defaults to
	// "https://api.github.com". Must use HTTPS.
	BaseURL string

	// Token is a personal access token or fine-grained token.
	// Required.
	Token string

	// HTTPClient is used for all HTTP requests. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client

	// Logger is used for structured logging. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// Client is a GitHub REST API client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a GitHub API client from the given configuration.
// Returns an error if the token is missing or the base URL is not
// HTTPS.
func NewClient(config Config) (*Client, error) {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	if !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("github: API client requires HTTPS (got %q)", baseURL)
	}
	if config.Token == "" {
		return nil, fmt.Errorf("github: no token configured")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    baseURL,
		token:      config.Token,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// get performs a GET request and decodes the JSON response into out.
func (client *Client) get(ctx context.Context, path string, out any) error {
	return client.do(ctx, http.MethodGet, path, nil, out)
}

// post performs a POST request with a JSON body and decodes the JSON
// response into out.
func (client *Client) post(ctx context.Context, path string, body, out any) error {
	return client.do(ctx, http.MethodPost, path, body, out)
}

func (client *Client) do(ctx context.Context, method, path string, body, out any) error {
	var requestBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("github: encoding %s %s body: %w", method, path, err)
		}
		requestBody = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, client.baseURL+path, requestBody)
	if err != nil {
		return fmt.Errorf("github: building %s %s: %w", method, path, err)
	}
	request.Header.Set("Accept", "application/vnd.github+json")
	request.Header.Set("Authorization", "Bearer "+client.token)
	request.Header.Set("X-GitHub-Api-Version", apiVersion)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := client.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("github: %s %s: %w", method, path, err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return decodeAPIError(response)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return fmt.Errorf("github: decoding %s %s response: %w", method, path, err)
	}
	return nil
}

func decodeAPIError(response *http.Response) error {
	apiError := &APIError{StatusCode: response.StatusCode}
	data, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err == nil {
		// Best effort: a non-JSON body leaves Message empty, the
		// status code still identifies the failure.
		_ = json.Unmarshal(data, apiError)
	}
	return apiError
}
