// Package tracker files tracking issues for newly created alerts through a
// narrow create-issue contract. Failures here never fail the pipeline
// record; they degrade to "no ticket created".
package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

const (
	defaultBaseURL = "https://api.github.com"
	requestTimeout = 15 * time.Second
)

// TokenSource mints or retrieves an API token together with its expiry.
// A static env-provided token reports a far-future expiry.
type TokenSource interface {
	Token(ctx context.Context) (string, time.Time, error)
}

// StaticTokenSource wraps a fixed token
type StaticTokenSource struct {
	Value string
}

// Token returns the fixed token with an effectively unlimited lifetime
func (s StaticTokenSource) Token(ctx context.Context) (string, time.Time, error) {
	if s.Value == "" {
		return "", time.Time{}, fmt.Errorf("github token is not configured")
	}
	return s.Value, time.Now().Add(24 * 365 * time.Hour), nil
}

// tokenEntry holds the cached token with expiration
type tokenEntry struct {
	value     string
	expiresAt time.Time
}

// GitHubClient creates issues in one repository via the GitHub REST API.
// The token cache is populated on miss and invalidated when the API
// rejects it.
type GitHubClient struct {
	httpClient *http.Client
	baseURL    string
	owner      string
	repo       string
	tokens     TokenSource

	mu     sync.Mutex
	cached tokenEntry
}

// NewGitHubClient creates a client for owner/repo using tokens for auth.
func NewGitHubClient(owner, repo string, tokens TokenSource) *GitHubClient {
	return &GitHubClient{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    defaultBaseURL,
		owner:      owner,
		repo:       repo,
		tokens:     tokens,
	}
}

type createIssueRequest struct {
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	Labels []string `json:"labels"`
}

type createIssueResponse struct {
	Number int `json:"number"`
}

// CreateIssue files an issue and returns its number. Labels are created
// idempotently by GitHub on first use.
func (c *GitHubClient) CreateIssue(ctx context.Context, title, body string, labels []string) (int, error) {
	token, err := c.token(ctx)
	if err != nil {
		return 0, err
	}

	payload, err := json.Marshal(createIssueRequest{Title: title, Body: body, Labels: labels})
	if err != nil {
		return 0, fmt.Errorf("failed to encode issue request: %w", err)
	}

	url := fmt.Sprintf("%s/repos/%s/%s/issues", c.baseURL, c.owner, c.repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("issue creation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		c.invalidateToken()
	}
	if resp.StatusCode != http.StatusCreated {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("issue creation returned %d: %s", resp.StatusCode, snippet)
	}

	var created createIssueResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return 0, fmt.Errorf("failed to decode issue response: %w", err)
	}
	return created.Number, nil
}

// token returns the cached token, refreshing it from the source on miss or
// expiry.
func (c *GitHubClient) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached.value != "" && time.Now().Before(c.cached.expiresAt) {
		return c.cached.value, nil
	}

	value, expiresAt, err := c.tokens.Token(ctx)
	if err != nil {
		return "", err
	}
	// Refresh slightly early so a token never expires mid-request
	c.cached = tokenEntry{value: value, expiresAt: expiresAt.Add(-30 * time.Second)}
	return value, nil
}

func (c *GitHubClient) invalidateToken() {
	c.mu.Lock()
	c.cached = tokenEntry{}
	c.mu.Unlock()
}
