package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/openpreview/openpreview/pkg/types"
)

// Client is an HTTP client for the OpenPreview API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new OpenPreview API client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// doRequest performs an HTTP request with API key authentication.
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	reqURL := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}

	return resp, nil
}

// doJSON performs a request and decodes a JSON response into out. A nil out
// discards the body after the status check.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	resp, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// ListThreads lists all threads known to the server.
func (c *Client) ListThreads(ctx context.Context) ([]types.ThreadInfo, error) {
	var result types.ThreadListResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/threads", nil, &result); err != nil {
		return nil, err
	}
	return result.Threads, nil
}

// ApplyState pushes one full-state snapshot tick for a thread. This is the
// pull-transport alternative to the WebSocket stream.
func (c *Client) ApplyState(ctx context.Context, threadID string, update types.SnapshotUpdate) (*types.ThreadStatus, error) {
	var status types.ThreadStatus
	path := fmt.Sprintf("/api/v1/threads/%s/state", url.PathEscape(threadID))
	if err := c.doJSON(ctx, http.MethodPost, path, update, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Status returns the full observable state of a thread.
func (c *Client) Status(ctx context.Context, threadID string) (*types.ThreadStatus, error) {
	var status types.ThreadStatus
	path := fmt.Sprintf("/api/v1/threads/%s/status", url.PathEscape(threadID))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Tree returns the rendered file tree for a thread's current snapshot.
func (c *Client) Tree(ctx context.Context, threadID string) ([]*types.TreeNode, error) {
	var result types.TreeResponse
	path := fmt.Sprintf("/api/v1/threads/%s/tree", url.PathEscape(threadID))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Tree, nil
}

// Changes returns the change records of the current work session.
func (c *Client) Changes(ctx context.Context, threadID string) (*types.ChangesResponse, error) {
	var result types.ChangesResponse
	path := fmt.Sprintf("/api/v1/threads/%s/changes", url.PathEscape(threadID))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ReadFile reads one file out of a thread's current snapshot.
func (c *Client) ReadFile(ctx context.Context, threadID, filePath string) (*types.FileContentResponse, error) {
	var result types.FileContentResponse
	path := fmt.Sprintf("/api/v1/threads/%s/file?path=%s", url.PathEscape(threadID), url.QueryEscape(filePath))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Record returns the most recent deployment record for a thread.
func (c *Client) Record(ctx context.Context, threadID string) (*types.DeploymentRecord, error) {
	var record types.DeploymentRecord
	path := fmt.Sprintf("/api/v1/threads/%s/record", url.PathEscape(threadID))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Events returns a thread's deployment event history, newest first. A limit
// of 0 uses the server default.
func (c *Client) Events(ctx context.Context, threadID string, limit int) ([]types.DeploymentEvent, error) {
	path := fmt.Sprintf("/api/v1/threads/%s/events", url.PathEscape(threadID))
	if limit > 0 {
		path = fmt.Sprintf("%s?limit=%d", path, limit)
	}
	var events []types.DeploymentEvent
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// Deploy triggers an immediate deployment, skipping any countdown.
func (c *Client) Deploy(ctx context.Context, threadID string) (*types.ThreadStatus, error) {
	var status types.ThreadStatus
	path := fmt.Sprintf("/api/v1/threads/%s/deploy", url.PathEscape(threadID))
	if err := c.doJSON(ctx, http.MethodPost, path, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// CancelCountdown cancels a pending auto-deploy countdown.
func (c *Client) CancelCountdown(ctx context.Context, threadID string) (*types.ThreadStatus, error) {
	var status types.ThreadStatus
	path := fmt.Sprintf("/api/v1/threads/%s/cancel", url.PathEscape(threadID))
	if err := c.doJSON(ctx, http.MethodPost, path, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Reset clears a thread's snapshot, changes, and persisted deployment.
func (c *Client) Reset(ctx context.Context, threadID string) (*types.ThreadStatus, error) {
	var status types.ThreadStatus
	path := fmt.Sprintf("/api/v1/threads/%s/reset", url.PathEscape(threadID))
	if err := c.doJSON(ctx, http.MethodPost, path, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// ListFrameworks lists the framework presets the server can deploy.
func (c *Client) ListFrameworks(ctx context.Context) ([]types.FrameworkInfo, error) {
	var result types.FrameworkListResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/frameworks", nil, &result); err != nil {
		return nil, err
	}
	return result.Frameworks, nil
}

// StreamToken mints a short-lived thread-scoped token for WebSocket clients
// that cannot set API key headers.
func (c *Client) StreamToken(ctx context.Context, threadID string) (*types.StreamTokenResponse, error) {
	var result types.StreamTokenResponse
	path := fmt.Sprintf("/api/v1/threads/%s/stream-token", url.PathEscape(threadID))
	if err := c.doJSON(ctx, http.MethodPost, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// StreamURL returns the WebSocket URL for a thread's live stream. A non-empty
// token is passed as a query parameter; header-capable dialers can instead
// send the API key as X-API-Key.
func (c *Client) StreamURL(threadID, token string) string {
	base := c.baseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	streamURL := fmt.Sprintf("%s/api/v1/threads/%s/stream", base, url.PathEscape(threadID))
	if token != "" {
		streamURL += "?token=" + url.QueryEscape(token)
	}
	return streamURL
}

// APIKey returns the key the client authenticates with. WebSocket dialers use
// it to set the X-API-Key header.
func (c *Client) APIKey() string {
	return c.apiKey
}
