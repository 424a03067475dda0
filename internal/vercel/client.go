// Package vercel is the deployment transport adapter: it turns snapshots
// into provider deployments and watches them to a terminal state.
package vercel

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

const defaultBaseURL = "https://api.vercel.com"

// Deployment phases reported by the provider.
const (
	PhaseQueued   = "QUEUED"
	PhaseBuilding = "BUILDING"
	PhaseReady    = "READY"
	PhaseError    = "ERROR"
	PhaseCanceled = "CANCELED"
)

// Config holds provider credentials and endpoint overrides.
type Config struct {
	Token   string
	TeamID  string // optional, appended as teamId query param
	BaseURL string // optional, defaults to the public API
}

// Client is a minimal Vercel REST API client covering the deployment
// lifecycle: create, inspect, read build events, attach aliases.
type Client struct {
	token   string
	teamID  string
	baseURL string
	http    *http.Client
}

// NewClient creates an API client from config.
func NewClient(cfg Config) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	return &Client{
		token:   cfg.Token,
		teamID:  cfg.TeamID,
		baseURL: strings.TrimSuffix(base, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// DeploymentFile is one file in a create request, base64-encoded.
type DeploymentFile struct {
	File     string `json:"file"`
	Data     string `json:"data"`
	Encoding string `json:"encoding"`
}

// CreateDeploymentRequest is the body for POST /v13/deployments.
type CreateDeploymentRequest struct {
	Name            string                `json:"name"`
	Files           []DeploymentFile      `json:"files"`
	ProjectSettings types.ProjectSettings `json:"projectSettings"`
	Target          string                `json:"target,omitempty"`
}

// Deployment is the provider's view of one deployment. Create responses
// populate State, status reads populate ReadyState; Phase folds both.
type Deployment struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	State      string `json:"state,omitempty"`
	ReadyState string `json:"readyState,omitempty"`
}

// Phase returns the current lifecycle phase regardless of which field the
// provider populated.
func (d *Deployment) Phase() string {
	if d.ReadyState != "" {
		return d.ReadyState
	}
	return d.State
}

// BuildEvent is one build log entry. Depending on the endpoint version the
// line lives in Text or in the payload.
type BuildEvent struct {
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Text    string `json:"text,omitempty"`
	Payload struct {
		Text string `json:"text,omitempty"`
	} `json:"payload,omitempty"`
}

// Line returns the log text of the event.
func (e BuildEvent) Line() string {
	if e.Text != "" {
		return e.Text
	}
	return e.Payload.Text
}

// AliasResult is the response of an alias attachment.
type AliasResult struct {
	UID   string `json:"uid"`
	Alias string `json:"alias"`
}

type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// do performs a JSON request against the provider API. Non-2xx responses
// come back as *TransportError.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	u := c.baseURL + path
	if c.teamID != "" {
		q := url.Values{}
		q.Set("teamId", c.teamID)
		u += "?" + q.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		terr := &TransportError{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		var ae apiError
		if json.Unmarshal(data, &ae) == nil && ae.Error.Message != "" {
			terr.Code = ae.Error.Code
			terr.Message = ae.Error.Message
		}
		return terr
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// CreateDeployment uploads a prepared payload and starts a build.
func (c *Client) CreateDeployment(ctx context.Context, req CreateDeploymentRequest) (*Deployment, error) {
	var dep Deployment
	if err := c.do(ctx, http.MethodPost, "/v13/deployments", req, &dep); err != nil {
		return nil, err
	}
	return &dep, nil
}

// GetDeployment reads the current state of a deployment.
func (c *Client) GetDeployment(ctx context.Context, id string) (*Deployment, error) {
	var dep Deployment
	if err := c.do(ctx, http.MethodGet, "/v13/deployments/"+id, nil, &dep); err != nil {
		return nil, err
	}
	return &dep, nil
}

// ListBuildEvents reads the build log of a deployment.
func (c *Client) ListBuildEvents(ctx context.Context, id string) ([]BuildEvent, error) {
	var events []BuildEvent
	if err := c.do(ctx, http.MethodGet, "/v3/deployments/"+id+"/events", nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// AssignAlias attaches a custom alias to a deployment. Failures come back
// as *AliasAssignmentError so callers can keep the default URL.
func (c *Client) AssignAlias(ctx context.Context, id, alias string) (*AliasResult, error) {
	var res AliasResult
	body := map[string]string{"alias": alias}
	if err := c.do(ctx, http.MethodPost, "/v2/deployments/"+id+"/aliases", body, &res); err != nil {
		return nil, &AliasAssignmentError{Alias: alias, Err: err}
	}
	return &res, nil
}

// NormalizeURL prepends https:// to the bare hostnames the provider
// returns.
func NormalizeURL(u string) string {
	if u == "" {
		return ""
	}
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	return "https://" + u
}
