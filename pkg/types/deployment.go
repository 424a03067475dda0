package types

import (
	"encoding/json"
	"time"
)

// DeployState represents the deployment lifecycle state of a thread.
type DeployState string

const (
	DeployStateIdle      DeployState = "idle"
	DeployStateWaiting   DeployState = "waiting"
	DeployStatePreparing DeployState = "preparing"
	DeployStateDeploying DeployState = "deploying"
	DeployStateBuilding  DeployState = "building"
	DeployStateReady     DeployState = "ready"
	DeployStateError     DeployState = "error"
)

// DeploymentRecord describes the most recent deployment of a thread.
type DeploymentRecord struct {
	ID          string      `json:"id"`
	URL         string      `json:"url"`
	State       DeployState `json:"state"`
	ProjectName string      `json:"projectName"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// PersistedDeployment is the durable per-thread record written after a
// successful deploy and cleared on reset.
type PersistedDeployment struct {
	URL         string `json:"url"`
	ProjectName string `json:"projectName"`
	Timestamp   int64  `json:"timestamp"` // unix ms
}

// ThreadStatus is the full observable state of one thread's engine session.
type ThreadStatus struct {
	ThreadID    string            `json:"threadID"`
	ProjectName string            `json:"projectName"`
	State       DeployState       `json:"state"`
	Busy        bool              `json:"busy"`
	CountdownMs int64             `json:"countdownMs,omitempty"` // remaining until auto deploy
	Record      *DeploymentRecord `json:"record,omitempty"`
	Error       string            `json:"error,omitempty"`
	ErrorKind   string            `json:"errorKind,omitempty"`
	FixPrompt   string            `json:"fixPrompt,omitempty"`
	HasDrift    bool              `json:"hasDrift"`
	FileCount   int               `json:"fileCount"`
	ChangeCount int               `json:"changeCount"`
}

// ThreadInfo is one row in a thread listing.
type ThreadInfo struct {
	ThreadID    string      `json:"threadID"`
	ProjectName string      `json:"projectName,omitempty"`
	State       DeployState `json:"state,omitempty"`
	URL         string      `json:"url,omitempty"`
	UpdatedAt   time.Time   `json:"updatedAt,omitempty"`
}

// ThreadListResponse is the response for listing threads.
type ThreadListResponse struct {
	Threads []ThreadInfo `json:"threads"`
}

// DeployRequest is the request body for an explicit deploy.
type DeployRequest struct {
	ProjectName string `json:"projectName,omitempty"`
}

// DeploymentEvent is one entry in a thread's deployment event history.
type DeploymentEvent struct {
	ID        string          `json:"id,omitempty"`
	ThreadID  string          `json:"threadID"`
	Type      string          `json:"type"`
	State     DeployState     `json:"state,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// ProjectSettings are the provider-side build settings sent with a
// deployment.
type ProjectSettings struct {
	Framework       string `json:"framework,omitempty"`
	InstallCommand  string `json:"installCommand,omitempty"`
	BuildCommand    string `json:"buildCommand,omitempty"`
	OutputDirectory string `json:"outputDirectory,omitempty"`
}

// FrameworkInfo describes one registered framework preset.
type FrameworkInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Default     bool   `json:"default,omitempty"`
}

// FrameworkListResponse is the response for listing framework presets.
type FrameworkListResponse struct {
	Frameworks []FrameworkInfo `json:"frameworks"`
}
