package types

import "time"

// StreamMessage is the envelope for thread stream WebSocket frames. The
// agent sends "update" frames; the server pushes "status" and "change"
// frames as the engine reacts.
type StreamMessage struct {
	Type   string          `json:"type"` // "update", "status", "change", "error"
	Update *SnapshotUpdate `json:"update,omitempty"`
	Status *ThreadStatus   `json:"status,omitempty"`
	Change *ChangeRecord   `json:"change,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// StreamTokenResponse carries a short-lived thread-scoped token for
// browser WebSocket clients that cannot set API key headers.
type StreamTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}
