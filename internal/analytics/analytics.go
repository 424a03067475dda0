// Package analytics reports deploy outcomes to Segment. Without a write
// key every call is a no-op, so callers never guard their tracking.
package analytics

import (
	"log"
	"time"

	analytics "github.com/segmentio/analytics-go/v3"

	"github.com/openpreview/openpreview/internal/engine"
)

// Client wraps a Segment client for deploy outcome tracking.
type Client struct {
	segment analytics.Client
}

var _ engine.Analytics = (*Client)(nil)

// New creates a tracking client. An empty write key disables tracking.
func New(writeKey string) *Client {
	if writeKey == "" {
		return &Client{}
	}
	return &Client{segment: analytics.New(writeKey)}
}

// TrackDeploy records one deploy outcome. Threads are tracked as
// anonymous ids: a thread belongs to the agent platform, not a person.
func (c *Client) TrackDeploy(threadID string, success bool, errKind string, duration time.Duration) {
	if c.segment == nil {
		return
	}

	event := "Preview Deploy Succeeded"
	props := analytics.NewProperties().
		Set("threadId", threadID).
		Set("durationMs", duration.Milliseconds())
	if !success {
		event = "Preview Deploy Failed"
		props = props.Set("errorKind", errKind)
	}

	err := c.segment.Enqueue(analytics.Track{
		AnonymousId: threadID,
		Event:       event,
		Properties:  props,
	})
	if err != nil {
		log.Printf("analytics: enqueue error: %v", err)
	}
}

// Close flushes buffered events.
func (c *Client) Close() {
	if c.segment != nil {
		if err := c.segment.Close(); err != nil {
			log.Printf("analytics: close error: %v", err)
		}
	}
}
