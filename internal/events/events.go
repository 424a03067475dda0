// Package events moves engine lifecycle events between processes. The
// engine publishes every session, countdown and deploy transition; this
// package either records them straight into the store (single-node) or
// relays them through NATS JetStream so any replica can consume the feed.
package events

import "strings"

const (
	streamName    = "PREVIEW_EVENTS"
	subjectPrefix = "preview.events."
)

// Subject returns the JetStream subject for one thread's events. Thread IDs
// come from the agent platform and may contain characters that are
// meaningful in NATS subjects, so each part is reduced to a single token.
func Subject(threadID, eventType string) string {
	return subjectPrefix + token(threadID) + "." + token(eventType)
}

func token(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}
