package vercel

import (
	"context"
	"log"
	"strings"
	"time"
)

const (
	// DefaultPollInterval is the delay between deployment status reads.
	DefaultPollInterval = 3 * time.Second
	// DefaultMaxWait bounds the total time a deployment may stay
	// non-terminal before polling gives up.
	DefaultMaxWait = 5 * time.Minute
)

// PollOptions tune PollUntilTerminal. Zero values fall back to the
// defaults. OnUpdate fires once per observed phase transition.
type PollOptions struct {
	Interval time.Duration
	MaxWait  time.Duration
	OnUpdate func(phase string)
}

// PollUntilTerminal watches a deployment until it settles. READY returns
// the deployment; ERROR and CANCELED return *BuildFailure enriched with
// log lines; exceeding MaxWait returns *TimeoutError. Context cancellation
// propagates as ctx.Err().
func (c *Client) PollUntilTerminal(ctx context.Context, id string, opts PollOptions) (*Deployment, error) {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	maxWait := opts.MaxWait
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	deadline := time.Now().Add(maxWait)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastPhase string
	for {
		dep, err := c.GetDeployment(ctx, id)
		if err != nil {
			return nil, err
		}

		phase := dep.Phase()
		if phase != lastPhase {
			lastPhase = phase
			if opts.OnUpdate != nil {
				opts.OnUpdate(phase)
			}
		}

		switch phase {
		case PhaseReady:
			return dep, nil
		case PhaseError, PhaseCanceled:
			return nil, &BuildFailure{
				DeploymentID: id,
				State:        phase,
				LogExcerpt:   c.failureExcerpt(ctx, id),
			}
		}

		if time.Now().After(deadline) {
			return nil, &TimeoutError{Waited: maxWait}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) failureExcerpt(ctx context.Context, id string) string {
	events, err := c.ListBuildEvents(ctx, id)
	if err != nil {
		log.Printf("vercel: failed to fetch build events for %s: %v", id, err)
		return ""
	}
	return ExtractFailureLines(events)
}

const (
	maxMatchedLines = 30
	maxRawLines     = 20
)

// exactMarkers catch failure lines that name an exception without using
// the words "error" or "failed".
var exactMarkers = []string{
	"SyntaxError",
	"ReferenceError",
	"TypeError",
	"Cannot find module",
	"Module not found",
}

// ExtractFailureLines picks the error-bearing lines out of a build log:
// the last 30 lines matching a failure marker, or the last 20 raw lines
// when nothing matches.
func ExtractFailureLines(events []BuildEvent) string {
	var all, matched []string
	for _, e := range events {
		line := strings.TrimRight(e.Line(), "\n")
		if line == "" {
			continue
		}
		all = append(all, line)
		if isFailureLine(line) {
			matched = append(matched, line)
		}
	}
	if len(matched) > 0 {
		return strings.Join(tail(matched, maxMatchedLines), "\n")
	}
	return strings.Join(tail(all, maxRawLines), "\n")
}

func isFailureLine(line string) bool {
	lower := strings.ToLower(line)
	if strings.Contains(lower, "error") || strings.Contains(lower, "failed") {
		return true
	}
	for _, m := range exactMarkers {
		if strings.Contains(line, m) {
			return true
		}
	}
	return false
}

func tail(lines []string, n int) []string {
	if len(lines) <= n {
		return lines
	}
	return lines[len(lines)-n:]
}
