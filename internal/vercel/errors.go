package vercel

import (
	"fmt"
	"time"
)

// ConfigurationError means no provider token is configured; nothing was
// attempted.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "vercel: not configured: " + e.Reason
}

// EmptyInputError means the snapshot held no deployable files. It is
// raised before any network call.
type EmptyInputError struct{}

func (e *EmptyInputError) Error() string {
	return "vercel: no files to deploy"
}

// TransportError is a non-2xx response from the provider API.
type TransportError struct {
	Status  int
	Code    string
	Message string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("vercel API error (status %d): %s", e.Status, e.Message)
}

// BuildFailure is a deployment that reached a failed terminal state. The
// excerpt carries the error-bearing build log lines when available.
type BuildFailure struct {
	DeploymentID string
	State        string
	LogExcerpt   string
}

func (e *BuildFailure) Error() string {
	if e.LogExcerpt != "" {
		return fmt.Sprintf("vercel build failed (%s):\n%s", e.State, e.LogExcerpt)
	}
	return fmt.Sprintf("vercel build failed (%s)", e.State)
}

// TimeoutError means the deployment never reached a terminal state within
// the polling window.
type TimeoutError struct {
	Waited time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("vercel deployment did not settle within %s", e.Waited)
}

// AliasAssignmentError is a failed alias attach. Callers keep the default
// deployment URL and treat it as non-fatal.
type AliasAssignmentError struct {
	Alias string
	Err   error
}

func (e *AliasAssignmentError) Error() string {
	return fmt.Sprintf("vercel: alias %q assignment failed: %v", e.Alias, e.Err)
}

func (e *AliasAssignmentError) Unwrap() error {
	return e.Err
}
