package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/openpreview/openpreview/internal/metrics"
	"github.com/openpreview/openpreview/internal/snapshot"
	"github.com/openpreview/openpreview/internal/vercel"
	"github.com/openpreview/openpreview/pkg/types"
)

// startDeployLocked kicks off a deployment of snap on its own goroutine.
// Callers hold s.mu and have already ruled out a mid-flight deploy.
func (s *Session) startDeployLocked(snap snapshot.Snapshot) {
	ctx, cancel := context.WithCancel(context.Background())
	s.deployCancel = cancel
	s.deployGen++
	gen := s.deployGen

	s.setStateLocked(StatePreparing)
	s.publishLocked("deploy_started", nil)
	status := s.statusLocked()
	s.notifyLocked(types.StreamMessage{Type: "status", Status: &status})

	go s.runDeploy(ctx, gen, snap)
}

// runDeploy is one deployment attempt: prepare, create, poll, alias. Any
// error lands in finishErr; a reset mid-flight bumps the generation and
// the attempt's result is discarded.
func (s *Session) runDeploy(ctx context.Context, gen int, snap snapshot.Snapshot) {
	started := time.Now()

	preset, err := s.eng.cfg.Registry.Get(s.eng.cfg.Framework)
	if err != nil {
		s.finishErr(gen, started, &vercel.ConfigurationError{Reason: err.Error()})
		return
	}

	prepared, err := vercel.PrepareDeployment(snap, preset)
	if err != nil {
		s.finishErr(gen, started, err)
		return
	}

	s.transition(gen, StateDeploying)

	client := s.eng.cfg.Client
	dep, err := client.CreateDeployment(ctx, vercel.CreateDeploymentRequest{
		Name:            s.projectName,
		Files:           prepared.Files,
		ProjectSettings: prepared.Settings,
		Target:          s.eng.cfg.Target,
	})
	if err != nil {
		s.finishErr(gen, started, err)
		return
	}
	log.Printf("engine: thread %s created deployment %s (%d files)", s.threadID, dep.ID, len(prepared.Files))

	final, err := client.PollUntilTerminal(ctx, dep.ID, vercel.PollOptions{
		Interval: s.eng.cfg.PollInterval,
		MaxWait:  s.eng.cfg.MaxWait,
		OnUpdate: func(phase string) {
			if phase == vercel.PhaseBuilding {
				s.transition(gen, StateBuilding)
			}
		},
	})
	if err != nil {
		s.finishErr(gen, started, err)
		return
	}

	// Alias assignment is best effort: keep the provider URL on failure.
	url := final.URL
	alias := s.projectName + ".vercel.app"
	if res, aliasErr := client.AssignAlias(ctx, dep.ID, alias); aliasErr != nil {
		log.Printf("engine: thread %s %v", s.threadID, aliasErr)
	} else if res.Alias != "" {
		url = res.Alias
	}
	url = vercel.NormalizeURL(url)

	s.finishReady(gen, started, snap, dep.ID, url)
}

// transition moves the state mid-deploy, unless the attempt is stale.
func (s *Session) transition(gen int, next State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.deployGen {
		return
	}
	s.setStateLocked(next)
	status := s.statusLocked()
	s.notifyLocked(types.StreamMessage{Type: "status", Status: &status})
}

// finishReady lands a successful attempt: ready state, fresh record,
// drift baseline, persisted record, analytics and archival.
func (s *Session) finishReady(gen int, started time.Time, snap snapshot.Snapshot, deploymentID, url string) {
	now := time.Now().UTC()
	duration := now.Sub(started)

	s.mu.Lock()
	if gen != s.deployGen {
		s.mu.Unlock()
		return
	}
	s.deployCancel = nil
	s.record = &types.DeploymentRecord{
		ID:          deploymentID,
		URL:         url,
		State:       types.DeployStateReady,
		ProjectName: s.projectName,
		CreatedAt:   now,
	}
	s.deployed = snap
	s.deployedSet = true
	s.setStateLocked(StateReady)
	payload, _ := json.Marshal(map[string]any{
		"url":          url,
		"deploymentID": deploymentID,
		"durationMs":   duration.Milliseconds(),
	})
	s.publishLocked("deploy_succeeded", payload)
	status := s.statusLocked()
	s.notifyLocked(types.StreamMessage{Type: "status", Status: &status})
	s.mu.Unlock()

	persistCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := s.eng.cfg.Store.SaveDeployment(persistCtx, s.threadID, &types.PersistedDeployment{
		URL:         url,
		ProjectName: s.projectName,
		Timestamp:   now.UnixMilli(),
	})
	if err != nil {
		log.Printf("engine: thread %s failed to persist record: %v", s.threadID, err)
	}

	metrics.DeploysTotal.WithLabelValues("succeeded").Inc()
	metrics.DeployDuration.WithLabelValues("succeeded").Observe(duration.Seconds())

	if a := s.eng.cfg.Analytics; a != nil {
		a.TrackDeploy(s.threadID, true, "", duration)
	}
	if arch := s.eng.cfg.Archiver; arch != nil {
		files := snap.VisibleContents()
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			if err := arch.ArchiveSnapshot(ctx, s.threadID, deploymentID, files); err != nil {
				log.Printf("engine: thread %s snapshot archive failed: %v", s.threadID, err)
			}
		}()
	}
	log.Printf("engine: thread %s deployed %s in %s", s.threadID, url, duration.Round(time.Millisecond))
}

// finishErr lands a failed attempt. Canceled attempts (reset mid-flight)
// are dropped without surfacing an error state.
func (s *Session) finishErr(gen int, started time.Time, err error) {
	if errors.Is(err, context.Canceled) {
		log.Printf("engine: thread %s deploy attempt canceled", s.threadID)
		return
	}

	s.mu.Lock()
	if gen != s.deployGen {
		s.mu.Unlock()
		return
	}
	s.deployCancel = nil
	s.failLocked(err)
	status := s.statusLocked()
	s.notifyLocked(types.StreamMessage{Type: "status", Status: &status})
	s.mu.Unlock()

	kind := errKind(err)
	metrics.DeploysTotal.WithLabelValues("failed").Inc()
	metrics.DeployDuration.WithLabelValues("failed").Observe(time.Since(started).Seconds())
	metrics.DeployErrorsTotal.WithLabelValues(kind).Inc()

	if a := s.eng.cfg.Analytics; a != nil {
		a.TrackDeploy(s.threadID, false, kind, time.Since(started))
	}
}

// failLocked enters the error state with the classified kind and, for
// build failures, the agent-facing fix prompt.
func (s *Session) failLocked(err error) {
	s.setStateLocked(StateError)
	s.errMsg = err.Error()
	s.errKind = errKind(err)
	s.fixPrompt = ""

	var build *vercel.BuildFailure
	if errors.As(err, &build) {
		s.fixPrompt = FixPrompt(build)
	}

	payload, _ := json.Marshal(map[string]string{"errorKind": s.errKind, "message": s.errMsg})
	s.publishLocked("deploy_failed", payload)
	log.Printf("engine: thread %s deploy failed (%s): %v", s.threadID, s.errKind, err)
}

// errKind maps an error to its taxonomy label for status payloads and
// analytics.
func errKind(err error) string {
	var (
		cfgErr     *vercel.ConfigurationError
		emptyErr   *vercel.EmptyInputError
		buildErr   *vercel.BuildFailure
		timeoutErr *vercel.TimeoutError
	)
	switch {
	case errors.As(err, &cfgErr):
		return "configuration"
	case errors.As(err, &emptyErr):
		return "empty"
	case errors.As(err, &buildErr):
		return "build"
	case errors.As(err, &timeoutErr):
		return "timeout"
	default:
		return "transport"
	}
}

// FixPrompt renders the "ask the agent to fix this" text carried by
// build-failure statuses. Agents receive it verbatim as a user request.
func FixPrompt(f *vercel.BuildFailure) string {
	detail := f.LogExcerpt
	if detail == "" {
		detail = "the provider reported state " + f.State + " with no build output"
	}
	return fmt.Sprintf("The preview deployment failed to build. Build output:\n\n%s\n\nPlease fix the underlying issue in the generated code.", detail)
}
