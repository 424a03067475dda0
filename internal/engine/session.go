package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/openpreview/openpreview/internal/filetree"
	"github.com/openpreview/openpreview/internal/metrics"
	"github.com/openpreview/openpreview/internal/snapshot"
	"github.com/openpreview/openpreview/internal/store"
	"github.com/openpreview/openpreview/internal/tracker"
	"github.com/openpreview/openpreview/internal/vercel"
	"github.com/openpreview/openpreview/pkg/types"
)

// State is the deploy lifecycle state of one thread.
type State int

const (
	StateIdle State = iota
	StateWaiting
	StatePreparing
	StateDeploying
	StateBuilding
	StateReady
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaiting:
		return "waiting"
	case StatePreparing:
		return "preparing"
	case StateDeploying:
		return "deploying"
	case StateBuilding:
		return "building"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Session owns everything the engine knows about one conversation
// thread. All mutation happens under mu; the snapshot tick sequence is
// serialized by it, which preserves the ordering guarantees of a single
// event loop.
type Session struct {
	threadID    string
	projectName string
	eng         *Engine

	mu      sync.Mutex
	snap    snapshot.Snapshot
	busy    bool
	tracker *tracker.Tracker
	tree    *filetree.Reconciler

	state     State
	prevState State // state to return to when the countdown is canceled

	countdown     *time.Timer
	countdownEnds time.Time
	pending       snapshot.Snapshot // snapshot frozen for the countdown

	lastTriggerHash string

	deployGen    int // bumped on reset so stale attempts discard their result
	deployCancel context.CancelFunc

	record      *types.DeploymentRecord
	deployed    snapshot.Snapshot // frozen at ready, drift baseline
	deployedSet bool

	errMsg    string
	errKind   string
	fixPrompt string

	subs map[chan types.StreamMessage]struct{}
}

func newSession(e *Engine, threadID string) *Session {
	return &Session{
		threadID:    threadID,
		projectName: projectName(e.cfg.ProjectPrefix, threadID),
		eng:         e,
		tracker:     tracker.New(),
		tree:        filetree.NewReconciler(),
		subs:        make(map[chan types.StreamMessage]struct{}),
	}
}

// restore loads the thread's persisted record, if any, and re-enters
// ready so a reload shows the last preview without a network call.
func (s *Session) restore() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rec, err := s.eng.cfg.Store.GetDeployment(ctx, s.threadID)
	if err != nil {
		if err != store.ErrNotFound {
			log.Printf("engine: thread %s record restore failed: %v", s.threadID, err)
		}
		return
	}

	s.mu.Lock()
	s.state = StateReady
	if rec.ProjectName != "" {
		s.projectName = rec.ProjectName
	}
	s.record = &types.DeploymentRecord{
		URL:         rec.URL,
		State:       types.DeployStateReady,
		ProjectName: rec.ProjectName,
		CreatedAt:   time.UnixMilli(rec.Timestamp),
	}
	s.mu.Unlock()
	log.Printf("engine: thread %s restored deployment %s", s.threadID, rec.URL)
}

// Apply folds one snapshot tick into the session and returns the
// resulting status. It drives the change tracker, the tree reconciler
// and the auto-deploy gate.
func (s *Session) Apply(update types.SnapshotUpdate) types.ThreadStatus {
	snap := snapshot.New(update.Files)
	metrics.SnapshotTicksTotal.Inc()

	s.mu.Lock()
	wasBusy := s.busy
	s.snap = snap
	s.busy = update.Busy

	emitted := s.tracker.Apply(snap, update.Busy)
	s.tree.Reconcile(snap, emitted)

	if !wasBusy && update.Busy {
		s.publishLocked("session_started", nil)
	}
	if wasBusy && !update.Busy {
		payload, _ := json.Marshal(map[string]int{"changes": s.tracker.Count()})
		s.publishLocked("session_ended", payload)
	}

	// New agent activity voids a pending countdown; the snapshot it froze
	// is about to be rewritten. Forgetting the trigger hash lets the
	// session's outcome re-trigger even if it ends up byte-identical.
	if update.Busy && s.state == StateWaiting {
		s.stopCountdownLocked()
		s.pending = snapshot.Snapshot{}
		s.lastTriggerHash = ""
		s.setStateLocked(s.prevState)
		log.Printf("engine: thread %s countdown interrupted by agent activity", s.threadID)
	}

	for i := range emitted {
		rec := emitted[i]
		s.notifyLocked(types.StreamMessage{Type: "change", Change: &rec})
	}

	s.maybeTriggerLocked()

	status := s.statusLocked()
	s.notifyLocked(types.StreamMessage{Type: "status", Status: &status})
	s.mu.Unlock()
	return status
}

// maybeTriggerLocked starts the auto-deploy countdown when the gate
// opens: provider configured, agent not busy, snapshot deploy-complete,
// content hash unseen by the trigger, and no deploy mid-flight. While
// already waiting, a newer qualifying snapshot replaces the pending one
// without restarting the countdown.
func (s *Session) maybeTriggerLocked() {
	if s.eng.cfg.Client == nil || s.busy || s.midDeployLocked() {
		return
	}
	if !s.snap.DeployComplete() {
		return
	}
	h := s.snap.Hash()
	if h == s.lastTriggerHash {
		return
	}

	if s.state == StateWaiting {
		s.pending = s.snap
		s.lastTriggerHash = h
		return
	}

	s.lastTriggerHash = h
	s.pending = s.snap
	s.prevState = s.state
	s.setStateLocked(StateWaiting)

	delay := s.eng.cfg.CountdownDelay
	s.countdownEnds = time.Now().Add(delay)
	s.countdown = time.AfterFunc(delay, s.countdownFired)
	metrics.CountdownsStartedTotal.Inc()
	log.Printf("engine: thread %s auto deploy in %s", s.threadID, delay)
}

// countdownFired runs on the timer goroutine when the countdown reaches
// zero. A session that already left waiting (cancel, deploy-now, reset)
// makes this a no-op.
func (s *Session) countdownFired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateWaiting {
		return
	}
	s.countdown = nil
	s.startDeployLocked(s.pending)
}

// DeployNow deploys immediately: from waiting it short-circuits the
// countdown, from ready it re-deploys, from error it retries, from idle
// it force-deploys the current snapshot.
func (s *Session) DeployNow() (types.ThreadStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.eng.cfg.Client == nil {
		err := &vercel.ConfigurationError{Reason: "no deploy token set"}
		s.failLocked(err)
		return s.statusLocked(), err
	}
	if s.midDeployLocked() {
		return s.statusLocked(), fmt.Errorf("thread %s: deployment already in progress", s.threadID)
	}

	snap := s.snap
	if s.state == StateWaiting {
		s.stopCountdownLocked()
		snap = s.pending
	}
	// Manual deploys count as triggers so the same content does not
	// immediately re-enter waiting.
	s.lastTriggerHash = snap.Hash()
	s.startDeployLocked(snap)
	return s.statusLocked(), nil
}

// CancelCountdown leaves waiting without deploying and discards the
// pending snapshot. Outside waiting it is a no-op.
func (s *Session) CancelCountdown() types.ThreadStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateWaiting {
		s.stopCountdownLocked()
		s.pending = snapshot.Snapshot{}
		s.setStateLocked(s.prevState)
		log.Printf("engine: thread %s auto deploy canceled", s.threadID)
		status := s.statusLocked()
		s.notifyLocked(types.StreamMessage{Type: "status", Status: &status})
		return status
	}
	return s.statusLocked()
}

// Reset returns the thread to idle, cancels any countdown or in-flight
// deploy, and clears the persisted record.
func (s *Session) Reset(ctx context.Context) (types.ThreadStatus, error) {
	s.mu.Lock()
	s.stopCountdownLocked()
	if s.deployCancel != nil {
		s.deployCancel()
		s.deployCancel = nil
	}
	s.deployGen++
	s.record = nil
	s.deployed = snapshot.Snapshot{}
	s.deployedSet = false
	s.pending = snapshot.Snapshot{}
	s.lastTriggerHash = ""
	s.setStateLocked(StateIdle)
	s.publishLocked("reset", nil)
	status := s.statusLocked()
	s.notifyLocked(types.StreamMessage{Type: "status", Status: &status})
	s.mu.Unlock()

	if err := s.eng.cfg.Store.DeleteDeployment(ctx, s.threadID); err != nil {
		log.Printf("engine: thread %s failed to clear persisted record: %v", s.threadID, err)
		return status, err
	}
	log.Printf("engine: thread %s reset", s.threadID)
	return status, nil
}

// Status returns the thread's observable state.
func (s *Session) Status() types.ThreadStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Session) statusLocked() types.ThreadStatus {
	st := types.ThreadStatus{
		ThreadID:    s.threadID,
		ProjectName: s.projectName,
		State:       types.DeployState(s.state.String()),
		Busy:        s.busy,
		Error:       s.errMsg,
		ErrorKind:   s.errKind,
		FixPrompt:   s.fixPrompt,
		FileCount:   s.snap.VisibleCount(),
		ChangeCount: s.tracker.Count(),
	}
	if s.record != nil {
		rec := *s.record
		st.Record = &rec
	}
	if s.state == StateWaiting {
		if remaining := time.Until(s.countdownEnds); remaining > 0 {
			st.CountdownMs = remaining.Milliseconds()
		}
	}
	if s.state == StateReady && s.deployedSet && s.snap.Hash() != s.deployed.Hash() {
		st.HasDrift = true
	}
	return st
}

// Tree returns the current rendered file tree. The returned nodes are
// never mutated afterwards.
func (s *Session) Tree() []*types.TreeNode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.Tree()
}

// Changes returns the current or most recent work session's records.
func (s *Session) Changes() types.ChangesResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return types.ChangesResponse{
		Records: s.tracker.Records(),
		Latest:  s.tracker.Latest(),
	}
}

// File reads one visible file out of the current snapshot.
func (s *Session) File(path string) (*types.FileContentResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := snapshot.NormalizePath(path)
	if snapshot.IsMemoryPath(p) {
		return nil, false
	}
	content, ok := s.snap.Get(p)
	if !ok {
		return nil, false
	}
	return &types.FileContentResponse{
		Path:        p,
		Content:     content,
		DisplaySize: filetree.DisplaySize(content),
	}, true
}

// Record returns the last deployment record, nil when none exists.
func (s *Session) Record() *types.DeploymentRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record == nil {
		return nil
	}
	rec := *s.record
	return &rec
}

// Subscribe registers a stream listener. The returned channel receives
// status and change frames until cancel is called; slow listeners drop
// frames rather than block the engine.
func (s *Session) Subscribe() (<-chan types.StreamMessage, func()) {
	ch := make(chan types.StreamMessage, 32)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) notifyLocked(msg types.StreamMessage) {
	for ch := range s.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

// setStateLocked transitions the lifecycle state, clearing error details
// when leaving error, and publishes the transition.
func (s *Session) setStateLocked(next State) {
	if s.state == next {
		return
	}
	prev := s.state
	s.state = next
	if next != StateError {
		s.errMsg = ""
		s.errKind = ""
		s.fixPrompt = ""
	}
	payload, _ := json.Marshal(map[string]string{"from": prev.String(), "to": next.String()})
	s.publishLocked("state_changed", payload)
	log.Printf("engine: thread %s %s -> %s", s.threadID, prev, next)
}

func (s *Session) midDeployLocked() bool {
	return s.state == StatePreparing || s.state == StateDeploying || s.state == StateBuilding
}

func (s *Session) stopCountdownLocked() {
	if s.countdown != nil {
		s.countdown.Stop()
		s.countdown = nil
	}
}

func (s *Session) publishLocked(evType string, payload json.RawMessage) {
	if s.eng.cfg.Publisher == nil {
		return
	}
	s.eng.cfg.Publisher.Publish(&types.DeploymentEvent{
		ThreadID:  s.threadID,
		Type:      evType,
		State:     types.DeployState(s.state.String()),
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	})
}

// shutdown stops timers and cancels any in-flight deploy. Used on engine
// close; the session is unusable afterwards.
func (s *Session) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopCountdownLocked()
	if s.deployCancel != nil {
		s.deployCancel()
		s.deployCancel = nil
	}
	s.deployGen++
	for ch := range s.subs {
		delete(s.subs, ch)
		close(ch)
	}
}

// projectName derives the provider project name from the thread id:
// prefix plus the sanitized id, lowercased, capped to keep the provider
// hostname comfortable.
func projectName(prefix, threadID string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(threadID) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	slug := strings.Trim(b.String(), "-")
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	name := prefix + "-" + slug
	if slug == "" {
		name = prefix
	}
	if len(name) > 52 {
		name = strings.TrimRight(name[:52], "-")
	}
	return name
}
