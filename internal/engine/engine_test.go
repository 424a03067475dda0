package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openpreview/openpreview/internal/store"
	"github.com/openpreview/openpreview/internal/vercel"
	"github.com/openpreview/openpreview/pkg/types"
)

// fakeProvider emulates the deployment API: create, a scripted sequence
// of status phases, build events, alias attachment.
type fakeProvider struct {
	mu          sync.Mutex
	phases      []string // consumed one per status read; the last repeats
	logLines    []string
	aliasErr    bool
	createdName string
	aliased     string
}

func (f *fakeProvider) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v13/deployments", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Name string `json:"name"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.createdName = req.Name
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]string{
			"id": "dep_1", "url": "dep-1-abc.vercel.app", "readyState": "QUEUED",
		})
	})
	mux.HandleFunc("/v13/deployments/dep_1", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		f.mu.Lock()
		phase := f.phases[0]
		if len(f.phases) > 1 {
			f.phases = f.phases[1:]
		}
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]string{
			"id": "dep_1", "url": "dep-1-abc.vercel.app", "readyState": phase,
		})
	})
	mux.HandleFunc("/v3/deployments/dep_1/events", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		f.mu.Lock()
		lines := f.logLines
		f.mu.Unlock()
		events := make([]map[string]string, 0, len(lines))
		for _, l := range lines {
			events = append(events, map[string]string{"text": l})
		}
		json.NewEncoder(w).Encode(events)
	})
	mux.HandleFunc("/v2/deployments/dep_1/aliases", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.aliasErr {
			w.WriteHeader(http.StatusConflict)
			fmt.Fprint(w, `{"error":{"code":"alias_taken","message":"alias is taken"}}`)
			return
		}
		var req struct {
			Alias string `json:"alias"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		f.aliased = req.Alias
		json.NewEncoder(w).Encode(map[string]string{"uid": "al_1", "alias": req.Alias})
	})
	return mux
}

// recordingPublisher captures event types in emission order.
type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingPublisher) Publish(ev *types.DeploymentEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev.Type)
	r.mu.Unlock()
}

func (r *recordingPublisher) has(evType string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == evType {
			return true
		}
	}
	return false
}

func newTestEngine(t *testing.T, f *fakeProvider, mutate func(*Config)) (*Engine, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	cfg := Config{
		Store:          mem,
		CountdownDelay: 20 * time.Millisecond,
		PollInterval:   5 * time.Millisecond,
		MaxWait:        2 * time.Second,
	}
	if f != nil {
		srv := httptest.NewServer(f.handler())
		t.Cleanup(srv.Close)
		cfg.Client = vercel.NewClient(vercel.Config{Token: "test-token", BaseURL: srv.URL})
	}
	if mutate != nil {
		mutate(&cfg)
	}
	eng := New(cfg)
	t.Cleanup(eng.Close)
	return eng, mem
}

func deployableFiles() map[string]types.FileState {
	return map[string]types.FileState{
		"app/package.json": {Content: `{"name":"demo"}`},
		"app/src/page.tsx": {Content: "export default function Page() {}"},
	}
}

func waitForState(t *testing.T, s *Session, want types.DeployState) types.ThreadStatus {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		st := s.Status()
		if st.State == want {
			return st
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %q, still %q", want, s.Status().State)
	return types.ThreadStatus{}
}

func TestAutoDeploy_ManifestOnlyNeverTriggers(t *testing.T) {
	eng, _ := newTestEngine(t, &fakeProvider{phases: []string{"READY"}}, nil)
	s := eng.Thread("t1")

	st := s.Apply(types.SnapshotUpdate{
		Files: map[string]types.FileState{"app/package.json": {Content: "{}"}},
		Busy:  false,
	})
	if st.State != types.DeployStateIdle {
		t.Fatalf("state = %q, want idle", st.State)
	}

	time.Sleep(60 * time.Millisecond)
	if got := s.Status().State; got != types.DeployStateIdle {
		t.Errorf("state = %q after settle, want idle (no component file)", got)
	}
}

func TestAutoDeploy_EndToEndSuccess(t *testing.T) {
	f := &fakeProvider{phases: []string{"QUEUED", "BUILDING", "READY"}}
	pub := &recordingPublisher{}
	eng, mem := newTestEngine(t, f, func(c *Config) { c.Publisher = pub })
	s := eng.Thread("t1")

	s.Apply(types.SnapshotUpdate{Files: deployableFiles(), Busy: true})
	st := s.Apply(types.SnapshotUpdate{Files: deployableFiles(), Busy: false})
	if st.State != types.DeployStateWaiting {
		t.Fatalf("state = %q, want waiting", st.State)
	}
	if st.CountdownMs <= 0 {
		t.Errorf("CountdownMs = %d, want > 0", st.CountdownMs)
	}
	if st.ChangeCount != 2 {
		t.Errorf("ChangeCount = %d, want 2", st.ChangeCount)
	}

	final := waitForState(t, s, types.DeployStateReady)
	if final.Record == nil {
		t.Fatal("ready status carries no record")
	}
	wantURL := "https://preview-t1.vercel.app"
	if final.Record.URL != wantURL {
		t.Errorf("URL = %q, want %q", final.Record.URL, wantURL)
	}
	if final.Record.ID != "dep_1" {
		t.Errorf("deployment ID = %q", final.Record.ID)
	}

	rec, err := mem.GetDeployment(context.Background(), "t1")
	if err != nil {
		t.Fatalf("persisted record: %v", err)
	}
	if rec.URL != wantURL || rec.ProjectName != "preview-t1" || rec.Timestamp == 0 {
		t.Errorf("persisted = %+v", rec)
	}

	f.mu.Lock()
	created := f.createdName
	f.mu.Unlock()
	if created != "preview-t1" {
		t.Errorf("provider saw project %q, want preview-t1", created)
	}
	if !pub.has("deploy_started") || !pub.has("deploy_succeeded") {
		t.Errorf("events = %v, want deploy_started and deploy_succeeded", pub.events)
	}
}

func TestAutoDeploy_AliasFailureKeepsProviderURL(t *testing.T) {
	f := &fakeProvider{phases: []string{"READY"}, aliasErr: true}
	eng, _ := newTestEngine(t, f, nil)
	s := eng.Thread("t1")

	s.Apply(types.SnapshotUpdate{Files: deployableFiles(), Busy: true})
	s.Apply(types.SnapshotUpdate{Files: deployableFiles(), Busy: false})

	final := waitForState(t, s, types.DeployStateReady)
	if final.Record.URL != "https://dep-1-abc.vercel.app" {
		t.Errorf("URL = %q, want the provider default with https", final.Record.URL)
	}
}

func TestDeploy_BuildFailureSurfacesLogExcerpt(t *testing.T) {
	f := &fakeProvider{
		phases: []string{"QUEUED", "CANCELED"},
		logLines: []string{
			"Cloning github.com/demo/app",
			"SyntaxError: unexpected token (12:3)",
			"Build step exited",
		},
	}
	eng, _ := newTestEngine(t, f, nil)
	s := eng.Thread("t1")

	s.Apply(types.SnapshotUpdate{Files: deployableFiles(), Busy: true})
	s.Apply(types.SnapshotUpdate{Files: deployableFiles(), Busy: false})

	st := waitForState(t, s, types.DeployStateError)
	if !strings.Contains(st.Error, "SyntaxError: unexpected token (12:3)") {
		t.Errorf("error message missing log line: %q", st.Error)
	}
	if st.ErrorKind != "build" {
		t.Errorf("ErrorKind = %q, want build", st.ErrorKind)
	}
	if !strings.Contains(st.FixPrompt, "SyntaxError") {
		t.Errorf("fix prompt missing log line: %q", st.FixPrompt)
	}
}

func TestAutoDeploy_SameHashDoesNotRetrigger(t *testing.T) {
	f := &fakeProvider{phases: []string{"READY"}}
	eng, _ := newTestEngine(t, f, nil)
	s := eng.Thread("t1")

	s.Apply(types.SnapshotUpdate{Files: deployableFiles(), Busy: true})
	s.Apply(types.SnapshotUpdate{Files: deployableFiles(), Busy: false})
	waitForState(t, s, types.DeployStateReady)

	// Identical content must not re-enter waiting.
	st := s.Apply(types.SnapshotUpdate{Files: deployableFiles(), Busy: false})
	if st.State != types.DeployStateReady {
		t.Fatalf("state = %q after identical tick, want ready", st.State)
	}

	// Changed content re-opens the gate.
	files := deployableFiles()
	files["app/src/page.tsx"] = types.FileState{Content: "export default function Page() { return null }"}
	st = s.Apply(types.SnapshotUpdate{Files: files, Busy: false})
	if st.State != types.DeployStateWaiting {
		t.Errorf("state = %q after content change, want waiting", st.State)
	}
}

func TestAutoDeploy_BusySuppressesTrigger(t *testing.T) {
	eng, _ := newTestEngine(t, &fakeProvider{phases: []string{"READY"}}, nil)
	s := eng.Thread("t1")

	st := s.Apply(types.SnapshotUpdate{Files: deployableFiles(), Busy: true})
	if st.State != types.DeployStateIdle {
		t.Fatalf("state = %q while busy, want idle", st.State)
	}

	st = s.Apply(types.SnapshotUpdate{Files: deployableFiles(), Busy: false})
	if st.State != types.DeployStateWaiting {
		t.Errorf("state = %q after busy ended, want waiting", st.State)
	}
}

func TestCancelCountdown_ReturnsToPriorState(t *testing.T) {
	eng, _ := newTestEngine(t, &fakeProvider{phases: []string{"READY"}}, func(c *Config) {
		c.CountdownDelay = time.Hour
	})
	s := eng.Thread("t1")

	s.Apply(types.SnapshotUpdate{Files: deployableFiles(), Busy: true})
	st := s.Apply(types.SnapshotUpdate{Files: deployableFiles(), Busy: false})
	if st.State != types.DeployStateWaiting {
		t.Fatalf("state = %q, want waiting", st.State)
	}

	st = s.CancelCountdown()
	if st.State != types.DeployStateIdle {
		t.Fatalf("state = %q after cancel, want idle", st.State)
	}

	// The canceled snapshot's hash stays recorded; the same content must
	// not re-trigger.
	st = s.Apply(types.SnapshotUpdate{Files: deployableFiles(), Busy: false})
	if st.State != types.DeployStateIdle {
		t.Errorf("state = %q after identical tick, want idle", st.State)
	}
}

func TestAutoDeploy_BusyInterruptsCountdown(t *testing.T) {
	eng, _ := newTestEngine(t, &fakeProvider{phases: []string{"READY"}}, func(c *Config) {
		c.CountdownDelay = time.Hour
	})
	s := eng.Thread("t1")

	s.Apply(types.SnapshotUpdate{Files: deployableFiles(), Busy: false})
	if got := s.Status().State; got != types.DeployStateWaiting {
		t.Fatalf("state = %q, want waiting", got)
	}

	st := s.Apply(types.SnapshotUpdate{Files: deployableFiles(), Busy: true})
	if st.State != types.DeployStateIdle {
		t.Fatalf("state = %q after agent resumed, want idle", st.State)
	}

	// The voided trigger is forgotten: the same content re-triggers once
	// the agent settles.
	st = s.Apply(types.SnapshotUpdate{Files: deployableFiles(), Busy: false})
	if st.State != types.DeployStateWaiting {
		t.Errorf("state = %q after settle, want waiting", st.State)
	}
}

func TestDeployNow_ShortCircuitsCountdown(t *testing.T) {
	f := &fakeProvider{phases: []string{"READY"}}
	eng, _ := newTestEngine(t, f, func(c *Config) { c.CountdownDelay = time.Hour })
	s := eng.Thread("t1")

	s.Apply(types.SnapshotUpdate{Files: deployableFiles(), Busy: true})
	s.Apply(types.SnapshotUpdate{Files: deployableFiles(), Busy: false})

	if _, err := s.DeployNow(); err != nil {
		t.Fatalf("DeployNow: %v", err)
	}
	waitForState(t, s, types.DeployStateReady)
}

func TestDeployNow_RejectedMidDeploy(t *testing.T) {
	f := &fakeProvider{phases: []string{"QUEUED", "QUEUED", "QUEUED", "READY"}}
	eng, _ := newTestEngine(t, f, func(c *Config) {
		c.PollInterval = 30 * time.Millisecond
	})
	s := eng.Thread("t1")
	s.Apply(types.SnapshotUpdate{Files: deployableFiles(), Busy: false})

	if _, err := s.DeployNow(); err != nil {
		t.Fatalf("first DeployNow: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := s.DeployNow(); err == nil {
		t.Error("second DeployNow mid-flight should fail")
	}
	waitForState(t, s, types.DeployStateReady)
}

func TestReset_ClearsRecordAndPersistedState(t *testing.T) {
	f := &fakeProvider{phases: []string{"READY"}}
	eng, mem := newTestEngine(t, f, nil)
	s := eng.Thread("t1")

	s.Apply(types.SnapshotUpdate{Files: deployableFiles(), Busy: true})
	s.Apply(types.SnapshotUpdate{Files: deployableFiles(), Busy: false})
	waitForState(t, s, types.DeployStateReady)

	st, err := s.Reset(context.Background())
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if st.State != types.DeployStateIdle {
		t.Errorf("state = %q after reset, want idle", st.State)
	}
	if st.Record != nil {
		t.Errorf("record survived reset: %+v", st.Record)
	}
	if _, err := mem.GetDeployment(context.Background(), "t1"); err != store.ErrNotFound {
		t.Errorf("persisted record after reset: err = %v, want ErrNotFound", err)
	}
}

func TestRestore_ReadyViewFromPersistedRecord(t *testing.T) {
	mem := store.NewMemory()
	err := mem.SaveDeployment(context.Background(), "t9", &types.PersistedDeployment{
		URL:         "https://preview-t9.vercel.app",
		ProjectName: "preview-t9",
		Timestamp:   1700000000000,
	})
	if err != nil {
		t.Fatal(err)
	}

	eng := New(Config{Store: mem})
	t.Cleanup(eng.Close)

	st := eng.Thread("t9").Status()
	if st.State != types.DeployStateReady {
		t.Errorf("state = %q, want ready from restore", st.State)
	}
	if st.Record == nil || st.Record.URL != "https://preview-t9.vercel.app" {
		t.Errorf("record = %+v", st.Record)
	}
}

func TestDeployNow_NotConfigured(t *testing.T) {
	eng, _ := newTestEngine(t, nil, nil)
	s := eng.Thread("t1")
	s.Apply(types.SnapshotUpdate{Files: deployableFiles(), Busy: false})

	st, err := s.DeployNow()
	if err == nil {
		t.Fatal("DeployNow without a provider should fail")
	}
	if st.State != types.DeployStateError {
		t.Errorf("state = %q, want error", st.State)
	}
	if st.ErrorKind != "configuration" {
		t.Errorf("ErrorKind = %q, want configuration", st.ErrorKind)
	}
}

func TestStatus_DriftAfterReady(t *testing.T) {
	f := &fakeProvider{phases: []string{"READY"}}
	eng, _ := newTestEngine(t, f, nil)
	s := eng.Thread("t1")

	s.Apply(types.SnapshotUpdate{Files: deployableFiles(), Busy: true})
	s.Apply(types.SnapshotUpdate{Files: deployableFiles(), Busy: false})
	st := waitForState(t, s, types.DeployStateReady)
	if st.HasDrift {
		t.Error("fresh deployment should not report drift")
	}

	// A busy tick mutating content diverges from the deployed snapshot.
	files := deployableFiles()
	files["app/src/page.tsx"] = types.FileState{Content: "changed"}
	st = s.Apply(types.SnapshotUpdate{Files: files, Busy: true})
	if st.State != types.DeployStateReady {
		t.Fatalf("state = %q, want ready while agent works", st.State)
	}
	if !st.HasDrift {
		t.Error("expected drift against the deployed snapshot")
	}
}

func TestSubscribe_ReceivesStatusAndChangeFrames(t *testing.T) {
	eng, _ := newTestEngine(t, nil, nil)
	s := eng.Thread("t1")

	ch, cancel := s.Subscribe()
	defer cancel()

	s.Apply(types.SnapshotUpdate{
		Files: map[string]types.FileState{"app/a.txt": {Content: "x"}},
		Busy:  true,
	})

	var gotChange, gotStatus bool
	deadline := time.After(time.Second)
	for !(gotChange && gotStatus) {
		select {
		case msg := <-ch:
			switch msg.Type {
			case "change":
				gotChange = true
				if msg.Change.Path != "app/a.txt" || msg.Change.Kind != types.ChangeKindNew {
					t.Errorf("change frame = %+v", msg.Change)
				}
			case "status":
				gotStatus = true
				if !msg.Status.Busy {
					t.Errorf("status frame busy = false, want true")
				}
			}
		case <-deadline:
			t.Fatalf("missing frames: change=%v status=%v", gotChange, gotStatus)
		}
	}
}

func TestListThreads_MergesLiveAndPersisted(t *testing.T) {
	mem := store.NewMemory()
	err := mem.SaveDeployment(context.Background(), "persisted", &types.PersistedDeployment{
		URL: "https://old.vercel.app", ProjectName: "preview-persisted", Timestamp: 1000,
	})
	if err != nil {
		t.Fatal(err)
	}

	eng := New(Config{Store: mem})
	t.Cleanup(eng.Close)
	eng.Thread("live").Apply(types.SnapshotUpdate{
		Files: map[string]types.FileState{"app/a.txt": {Content: "x"}},
	})

	infos, err := eng.ListThreads(context.Background())
	if err != nil {
		t.Fatalf("ListThreads: %v", err)
	}
	byID := make(map[string]types.ThreadInfo)
	for _, info := range infos {
		byID[info.ThreadID] = info
	}
	if _, ok := byID["persisted"]; !ok {
		t.Error("missing persisted thread")
	}
	if info, ok := byID["live"]; !ok || info.State != types.DeployStateIdle {
		t.Errorf("live thread = %+v", info)
	}
}
