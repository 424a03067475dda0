package events

import (
	"context"
	"testing"

	"github.com/openpreview/openpreview/internal/store"
	"github.com/openpreview/openpreview/pkg/types"
)

func TestSubject_SanitizesTokens(t *testing.T) {
	got := Subject("thread.abc/123", "deploy_succeeded")
	want := "preview.events.thread-abc-123.deploy_succeeded"
	if got != want {
		t.Fatalf("Subject = %q, want %q", got, want)
	}
}

func TestSubject_EmptyThreadID(t *testing.T) {
	got := Subject("", "reset")
	if got != "preview.events.unknown.reset" {
		t.Fatalf("Subject = %q", got)
	}
}

func TestRecorder_FlushesOnClose(t *testing.T) {
	st := store.NewMemory()
	rec := NewRecorder(st)

	for _, typ := range []string{"session_started", "deploy_started", "deploy_succeeded"} {
		rec.Publish(&types.DeploymentEvent{ThreadID: "t1", Type: typ})
	}
	rec.Close()

	evs, err := st.ListEvents(context.Background(), "t1", 10)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(evs) != 3 {
		t.Fatalf("got %d events, want 3", len(evs))
	}
	// Newest first.
	if evs[0].Type != "deploy_succeeded" || evs[2].Type != "session_started" {
		t.Fatalf("unexpected order: %s .. %s", evs[0].Type, evs[2].Type)
	}
}

func TestRecorder_DropsWhenQueueFull(t *testing.T) {
	st := store.NewMemory()
	rec := &Recorder{
		store: st,
		queue: make(chan *types.DeploymentEvent, 1),
		stop:  make(chan struct{}),
	}
	// No drain goroutine running: the second publish must not block.
	rec.Publish(&types.DeploymentEvent{ThreadID: "t1", Type: "a"})
	rec.Publish(&types.DeploymentEvent{ThreadID: "t1", Type: "b"})
	if len(rec.queue) != 1 {
		t.Fatalf("queue length = %d, want 1", len(rec.queue))
	}
}
