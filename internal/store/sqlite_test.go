package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/openpreview/openpreview/pkg/types"
)

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLite_SaveGetUpsert(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	rec := &types.PersistedDeployment{
		URL:         "https://preview-abc.vercel.app",
		ProjectName: "preview-abc",
		Timestamp:   1700000000000,
	}
	if err := s.SaveDeployment(ctx, "thread-1", rec); err != nil {
		t.Fatalf("SaveDeployment: %v", err)
	}

	got, err := s.GetDeployment(ctx, "thread-1")
	if err != nil {
		t.Fatalf("GetDeployment: %v", err)
	}
	if *got != *rec {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, rec)
	}

	// Second save for the same thread replaces the record.
	rec2 := &types.PersistedDeployment{
		URL:         "https://preview-def.vercel.app",
		ProjectName: "preview-abc",
		Timestamp:   1700000001000,
	}
	if err := s.SaveDeployment(ctx, "thread-1", rec2); err != nil {
		t.Fatalf("SaveDeployment (upsert): %v", err)
	}
	got, err = s.GetDeployment(ctx, "thread-1")
	if err != nil {
		t.Fatalf("GetDeployment after upsert: %v", err)
	}
	if got.URL != rec2.URL {
		t.Errorf("URL = %q, want %q", got.URL, rec2.URL)
	}

	infos, err := s.ListDeployments(ctx)
	if err != nil {
		t.Fatalf("ListDeployments: %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("got %d rows, want 1", len(infos))
	}
}

func TestSQLite_DeleteAndMissing(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	if _, err := s.GetDeployment(ctx, "missing"); err != ErrNotFound {
		t.Errorf("got %v, want ErrNotFound", err)
	}

	rec := &types.PersistedDeployment{URL: "https://x.vercel.app", ProjectName: "x", Timestamp: 1}
	if err := s.SaveDeployment(ctx, "thread-1", rec); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteDeployment(ctx, "thread-1"); err != nil {
		t.Fatalf("DeleteDeployment: %v", err)
	}
	if _, err := s.GetDeployment(ctx, "thread-1"); err != ErrNotFound {
		t.Errorf("after delete: got %v, want ErrNotFound", err)
	}
}

func TestSQLite_EventsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	for _, evType := range []string{"deploy_started", "deploy_building", "deploy_succeeded"} {
		ev := &types.DeploymentEvent{
			ThreadID: "thread-1",
			Type:     evType,
			State:    types.DeployStateDeploying,
		}
		if err := s.RecordEvent(ctx, ev); err != nil {
			t.Fatalf("RecordEvent(%s): %v", evType, err)
		}
	}

	evs, err := s.ListEvents(ctx, "thread-1", 2)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(evs) != 2 {
		t.Fatalf("got %d events, want 2", len(evs))
	}
	if evs[0].Type != "deploy_succeeded" || evs[1].Type != "deploy_building" {
		t.Errorf("order = [%s, %s], want newest first", evs[0].Type, evs[1].Type)
	}
	if evs[0].ID == "" {
		t.Error("expected an assigned event ID")
	}
	if evs[0].State != types.DeployStateDeploying {
		t.Errorf("State = %q, want %q", evs[0].State, types.DeployStateDeploying)
	}
}
