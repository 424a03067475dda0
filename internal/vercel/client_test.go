package vercel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{Token: "tok", BaseURL: srv.URL})
}

func TestCreateDeployment_SendsPayload(t *testing.T) {
	var gotAuth, gotPath string
	var gotReq CreateDeploymentRequest

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		json.NewEncoder(w).Encode(Deployment{ID: "dpl_1", URL: "preview-abc.vercel.app", ReadyState: PhaseQueued})
	})

	dep, err := c.CreateDeployment(context.Background(), CreateDeploymentRequest{
		Name:   "preview-thread",
		Files:  []DeploymentFile{{File: "package.json", Data: "e30=", Encoding: "base64"}},
		Target: "production",
	})
	if err != nil {
		t.Fatalf("CreateDeployment failed: %v", err)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("expected bearer auth, got %q", gotAuth)
	}
	if gotPath != "/v13/deployments" {
		t.Errorf("expected /v13/deployments, got %q", gotPath)
	}
	if gotReq.Name != "preview-thread" || len(gotReq.Files) != 1 {
		t.Errorf("request body not forwarded: %+v", gotReq)
	}
	if dep.ID != "dpl_1" || dep.Phase() != PhaseQueued {
		t.Errorf("unexpected deployment: %+v", dep)
	}
}

func TestDo_ParsesAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":"forbidden","message":"token expired"}}`))
	})

	_, err := c.GetDeployment(context.Background(), "dpl_1")
	if err == nil {
		t.Fatalf("expected error")
	}
	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TransportError, got %T: %v", err, err)
	}
	if terr.Status != http.StatusForbidden || terr.Code != "forbidden" || terr.Message != "token expired" {
		t.Errorf("unexpected transport error: %+v", terr)
	}
}

func TestDo_AppendsTeamID(t *testing.T) {
	var gotTeam string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTeam = r.URL.Query().Get("teamId")
		json.NewEncoder(w).Encode(Deployment{ID: "dpl_1"})
	}))
	defer srv.Close()

	c := NewClient(Config{Token: "tok", TeamID: "team_9", BaseURL: srv.URL})
	if _, err := c.GetDeployment(context.Background(), "dpl_1"); err != nil {
		t.Fatalf("GetDeployment failed: %v", err)
	}
	if gotTeam != "team_9" {
		t.Errorf("expected teamId query param, got %q", gotTeam)
	}
}

func TestAssignAlias_WrapsFailures(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":{"code":"alias_taken","message":"alias is taken"}}`))
	})

	_, err := c.AssignAlias(context.Background(), "dpl_1", "preview-thread.vercel.app")
	var aerr *AliasAssignmentError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected AliasAssignmentError, got %T", err)
	}
	var terr *TransportError
	if !errors.As(aerr, &terr) || terr.Code != "alias_taken" {
		t.Errorf("expected wrapped TransportError, got %v", aerr.Err)
	}
}

func TestNormalizeURL(t *testing.T) {
	cases := map[string]string{
		"preview-abc.vercel.app":         "https://preview-abc.vercel.app",
		"https://preview-abc.vercel.app": "https://preview-abc.vercel.app",
		"http://localhost:3000":          "http://localhost:3000",
		"":                               "",
	}
	for in, want := range cases {
		if got := NormalizeURL(in); got != want {
			t.Errorf("NormalizeURL(%q): expected %q, got %q", in, want, got)
		}
	}
}
