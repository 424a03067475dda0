package vercel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestPollUntilTerminal_ReadyAfterBuilding(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		state := PhaseBuilding
		if calls.Add(1) >= 3 {
			state = PhaseReady
		}
		json.NewEncoder(w).Encode(Deployment{ID: "dpl_1", URL: "preview.vercel.app", ReadyState: state})
	})

	var phases []string
	dep, err := c.PollUntilTerminal(context.Background(), "dpl_1", PollOptions{
		Interval: 5 * time.Millisecond,
		MaxWait:  time.Second,
		OnUpdate: func(phase string) { phases = append(phases, phase) },
	})
	if err != nil {
		t.Fatalf("PollUntilTerminal failed: %v", err)
	}
	if dep.Phase() != PhaseReady {
		t.Errorf("expected READY, got %q", dep.Phase())
	}
	if len(phases) != 2 || phases[0] != PhaseBuilding || phases[1] != PhaseReady {
		t.Errorf("expected one update per transition, got %v", phases)
	}
}

func TestPollUntilTerminal_BuildFailureCarriesLogExcerpt(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/events") {
			json.NewEncoder(w).Encode([]BuildEvent{
				{Text: "installing dependencies"},
				{Text: "SyntaxError: Unexpected token ')'"},
				{Text: "Build failed with exit code 1"},
			})
			return
		}
		json.NewEncoder(w).Encode(Deployment{ID: "dpl_1", ReadyState: PhaseCanceled})
	})

	_, err := c.PollUntilTerminal(context.Background(), "dpl_1", PollOptions{
		Interval: 5 * time.Millisecond,
		MaxWait:  time.Second,
	})
	var bf *BuildFailure
	if !errors.As(err, &bf) {
		t.Fatalf("expected BuildFailure, got %T: %v", err, err)
	}
	if bf.State != PhaseCanceled {
		t.Errorf("expected CANCELED state, got %q", bf.State)
	}
	if !strings.Contains(bf.LogExcerpt, "SyntaxError") {
		t.Errorf("expected excerpt to carry the syntax error, got %q", bf.LogExcerpt)
	}
	if strings.Contains(bf.LogExcerpt, "installing dependencies") {
		t.Errorf("expected non-error lines to be filtered, got %q", bf.LogExcerpt)
	}
}

func TestPollUntilTerminal_Timeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Deployment{ID: "dpl_1", ReadyState: PhaseBuilding})
	})

	_, err := c.PollUntilTerminal(context.Background(), "dpl_1", PollOptions{
		Interval: 5 * time.Millisecond,
		MaxWait:  25 * time.Millisecond,
	})
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected TimeoutError, got %T: %v", err, err)
	}
}

func TestPollUntilTerminal_ContextCancel(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Deployment{ID: "dpl_1", ReadyState: PhaseQueued})
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(15 * time.Millisecond)
		cancel()
	}()

	_, err := c.PollUntilTerminal(ctx, "dpl_1", PollOptions{
		Interval: 5 * time.Millisecond,
		MaxWait:  time.Second,
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestExtractFailureLines_PrefersMarkedLines(t *testing.T) {
	events := []BuildEvent{
		{Text: "cloning repository"},
		{Text: "Module not found: Can't resolve '@/components/ui/button'"},
		{Text: "compiling"},
		{Text: "Build failed"},
	}
	got := ExtractFailureLines(events)
	if strings.Contains(got, "cloning") || strings.Contains(got, "compiling") {
		t.Errorf("expected only marked lines, got %q", got)
	}
	if !strings.Contains(got, "Module not found") || !strings.Contains(got, "Build failed") {
		t.Errorf("expected marked lines retained, got %q", got)
	}
}

func TestExtractFailureLines_FallsBackToTail(t *testing.T) {
	var events []BuildEvent
	for i := 0; i < 40; i++ {
		events = append(events, BuildEvent{Text: fmt.Sprintf("step %d ok", i)})
	}
	got := strings.Split(ExtractFailureLines(events), "\n")
	if len(got) != 20 {
		t.Fatalf("expected last 20 raw lines, got %d", len(got))
	}
	if got[0] != "step 20 ok" || got[19] != "step 39 ok" {
		t.Errorf("expected the trailing window, got first=%q last=%q", got[0], got[19])
	}
}

func TestExtractFailureLines_CapsMatchedWindow(t *testing.T) {
	var events []BuildEvent
	for i := 0; i < 45; i++ {
		events = append(events, BuildEvent{Text: fmt.Sprintf("error on line %d", i)})
	}
	got := strings.Split(ExtractFailureLines(events), "\n")
	if len(got) != 30 {
		t.Fatalf("expected matched window capped at 30, got %d", len(got))
	}
	if got[0] != "error on line 15" {
		t.Errorf("expected window to start at line 15, got %q", got[0])
	}
}
