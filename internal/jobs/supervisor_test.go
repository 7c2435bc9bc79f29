package jobs

import (
	"testing"

	"daq-console/internal/domain"
)

// TestSupervisorLifecycle verifies normal progression to completed state.
func TestSupervisorLifecycle(t *testing.T) {
	s := NewSupervisor()
	if s.IsActive() {
		t.Fatal("new supervisor should be idle")
	}

	if err := s.Start(domain.Run{ID: "run-1"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !s.IsActive() {
		t.Fatal("expected active after start")
	}
	if s.Current().Status != domain.RunStatusStarting {
		t.Fatalf("status = %s, want starting", s.Current().Status)
	}

	for _, status := range []domain.RunStatus{
		domain.RunStatusRunning,
		domain.RunStatusCompleted,
	} {
		if err := s.Transition(status); err != nil {
			t.Fatalf("transition to %s: %v", status, err)
		}
	}

	current := s.Current()
	if current.Status != domain.RunStatusCompleted {
		t.Fatalf("current status = %s, want completed", current.Status)
	}
	if s.IsActive() {
		t.Fatal("completed run should not be active")
	}
}

// TestSupervisorSingleSlot checks a second start is rejected while a run is
// in any active state.
func TestSupervisorSingleSlot(t *testing.T) {
	s := NewSupervisor()
	if err := s.Start(domain.Run{ID: "run-1"}); err != nil {
		t.Fatalf("start: %v", err)
	}

	for _, status := range []domain.RunStatus{
		domain.RunStatusRunning,
		domain.RunStatusStopping,
	} {
		if err := s.Start(domain.Run{ID: "run-2"}); err != ErrRunActive {
			t.Fatalf("start while %s: err = %v, want %v", s.Current().Status, err, ErrRunActive)
		}
		if err := s.Transition(status); err != nil {
			t.Fatalf("transition to %s: %v", status, err)
		}
	}

	if err := s.Transition(domain.RunStatusCompleted); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := s.Start(domain.Run{ID: "run-2"}); err != nil {
		t.Fatalf("start after terminal: %v", err)
	}
	if got := s.Current().ID; got != "run-2" {
		t.Fatalf("current ID = %s, want run-2", got)
	}
}

// TestSupervisorRejectsInvalidTransition checks state machine constraints.
func TestSupervisorRejectsInvalidTransition(t *testing.T) {
	s := NewSupervisor()
	if err := s.Start(domain.Run{ID: "run-1"}); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := s.Transition(domain.RunStatusCompleted); err == nil {
		t.Fatal("expected invalid transition error")
	}

	if err := s.Transition(domain.RunStatusRunning); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := s.Transition(domain.RunStatusStopping); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := s.Transition(domain.RunStatusRunning); err == nil {
		t.Fatal("expected error: states are not revisited")
	}
}

// TestSupervisorReset checks the slot returns to idle with no run metadata.
func TestSupervisorReset(t *testing.T) {
	s := NewSupervisor()
	if err := s.Start(domain.Run{ID: "run-1"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Transition(domain.RunStatusFailed); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if !s.Current().Status.Terminal() {
		t.Fatalf("status = %s, want a terminal state", s.Current().Status)
	}

	s.Reset()
	current := s.Current()
	if current.Status != domain.RunStatusIdle {
		t.Fatalf("status = %s, want idle", current.Status)
	}
	if current.ID != "" {
		t.Fatalf("ID = %q, want empty", current.ID)
	}
	if err := s.Start(domain.Run{ID: "run-2"}); err != nil {
		t.Fatalf("start after reset: %v", err)
	}
}

// TestSupervisorRequestStop verifies stop behavior across states.
func TestSupervisorRequestStop(t *testing.T) {
	s := NewSupervisor()

	if err := s.RequestStop(); err != ErrNoActiveRun {
		t.Fatalf("idle stop error = %v, want %v", err, ErrNoActiveRun)
	}

	if err := s.Start(domain.Run{ID: "run-1"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Transition(domain.RunStatusRunning); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := s.RequestStop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if s.Current().Status != domain.RunStatusStopping {
		t.Fatalf("status = %s, want stopping", s.Current().Status)
	}

	// Repeated stop is a no-op.
	if err := s.RequestStop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}

	if err := s.Transition(domain.RunStatusCompleted); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := s.RequestStop(); err != ErrNoActiveRun {
		t.Fatalf("terminal stop error = %v, want %v", err, ErrNoActiveRun)
	}
}
