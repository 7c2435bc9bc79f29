package jobs

import (
	"errors"
	"fmt"
	"sync"

	"daq-console/internal/domain"
)

// ErrRunActive is returned when starting a second acquisition run while one
// occupies the slot.
var ErrRunActive = errors.New("acquisition run already active")

// ErrNoActiveRun is returned when a stop is requested in idle state.
var ErrNoActiveRun = errors.New("no active acquisition run")

// Supervisor owns the single allowed active acquisition run and linearizes
// its state transitions. All methods hold the mutex only for the duration of
// the snapshot or transition, never across a blocking call.
type Supervisor struct {
	mu      sync.RWMutex
	current domain.Run
}

// NewSupervisor creates a supervisor with an empty run slot.
func NewSupervisor() *Supervisor {
	return &Supervisor{
		current: domain.Run{
			Status: domain.RunStatusIdle,
		},
	}
}

// Start claims the run slot for a new run in starting state.
func (s *Supervisor) Start(run domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current.Status.Active() {
		return ErrRunActive
	}

	run.Status = domain.RunStatusStarting
	s.current = run
	return nil
}

// Transition validates and applies a state transition for the current run.
// Transitions are monotonic along the run state machine; no state is
// revisited within one run.
func (s *Supervisor) Transition(status domain.RunStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current.ID == "" && status != domain.RunStatusIdle {
		return fmt.Errorf("cannot transition without an active run")
	}
	if status == s.current.Status {
		return nil
	}
	if !isValidTransition(s.current.Status, status) {
		return fmt.Errorf("invalid transition: %s -> %s", s.current.Status, status)
	}

	s.current.Status = status
	return nil
}

// Current returns a snapshot of the current run.
func (s *Supervisor) Current() domain.Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// IsActive reports whether a run currently occupies the slot.
func (s *Supervisor) IsActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Status.Active()
}

// RequestStop moves an active run to stopping state. The worker observes the
// cancellation flag between pulls; this call does not wait for it to exit.
func (s *Supervisor) RequestStop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.current.Status {
	case domain.RunStatusStarting, domain.RunStatusRunning:
		s.current.Status = domain.RunStatusStopping
		return nil
	case domain.RunStatusStopping:
		return nil
	default:
		return ErrNoActiveRun
	}
}

// Reset clears run metadata and returns the supervisor to idle.
func (s *Supervisor) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = domain.Run{Status: domain.RunStatusIdle}
}

// isValidTransition enforces the allowed run state machine edges.
func isValidTransition(from, to domain.RunStatus) bool {
	switch from {
	case domain.RunStatusIdle:
		return to == domain.RunStatusStarting
	case domain.RunStatusStarting:
		return to == domain.RunStatusRunning || to == domain.RunStatusStopping || to == domain.RunStatusFailed
	case domain.RunStatusRunning:
		return to == domain.RunStatusStopping || to == domain.RunStatusCompleted || to == domain.RunStatusFailed
	case domain.RunStatusStopping:
		return to == domain.RunStatusCompleted || to == domain.RunStatusFailed
	case domain.RunStatusCompleted, domain.RunStatusFailed:
		return to == domain.RunStatusStarting || to == domain.RunStatusIdle
	default:
		return false
	}
}
