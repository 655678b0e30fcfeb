package session

import (
	"fmt"
	"sync"
)

// Phase is the lifecycle position of one capture attempt.
type Phase int

const (
	// PhaseIdle is the phase before the subprocess has been spawned.
	PhaseIdle Phase = iota
	// PhaseRecording is the only phase that accepts events.
	PhaseRecording
	// PhaseFinishing means the operator or timer requested a normal stop.
	PhaseFinishing
	// PhaseCancelling means the attempt was cancelled; no artifact is produced.
	PhaseCancelling
	// PhaseFailed means the subprocess failed to start or record.
	PhaseFailed
)

// String returns the string representation of the Phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhaseRecording:
		return "Recording"
	case PhaseFinishing:
		return "Finishing"
	case PhaseCancelling:
		return "Cancelling"
	case PhaseFailed:
		return "Failed"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Countdown constants. The displayed countdown starts short and is extensible;
// the subprocess holds the full max duration as its own hard ceiling.
const (
	initialCountdownSeconds = 30
	extendIncrementSeconds  = 30
)

// State is the mutable state of one capture attempt, owned by a single
// Controller. All transitions out of Recording go through Commit, which
// enforces that exactly one terminal request wins; concurrent event sources
// (timer, keyboard, process exit, signal) race to it and the losers are
// discarded.
type State struct {
	mu        sync.Mutex
	phase     Phase
	remaining int
	intended  int
	max       int
}

// NewState creates the state for an attempt with the given hard ceiling.
func NewState(maxDurationSeconds int) *State {
	return &State{phase: PhaseIdle, max: maxDurationSeconds}
}

// StartRecording moves Idle to Recording and arms the soft countdown at
// min(initial, max) seconds.
func (s *State) StartRecording() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseIdle {
		return
	}
	s.phase = PhaseRecording
	s.intended = initialCountdownSeconds
	if s.intended > s.max {
		s.intended = s.max
	}
	s.remaining = s.intended
}

// Tick decrements the countdown by one second and reports the remaining
// seconds and whether the soft target has expired. Ticks outside Recording
// are ignored.
func (s *State) Tick() (remaining int, expired bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseRecording {
		return s.remaining, false
	}
	if s.remaining > 0 {
		s.remaining--
	}
	return s.remaining, s.remaining == 0
}

// Extend raises the intended duration by the fixed increment, capped at the
// hard ceiling, and mirrors the increase into the countdown. Returns the new
// intended duration and false when there was no headroom (a no-op the caller
// should surface as a warning).
func (s *State) Extend() (intended int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseRecording {
		return s.intended, false
	}
	if s.intended >= s.max {
		return s.intended, false
	}
	grant := extendIncrementSeconds
	if s.intended+grant > s.max {
		grant = s.max - s.intended
	}
	s.intended += grant
	s.remaining += grant
	return s.intended, true
}

// Commit requests the transition out of Recording. The first commit wins;
// every later request is discarded, making near-simultaneous events safe.
func (s *State) Commit(p Phase) bool {
	if p != PhaseFinishing && p != PhaseCancelling && p != PhaseFailed {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseRecording {
		return false
	}
	s.phase = p
	return true
}

// Phase returns the current phase.
func (s *State) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Remaining returns the countdown seconds left.
func (s *State) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

// Intended returns the current soft target duration in seconds.
func (s *State) Intended() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.intended
}
