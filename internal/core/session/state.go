// Package session defines the process-wide session state, the connection
// contract, and the error taxonomy shared by the lifecycle manager, the
// dispatcher, and the HTTP layer.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Phase names where the session sits in its lifecycle. It is derived
// bookkeeping for status reporting; Ready and Connecting remain the
// authoritative flags.
type Phase string

const (
	PhaseUninitialized Phase = "uninitialized"
	PhaseConnecting    Phase = "connecting"
	PhaseReady         Phase = "ready"
	PhaseDisconnected  Phase = "disconnected"
	PhaseAuthFailed    Phase = "auth_failed"
)

// ErrInvalidTransition is returned by State.Update when the proposed fields
// break the state invariants.
var ErrInvalidTransition = errors.New("invalid session state transition")

// Fields is the mutable content of a State.
type Fields struct {
	Connection Connection
	Ready      bool
	Connecting bool
	Phase      Phase
	// Reason holds the detail of the last disconnect or auth failure.
	Reason string
}

// Validate checks the invariants that hold between every transition:
// Ready and Connecting are never both set, a connection is present whenever
// either is set, and Phase agrees with the flags.
func (f Fields) Validate() error {
	switch {
	case f.Ready && f.Connecting:
		return fmt.Errorf("%w: ready and connecting both set", ErrInvalidTransition)
	case (f.Ready || f.Connecting) && f.Connection == nil:
		return fmt.Errorf("%w: ready or connecting without a connection", ErrInvalidTransition)
	case f.Ready && f.Phase != PhaseReady:
		return fmt.Errorf("%w: ready in phase %s", ErrInvalidTransition, f.Phase)
	case f.Connecting && f.Phase != PhaseConnecting:
		return fmt.Errorf("%w: connecting in phase %s", ErrInvalidTransition, f.Phase)
	case !f.Ready && !f.Connecting && (f.Phase == PhaseReady || f.Phase == PhaseConnecting):
		return fmt.Errorf("%w: idle in phase %s", ErrInvalidTransition, f.Phase)
	}
	return nil
}

// Snapshot is a consistent copy of the state at one instant.
type Snapshot struct {
	Fields
	Since time.Time
}

// Usable reports whether a dispatcher may submit messages.
func (s Snapshot) Usable() bool {
	return s.Ready && s.Connection != nil
}

// Status returns the coarse status string reported over HTTP.
func (s Snapshot) Status() string {
	if s.Usable() {
		return "connected"
	}
	return "disconnected"
}

// State is the single process-wide session state. Reads never block on
// connection I/O; writes go through Update, which the lifecycle manager owns.
type State struct {
	mu      sync.RWMutex
	fields  Fields
	since   time.Time
	changed chan struct{}
	now     func() time.Time
}

// NewState returns an uninitialized state.
func NewState() *State {
	return &State{
		fields:  Fields{Phase: PhaseUninitialized},
		since:   time.Now(),
		changed: make(chan struct{}),
		now:     time.Now,
	}
}

// Snapshot returns all fields as observed at one instant.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Fields: s.fields, Since: s.since}
}

// IsReady reports whether a ready connection is held.
func (s *State) IsReady() bool {
	return s.Snapshot().Usable()
}

// IsConnecting reports whether an initialization attempt is in flight.
func (s *State) IsConnecting() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fields.Connecting
}

// Connection returns the current connection, or nil.
func (s *State) Connection() Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fields.Connection
}

// Changed returns a channel that is closed on the next successful Update.
// Callers re-read the state and call Changed again to keep waiting.
func (s *State) Changed() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.changed
}

// Update applies fn to a copy of the fields and commits the result if it
// satisfies the invariants. fn runs under the write lock and must not block.
// Returning false from fn discards the change without error.
func (s *State) Update(fn func(f *Fields) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.fields
	if !fn(&next) {
		return nil
	}
	if err := next.Validate(); err != nil {
		return err
	}

	s.fields = next
	s.since = s.now()
	close(s.changed)
	s.changed = make(chan struct{})
	return nil
}
