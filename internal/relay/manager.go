// Package relay owns the session lifecycle and message dispatch: the
// Manager keeps exactly one connection alive and the Dispatcher sends
// through whatever connection is ready.
package relay

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hay-kot/wasend/internal/core/session"
	"github.com/hay-kot/wasend/pkg/randid"
)

// ErrClosed is returned once the Manager has been closed.
var ErrClosed = errors.New("manager closed")

const (
	// effectTimeout bounds the journal write and hooks for a single event.
	effectTimeout = time.Minute
	// reasonShutdown is recorded when Close drops the connection.
	reasonShutdown = "shutdown"
)

// PairingSink receives pairing codes for the operator.
type PairingSink interface {
	ShowPairingCode(code string)
}

// Options configures a Manager. Every field is optional.
type Options struct {
	Journal session.Journal
	Hooks   *HookRunner
	Pairing PairingSink
	// StorePath is removed before the next attempt after an auth failure
	// when ResetStoreOnAuthFailure is set.
	StorePath               string
	ResetStoreOnAuthFailure bool
}

// attempt is one initialization in flight. done is closed when Start
// returns; err is set before that.
type attempt struct {
	conn session.Connection
	done chan struct{}
	err  error
}

// endErr explains why the attempt no longer holds the session.
func (a *attempt) endErr(snap session.Snapshot) error {
	select {
	case <-a.done:
		if a.err != nil {
			return a.err
		}
	default:
	}

	kind := session.KindNotReady
	if snap.Phase == session.PhaseAuthFailed {
		kind = session.KindAuthFailure
	}
	return session.NewError(kind, snap.Reason, nil)
}

// Manager drives the session state machine. It is the only writer of the
// session.State it owns.
type Manager struct {
	state   *session.State
	factory session.Factory
	opts    Options
	log     zerolog.Logger

	// mu serializes attempt creation. It is never held across Start.
	mu      sync.Mutex
	attempt *attempt
	closed  bool

	// baseCtx outlives every caller; Close cancels it.
	baseCtx    context.Context
	baseCancel context.CancelFunc

	starts sync.WaitGroup

	// closeMu orders closeConn against Close so no close is tracked after
	// Close has started waiting.
	closeMu  sync.Mutex
	closing  sync.WaitGroup
	shutdown bool

	effects chan session.Event
	quit    chan struct{}
	worker  sync.WaitGroup
}

// NewManager returns a Manager for state. It starts a background worker for
// journaling, hooks and pairing output; call Close to stop it.
func NewManager(state *session.State, factory session.Factory, opts Options, logger zerolog.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		state:      state,
		factory:    factory,
		opts:       opts,
		log:        logger,
		baseCtx:    ctx,
		baseCancel: cancel,
		effects:    make(chan session.Event, 64),
		quit:       make(chan struct{}),
	}

	m.worker.Add(1)
	go m.runEffects()

	return m
}

// State returns the session state the Manager drives.
func (m *Manager) State() *session.State {
	return m.state
}

// IsReady reports whether a ready connection is held.
func (m *Manager) IsReady() bool {
	return m.state.IsReady()
}

// Connection returns the ready connection, or nil.
func (m *Manager) Connection() session.Connection {
	snap := m.state.Snapshot()
	if !snap.Usable() {
		return nil
	}
	return snap.Connection
}

// EnsureReady returns the ready connection if there is one. Otherwise it
// starts an attempt unless one is already in flight, and returns nil; the
// outcome is observed through the state. Only errors building the
// connection are returned.
func (m *Manager) EnsureReady(ctx context.Context) (session.Connection, error) {
	if conn := m.Connection(); conn != nil {
		return conn, nil
	}

	_, conn, err := m.begin(ctx)
	return conn, err
}

// Initialize is EnsureReady for callers that want to wait. It blocks until
// the session is ready, the attempt ends without reaching ready, or ctx is
// done. Expiry of ctx only stops the wait; the attempt keeps running in the
// background and ctx.Err() is returned.
func (m *Manager) Initialize(ctx context.Context) (bool, error) {
	if m.IsReady() {
		return true, nil
	}

	a, conn, err := m.begin(ctx)
	if err != nil {
		return false, err
	}
	if conn != nil {
		return true, nil
	}
	if a == nil {
		return m.IsReady(), nil
	}

	for {
		changed := m.state.Changed()
		snap := m.state.Snapshot()

		if snap.Usable() {
			return true, nil
		}
		if snap.Connection != a.conn {
			return false, a.endErr(snap)
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

// WaitReady blocks until the session is ready or ctx is done. It does not
// start an attempt.
func (m *Manager) WaitReady(ctx context.Context) error {
	for {
		changed := m.state.Changed()
		if m.IsReady() {
			return nil
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// begin returns the ready connection, the attempt in flight, or a newly
// started attempt.
func (m *Manager) begin(ctx context.Context) (*attempt, session.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, nil, ErrClosed
	}

	snap := m.state.Snapshot()
	switch {
	case snap.Usable():
		return nil, snap.Connection, nil
	case snap.Connecting:
		return m.attempt, nil, nil
	}

	if snap.Phase == session.PhaseAuthFailed && m.opts.ResetStoreOnAuthFailure {
		m.resetStore()
	}

	// Create is held under m.mu so concurrent callers see one attempt; it
	// must stay non-blocking (runtime lookup and store directory only).
	conn, err := m.factory.Create(ctx)
	if err != nil {
		m.log.Error().Err(err).Msg("failed to create connection")
		_ = m.state.Update(func(f *session.Fields) bool {
			f.Reason = err.Error()
			return true
		})
		return nil, nil, fmt.Errorf("create connection: %w", err)
	}

	conn.Subscribe(m.handlerFor(conn))

	err = m.state.Update(func(f *session.Fields) bool {
		f.Connection = conn
		f.Connecting = true
		f.Ready = false
		f.Phase = session.PhaseConnecting
		f.Reason = ""
		return true
	})
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}

	a := &attempt{conn: conn, done: make(chan struct{})}
	m.attempt = a

	m.log.Info().Msg("starting connection")

	m.starts.Add(1)
	go m.start(a)

	return a, nil, nil
}

func (m *Manager) start(a *attempt) {
	defer m.starts.Done()

	err := a.conn.Start(m.baseCtx)
	a.err = err
	close(a.done)

	if err == nil {
		m.log.Debug().Msg("connection started")
		return
	}

	m.log.Error().Err(err).Msg("connection failed to start")

	var current bool
	_ = m.state.Update(func(f *session.Fields) bool {
		if f.Connection != a.conn {
			return false
		}
		current = true
		f.Connection = nil
		f.Connecting = false
		f.Ready = false
		f.Phase = session.PhaseDisconnected
		f.Reason = err.Error()
		return true
	})

	if current {
		m.closeConn(a.conn)
		m.enqueue(session.Event{
			Type:   session.EventDisconnected,
			Detail: "start failed: " + err.Error(),
			At:     time.Now(),
		})
	}
}

// handlerFor returns the event handler wired to conn. Events from a
// connection that is no longer current are ignored.
func (m *Manager) handlerFor(conn session.Connection) session.EventHandler {
	return func(ev session.Event) {
		if ev.At.IsZero() {
			ev.At = time.Now()
		}

		current, drop := m.apply(conn, ev)
		if !current {
			m.log.Debug().
				Str("event", string(ev.Type)).
				Msg("ignoring event from superseded connection")
			return
		}

		m.logEvent(ev)

		if drop {
			m.closeConn(conn)
		}

		m.enqueue(ev)
	}
}

// apply performs the state transition for ev. current is false when conn
// has been superseded; drop is true when conn must be discarded.
func (m *Manager) apply(conn session.Connection, ev session.Event) (current, drop bool) {
	err := m.state.Update(func(f *session.Fields) bool {
		if f.Connection != conn {
			return false
		}
		current = true

		switch ev.Type {
		case session.EventReady:
			f.Ready = true
			f.Connecting = false
			f.Phase = session.PhaseReady
			f.Reason = ""
			return true

		case session.EventAuthFailure, session.EventDisconnected:
			drop = true
			f.Connection = nil
			f.Ready = false
			f.Connecting = false
			f.Phase = session.PhaseDisconnected
			if ev.Type == session.EventAuthFailure {
				f.Phase = session.PhaseAuthFailed
			}
			f.Reason = ev.Detail
			return true

		default:
			return false
		}
	})
	if err != nil {
		m.log.Error().Err(err).Str("event", string(ev.Type)).Msg("rejected state transition")
	}
	return current, drop
}

func (m *Manager) logEvent(ev session.Event) {
	switch ev.Type {
	case session.EventPairingCode:
		m.log.Info().Msg("pairing code issued, scan it with the phone app")
	case session.EventAuthenticated:
		m.log.Info().Msg("authenticated")
	case session.EventReady:
		m.log.Info().Msg("session ready")
	case session.EventAuthFailure:
		m.log.Error().Str("reason", ev.Detail).Msg("authentication failed")
	case session.EventDisconnected:
		m.log.Warn().Str("reason", ev.Detail).Msg("session disconnected")
	default:
		m.log.Debug().Str("event", string(ev.Type)).Str("detail", ev.Detail).Msg("session event")
	}
}

// closeConn closes conn in the background. Handlers run on the
// connection's own goroutines, so closing inline could deadlock.
func (m *Manager) closeConn(conn session.Connection) {
	m.closeMu.Lock()
	defer m.closeMu.Unlock()

	if m.shutdown {
		go func() { _ = conn.Close() }()
		return
	}

	m.closing.Add(1)
	go func() {
		defer m.closing.Done()
		if err := conn.Close(); err != nil {
			m.log.Warn().Err(err).Msg("failed to close connection")
		}
	}()
}

// resetStore removes the credential store so the next attempt pairs from
// scratch. Pending closes are waited for so no browser still holds it.
func (m *Manager) resetStore() {
	if m.opts.StorePath == "" {
		return
	}

	m.closing.Wait()

	if err := os.RemoveAll(m.opts.StorePath); err != nil {
		m.log.Error().Err(err).Str("path", m.opts.StorePath).Msg("failed to reset credential store")
		return
	}
	m.log.Warn().Str("path", m.opts.StorePath).Msg("credential store reset after auth failure")
}

// enqueue hands ev to the effects worker without blocking.
func (m *Manager) enqueue(ev session.Event) {
	select {
	case <-m.quit:
		return
	default:
	}

	select {
	case m.effects <- ev:
	default:
		m.log.Warn().Str("event", string(ev.Type)).Msg("event queue full, dropping side effects")
	}
}

func (m *Manager) runEffects() {
	defer m.worker.Done()

	for {
		select {
		case ev := <-m.effects:
			m.handleEffects(ev)
		case <-m.quit:
			for {
				select {
				case ev := <-m.effects:
					m.handleEffects(ev)
				default:
					return
				}
			}
		}
	}
}

// handleEffects journals ev, shows pairing codes and runs hooks. Failures
// are logged and never affect the state.
func (m *Manager) handleEffects(ev session.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), effectTimeout)
	defer cancel()

	if ev.Type == session.EventPairingCode && m.opts.Pairing != nil {
		m.opts.Pairing.ShowPairingCode(ev.Detail)
	}

	if m.opts.Journal != nil {
		entry := session.JournalEntry{
			ID:        randid.Prefixed("evt", 10),
			Type:      ev.Type,
			Detail:    ev.Detail,
			Timestamp: ev.At,
		}
		// pairing payloads are credentials in transit; keep them off disk
		if ev.Type == session.EventPairingCode {
			entry.Detail = ""
		}
		if err := m.opts.Journal.Append(ctx, entry); err != nil {
			m.log.Warn().Err(err).Msg("failed to journal event")
		}
	}

	if m.opts.Hooks != nil {
		if err := m.opts.Hooks.Run(ctx, ev); err != nil {
			m.log.Warn().Err(err).Str("event", string(ev.Type)).Msg("hook failed")
		}
	}
}

// Close stops any attempt in flight, closes the current connection and
// waits for background work. The credential store is left intact.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.baseCancel()
	m.starts.Wait()

	var conn session.Connection
	_ = m.state.Update(func(f *session.Fields) bool {
		if f.Connection == nil {
			return false
		}
		conn = f.Connection
		f.Connection = nil
		f.Ready = false
		f.Connecting = false
		f.Phase = session.PhaseDisconnected
		f.Reason = reasonShutdown
		return true
	})

	var err error
	if conn != nil {
		err = conn.Close()
	}

	m.closeMu.Lock()
	m.shutdown = true
	m.closeMu.Unlock()
	m.closing.Wait()
	close(m.quit)
	m.worker.Wait()

	return err
}
