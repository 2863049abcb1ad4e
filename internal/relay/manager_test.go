package relay

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/wasend/internal/core/config"
	"github.com/hay-kot/wasend/internal/core/session"
	"github.com/hay-kot/wasend/pkg/executil"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func newTestManager(t *testing.T, f *fakeFactory, opts Options) *Manager {
	t.Helper()
	m := NewManager(session.NewState(), f, opts, zerolog.Nop())
	t.Cleanup(func() { _ = m.Close() })
	return m
}

// startedConn triggers an attempt and waits until its Start has been called.
func startedConn(t *testing.T, m *Manager, f *fakeFactory) *fakeConn {
	t.Helper()
	n := f.connCount()

	conn, err := m.EnsureReady(context.Background())
	require.NoError(t, err)
	require.Nil(t, conn, "a new attempt never returns a connection")

	require.Eventually(t, func() bool {
		c := f.conn(n)
		return c != nil && c.isStarted()
	}, waitFor, tick)

	return f.conn(n)
}

func TestManager_PairingThenReadyThenSend(t *testing.T) {
	journal := &memJournal{}
	pairing := &pairingRecorder{}
	f := &fakeFactory{
		configure: func(c *fakeConn) {
			c.onStart = func(c *fakeConn) error {
				c.emit(session.EventPairingCode, "2@abc,def")
				return nil
			}
		},
	}
	m := newTestManager(t, f, Options{Journal: journal, Pairing: pairing})

	c := startedConn(t, m, f)

	require.Eventually(t, func() bool { return len(pairing.all()) == 1 }, waitFor, tick)
	assert.Equal(t, []string{"2@abc,def"}, pairing.all())
	assert.False(t, m.IsReady())
	assert.True(t, m.State().IsConnecting(), "pairing leaves the attempt connecting")

	c.emit(session.EventAuthenticated, "")
	assert.False(t, m.IsReady(), "authenticated alone is not ready")

	c.emit(session.EventReady, "")
	assert.True(t, m.IsReady())
	assert.False(t, m.State().IsConnecting())

	conn, err := m.EnsureReady(context.Background())
	require.NoError(t, err)
	assert.Same(t, c, conn)
	assert.Equal(t, 1, f.callCount())

	res := NewDispatcher(m.State(), zerolog.Nop()).Send(context.Background(), "5511999999999", "hi")
	assert.Equal(t, session.Delivered(), res)

	require.Eventually(t, func() bool { return len(journal.types()) == 3 }, waitFor, tick)
	assert.Equal(t,
		[]session.EventType{session.EventPairingCode, session.EventAuthenticated, session.EventReady},
		journal.types())

	entries, _ := journal.List(context.Background())
	for _, e := range entries {
		if e.Type == session.EventPairingCode {
			assert.Empty(t, e.Detail, "pairing payload is not journaled")
		}
	}
}

func TestManager_ConcurrentEnsureReadyBuildsOneConnection(t *testing.T) {
	gate := make(chan struct{})
	f := &fakeFactory{gate: gate}
	m := newTestManager(t, f, Options{})

	const callers = 16

	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		conns = make([]session.Connection, callers)
		errs  = make([]error, callers)
	)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			conns[i], errs[i] = m.EnsureReady(context.Background())
		}()
	}

	close(start)
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, 1, f.callCount())
	for i := range callers {
		assert.NoError(t, errs[i])
		assert.Nil(t, conns[i])
	}
	assert.True(t, m.State().IsConnecting())
}

func TestManager_EnsureReadyWhileConnecting(t *testing.T) {
	f := &fakeFactory{}
	m := newTestManager(t, f, Options{})

	startedConn(t, m, f)

	for range 3 {
		conn, err := m.EnsureReady(context.Background())
		require.NoError(t, err)
		assert.Nil(t, conn)
	}
	assert.Equal(t, 1, f.callCount())
}

func TestManager_EnsureReadyDoesNotWaitForStart(t *testing.T) {
	gate := make(chan struct{})
	t.Cleanup(func() { close(gate) })

	f := &fakeFactory{configure: func(c *fakeConn) { c.gate = gate }}
	m := newTestManager(t, f, Options{})

	_, err := m.EnsureReady(context.Background())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 8 {
			_, _ = m.EnsureReady(context.Background())
		}
	}()

	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("EnsureReady blocked on the pending start")
	}

	assert.Equal(t, 1, f.callCount())
	assert.True(t, m.State().IsConnecting())
}

func TestManager_FailureEventsClearState(t *testing.T) {
	tests := []struct {
		name      string
		event     session.EventType
		fromReady bool
		phase     session.Phase
	}{
		{"disconnected from ready", session.EventDisconnected, true, session.PhaseDisconnected},
		{"disconnected while connecting", session.EventDisconnected, false, session.PhaseDisconnected},
		{"auth failure from ready", session.EventAuthFailure, true, session.PhaseAuthFailed},
		{"auth failure while connecting", session.EventAuthFailure, false, session.PhaseAuthFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeFactory{}
			m := newTestManager(t, f, Options{})

			c := startedConn(t, m, f)
			if tt.fromReady {
				c.emit(session.EventReady, "")
				require.True(t, m.IsReady())
			}

			c.emit(tt.event, "LOGOUT")

			snap := m.State().Snapshot()
			assert.False(t, snap.Ready)
			assert.False(t, snap.Connecting)
			assert.Nil(t, snap.Connection)
			assert.Equal(t, tt.phase, snap.Phase)
			assert.Equal(t, "LOGOUT", snap.Reason)

			require.Eventually(t, func() bool { return c.closeCount() == 1 }, waitFor, tick)

			// the next call rebuilds from scratch
			next := startedConn(t, m, f)
			assert.NotSame(t, c, next)
			assert.Equal(t, 2, f.callCount())
		})
	}
}

func TestManager_IgnoresSupersededConnection(t *testing.T) {
	f := &fakeFactory{}
	m := newTestManager(t, f, Options{})

	old := startedConn(t, m, f)
	old.emit(session.EventDisconnected, "NAVIGATION")

	current := startedConn(t, m, f)

	old.emit(session.EventReady, "")
	assert.False(t, m.IsReady(), "ready from a dropped connection is ignored")

	current.emit(session.EventReady, "")
	assert.True(t, m.IsReady())

	old.emit(session.EventDisconnected, "NAVIGATION")
	assert.True(t, m.IsReady(), "disconnect from a dropped connection is ignored")
}

func TestManager_FactoryError(t *testing.T) {
	notFound := session.NewError(session.KindRuntimeNotFound, "nothing installed", nil)
	f := &fakeFactory{err: notFound}
	m := newTestManager(t, f, Options{})

	conn, err := m.EnsureReady(context.Background())
	assert.Nil(t, conn)
	require.ErrorIs(t, err, session.ErrRuntimeNotFound)

	snap := m.State().Snapshot()
	assert.False(t, snap.Connecting)
	assert.False(t, snap.Ready)
	assert.Contains(t, snap.Reason, "nothing installed")

	f.setErr(nil)
	startedConn(t, m, f)
	assert.Equal(t, 2, f.callCount(), "a later call retries")
}

func TestManager_StartFailure(t *testing.T) {
	f := &fakeFactory{
		configure: func(c *fakeConn) {
			c.onStart = func(*fakeConn) error { return errTransport }
		},
	}
	journal := &memJournal{}
	m := newTestManager(t, f, Options{Journal: journal})

	ready, err := m.Initialize(context.Background())
	assert.False(t, ready)
	require.ErrorIs(t, err, errTransport)

	snap := m.State().Snapshot()
	assert.False(t, snap.Connecting)
	assert.Nil(t, snap.Connection)
	assert.Equal(t, session.PhaseDisconnected, snap.Phase)

	require.Eventually(t, func() bool { return f.conn(0).closeCount() == 1 }, waitFor, tick)
	require.Eventually(t, func() bool {
		_, err := journal.Last(context.Background(), session.EventDisconnected)
		return err == nil
	}, waitFor, tick)
}

func TestManager_InitializeTimeoutOnlyStopsWaiting(t *testing.T) {
	gate := make(chan struct{})
	f := &fakeFactory{
		configure: func(c *fakeConn) {
			c.gate = gate
		},
	}
	m := newTestManager(t, f, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	ready, err := m.Initialize(ctx)
	assert.False(t, ready)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// the attempt was not cancelled by the caller's deadline
	c := f.conn(0)
	require.NotNil(t, c)
	assert.True(t, m.State().IsConnecting())
	c.mu.Lock()
	startCtx := c.startCtx
	c.mu.Unlock()
	assert.NoError(t, startCtx.Err())

	close(gate)
	c.emit(session.EventReady, "")
	assert.True(t, m.IsReady())
	assert.Equal(t, 1, f.callCount())
}

func TestManager_InitializeWaitsForReady(t *testing.T) {
	f := &fakeFactory{
		configure: func(c *fakeConn) {
			c.onStart = func(c *fakeConn) error {
				go func() {
					time.Sleep(10 * time.Millisecond)
					c.emit(session.EventAuthenticated, "")
					c.emit(session.EventReady, "")
				}()
				return nil
			}
		},
	}
	m := newTestManager(t, f, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()

	ready, err := m.Initialize(ctx)
	require.NoError(t, err)
	assert.True(t, ready)

	ready, err = m.Initialize(ctx)
	require.NoError(t, err)
	assert.True(t, ready, "ready fast path")
	assert.Equal(t, 1, f.callCount())
}

func TestManager_InitializeAuthFailure(t *testing.T) {
	f := &fakeFactory{
		configure: func(c *fakeConn) {
			c.onStart = func(c *fakeConn) error {
				c.emit(session.EventAuthFailure, "stored credentials were rejected")
				return nil
			}
		},
	}
	m := newTestManager(t, f, Options{})

	ready, err := m.Initialize(context.Background())
	assert.False(t, ready)
	require.ErrorIs(t, err, session.ErrAuthFailure)
	assert.Contains(t, err.Error(), "rejected")
}

func TestManager_WaitReady(t *testing.T) {
	f := &fakeFactory{}
	m := newTestManager(t, f, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	err := m.WaitReady(ctx)
	cancel()
	require.ErrorIs(t, err, context.DeadlineExceeded)

	c := startedConn(t, m, f)

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		done <- m.WaitReady(ctx)
	}()

	c.emit(session.EventReady, "")
	require.NoError(t, <-done)
}

func TestManager_ReadyIsAtomicForReaders(t *testing.T) {
	f := &fakeFactory{}
	m := newTestManager(t, f, Options{})

	stop := make(chan struct{})
	var wg sync.WaitGroup
	var bad sync.Map

	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := m.State().Snapshot()
				if err := snap.Validate(); err != nil {
					bad.Store(err.Error(), true)
				}
			}
		}()
	}

	for range 20 {
		c := startedConn(t, m, f)
		c.emit(session.EventReady, "")

		snap := m.State().Snapshot()
		if !snap.Ready || snap.Connecting {
			bad.Store("ready event not applied", true)
		}

		c.emit(session.EventDisconnected, "NAVIGATION")
	}

	close(stop)
	wg.Wait()

	bad.Range(func(k, _ any) bool {
		t.Errorf("observed invalid state: %v", k)
		return true
	})
}

func TestManager_ResetStoreOnAuthFailure(t *testing.T) {
	for _, reset := range []bool{true, false} {
		t.Run(map[bool]string{true: "reset", false: "keep"}[reset], func(t *testing.T) {
			store := filepath.Join(t.TempDir(), "session")
			require.NoError(t, os.MkdirAll(store, 0o700))
			require.NoError(t, os.WriteFile(filepath.Join(store, "Cookies"), []byte("x"), 0o600))

			var existedAtCreate []bool
			f := &fakeFactory{}
			f.onCreate = func() {
				_, err := os.Stat(store)
				existedAtCreate = append(existedAtCreate, err == nil)
			}
			m := newTestManager(t, f, Options{StorePath: store, ResetStoreOnAuthFailure: reset})

			c := startedConn(t, m, f)
			c.emit(session.EventAuthFailure, "rejected")

			startedConn(t, m, f)

			require.Len(t, existedAtCreate, 2)
			assert.True(t, existedAtCreate[0])
			assert.Equal(t, !reset, existedAtCreate[1])
		})
	}
}

func TestManager_DisconnectDoesNotResetStore(t *testing.T) {
	store := t.TempDir()
	f := &fakeFactory{}
	m := newTestManager(t, f, Options{StorePath: store, ResetStoreOnAuthFailure: true})

	c := startedConn(t, m, f)
	c.emit(session.EventDisconnected, "NAVIGATION")
	startedConn(t, m, f)

	assert.DirExists(t, store)
}

func TestManager_RunsHooks(t *testing.T) {
	exec := &executil.RecordingExecutor{}
	hooks := NewHookRunner(zerolog.Nop(), exec, []config.Hook{
		{Event: "{ready,disconnected}", Commands: []string{"notify {{ .Event | shq }}"}},
	})

	f := &fakeFactory{}
	m := newTestManager(t, f, Options{Hooks: hooks})

	c := startedConn(t, m, f)
	c.emit(session.EventReady, "")

	require.Eventually(t, func() bool { return len(exec.Commands()) == 1 }, waitFor, tick)
	cmd := exec.Commands()[0]
	assert.Equal(t, "sh", cmd.Cmd)
	assert.Equal(t, []string{"-c", "notify 'ready'"}, cmd.Args)
}

func TestManager_Close(t *testing.T) {
	f := &fakeFactory{}
	m := NewManager(session.NewState(), f, Options{}, zerolog.Nop())

	c := startedConn(t, m, f)
	c.emit(session.EventReady, "")

	require.NoError(t, m.Close())
	require.NoError(t, m.Close(), "close is idempotent")

	assert.Equal(t, 1, c.closeCount())
	assert.False(t, m.IsReady())

	_, err := m.EnsureReady(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestManager_CloseCancelsPendingStart(t *testing.T) {
	f := &fakeFactory{
		configure: func(c *fakeConn) {
			c.gate = make(chan struct{})
		},
	}
	m := NewManager(session.NewState(), f, Options{}, zerolog.Nop())

	c := startedConn(t, m, f)

	require.NoError(t, m.Close())
	assert.False(t, m.State().IsConnecting())
	assert.Equal(t, 1, c.closeCount())
}
