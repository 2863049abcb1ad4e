package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hay-kot/wasend/internal/core/session"
)

// fakeConn is a scripted session.Connection.
type fakeConn struct {
	mu       sync.Mutex
	handler  session.EventHandler
	startCtx context.Context
	started  bool
	closed   int

	// onStart runs inside Start, after the gate opens.
	onStart  func(c *fakeConn) error
	gate     chan struct{}
	resolve  func(ctx context.Context, address string) (session.RecipientIdentity, bool, error)
	send     func(ctx context.Context, to session.RecipientIdentity, body string) error
	resolves int
	sends    int
}

func (c *fakeConn) Subscribe(h session.EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

func (c *fakeConn) Start(ctx context.Context) error {
	c.mu.Lock()
	c.startCtx = ctx
	c.started = true
	gate, onStart := c.gate, c.onStart
	c.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if onStart != nil {
		return onStart(c)
	}
	return nil
}

func (c *fakeConn) ResolveRecipient(ctx context.Context, address string) (session.RecipientIdentity, bool, error) {
	c.mu.Lock()
	c.resolves++
	fn := c.resolve
	c.mu.Unlock()

	if fn == nil {
		return session.NewRecipient(address), true, nil
	}
	return fn(ctx, address)
}

func (c *fakeConn) SendText(ctx context.Context, to session.RecipientIdentity, body string) error {
	c.mu.Lock()
	c.sends++
	fn := c.send
	c.mu.Unlock()

	if fn == nil {
		return nil
	}
	return fn(ctx, to, body)
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *fakeConn) emit(typ session.EventType, detail string) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()

	h(session.Event{Type: typ, Detail: detail, At: time.Now()})
}

func (c *fakeConn) isStarted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

func (c *fakeConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) counts() (resolves, sends int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolves, c.sends
}

// fakeFactory hands out fakeConns and counts Create calls.
type fakeFactory struct {
	mu    sync.Mutex
	calls int
	conns []*fakeConn
	err   error

	// gate delays Create until closed.
	gate chan struct{}
	// configure customizes each new connection.
	configure func(c *fakeConn)
	// onCreate runs before the connection is built.
	onCreate func()
}

func (f *fakeFactory) Create(ctx context.Context) (session.Connection, error) {
	f.mu.Lock()
	f.calls++
	gate, err, configure, onCreate := f.gate, f.err, f.configure, f.onCreate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if onCreate != nil {
		onCreate()
	}
	if err != nil {
		return nil, err
	}

	c := &fakeConn{}
	if configure != nil {
		configure(c)
	}

	f.mu.Lock()
	f.conns = append(f.conns, c)
	f.mu.Unlock()

	return c, nil
}

func (f *fakeFactory) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeFactory) connCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

func (f *fakeFactory) conn(i int) *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.conns) {
		return nil
	}
	return f.conns[i]
}

func (f *fakeFactory) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// memJournal is an in-memory session.Journal.
type memJournal struct {
	mu      sync.Mutex
	entries []session.JournalEntry
}

func (j *memJournal) List(ctx context.Context) ([]session.JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]session.JournalEntry, len(j.entries))
	copy(out, j.entries)
	return out, nil
}

func (j *memJournal) Append(ctx context.Context, e session.JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append([]session.JournalEntry{e}, j.entries...)
	return nil
}

func (j *memJournal) Last(ctx context.Context, typ session.EventType) (session.JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, e := range j.entries {
		if e.Type == typ {
			return e, nil
		}
	}
	return session.JournalEntry{}, session.ErrNotFound
}

func (j *memJournal) Clear(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = nil
	return nil
}

func (j *memJournal) types() []session.EventType {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]session.EventType, 0, len(j.entries))
	for i := len(j.entries) - 1; i >= 0; i-- {
		out = append(out, j.entries[i].Type)
	}
	return out
}

// pairingRecorder collects pairing codes.
type pairingRecorder struct {
	mu    sync.Mutex
	codes []string
}

func (p *pairingRecorder) ShowPairingCode(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.codes = append(p.codes, code)
}

func (p *pairingRecorder) all() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.codes...)
}

var errTransport = errors.New("transport: connection reset by peer")
