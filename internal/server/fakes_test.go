package server

import (
	"context"
	"sync"
	"time"

	"github.com/hay-kot/wasend/internal/core/session"
	"github.com/hay-kot/wasend/internal/relay"
)

type stubConn struct{}

func (stubConn) Subscribe(session.EventHandler) {}
func (stubConn) Start(context.Context) error { return nil }
func (stubConn) Close() error { return nil }
func (stubConn) SendText(context.Context, session.RecipientIdentity, string) error {
	return nil
}

func (stubConn) ResolveRecipient(_ context.Context, address string) (session.RecipientIdentity, bool, error) {
	return session.NewRecipient(address), true, nil
}

type fakeLifecycle struct {
	state *session.State

	mu         sync.Mutex
	ensureErr  error
	ensures    int
	initialize func(ctx context.Context) (bool, error)
}

func newFakeLifecycle() *fakeLifecycle {
	return &fakeLifecycle{state: session.NewState()}
}

func (f *fakeLifecycle) setReady() {
	_ = f.state.Update(func(fl *session.Fields) bool {
		fl.Connection = stubConn{}
		fl.Ready = true
		fl.Connecting = false
		fl.Phase = session.PhaseReady
		return true
	})
}

func (f *fakeLifecycle) State() *session.State {
	return f.state
}

func (f *fakeLifecycle) EnsureReady(context.Context) (session.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensures++
	return nil, f.ensureErr
}

func (f *fakeLifecycle) Initialize(ctx context.Context) (bool, error) {
	f.mu.Lock()
	fn := f.initialize
	f.mu.Unlock()
	if fn == nil {
		<-ctx.Done()
		return false, ctx.Err()
	}
	return fn(ctx)
}

func (f *fakeLifecycle) ensureCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ensures
}

type sendCall struct {
	address  string
	body     string
	deadline time.Time
}

type fakeSender struct {
	mu     sync.Mutex
	calls  []sendCall
	result session.DispatchResult
	check  relay.RecipientCheck
	err    error
}

func (f *fakeSender) Send(ctx context.Context, address, body string) session.DispatchResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	deadline, _ := ctx.Deadline()
	f.calls = append(f.calls, sendCall{address: address, body: body, deadline: deadline})
	return f.result
}

func (f *fakeSender) CheckRecipient(_ context.Context, address string) (relay.RecipientCheck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return relay.RecipientCheck{}, f.err
	}
	check := f.check
	check.Number = address
	return check, nil
}

func (f *fakeSender) sent() []sendCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sendCall(nil), f.calls...)
}

type memJournal struct {
	entries []session.JournalEntry
	err     error
}

func (j *memJournal) List(context.Context) ([]session.JournalEntry, error) {
	return j.entries, j.err
}

func (j *memJournal) Append(_ context.Context, e session.JournalEntry) error {
	j.entries = append([]session.JournalEntry{e}, j.entries...)
	return nil
}

func (j *memJournal) Last(_ context.Context, typ session.EventType) (session.JournalEntry, error) {
	for _, e := range j.entries {
		if e.Type == typ {
			return e, nil
		}
	}
	return session.JournalEntry{}, session.ErrNotFound
}

func (j *memJournal) Clear(context.Context) error {
	j.entries = nil
	return nil
}
