package whatsweb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"

	"github.com/hay-kot/wasend/internal/core/session"
)

var errNotStarted = errors.New("connection not started")

// closeTimeout bounds the browser close call; the process is killed after it.
const closeTimeout = 5 * time.Second

// Conn is a session.Connection backed by a Chromium tab running the web
// client.
type Conn struct {
	cfg  LaunchConfig
	poll time.Duration
	log  zerolog.Logger

	mu      sync.Mutex
	handler session.EventHandler
	launch  *launcher.Launcher
	browser *rod.Browser
	page    *rod.Page
	cancel  context.CancelFunc
	done    chan struct{}
	closed  bool

	// sendMu serializes sends; the web client does not tolerate concurrent
	// chat actions.
	sendMu sync.Mutex
}

var _ session.Connection = (*Conn)(nil)

// NewConn returns an unstarted connection.
func NewConn(cfg LaunchConfig, poll time.Duration, logger zerolog.Logger) *Conn {
	if poll <= 0 {
		poll = time.Second
	}
	return &Conn{cfg: cfg, poll: poll, log: logger}
}

// Subscribe sets the event handler. Only the last handler is kept.
func (c *Conn) Subscribe(h session.EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// Start launches the browser, opens the web client and begins watching the
// page. It returns once the page has loaded.
func (c *Conn) Start(ctx context.Context) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.New("connection closed")
	}
	if c.browser != nil {
		return errors.New("connection already started")
	}

	restored := IsPaired(c.cfg.StorePath)

	l := newLauncher(c.cfg).Context(ctx)
	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launch browser %s: %w", c.cfg.Executable, err)
	}

	defer func() {
		if err != nil {
			l.Kill()
		}
	}()

	browser, page, err := openPage(ctx, controlURL, c.cfg.WebURL)
	if err != nil {
		return err
	}

	watchCtx, cancel := context.WithCancel(context.Background())

	c.launch = l
	c.browser = browser
	c.page = page
	c.cancel = cancel
	c.done = make(chan struct{})

	c.log.Info().
		Str("executable", c.cfg.Executable).
		Str("store", c.cfg.StorePath).
		Bool("restored", restored).
		Msg("web client loaded")

	go c.watch(watchCtx, page, newWatcher(restored), c.done)

	return nil
}

// openPage connects to the browser at controlURL and loads url in a new tab.
// Every round trip is bound to ctx; the returned browser and page are not.
func openPage(ctx context.Context, controlURL, url string) (*rod.Browser, *rod.Page, error) {
	bound := rod.New().Context(ctx).ControlURL(controlURL)
	if err := bound.Connect(); err != nil {
		return nil, nil, fmt.Errorf("connect browser: %w", err)
	}

	page, err := bound.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		_ = bound.Close()
		return nil, nil, fmt.Errorf("open %s: %w", url, err)
	}

	if err := page.WaitLoad(); err != nil {
		_ = bound.Close()
		return nil, nil, fmt.Errorf("load %s: %w", url, err)
	}

	return bound.Context(context.Background()), page.Context(context.Background()), nil
}

// watch polls the page until the connection closes or a terminal event is
// emitted.
func (c *Conn) watch(ctx context.Context, page *rod.Page, w *watcher, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		var events []session.Event

		p, err := c.probe(ctx, page)
		switch {
		case ctx.Err() != nil:
			return
		case err != nil:
			c.log.Debug().Err(err).Msg("probe failed")
			events = w.fail(err)
		default:
			events = w.observe(p)
		}

		for _, ev := range events {
			c.trackPairing(ev)
			c.emit(ev)
		}
		if w.done {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *Conn) probe(ctx context.Context, page *rod.Page) (probe, error) {
	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	res, err := page.Context(pctx).Evaluate(&rod.EvalOptions{
		JS:           probeScript,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return probe{}, err
	}

	var p probe
	if err := res.Value.Unmarshal(&p); err != nil {
		return probe{}, fmt.Errorf("decode probe: %w", err)
	}
	return p, nil
}

func (c *Conn) emit(ev session.Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()

	if h != nil {
		h(ev)
	}
}

// ResolveRecipient asks the network for the identity behind a normalized
// phone number.
func (c *Conn) ResolveRecipient(ctx context.Context, address string) (session.RecipientIdentity, bool, error) {
	res, err := c.eval(ctx, resolveScript, address)
	if err != nil {
		return session.RecipientIdentity{}, false, err
	}
	if err := res.err(); err != nil {
		return session.RecipientIdentity{}, false, err
	}
	if !res.Found {
		return session.RecipientIdentity{}, false, nil
	}

	id := session.RecipientIdentity{User: res.User, Server: res.Server}
	if id.Server == "" {
		id.Server = session.ServerUser
	}
	return id, true, nil
}

// SendText submits body to the chat with to.
func (c *Conn) SendText(ctx context.Context, to session.RecipientIdentity, body string) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	res, err := c.eval(ctx, sendScript, to.String(), body)
	if err != nil {
		return err
	}
	return res.err()
}

func (c *Conn) eval(ctx context.Context, js string, args ...any) (scriptResult, error) {
	c.mu.Lock()
	page := c.page
	c.mu.Unlock()

	if page == nil {
		return scriptResult{}, errNotStarted
	}

	res, err := page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           js,
		JSArgs:       args,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return scriptResult{}, fmt.Errorf("evaluate script: %w", err)
	}

	var out scriptResult
	if err := res.Value.Unmarshal(&out); err != nil {
		return scriptResult{}, fmt.Errorf("decode script result: %w", err)
	}
	return out, nil
}

// Close stops the watcher and the browser. The profile directory is left
// in place so the next connection can reuse the credentials.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel, done, browser, l := c.cancel, c.done, c.browser, c.launch
	c.page = nil
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}

	cancel()
	<-done

	var err error
	if browser != nil {
		if cerr := browser.Timeout(closeTimeout).Close(); cerr != nil {
			err = fmt.Errorf("close browser: %w", cerr)
		}
	}
	l.Kill()

	c.log.Debug().Msg("connection closed")
	return err
}

// pairedMarker is written into the profile once the session reaches ready
// and removed when the network rejects or logs out the session.
const pairedMarker = ".wasend-paired"

// IsPaired reports whether the credential store at dir holds a session that
// reached ready and has not been rejected since.
func IsPaired(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, pairedMarker))
	return err == nil
}

func (c *Conn) trackPairing(ev session.Event) {
	marker := filepath.Join(c.cfg.StorePath, pairedMarker)

	var err error
	switch {
	case ev.Type == session.EventReady:
		err = os.WriteFile(marker, []byte(time.Now().UTC().Format(time.RFC3339)), 0o600)
	case ev.Type == session.EventAuthFailure,
		ev.Type == session.EventDisconnected && ev.Detail == ReasonLogout:
		err = os.Remove(marker)
		if errors.Is(err, os.ErrNotExist) {
			err = nil
		}
	}

	if err != nil {
		c.log.Warn().Err(err).Str("marker", marker).Msg("failed to update pairing marker")
	}
}
