package whatsweb

import (
	"fmt"

	"github.com/hay-kot/wasend/internal/core/session"
)

// maxProbeFailures is how many consecutive failed probes mark the page as
// gone. Single failures happen while the client reloads itself.
const maxProbeFailures = 3

// Disconnect reasons reported by the watcher.
const (
	ReasonLogout     = "LOGOUT"
	ReasonNavigation = "NAVIGATION"
)

// probe is one observation of the web client page.
type probe struct {
	// QR is the pairing payload shown on the login screen, empty when absent.
	QR string `json:"qr"`
	// Chats is true once the chat list is rendered.
	Chats bool `json:"chats"`
	// Progress is the loading screen percentage, -1 when not shown.
	Progress int `json:"progress"`
}

// watcher turns a sequence of probes into lifecycle events. It holds no
// locks and does no I/O.
type watcher struct {
	// restored is set when the profile held credentials before launch, so a
	// login screen means they were rejected.
	restored bool

	lastQR        string
	lastProgress  int
	authenticated bool
	ready         bool
	failures      int
	done          bool
}

func newWatcher(restored bool) *watcher {
	return &watcher{restored: restored, lastProgress: -1}
}

// fail records a failed probe.
func (w *watcher) fail(err error) []session.Event {
	if w.done {
		return nil
	}

	w.failures++
	if w.failures < maxProbeFailures {
		return nil
	}

	w.done = true
	return []session.Event{{Type: session.EventDisconnected, Detail: ReasonNavigation}}
}

// observe records a successful probe. After a terminal event (disconnect or
// auth failure) it returns nothing; the connection is finished.
func (w *watcher) observe(p probe) []session.Event {
	if w.done {
		return nil
	}
	w.failures = 0

	var events []session.Event

	switch {
	case p.QR != "" && w.ready:
		w.done = true
		return []session.Event{{Type: session.EventDisconnected, Detail: ReasonLogout}}

	case p.QR != "" && (w.authenticated || w.restored):
		w.done = true
		return []session.Event{{Type: session.EventAuthFailure, Detail: "stored credentials were rejected"}}

	case p.QR != "":
		if p.QR != w.lastQR {
			w.lastQR = p.QR
			events = append(events, session.Event{Type: session.EventPairingCode, Detail: p.QR})
		}

	case p.Chats && !w.ready:
		if !w.authenticated {
			w.authenticated = true
			events = append(events, session.Event{Type: session.EventAuthenticated})
		}
		w.ready = true
		events = append(events, session.Event{Type: session.EventReady})

	case p.Progress >= 0 && !w.ready && p.Progress != w.lastProgress:
		w.lastProgress = p.Progress
		events = append(events, session.Event{Type: session.EventLoading, Detail: fmt.Sprintf("%d%%", p.Progress)})
	}

	return events
}
