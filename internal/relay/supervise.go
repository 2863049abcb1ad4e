package relay

import (
	"context"
	"errors"
	"time"

	"github.com/hay-kot/wasend/internal/core/session"
)

// Supervise starts a new attempt whenever the session falls back to
// disconnected, waiting delay first. Auth failures are only retried when the
// credential store is reset on auth failure; otherwise they wait for an
// explicit initialization. It returns nil when ctx is done or the Manager
// is closed.
func (m *Manager) Supervise(ctx context.Context, delay time.Duration) error {
	for {
		changed := m.state.Changed()
		snap := m.state.Snapshot()

		if !m.shouldReconnect(snap) {
			select {
			case <-ctx.Done():
				return nil
			case <-m.quit:
				return nil
			case <-changed:
			}
			continue
		}

		m.log.Info().
			Str("phase", string(snap.Phase)).
			Str("reason", snap.Reason).
			Dur("delay", delay).
			Msg("session dropped, reconnecting")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-m.quit:
			timer.Stop()
			return nil
		case <-timer.C:
		}

		if _, err := m.EnsureReady(ctx); err != nil {
			if errors.Is(err, ErrClosed) {
				return nil
			}
			m.log.Warn().Err(err).Msg("reconnect failed")
			// The state is unchanged after a factory error; wait out the delay again.
		}
	}
}

func (m *Manager) shouldReconnect(snap session.Snapshot) bool {
	if snap.Ready || snap.Connecting {
		return false
	}
	switch snap.Phase {
	case session.PhaseDisconnected:
		return snap.Reason != reasonShutdown
	case session.PhaseAuthFailed:
		return m.opts.ResetStoreOnAuthFailure
	}
	return false
}
