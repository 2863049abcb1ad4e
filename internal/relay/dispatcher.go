package relay

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/hay-kot/wasend/internal/core/session"
)

// Dispatcher sends messages through the ready connection. It only reads
// the session state and never changes it.
type Dispatcher struct {
	state *session.State
	log   zerolog.Logger
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(state *session.State, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{state: state, log: logger}
}

// RecipientCheck reports whether an address is registered on the network.
type RecipientCheck struct {
	Number     string `json:"number"`
	ChatID     string `json:"chatId"`
	Registered bool   `json:"isRegistered"`
	// Identity is nil when the number is not registered.
	Identity *session.RecipientIdentity `json:"numberId"`
}

// Send delivers body to address, which must already be normalized. It makes
// exactly one attempt; every failure is returned as a typed result.
func (d *Dispatcher) Send(ctx context.Context, address, body string) (res session.DispatchResult) {
	log := d.log.With().Str("address", address).Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("send panicked")
			res = session.Failed(session.KindSendFailed, "").WithCause(fmt.Errorf("panic: %v", r))
		}
	}()

	snap := d.state.Snapshot()
	if !snap.Usable() {
		log.Debug().Str("phase", string(snap.Phase)).Msg("send rejected, session not ready")
		return session.Failed(session.KindNotReady, "")
	}
	conn := snap.Connection

	id, ok, err := conn.ResolveRecipient(ctx, address)
	if err != nil {
		log.Error().Err(err).Msg("recipient resolution failed")
		return session.Failed(session.KindRecipientResolutionFailed, "").WithCause(err)
	}
	if !ok || id.IsZero() {
		log.Info().Msg("recipient not registered")
		return session.Failed(session.KindRecipientNotRegistered, "")
	}

	if err := conn.SendText(ctx, id, body); err != nil {
		kind := Classify(err)
		log.Error().Err(err).Str("kind", kind.String()).Str("recipient", id.String()).Msg("send failed")
		return session.Failed(kind, "").WithCause(err)
	}

	log.Info().Str("recipient", id.String()).Msg("message sent")
	return session.Delivered()
}

// CheckRecipient resolves address without sending anything.
func (d *Dispatcher) CheckRecipient(ctx context.Context, address string) (check RecipientCheck, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = session.NewError(session.KindRecipientResolutionFailed, "", fmt.Errorf("panic: %v", r))
		}
	}()

	snap := d.state.Snapshot()
	if !snap.Usable() {
		return RecipientCheck{}, session.NewError(session.KindNotReady, session.KindNotReady.Message(), nil)
	}

	check = RecipientCheck{
		Number: address,
		ChatID: session.NewRecipient(address).String(),
	}

	id, ok, err := snap.Connection.ResolveRecipient(ctx, address)
	if err != nil {
		d.log.Error().Err(err).Str("address", address).Msg("recipient check failed")
		return RecipientCheck{}, session.NewError(session.KindRecipientResolutionFailed, session.KindRecipientResolutionFailed.Message(), err)
	}

	check.Registered = ok && !id.IsZero()
	if check.Registered {
		check.Identity = &id
	}
	return check, nil
}
