package commands

import (
	"io"

	"github.com/rs/zerolog/log"

	"github.com/hay-kot/wasend/internal/core/session"
	"github.com/hay-kot/wasend/internal/integration/whatsweb"
	"github.com/hay-kot/wasend/internal/pairing"
	"github.com/hay-kot/wasend/internal/relay"
	"github.com/hay-kot/wasend/pkg/executil"
)

// stack is the session stack shared by serve, send and check.
type stack struct {
	state      *session.State
	manager    *relay.Manager
	dispatcher *relay.Dispatcher
}

// newStack wires the browser factory, lifecycle manager and dispatcher.
// Pairing codes are rendered to pairingOut. Call Close when done.
func newStack(flags *Flags, pairingOut io.Writer) *stack {
	cfg := flags.Config

	factory := whatsweb.NewFactory(whatsweb.Options{
		Executable:   cfg.Browser.Executable,
		StorePath:    cfg.CredentialStoreDir(),
		WebURL:       cfg.Browser.WebURL,
		ExtraFlags:   cfg.Browser.ExtraFlags,
		PollInterval: cfg.Browser.PollInterval,
	}, log.With().Str("component", "whatsweb").Logger())

	hooks := relay.NewHookRunner(
		log.With().Str("component", "hooks").Logger(),
		&executil.RealExecutor{},
		cfg.Hooks,
	)

	state := session.NewState()
	manager := relay.NewManager(state, factory, relay.Options{
		Journal:                 flags.Journal,
		Hooks:                   hooks,
		Pairing:                 pairing.NewRenderer(pairingOut, log.With().Str("component", "pairing").Logger()),
		StorePath:               cfg.CredentialStoreDir(),
		ResetStoreOnAuthFailure: cfg.ResetStoreOnAuthFailure,
	}, log.With().Str("component", "lifecycle").Logger())

	return &stack{
		state:      state,
		manager:    manager,
		dispatcher: relay.NewDispatcher(state, log.With().Str("component", "dispatcher").Logger()),
	}
}

func (s *stack) Close() error {
	return s.manager.Close()
}
