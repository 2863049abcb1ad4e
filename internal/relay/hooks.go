package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"

	"github.com/hay-kot/wasend/internal/core/config"
	"github.com/hay-kot/wasend/internal/core/session"
	"github.com/hay-kot/wasend/pkg/executil"
	"github.com/hay-kot/wasend/pkg/tmpl"
)

// DefaultHookTimeout bounds a single hook command.
const DefaultHookTimeout = 30 * time.Second

// HookRunner executes operator hooks for lifecycle events.
type HookRunner struct {
	log      zerolog.Logger
	executor executil.Executor
	hooks    []config.Hook
	timeout  time.Duration
}

// NewHookRunner creates a new HookRunner.
func NewHookRunner(log zerolog.Logger, executor executil.Executor, hooks []config.Hook) *HookRunner {
	return &HookRunner{
		log:      log,
		executor: executor,
		hooks:    hooks,
		timeout:  DefaultHookTimeout,
	}
}

// Run executes every hook whose event pattern matches ev. A failing command
// does not stop the remaining ones; all failures are returned joined.
func (h *HookRunner) Run(ctx context.Context, ev session.Event) error {
	if len(h.hooks) == 0 {
		return nil
	}

	data := config.HookTemplateData{
		Event:  string(ev.Type),
		Detail: ev.Detail,
		Time:   ev.At.UTC().Format(time.RFC3339),
	}
	env := []string{
		"WASEND_EVENT=" + data.Event,
		"WASEND_DETAIL=" + data.Detail,
		"WASEND_TIME=" + data.Time,
	}

	var errs []error
	for _, hook := range h.hooks {
		matched, err := doublestar.Match(hook.Event, data.Event)
		if err != nil {
			errs = append(errs, fmt.Errorf("match pattern %q: %w", hook.Event, err))
			continue
		}

		h.log.Debug().
			Str("pattern", hook.Event).
			Str("event", data.Event).
			Bool("matched", matched).
			Msg("hook pattern evaluated")

		if !matched {
			continue
		}

		for _, raw := range hook.Commands {
			cmd, err := tmpl.Render(raw, data)
			if err != nil {
				errs = append(errs, fmt.Errorf("render hook %q command: %w", hook.Event, err))
				continue
			}

			if err := h.exec(ctx, env, cmd); err != nil {
				errs = append(errs, fmt.Errorf("run hook %q command %q: %w", hook.Event, cmd, err))
			}
		}
	}

	return errors.Join(errs...)
}

func (h *HookRunner) exec(ctx context.Context, env []string, cmd string) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	out, err := h.executor.RunEnv(ctx, env, "sh", "-c", cmd)

	h.log.Debug().
		Str("command", cmd).
		Str("output", strings.TrimSpace(string(out))).
		Err(err).
		Msg("hook command finished")

	return err
}
