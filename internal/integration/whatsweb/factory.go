package whatsweb

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"

	"github.com/hay-kot/wasend/internal/core/session"
)

// Options configures a Factory.
type Options struct {
	// Executable overrides browser discovery.
	Executable string
	// Candidates are probed when Executable is empty. Nil means
	// DefaultCandidates for the running OS.
	Candidates []string
	StorePath  string
	WebURL     string
	ExtraFlags []string
	// PollInterval is how often the page state is sampled.
	PollInterval time.Duration
}

// Factory creates browser backed connections.
type Factory struct {
	opts Options
	log  zerolog.Logger
}

var _ session.Factory = (*Factory)(nil)

// NewFactory returns a Factory.
func NewFactory(opts Options, logger zerolog.Logger) *Factory {
	if opts.Candidates == nil {
		opts.Candidates = DefaultCandidates(runtime.GOOS)
	}
	return &Factory{opts: opts, log: logger}
}

// Create locates the browser and returns an unstarted connection bound to
// the credential store. Nothing is launched until Start.
func (f *Factory) Create(ctx context.Context) (session.Connection, error) {
	cfg, err := f.LaunchConfig()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.StorePath, 0o700); err != nil {
		return nil, fmt.Errorf("create credential store: %w", err)
	}

	f.log.Debug().
		Str("executable", cfg.Executable).
		Strs("flags", cfg.Flags).
		Msg("created connection")

	return NewConn(cfg, f.opts.PollInterval, f.log), nil
}

// LaunchConfig resolves the browser and builds the launch configuration
// without creating a connection.
func (f *Factory) LaunchConfig() (LaunchConfig, error) {
	path, err := LocateRuntime(f.opts.Executable, f.opts.Candidates)
	if err != nil {
		return LaunchConfig{}, err
	}
	return BuildLaunchConfig(path, f.opts.StorePath, f.opts.WebURL, f.opts.ExtraFlags...), nil
}
