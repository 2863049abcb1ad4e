package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/hay-kot/wasend/internal/printer"
	"github.com/hay-kot/wasend/internal/server"
	"github.com/hay-kot/wasend/internal/styles"
)

type ServeCmd struct {
	flags *Flags

	listen    string
	reconnect time.Duration
	noBanner  bool
}

// NewServeCmd creates a new serve command
func NewServeCmd(flags *Flags) *ServeCmd {
	return &ServeCmd{flags: flags}
}

// Register adds the serve command to the application
func (cmd *ServeCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "serve",
		Usage:     "Run the HTTP API and keep the session alive",
		UsageText: "wasend serve [options]",
		Description: `Starts the HTTP API and opens the WhatsApp Web session in a headless browser.

On first run a pairing QR code is printed to the terminal. Scan it from the
phone (Settings > Linked devices) and the session is stored under the data
directory so later runs resume without pairing.

This is the default command when wasend runs without arguments.`,
		Flags:  cmd.Flags(),
		Action: cmd.Run,
	})
	return app
}

// Flags returns the serve flags so they can be registered on the root
// command for the default action.
func (cmd *ServeCmd) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "listen",
			Aliases:     []string{"l"},
			Usage:       "address to listen on (overrides config)",
			Destination: &cmd.listen,
		},
		&cli.DurationFlag{
			Name:        "reconnect",
			Usage:       "delay before rebuilding a dropped session (0 disables)",
			Value:       15 * time.Second,
			Destination: &cmd.reconnect,
		},
		&cli.BoolFlag{
			Name:        "no-banner",
			Usage:       "do not print the startup banner",
			Destination: &cmd.noBanner,
		},
	}
}

// Run serves until SIGINT or SIGTERM.
func (cmd *ServeCmd) Run(ctx context.Context, c *cli.Command) error {
	cfg := cmd.flags.Config
	if cmd.listen != "" {
		cfg.Listen = cmd.listen
	}

	p := printer.Ctx(ctx)
	if !cmd.noBanner {
		p.Printf("%s", styles.BannerStyle.Render(styles.Banner))
		p.Printf("")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st := newStack(cmd.flags, p.Writer())
	defer func() {
		if err := st.Close(); err != nil {
			log.Warn().Err(err).Msg("close session")
		}
	}()

	srv := server.New(cfg, st.manager, st.dispatcher, cmd.flags.Journal,
		log.With().Str("component", "http").Logger())

	p.Infof("listening on %s", cfg.Listen)
	if cfg.SecretKey == "" {
		p.Warnf("no secret key configured, API endpoints are open")
	}

	if _, err := st.manager.EnsureReady(ctx); err != nil {
		// The API still serves status; a later init request retries.
		log.Error().Err(err).Msg("initial session start failed")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	if cmd.reconnect > 0 {
		g.Go(func() error {
			return st.manager.Supervise(gctx, cmd.reconnect)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	log.Info().Msg("shutting down")
	return nil
}
