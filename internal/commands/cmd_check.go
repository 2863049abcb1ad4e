package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/wasend/internal/core/validate"
	"github.com/hay-kot/wasend/internal/printer"
)

type CheckCmd struct {
	flags *Flags

	wait   time.Duration
	asJSON bool
}

// NewCheckCmd creates a new check command
func NewCheckCmd(flags *Flags) *CheckCmd {
	return &CheckCmd{flags: flags}
}

// Register adds the check command to the application
func (cmd *CheckCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:        "check",
		Usage:       "Check whether a number is registered on WhatsApp",
		UsageText:   "wasend check [options] <number>",
		Description: "Opens the session, waits until it is ready and resolves the number without sending anything.",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:        "wait",
				Usage:       "how long to wait for the session to become ready",
				Value:       2 * time.Minute,
				Destination: &cmd.wait,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print the result as JSON",
				Destination: &cmd.asJSON,
			},
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *CheckCmd) run(ctx context.Context, c *cli.Command) error {
	if c.NArg() != 1 {
		return errors.New("expected exactly one phone number")
	}

	cfg := cmd.flags.Config
	raw := c.Args().First()

	address, err := validate.Address(raw, cfg.MinAddressDigits)
	if err != nil {
		return fmt.Errorf("invalid number %q: %w", raw, err)
	}

	p := printer.Ctx(ctx)
	st := newStack(cmd.flags, p.Writer())
	defer func() { _ = st.Close() }()

	if err := waitReady(ctx, st, cmd.wait); err != nil {
		return err
	}

	check, err := st.dispatcher.CheckRecipient(ctx, address)
	if err != nil {
		return fmt.Errorf("check %s: %w", address, err)
	}

	if cmd.asJSON {
		enc := json.NewEncoder(c.Root().Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(check)
	}

	if check.Registered {
		p.Successf("%s is registered as %s", address, check.Identity)
		return nil
	}

	p.Warnf("%s is not registered on WhatsApp", address)
	return cli.Exit("", 1)
}
