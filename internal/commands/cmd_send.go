package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/hay-kot/wasend/internal/core/config"
	"github.com/hay-kot/wasend/internal/core/validate"
	"github.com/hay-kot/wasend/internal/printer"
	"github.com/hay-kot/wasend/pkg/tmpl"
)

type SendCmd struct {
	flags *Flags

	to   string
	name string
	wait time.Duration
	raw  bool
}

// NewSendCmd creates a new send command
func NewSendCmd(flags *Flags) *SendCmd {
	return &SendCmd{flags: flags}
}

// Register adds the send command to the application
func (cmd *SendCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "send",
		Usage:     "Send one message without running the server",
		UsageText: "wasend send --to <number> --name <sender> [message]",
		Description: `Opens the session, waits until it is ready and sends a single message.

The message is taken from the first argument, or read from stdin when no
argument is given. The body is formatted with the configured message
template unless --raw is set.

Examples:
  wasend send --to "+55 11 99999-9999" --name "Build Bot" "deploy finished"
  echo "nightly report attached" | wasend send --to 5511999999999 --name Reports`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "to",
				Aliases:     []string{"t"},
				Usage:       "recipient phone number including country code",
				Required:    true,
				Destination: &cmd.to,
			},
			&cli.StringFlag{
				Name:        "name",
				Aliases:     []string{"n"},
				Usage:       "sender name shown at the top of the message",
				Destination: &cmd.name,
			},
			&cli.DurationFlag{
				Name:        "wait",
				Usage:       "how long to wait for the session to become ready",
				Value:       2 * time.Minute,
				Destination: &cmd.wait,
			},
			&cli.BoolFlag{
				Name:        "raw",
				Usage:       "send the message as is, without the message template",
				Destination: &cmd.raw,
			},
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *SendCmd) run(ctx context.Context, c *cli.Command) error {
	cfg := cmd.flags.Config
	p := printer.Ctx(ctx)

	message, err := cmd.readMessage(c)
	if err != nil {
		return err
	}

	body, err := cmd.formatBody(cfg, message)
	if err != nil {
		return err
	}

	address, err := validate.Address(cmd.to, cfg.MinAddressDigits)
	if err != nil {
		return fmt.Errorf("invalid recipient %q: %w", cmd.to, err)
	}

	st := newStack(cmd.flags, p.Writer())
	defer func() { _ = st.Close() }()

	if err := waitReady(ctx, st, cmd.wait); err != nil {
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	defer cancel()

	res := st.dispatcher.Send(sendCtx, address, body)
	if err := res.Err(); err != nil {
		return fmt.Errorf("send to %s: %w", address, err)
	}

	p.Successf("message sent to %s", address)
	return nil
}

func (cmd *SendCmd) readMessage(c *cli.Command) (string, error) {
	if c.NArg() >= 1 {
		return strings.Join(c.Args().Slice(), " "), nil
	}

	if term.IsTerminal(int(os.Stdin.Fd())) {
		return "", errors.New("no message provided (stdin is a terminal); pass it as an argument or pipe it in")
	}

	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}

func (cmd *SendCmd) formatBody(cfg *config.Config, message string) (string, error) {
	if err := validate.MessageBody(message); err != nil {
		return "", fmt.Errorf("message %w", err)
	}

	if cmd.raw {
		return strings.TrimSpace(message), nil
	}

	name := strings.TrimSpace(cmd.name)
	if err := validate.SenderName(name); err != nil {
		return "", fmt.Errorf("--name %w", err)
	}

	body, err := tmpl.Render(cfg.MessageTemplate, config.MessageTemplateData{Name: name, Message: message})
	if err != nil {
		return "", fmt.Errorf("render message template: %w", err)
	}
	return body, nil
}

// waitReady starts the session and blocks until it is ready, the attempt
// fails, or wait elapses.
func waitReady(ctx context.Context, st *stack, wait time.Duration) error {
	p := printer.Ctx(ctx)
	p.Infof("starting session (waiting up to %s)", wait)

	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	ready, err := st.manager.Initialize(waitCtx)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("session not ready after %s", wait)
	case err != nil:
		return fmt.Errorf("start session: %w", err)
	case !ready:
		return errors.New("session not ready")
	}

	p.Successf("session ready")
	return nil
}
