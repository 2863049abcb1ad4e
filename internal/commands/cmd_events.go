package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/wasend/internal/printer"
)

type EventsCmd struct {
	flags *Flags

	asJSON bool
	clear  bool
	last   int
}

// NewEventsCmd creates a new events command
func NewEventsCmd(flags *Flags) *EventsCmd {
	return &EventsCmd{flags: flags}
}

// Register adds the events command to the application
func (cmd *EventsCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "events",
		Usage:     "Show the session lifecycle journal",
		UsageText: "wasend events [options]",
		Description: `Lists recorded lifecycle events (pairing, ready, disconnects), newest first.

Pairing codes are never stored. Use --clear to reset the journal.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print events as JSON",
				Destination: &cmd.asJSON,
			},
			&cli.BoolFlag{
				Name:        "clear",
				Usage:       "delete all recorded events",
				Destination: &cmd.clear,
			},
			&cli.IntFlag{
				Name:        "last",
				Aliases:     []string{"n"},
				Usage:       "show only the N most recent events",
				Destination: &cmd.last,
			},
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *EventsCmd) run(ctx context.Context, c *cli.Command) error {
	p := printer.Ctx(ctx)
	journal := cmd.flags.Journal

	if cmd.clear {
		if err := journal.Clear(ctx); err != nil {
			return fmt.Errorf("clear journal: %w", err)
		}
		p.Successf("journal cleared")
		return nil
	}

	entries, err := journal.List(ctx)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}
	if cmd.last > 0 && len(entries) > cmd.last {
		entries = entries[:cmd.last]
	}

	out := c.Root().Writer

	if cmd.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	if len(entries) == 0 {
		p.Infof("No events recorded")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TIME\tEVENT\tDETAIL")
	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", e.Timestamp.Local().Format(time.DateTime), e.Type, e.Detail)
	}
	return w.Flush()
}
