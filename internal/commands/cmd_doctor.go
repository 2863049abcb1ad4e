package commands

import (
	"context"
	"encoding/json"
	"runtime"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/wasend/internal/commands/doctor"
	"github.com/hay-kot/wasend/internal/integration/whatsweb"
	"github.com/hay-kot/wasend/internal/printer"
	"github.com/hay-kot/wasend/pkg/executil"
)

type DoctorCmd struct {
	flags  *Flags
	format string
}

// NewDoctorCmd creates a new doctor command
func NewDoctorCmd(flags *Flags) *DoctorCmd {
	return &DoctorCmd{flags: flags}
}

// Register adds the doctor command to the application
func (cmd *DoctorCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "doctor",
		Usage:     "Check whether wasend is ready to serve",
		UsageText: "wasend doctor [options]",
		Description: `Checks the configuration, locates the browser and asks it for its version,
and inspects the credential store and lifecycle journal.

Failed items must be fixed before 'wasend serve' can open a session; warnings
are reported with a hint but do not block it. Exits 1 when anything failed.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "format",
				Usage:       "output format (text, json)",
				Value:       "text",
				Destination: &cmd.format,
			},
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *DoctorCmd) checks() []doctor.Check {
	cfg := cmd.flags.Config

	return []doctor.Check{
		doctor.NewConfigCheck(cfg, cmd.flags.ConfigPath),
		doctor.NewRuntimeCheck(cfg.Browser.Executable, whatsweb.DefaultCandidates(runtime.GOOS), &executil.RealExecutor{}),
		doctor.NewStoreCheck(cfg.CredentialStoreDir(), cmd.flags.Journal),
	}
}

func (cmd *DoctorCmd) run(ctx context.Context, c *cli.Command) error {
	report := doctor.Run(ctx, cmd.checks()...)

	if cmd.format == "json" {
		enc := json.NewEncoder(c.Root().Writer)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		renderReport(printer.Ctx(ctx), report)
	}

	if !report.Healthy {
		return cli.Exit("", 1)
	}
	return nil
}

func renderReport(p *printer.Printer, report doctor.Report) {
	for _, res := range report.Checks {
		p.Section(res.Name)

		for _, item := range res.Items {
			switch item.Status {
			case doctor.StatusPass:
				p.CheckItem(item.Label, item.Detail)
			case doctor.StatusWarn:
				p.WarnItem(item.Label, item.Detail)
			case doctor.StatusFail:
				p.FailItem(item.Label, item.Detail)
			}
			if item.Hint != "" && item.Status != doctor.StatusPass {
				p.Hint(item.Hint)
			}
		}

		p.Printf("")
	}

	p.Printf("%d passed, %d warnings, %d failed", report.Passed, report.Warned, report.Failed)

	switch {
	case !report.Healthy:
		p.Errorf("not ready to serve, fix the failed items above")
	case report.Warned > 0:
		p.Warnf("ready to serve, with warnings")
	default:
		p.Successf("ready to serve")
	}
}
