package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/hay-kot/wasend/internal/commands/doctor"
	"github.com/hay-kot/wasend/internal/core/config"
	"github.com/hay-kot/wasend/internal/core/session"
	"github.com/hay-kot/wasend/internal/printer"
	"github.com/hay-kot/wasend/internal/store/jsonfile"
)

func testFlags(t *testing.T) *Flags {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()

	return &Flags{
		ConfigPath: filepath.Join(t.TempDir(), "config.yaml"),
		DataDir:    cfg.DataDir,
		Config:     &cfg,
		Journal:    jsonfile.NewJournal(cfg.JournalFile(), cfg.Journal.MaxEntries),
	}
}

// runApp runs args against a root command with the given registrations and
// returns stdout and printer output.
func runApp(t *testing.T, register func(*cli.Command) *cli.Command, args ...string) (string, string) {
	t.Helper()

	var out, msgs bytes.Buffer
	app := register(&cli.Command{Name: "wasend", Writer: &out})

	ctx := printer.NewContext(context.Background(), printer.Plain(&msgs))
	require.NoError(t, app.Run(ctx, append([]string{"wasend"}, args...)))

	return out.String(), msgs.String()
}

func TestEventsCmd(t *testing.T) {
	flags := testFlags(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, flags.Journal.Append(ctx, session.JournalEntry{ID: "evt-1", Type: session.EventPairingCode, Timestamp: base}))
	require.NoError(t, flags.Journal.Append(ctx, session.JournalEntry{ID: "evt-2", Type: session.EventReady, Timestamp: base.Add(time.Minute)}))

	register := NewEventsCmd(flags).Register

	t.Run("json newest first", func(t *testing.T) {
		out, _ := runApp(t, NewEventsCmd(flags).Register, "events", "--json")

		var entries []session.JournalEntry
		require.NoError(t, json.Unmarshal([]byte(out), &entries))
		require.Len(t, entries, 2)
		assert.Equal(t, "evt-2", entries[0].ID)
	})

	t.Run("last", func(t *testing.T) {
		out, _ := runApp(t, NewEventsCmd(flags).Register, "events", "--json", "--last", "1")

		var entries []session.JournalEntry
		require.NoError(t, json.Unmarshal([]byte(out), &entries))
		require.Len(t, entries, 1)
		assert.Equal(t, session.EventReady, entries[0].Type)
	})

	t.Run("table", func(t *testing.T) {
		out, _ := runApp(t, NewEventsCmd(flags).Register, "events")
		assert.Contains(t, out, "TIME")
		assert.Contains(t, out, "pairing_code")
	})

	t.Run("clear", func(t *testing.T) {
		_, msgs := runApp(t, register, "events", "--clear")
		assert.Contains(t, msgs, "journal cleared")

		entries, err := flags.Journal.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestConfigShow_RedactsSecret(t *testing.T) {
	flags := testFlags(t)
	flags.Config.SecretKey = "s3cret"

	out, _ := runApp(t, NewConfigCmd(flags).Register, "config", "show")

	assert.NotContains(t, out, "s3cret")

	var shown map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &shown))
	assert.Equal(t, redacted, shown["secret_key"])
	assert.Equal(t, "s3cret", flags.Config.SecretKey, "the loaded config is not modified")
}

func TestConfigValidate_JSON(t *testing.T) {
	flags := testFlags(t)

	out, _ := runApp(t, NewConfigCmd(flags).Register, "config", "validate", "--format", "json")

	var res struct {
		Valid bool `json:"valid"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Valid)
}

func TestSendCmd_FormatBody(t *testing.T) {
	cfg := config.DefaultConfig()

	t.Run("template", func(t *testing.T) {
		cmd := &SendCmd{name: "  Build Bot "}
		body, err := cmd.formatBody(&cfg, "deploy finished\n")
		require.NoError(t, err)
		assert.Equal(t, "*Build Bot*\n\ndeploy finished", body)
	})

	t.Run("raw skips name", func(t *testing.T) {
		cmd := &SendCmd{raw: true}
		body, err := cmd.formatBody(&cfg, " ping ")
		require.NoError(t, err)
		assert.Equal(t, "ping", body)
	})

	t.Run("short name", func(t *testing.T) {
		cmd := &SendCmd{name: "Al"}
		_, err := cmd.formatBody(&cfg, "hi")
		assert.ErrorContains(t, err, "--name must be at least")
	})

	t.Run("blank message", func(t *testing.T) {
		cmd := &SendCmd{name: "Ana"}
		_, err := cmd.formatBody(&cfg, "  ")
		assert.ErrorContains(t, err, "message cannot be empty")
	})
}

func TestRenderReport(t *testing.T) {
	report := doctor.Report{
		Healthy: true,
		Passed:  1,
		Warned:  1,
		Checks: []doctor.Result{{
			Name: "Credential Store",
			Items: []doctor.CheckItem{
				{Label: "Directory", Status: doctor.StatusPass, Detail: "/data/session", Hint: "unused"},
				{Label: "Paired", Status: doctor.StatusWarn, Detail: "no linked device", Hint: "scan the QR code"},
			},
		}},
	}

	t.Run("warnings", func(t *testing.T) {
		var buf bytes.Buffer
		renderReport(printer.Plain(&buf), report)

		out := buf.String()
		assert.Contains(t, out, "Directory: /data/session")
		assert.NotContains(t, out, "unused", "passing items print no hint")
		assert.Contains(t, out, "↳ scan the QR code")
		assert.Contains(t, out, "1 passed, 1 warnings, 0 failed")
		assert.Contains(t, out, "ready to serve, with warnings")
	})

	t.Run("failed", func(t *testing.T) {
		failed := report
		failed.Healthy = false
		failed.Failed = 1

		var buf bytes.Buffer
		renderReport(printer.Plain(&buf), failed)
		assert.Contains(t, buf.String(), "not ready to serve")
	})
}

func TestDefaultPaths(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/cfg")
	t.Setenv("XDG_DATA_HOME", "/tmp/data")

	assert.Equal(t, "/tmp/cfg/wasend/config.yaml", DefaultConfigPath())
	assert.Equal(t, "/tmp/data/wasend", DefaultDataDir())
}
