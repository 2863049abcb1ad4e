package doctor

import (
	"context"
	"strings"
	"time"

	"github.com/hay-kot/wasend/internal/integration/whatsweb"
	"github.com/hay-kot/wasend/pkg/executil"
)

const versionTimeout = 10 * time.Second

// RuntimeCheck locates the browser and asks it for its version.
type RuntimeCheck struct {
	override   string
	candidates []string
	exec       executil.Executor
}

// NewRuntimeCheck creates a runtime check. override is the configured
// executable; candidates are probed when it is empty.
func NewRuntimeCheck(override string, candidates []string, exec executil.Executor) *RuntimeCheck {
	return &RuntimeCheck{override: override, candidates: candidates, exec: exec}
}

func (c *RuntimeCheck) Name() string {
	return "Browser Runtime"
}

func (c *RuntimeCheck) Run(ctx context.Context) Result {
	result := Result{Name: c.Name()}

	path, err := whatsweb.LocateRuntime(c.override, c.candidates)
	if err != nil {
		result.Items = append(result.Items, CheckItem{
			Label:  "Executable",
			Status: StatusFail,
			Detail: err.Error(),
			Hint:   "install Chromium or Chrome, or set browser.executable (WASEND_BROWSER)",
		})
		return result
	}

	result.Items = append(result.Items, CheckItem{
		Label:  "Executable",
		Status: StatusPass,
		Detail: path,
	})

	source := "found in a default location"
	if c.override != "" {
		source = "configured as " + c.override
	}
	result.Items = append(result.Items, CheckItem{
		Label:  "Source",
		Status: StatusPass,
		Detail: source,
	})

	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()

	out, err := c.exec.Run(ctx, path, "--version")
	if err != nil {
		result.Items = append(result.Items, CheckItem{
			Label:  "Version",
			Status: StatusWarn,
			Detail: err.Error(),
			Hint:   "run " + path + " --version to see why the browser does not start",
		})
		return result
	}

	result.Items = append(result.Items, CheckItem{
		Label:  "Version",
		Status: StatusPass,
		Detail: strings.TrimSpace(string(out)),
	})
	return result
}
