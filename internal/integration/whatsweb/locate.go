// Package whatsweb connects to WhatsApp Web through a headless Chromium
// driven by go-rod. The browser profile directory doubles as the credential
// store, so a paired session survives restarts.
package whatsweb

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"

	"github.com/hay-kot/wasend/internal/core/session"
)

// DefaultCandidates returns the well-known browser install locations for
// goos, in probe order.
func DefaultCandidates(goos string) []string {
	switch goos {
	case "windows":
		return []string{
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
		}
	case "darwin":
		return []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
		}
	default:
		return []string{
			"/usr/bin/chromium",
			"/usr/bin/chromium-browser",
			"/usr/bin/google-chrome",
			"/usr/bin/google-chrome-stable",
		}
	}
}

type statFunc func(name string) (fs.FileInfo, error)

// LocateRuntime resolves the browser executable. A non-empty override wins
// and must exist; there is no fallback to probing when it does not. A bare
// command name in override is looked up on PATH.
func LocateRuntime(override string, candidates []string) (string, error) {
	return locate(os.Stat, exec.LookPath, override, candidates)
}

func locate(stat statFunc, lookPath func(string) (string, error), override string, candidates []string) (string, error) {
	if override != "" {
		if !strings.ContainsAny(override, `/\`) {
			p, err := lookPath(override)
			if err != nil {
				return "", session.NewError(session.KindRuntimeNotFound, fmt.Sprintf("configured browser %q not on PATH", override), err)
			}
			return p, nil
		}

		if err := isExecutableFile(stat, override); err != nil {
			return "", session.NewError(session.KindRuntimeNotFound, fmt.Sprintf("configured browser %q", override), err)
		}
		return override, nil
	}

	for _, c := range candidates {
		if isExecutableFile(stat, c) == nil {
			return c, nil
		}
	}

	return "", session.NewError(session.KindRuntimeNotFound, fmt.Sprintf("none of %d known locations exist", len(candidates)), nil)
}

func isExecutableFile(stat statFunc, path string) error {
	info, err := stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return errors.New("is a directory")
	}
	return nil
}
