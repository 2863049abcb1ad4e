package whatsweb

import (
	"slices"
	"strings"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
)

// DefaultWebURL is the address of the web client.
const DefaultWebURL = "https://web.whatsapp.com"

// containerFlags keep Chromium alive in small containers with no GPU, no
// user namespace sandbox and a tiny /dev/shm.
var containerFlags = []string{
	"--no-sandbox",
	"--disable-setuid-sandbox",
	"--disable-dev-shm-usage",
	"--disable-accelerated-2d-canvas",
	"--no-first-run",
	"--no-zygote",
	"--single-process",
	"--disable-gpu",
	"--disable-software-rasterizer",
	"--disable-extensions",
	"--disable-background-networking",
	"--disable-background-timer-throttling",
	"--disable-backgrounding-occluded-windows",
	"--disable-breakpad",
	"--disable-component-extensions-with-background-pages",
	"--disable-features=TranslateUI",
	"--disable-ipc-flooding-protection",
	"--disable-renderer-backgrounding",
	"--disable-sync",
	"--force-color-profile=srgb",
	"--metrics-recording-only",
	"--mute-audio",
	"--hide-scrollbars",
	"--disable-default-apps",
	"--disable-crash-reporter",
	"--disable-crashpad",
}

// LaunchConfig describes how to start the browser. Treat it as immutable
// once built.
type LaunchConfig struct {
	Executable string
	Headless   bool
	Flags      []string
	// StorePath is the browser profile directory holding the credentials.
	StorePath string
	WebURL    string
}

// BuildLaunchConfig returns the launch configuration for executable with
// its profile bound to storePath. Headless is always on. extra flags are
// appended after the built-in set and win on conflict.
func BuildLaunchConfig(executable, storePath, webURL string, extra ...string) LaunchConfig {
	if webURL == "" {
		webURL = DefaultWebURL
	}

	return LaunchConfig{
		Executable: executable,
		Headless:   true,
		Flags:      append(slices.Clone(containerFlags), extra...),
		StorePath:  storePath,
		WebURL:     webURL,
	}
}

// newLauncher translates cfg into a go-rod launcher. The launcher must never
// be cleaned up: Cleanup removes the user data dir, which is the credential
// store.
func newLauncher(cfg LaunchConfig) *launcher.Launcher {
	l := launcher.New().
		Bin(cfg.Executable).
		Headless(cfg.Headless).
		UserDataDir(cfg.StorePath)

	for _, raw := range cfg.Flags {
		name, val, hasVal := strings.Cut(strings.TrimLeft(raw, "-"), "=")
		if hasVal {
			l = l.Set(flags.Flag(name), val)
		} else {
			l = l.Set(flags.Flag(name))
		}
	}

	return l
}
