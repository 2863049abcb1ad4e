package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hay-kot/criterio"

	"github.com/hay-kot/wasend/pkg/tmpl"
)

// MessageTemplateData defines the fields available to message_template.
type MessageTemplateData struct {
	Name    string
	Message string
}

// HookTemplateData defines the fields available to hook command templates.
type HookTemplateData struct {
	Event  string
	Detail string
	Time   string
}

// Validate checks that the configuration is valid. The returned error is a
// criterio.FieldErrors listing every problem found.
func (c *Config) Validate() error {
	var errs criterio.FieldErrorsBuilder

	if c.Listen == "" {
		errs = errs.Append("listen", fmt.Errorf("cannot be empty"))
	}

	if c.DataDir == "" {
		errs = errs.Append("data_dir", fmt.Errorf("cannot be empty"))
	}

	if c.InitTimeout <= 0 {
		errs = errs.Append("init_timeout", fmt.Errorf("must be positive"))
	}

	if c.SendTimeout <= 0 {
		errs = errs.Append("send_timeout", fmt.Errorf("must be positive"))
	}

	if c.MinAddressDigits < 1 {
		errs = errs.Append("min_address_digits", fmt.Errorf("must be at least 1"))
	}

	if c.Journal.MaxEntries < 0 {
		errs = errs.Append("journal.max_entries", fmt.Errorf("cannot be negative"))
	}

	if c.Browser.PollInterval <= 0 {
		errs = errs.Append("browser.poll_interval", fmt.Errorf("must be positive"))
	}

	if u, err := url.Parse(c.Browser.WebURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = errs.Append("browser.web_url", fmt.Errorf("must be an absolute http(s) URL"))
	}

	for i, origin := range c.AllowedOrigins {
		if err := validateOrigin(origin); err != nil {
			errs = errs.Append(fmt.Sprintf("allowed_origins[%d]", i), err)
		}
	}

	for i, flag := range c.Browser.ExtraFlags {
		if !strings.HasPrefix(flag, "--") {
			errs = errs.Append(fmt.Sprintf("browser.extra_flags[%d]", i), fmt.Errorf("flag %q must start with --", flag))
		}
	}

	if _, err := tmpl.Render(c.MessageTemplate, MessageTemplateData{Name: "name", Message: "message"}); err != nil {
		errs = errs.Append("message_template", fmt.Errorf("template error: %w", err))
	}

	for i, hook := range c.Hooks {
		field := fmt.Sprintf("hooks[%d]", i)

		if hook.Event == "" {
			errs = errs.Append(field+".event", fmt.Errorf("cannot be empty"))
		} else if !doublestar.ValidatePattern(hook.Event) {
			errs = errs.Append(field+".event", fmt.Errorf("invalid pattern %q", hook.Event))
		}

		if len(hook.Commands) == 0 {
			errs = errs.Append(field+".commands", fmt.Errorf("at least one command is required"))
		}

		for j, cmd := range hook.Commands {
			if _, err := tmpl.Render(cmd, HookTemplateData{}); err != nil {
				errs = errs.Append(fmt.Sprintf("%s.commands[%d]", field, j), fmt.Errorf("template error: %w", err))
			}
		}
	}

	return errs.ToError()
}

// validateOrigin accepts "*" or a scheme://host[:port] origin as browsers
// send it in the Origin header.
func validateOrigin(origin string) error {
	if origin == "*" {
		return nil
	}

	u, err := url.Parse(origin)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("origin %q must be \"*\" or an absolute http(s) URL", origin)
	}
	if u.Path != "" || u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("origin %q must not have a path, query or fragment", origin)
	}
	return nil
}
