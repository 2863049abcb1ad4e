package doctor

import (
	"context"
	"errors"
	"os"
	"slices"

	"github.com/hay-kot/criterio"

	"github.com/hay-kot/wasend/internal/core/config"
)

// ConfigCheck validates the configuration file.
type ConfigCheck struct {
	config     *config.Config
	configPath string
}

// NewConfigCheck creates a new configuration check.
func NewConfigCheck(cfg *config.Config, configPath string) *ConfigCheck {
	return &ConfigCheck{
		config:     cfg,
		configPath: configPath,
	}
}

func (c *ConfigCheck) Name() string {
	return "Configuration"
}

func (c *ConfigCheck) Run(ctx context.Context) Result {
	result := Result{Name: c.Name()}

	if c.config == nil {
		result.Items = append(result.Items, CheckItem{
			Label:  "Config loaded",
			Status: StatusFail,
			Detail: "configuration not loaded",
			Hint:   "run 'wasend config validate' to see the load error",
		})
		return result
	}

	if _, err := os.Stat(c.configPath); err != nil {
		result.Items = append(result.Items, CheckItem{
			Label:  "Config file",
			Status: StatusWarn,
			Detail: "not found, using defaults",
			Hint:   "create " + c.configPath + " to change listen address, secret key or template",
		})
	} else {
		result.Items = append(result.Items, CheckItem{
			Label:  "Config file",
			Status: StatusPass,
			Detail: c.configPath,
		})
	}

	if err := c.config.Validate(); err != nil {
		hint := "edit " + c.configPath
		if c.configPath == "" {
			hint = "fix the configuration"
		}
		var fieldErrs criterio.FieldErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				label := fe.Field
				if label == "" {
					label = "validation"
				}
				result.Items = append(result.Items, CheckItem{
					Label:  label,
					Status: StatusFail,
					Detail: fe.Err.Error(),
					Hint:   hint,
				})
			}
		} else {
			result.Items = append(result.Items, CheckItem{
				Label:  "validation",
				Status: StatusFail,
				Detail: err.Error(),
				Hint:   hint,
			})
		}
		return result
	}

	result.Items = append(result.Items, CheckItem{
		Label:  "Config valid",
		Status: StatusPass,
	})

	if c.config.SecretKey == "" {
		result.Items = append(result.Items, CheckItem{
			Label:  "secret_key",
			Status: StatusWarn,
			Detail: "not set, API endpoints are open",
			Hint:   "set secret_key or MESSAGE_SECRET_KEY before exposing the port",
		})
	}
	if slices.Contains(c.config.AllowedOrigins, "*") {
		result.Items = append(result.Items, CheckItem{
			Label:  "allowed_origins",
			Status: StatusWarn,
			Detail: "any origin may call the API",
			Hint:   "list the exact origins of the pages that call wasend",
		})
	}

	return result
}
