package doctor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hay-kot/wasend/internal/core/session"
	"github.com/hay-kot/wasend/internal/integration/whatsweb"
)

// StoreCheck inspects the credential store and the lifecycle journal.
type StoreCheck struct {
	storePath string
	journal   session.Journal
}

// NewStoreCheck creates a credential store check.
func NewStoreCheck(storePath string, journal session.Journal) *StoreCheck {
	return &StoreCheck{storePath: storePath, journal: journal}
}

func (c *StoreCheck) Name() string {
	return "Credential Store"
}

func (c *StoreCheck) Run(ctx context.Context) Result {
	result := Result{Name: c.Name()}

	info, err := os.Stat(c.storePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		result.Items = append(result.Items, CheckItem{
			Label:  "Directory",
			Status: StatusWarn,
			Detail: "not created yet: " + c.storePath,
			Hint:   "it is created on the first serve",
		})
	case err != nil:
		result.Items = append(result.Items, CheckItem{
			Label:  "Directory",
			Status: StatusFail,
			Detail: err.Error(),
			Hint:   "check the permissions of --data-dir",
		})
	case !info.IsDir():
		result.Items = append(result.Items, CheckItem{
			Label:  "Directory",
			Status: StatusFail,
			Detail: c.storePath + " is not a directory",
			Hint:   "remove the file or point --data-dir elsewhere",
		})
	default:
		result.Items = append(result.Items, CheckItem{
			Label:  "Directory",
			Status: StatusPass,
			Detail: c.storePath,
		})
	}

	if whatsweb.IsPaired(c.storePath) {
		result.Items = append(result.Items, CheckItem{
			Label:  "Paired",
			Status: StatusPass,
			Detail: "linked device credentials present",
		})
	} else {
		result.Items = append(result.Items, CheckItem{
			Label:  "Paired",
			Status: StatusWarn,
			Detail: "no linked device, a pairing code will be shown on start",
			Hint:   "run 'wasend serve' and scan the QR code from Settings > Linked devices",
		})
	}

	if c.journal == nil {
		return result
	}

	entries, err := c.journal.List(ctx)
	if err != nil {
		result.Items = append(result.Items, CheckItem{
			Label:  "Journal",
			Status: StatusFail,
			Detail: err.Error(),
			Hint:   "run 'wasend events --clear' to reset it",
		})
		return result
	}
	result.Items = append(result.Items, CheckItem{
		Label:  "Journal",
		Status: StatusPass,
		Detail: fmt.Sprintf("%d events recorded", len(entries)),
	})

	last, err := c.journal.Last(ctx, session.EventReady)
	switch {
	case errors.Is(err, session.ErrNotFound):
		result.Items = append(result.Items, CheckItem{
			Label:  "Last ready",
			Status: StatusWarn,
			Detail: "never",
		})
	case err != nil:
		result.Items = append(result.Items, CheckItem{
			Label:  "Last ready",
			Status: StatusFail,
			Detail: err.Error(),
		})
	default:
		result.Items = append(result.Items, CheckItem{
			Label:  "Last ready",
			Status: StatusPass,
			Detail: last.Timestamp.Local().Format(time.RFC1123),
		})
	}

	return result
}
