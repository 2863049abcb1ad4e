// Package doctor diagnoses whether wasend can serve. The configuration, the
// browser runtime and the credential store are each checked and reported as
// items with a pass, warn or fail status.
package doctor

import (
	"context"
	"time"
)

// checkTimeout bounds a single check.
const checkTimeout = 30 * time.Second

// Status is the outcome of one item. Statuses are ordered by severity.
type Status int

const (
	StatusPass Status = iota
	StatusWarn
	StatusFail
)

func (s Status) String() string {
	switch s {
	case StatusPass:
		return "pass"
	case StatusWarn:
		return "warn"
	case StatusFail:
		return "fail"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CheckItem is a single finding. Hint tells the operator what to change when
// the item does not pass.
type CheckItem struct {
	Label  string `json:"label"`
	Status Status `json:"status"`
	Detail string `json:"detail,omitempty"`
	Hint   string `json:"hint,omitempty"`
}

// Result groups the items produced by one check.
type Result struct {
	Name  string      `json:"name"`
	Items []CheckItem `json:"items"`
}

// Status returns the most severe status among the items.
func (r Result) Status() Status {
	worst := StatusPass
	for _, item := range r.Items {
		worst = max(worst, item.Status)
	}
	return worst
}

// Check is one area of diagnosis.
type Check interface {
	Name() string
	Run(ctx context.Context) Result
}

// Report is the outcome of a doctor run. Warnings do not make it unhealthy:
// serve starts with warnings but not with failures.
type Report struct {
	Healthy bool     `json:"healthy"`
	Passed  int      `json:"passed"`
	Warned  int      `json:"warned"`
	Failed  int      `json:"failed"`
	Checks  []Result `json:"checks"`
}

// Run executes the checks in order, each under checkTimeout, and tallies
// their items.
func Run(ctx context.Context, checks ...Check) Report {
	rep := Report{Checks: make([]Result, 0, len(checks))}

	for _, check := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		res := check.Run(checkCtx)
		cancel()

		for _, item := range res.Items {
			switch item.Status {
			case StatusPass:
				rep.Passed++
			case StatusWarn:
				rep.Warned++
			case StatusFail:
				rep.Failed++
			}
		}
		rep.Checks = append(rep.Checks, res)
	}

	rep.Healthy = rep.Failed == 0
	return rep
}
