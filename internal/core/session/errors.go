package session

import (
	"errors"
	"strings"
)

// Kind classifies a session or dispatch failure. The set is closed; callers
// switch on it to pick user-facing messages and HTTP statuses.
type Kind int

const (
	KindUnknown Kind = iota
	KindRuntimeNotFound
	KindNotReady
	KindRecipientNotRegistered
	KindInvalidAddressFormat
	KindRecipientResolutionFailed
	KindSendFailed
	KindAuthFailure
)

var kindNames = map[Kind]string{
	KindUnknown:                   "unknown",
	KindRuntimeNotFound:           "runtime_not_found",
	KindNotReady:                  "not_ready",
	KindRecipientNotRegistered:    "recipient_not_registered",
	KindInvalidAddressFormat:      "invalid_address_format",
	KindRecipientResolutionFailed: "recipient_resolution_failed",
	KindSendFailed:                "send_failed",
	KindAuthFailure:               "auth_failure",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindUnknown]
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name; unknown names decode to KindUnknown.
func (k *Kind) UnmarshalText(b []byte) error {
	name := strings.TrimSpace(string(b))
	for kind, n := range kindNames {
		if n == name {
			*k = kind
			return nil
		}
	}
	*k = KindUnknown
	return nil
}

// Message is the human-readable explanation shown to API callers.
func (k Kind) Message() string {
	switch k {
	case KindRuntimeNotFound:
		return "Chromium/Chrome executable not found. Install Chromium or set the browser executable path."
	case KindNotReady:
		return "WhatsApp client is not ready. Please wait for the pairing code to be scanned."
	case KindRecipientNotRegistered:
		return "The phone number is not registered on WhatsApp. Please verify it includes the country code (e.g., +5511999999999)."
	case KindInvalidAddressFormat:
		return "Invalid phone number format. Please include the country code (e.g., +5511999999999)."
	case KindRecipientResolutionFailed:
		return "Could not verify WhatsApp number. Please ensure the number is correct and includes the country code."
	case KindSendFailed:
		return "Failed to send WhatsApp message."
	case KindAuthFailure:
		return "WhatsApp authentication failed. A new pairing is required."
	default:
		return "An unexpected error occurred."
	}
}

// Error is a failure carrying a Kind. Detail is safe to show to callers; Err
// holds the underlying cause for logs.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

// Sentinel values for errors.Is comparisons by kind.
var (
	ErrRuntimeNotFound           = &Error{Kind: KindRuntimeNotFound}
	ErrNotReady                  = &Error{Kind: KindNotReady}
	ErrRecipientNotRegistered    = &Error{Kind: KindRecipientNotRegistered}
	ErrInvalidAddressFormat      = &Error{Kind: KindInvalidAddressFormat}
	ErrRecipientResolutionFailed = &Error{Kind: KindRecipientResolutionFailed}
	ErrSendFailed                = &Error{Kind: KindSendFailed}
	ErrAuthFailure               = &Error{Kind: KindAuthFailure}
)

// NewError builds an Error of the given kind.
func NewError(kind Kind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same Kind, so errors.Is(err, ErrNotReady)
// works regardless of detail.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the Kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// DispatchResult is the outcome of one send attempt.
type DispatchResult struct {
	Success bool   `json:"success"`
	Kind    Kind   `json:"kind,omitempty"`
	Detail  string `json:"detail,omitempty"`
	// Cause is the underlying failure, kept for logs and debug output.
	Cause error `json:"-"`
}

// Delivered is the result of a successful send.
func Delivered() DispatchResult {
	return DispatchResult{Success: true}
}

// Failed builds a failed result. An empty detail falls back to the kind's message.
func Failed(kind Kind, detail string) DispatchResult {
	if detail == "" {
		detail = kind.Message()
	}
	return DispatchResult{Kind: kind, Detail: detail}
}

// WithCause returns a copy of r carrying err as its cause.
func (r DispatchResult) WithCause(err error) DispatchResult {
	r.Cause = err
	return r
}

// Err returns nil for a successful result and an *Error otherwise.
func (r DispatchResult) Err() error {
	if r.Success {
		return nil
	}
	return NewError(r.Kind, r.Detail, r.Cause)
}
