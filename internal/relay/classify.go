package relay

import (
	"regexp"
	"strings"

	"github.com/hay-kot/wasend/internal/core/session"
)

// Substrings the web client puts in send failures that carry no structured
// code. Matching on them is confined to this file.
var (
	// lidMarker is the network's linked-identity marker. It only counts as a
	// whole upper-case word, so INVALID_STATE or SOLID do not match.
	lidMarker = regexp.MustCompile(`\bLID\b`)

	invalidAddressMarkers = []string{"INVALID_NUMBER_FORMAT"}
	invalidAddressFold    = []string{"invalid wid"}
	notRegisteredFold     = []string{"not registered", "number_not_registered"}
)

// Classify maps a send failure onto the error taxonomy. Typed errors keep
// their kind; otherwise known substrings are recognized and everything else
// is KindSendFailed.
func Classify(err error) session.Kind {
	if err == nil {
		return session.KindUnknown
	}

	if kind := session.KindOf(err); kind != session.KindUnknown {
		return kind
	}

	msg := err.Error()
	lower := strings.ToLower(msg)

	switch {
	case lidMarker.MatchString(msg), containsAny(msg, invalidAddressMarkers), containsAny(lower, invalidAddressFold):
		return session.KindInvalidAddressFormat
	case containsAny(lower, notRegisteredFold):
		return session.KindRecipientNotRegistered
	default:
		return session.KindSendFailed
	}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
