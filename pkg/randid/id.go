// Package randid provides random ID generation utilities.
package randid

import "math/rand/v2"

const chars = "abcdefghijklmnopqrstuvwxyz0123456789"

// Generate creates a random lowercase alphanumeric ID of the specified length.
func Generate(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = chars[rand.IntN(len(chars))]
	}
	return string(b)
}

// Prefixed returns prefix + "_" + a random ID of the given length, e.g. "evt_k3x9qa".
func Prefixed(prefix string, length int) string {
	return prefix + "_" + Generate(length)
}
