package session

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// EventType names a connection lifecycle event.
type EventType string

const (
	EventPairingCode   EventType = "pairing_code"
	EventAuthenticated EventType = "authenticated"
	EventReady         EventType = "ready"
	EventAuthFailure   EventType = "auth_failure"
	EventDisconnected  EventType = "disconnected"
	EventLoading       EventType = "loading"
)

// Event is emitted by a Connection as its lifecycle progresses. For
// EventPairingCode, Detail holds the code; for failures it holds the reason.
type Event struct {
	Type   EventType
	Detail string
	At     time.Time
}

// EventHandler receives connection events. Handlers must not block.
type EventHandler func(Event)

// ServerUser is the server part of a user identity on the network.
const ServerUser = "c.us"

// RecipientIdentity is the canonical network identity of a destination.
type RecipientIdentity struct {
	User   string `json:"user"`
	Server string `json:"server"`
}

// NewRecipient returns the user identity for a normalized address.
func NewRecipient(user string) RecipientIdentity {
	return RecipientIdentity{User: user, Server: ServerUser}
}

// ParseRecipient parses a serialized "user@server" identity.
func ParseRecipient(serialized string) (RecipientIdentity, error) {
	user, server, ok := strings.Cut(serialized, "@")
	if !ok || user == "" || server == "" {
		return RecipientIdentity{}, fmt.Errorf("malformed recipient identity %q", serialized)
	}
	return RecipientIdentity{User: user, Server: server}, nil
}

// String returns the serialized form, "user@server".
func (r RecipientIdentity) String() string {
	if r.IsZero() {
		return ""
	}
	return r.User + "@" + r.Server
}

// IsZero reports whether the identity is empty.
func (r RecipientIdentity) IsZero() bool {
	return r.User == ""
}

// Connection is a live, authenticated channel to the messaging network.
// Implementations serialize sends internally; callers may invoke
// ResolveRecipient and SendText concurrently.
type Connection interface {
	// Subscribe registers the handler for lifecycle events. It is called once,
	// before Start.
	Subscribe(h EventHandler)
	// Start launches the connection. It returns once the client is loaded;
	// readiness is reported later through events.
	Start(ctx context.Context) error
	// ResolveRecipient resolves a normalized address. ok is false when the
	// address has no registered identity.
	ResolveRecipient(ctx context.Context, address string) (id RecipientIdentity, ok bool, err error)
	// SendText submits a text message to a resolved identity.
	SendText(ctx context.Context, to RecipientIdentity, body string) error
	// Close releases the connection. The credential store is left intact.
	Close() error
}

// Factory builds unstarted connections bound to the credential store.
// Create runs while the lifecycle manager holds its lock, so it must not
// block: launching and network I/O belong in Connection.Start.
type Factory interface {
	Create(ctx context.Context) (Connection, error)
}
