// Package cart implements the session-scoped shopping cart: a keyed
// collection of (ticket, quantity, metadata) line items with a
// bounded lifetime and a content-independent hash used as the
// idempotency key for order creation.
package cart

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"
)

// TTL bounds how long an untouched cart survives. Writes refresh it.
const TTL = 48 * time.Hour

// Item is a single cart line. Extra carries arbitrary per-line
// metadata (seat preferences, promo context) that is snapshotted
// into the order untouched.
type Item struct {
	TicketID uint64            `json:"ticket_id"`
	Quantity int               `json:"quantity"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// Store is the cart persistence contract. A cart is addressed by an
// opaque owner key (one per authenticated session/user).
//
// The hash returned by Hash identifies the cart session, not a
// snapshot of its contents: mutating items never changes it. It is
// generated at most once per cart lifetime; Clear discards it, and a
// fresh one is generated on the next Hash(..., true) call, so an
// order lookup keyed by the old hash can never match a new cart.
type Store interface {
	// UpsertItem sets the quantity for a ticket. A quantity of zero
	// or less removes the line.
	UpsertItem(ctx context.Context, owner string, ticketID uint64, quantity int, extra map[string]string) error

	// Items returns the cart's current lines keyed by ticket ID.
	Items(ctx context.Context, owner string) (map[uint64]Item, error)

	// Hash returns the cart's idempotency token. Without generate it
	// returns "" when none was ever generated; with generate it
	// returns the existing token or creates and persists a new one.
	Hash(ctx context.Context, owner string, generate bool) (string, error)

	// Clear empties the items and invalidates the hash.
	Clear(ctx context.Context, owner string) error
}

// newHash produces a 64-character random hex token. The token is
// derived from randomness, never from the cart's contents.
func newHash() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
