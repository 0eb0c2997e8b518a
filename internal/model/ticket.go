package model

import "time"

// Ticket represents a row in the `tickets` table. A ticket is a
// purchasable admission type for an event (e.g. "General", "VIP")
// together with its stock counters. Prices are stored as integer
// minor units; no monetary value in this system is ever persisted
// or computed as a float.
//
// The Available/Sold pair forms the stock ledger for the ticket.
// Both counters are only ever adjusted by deltas (sold = sold + n,
// available = available - n) because multiple orders can touch the
// same ticket concurrently and absolute writes would clobber each
// other. Version increments on every stock adjustment.
//
// Fields:
//  ID                – primary key identifier.
//  EventID           – event this ticket admits to.
//  Name              – admission type name.
//  PriceCents        – current sale price in minor units.
//  RegularPriceCents – undiscounted price in minor units.
//  Currency          – ISO 4217 code of both prices.
//  Available         – units still on sale.
//  Sold              – units sold so far.
//  Version           – bumped on every stock adjustment.
//  CreatedAt         – creation timestamp.
//  UpdatedAt         – last update timestamp.
type Ticket struct {
	ID                uint64    // tickets.id
	EventID           uint64    // tickets.event_id
	Name              string    // tickets.name
	PriceCents        int64     // tickets.price_cents
	RegularPriceCents int64     // tickets.regular_price_cents
	Currency          string    // tickets.currency
	Available         int       // tickets.available
	Sold              int       // tickets.sold
	Version           uint32    // tickets.version
	CreatedAt         time.Time // tickets.created_at
	UpdatedAt         time.Time // tickets.updated_at
}
