package model

import "time"

// Attendee represents a row in the `attendees` table. One attendee
// exists per ticket unit purchased; an order line with quantity 3
// yields exactly three attendees. Attendees are created when the
// order first reaches a status that implies entitlement and are
// never duplicated when that status is re-entered.
//
// SecurityCode is an opaque random value embedded in the attendee's
// check-in QR payload so that a code cannot be forged from the
// attendee ID alone.
//
// Fields:
//  ID           – UUID primary key.
//  OrderID      – order the attendee was generated from.
//  TicketID     – ticket the attendee holds.
//  EventID      – event the attendee may enter.
//  SecurityCode – random code bound into the QR signature.
//  CheckedIn    – whether the attendee has been admitted.
//  CreatedAt    – creation timestamp.
type Attendee struct {
	ID           string    // attendees.id (uuid)
	OrderID      uint64    // attendees.order_id
	TicketID     uint64    // attendees.ticket_id
	EventID      uint64    // attendees.event_id
	SecurityCode string    // attendees.security_code
	CheckedIn    bool      // attendees.checked_in
	CreatedAt    time.Time // attendees.created_at
}
