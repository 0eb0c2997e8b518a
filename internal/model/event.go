package model

import "time"

// Event represents a row in the `events` table. An event is the
// thing tickets are sold for: a concert, a conference, a meetup.
// Ticket definitions reference their event so that order lines can
// snapshot both identifiers at purchase time.
//
// Fields:
//  ID          – primary key identifier.
//  OrganizerID – user who owns and manages the event.
//  Title       – human readable event name.
//  Venue       – free-form venue description.
//  StartsAt    – when the event begins (UTC).
//  EndsAt      – when the event ends (UTC).
//  CreatedAt   – creation timestamp.
//  UpdatedAt   – last update timestamp.
type Event struct {
	ID          uint64    // events.id
	OrganizerID uint64    // events.organizer_id
	Title       string    // events.title
	Venue       string    // events.venue
	StartsAt    time.Time // events.starts_at
	EndsAt      time.Time // events.ends_at
	CreatedAt   time.Time // events.created_at
	UpdatedAt   time.Time // events.updated_at
}
