// Package repository implements explicit-SQL data access for the
// service. This file defines sentinel error values reused across
// repositories so that higher layers can distinguish failure
// scenarios with errors.Is without depending on driver details.
package repository

import "errors"

// ErrOrderNotFound is returned when no order matches the given ID
// or cart hash. Handlers translate it into HTTP 404; the retry
// processor treats it as a transient condition.
var ErrOrderNotFound = errors.New("order not found")

// ErrTicketNotFound is returned when a ticket referenced by a cart
// line or API call does not exist.
var ErrTicketNotFound = errors.New("ticket not found")

// ErrEventNotFound is returned when an event lookup matches no row.
var ErrEventNotFound = errors.New("event not found")

// ErrAttendeeNotFound is returned when an attendee lookup matches
// no row.
var ErrAttendeeNotFound = errors.New("attendee not found")

// ErrEmailTaken is returned on registration when the email already
// has an account. Handlers translate it into HTTP 409.
var ErrEmailTaken = errors.New("email already registered")

// ErrForbidden is returned when the caller attempts an operation on
// a resource they do not own. Handlers translate this into an HTTP
// 403 response.
var ErrForbidden = errors.New("forbidden")
