// Package order implements the commerce order lifecycle: idempotent
// creation from a cart snapshot, a constrained status state machine
// with an ordered side-effect pipeline, a per-order single-writer
// lock, and the bounded-retry processor that applies webhook-driven
// transitions.
package order

// Status is one of the closed set of order states. Legality of a
// transition is decided by the explicit transition table below, not
// inferred from side effects.
type Status string

const (
	// StatusCreated is the initial state of a freshly created order.
	StatusCreated Status = "created"
	// StatusPending means checkout finished and payment is awaited.
	StatusPending Status = "pending"
	// StatusCompleted means payment settled; the order is entitled
	// to stock and attendees.
	StatusCompleted Status = "completed"
	// StatusRefunded means the payment was returned. Terminal.
	StatusRefunded Status = "refunded"
	// StatusActionRequired means the gateway needs purchaser or
	// operator intervention before the order can proceed.
	StatusActionRequired Status = "action_required"
)

// transitions is the allowed-transition table. An order may also
// always re-enter its current status: duplicate webhooks and
// quantity edits legitimately re-apply a status, and every side
// effect is idempotent behind its own marker.
var transitions = map[Status][]Status{
	StatusCreated:        {StatusPending, StatusCompleted},
	StatusPending:        {StatusCompleted, StatusRefunded, StatusActionRequired},
	StatusCompleted:      {StatusRefunded, StatusActionRequired},
	StatusActionRequired: {StatusPending, StatusCompleted, StatusRefunded},
	StatusRefunded:       {},
}

// ParseStatus validates a raw status string against the closed set.
// The second return value is false for anything outside it, which
// callers treat as a torn read.
func ParseStatus(raw string) (Status, bool) {
	s := Status(raw)
	_, ok := transitions[s]
	return s, ok
}

// CanTransition reports whether the state machine permits moving
// from one status to another. Re-entering the current status is
// always permitted.
func CanTransition(from, to Status) bool {
	if _, ok := transitions[from]; !ok {
		return false
	}
	if _, ok := transitions[to]; !ok {
		return false
	}
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
