package order

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/eventloom/tickethub/internal/cart"
	"github.com/eventloom/tickethub/internal/model"
)

// Effect is one step of the status side-effect pipeline. The state
// machine invokes the effects that apply to the entered status, in
// registration order, before the status write commits: an effect
// failure aborts the transition with the old status still persisted,
// and the eventual retry re-drives the pipeline from the top. Each
// effect must therefore be idempotent behind its own "already
// applied" marker; the status value itself is not a reliable marker
// because the same status can legitimately be entered more than once
// and because it is written only after the pipeline finishes.
type Effect interface {
	Name() string
	AppliesTo(s Status) bool
	// Apply runs the effect for an order whose Status field already
	// reflects the newly entered status. previous is the status the
	// order held before the transition.
	Apply(ctx context.Context, o *model.Order, previous Status) error
}

// StockEffect adjusts per-ticket sold/available counters. Its
// idempotency marker is the applied-stock ledger: for every ticket
// it applies only the delta between the order's current quantity
// and the quantity recorded the last time it ran, so re-entering a
// status or editing quantities never double-counts.
//
// On completion the target quantity is the line quantity; on refund
// it is zero, which returns previously counted units to stock.
type StockEffect struct {
	Orders  Store
	Tickets TicketStore
}

func (e *StockEffect) Name() string { return "stock" }

func (e *StockEffect) AppliesTo(s Status) bool {
	return s == StatusCompleted || s == StatusRefunded
}

func (e *StockEffect) Apply(ctx context.Context, o *model.Order, _ Status) error {
	applied, err := e.Orders.AppliedStock(ctx, o.ID)
	if err != nil {
		return fmt.Errorf("read applied stock: %w", err)
	}

	// Target quantities for every ticket this order has ever
	// counted: current lines, plus previously applied tickets no
	// longer on the order (their target drops to zero).
	target := make(map[uint64]int, len(o.Items))
	if Status(o.Status) != StatusRefunded {
		for _, it := range o.Items {
			target[it.TicketID] += it.Quantity
		}
	}
	for ticketID := range applied {
		if _, ok := target[ticketID]; !ok {
			target[ticketID] = 0
		}
	}

	for ticketID, want := range target {
		delta := want - applied[ticketID]
		if delta == 0 {
			continue
		}
		if err := e.Tickets.AdjustStock(ctx, ticketID, delta); err != nil {
			return fmt.Errorf("adjust stock for ticket %d: %w", ticketID, err)
		}
		// Record the new level only after the counter moved; a crash
		// in between re-applies the same delta on the next retry
		// instead of losing it.
		if err := e.Orders.SetAppliedStock(ctx, o.ID, ticketID, want); err != nil {
			return fmt.Errorf("record applied stock for ticket %d: %w", ticketID, err)
		}
	}
	return nil
}

// AttendeeEffect generates one attendee per purchased ticket unit.
// Its marker is the count of already existing attendees per order
// line: only the shortfall is created, so re-entry duplicates
// nothing and a quantity increase tops the attendees up.
type AttendeeEffect struct {
	Attendees AttendeeStore
}

func (e *AttendeeEffect) Name() string { return "attendees" }

func (e *AttendeeEffect) AppliesTo(s Status) bool { return s == StatusCompleted }

func (e *AttendeeEffect) Apply(ctx context.Context, o *model.Order, _ Status) error {
	var batch []model.Attendee
	for _, it := range o.Items {
		existing, err := e.Attendees.CountByOrderAndTicket(ctx, o.ID, it.TicketID)
		if err != nil {
			return fmt.Errorf("count attendees for ticket %d: %w", it.TicketID, err)
		}
		for n := existing; n < it.Quantity; n++ {
			batch = append(batch, model.Attendee{
				ID:           uuid.NewString(),
				OrderID:      o.ID,
				TicketID:     it.TicketID,
				EventID:      it.EventID,
				SecurityCode: uuid.NewString(),
			})
		}
	}
	if len(batch) == 0 {
		return nil
	}
	return e.Attendees.CreateBatch(ctx, batch)
}

// CartClearEffect empties the originating cart once the order
// completes. It only clears when the cart's current hash still
// matches the order's hash: a cart that was already cleared and
// regenerated belongs to a new purchase and must not be touched.
type CartClearEffect struct {
	Carts cart.Store
}

func (e *CartClearEffect) Name() string { return "cart-clear" }

func (e *CartClearEffect) AppliesTo(s Status) bool { return s == StatusCompleted }

func (e *CartClearEffect) Apply(ctx context.Context, o *model.Order, _ Status) error {
	owner := CartOwnerKey(o.UserID)
	hash, err := e.Carts.Hash(ctx, owner, false)
	if err != nil {
		return fmt.Errorf("read cart hash: %w", err)
	}
	if hash == "" || hash != o.CartHash {
		return nil
	}
	return e.Carts.Clear(ctx, owner)
}
