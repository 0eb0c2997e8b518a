package model

import "time"

// Order is the durable record created from a cart snapshot. It is
// the only shared mutable resource in the commerce core: status
// transitions, the lock token and the checkout flag all live on the
// same row so they can be updated atomically with single-row writes.
//
// CartHash is the idempotency key for order creation. It identifies
// the cart session the order was created from, not the cart's
// contents, and carries a unique index: at most one order ever
// exists per cart hash. Re-running checkout against the same cart
// replaces the order's items instead of creating a sibling.
//
// LockToken is non-null while a status transition is in progress.
// A writer that did not set the token must not touch the row.
//
// CheckoutCompleted is deliberately distinct from Status. It marks
// that the purchaser-facing checkout flow has finished, and gates
// webhook-driven completion side effects so a gateway callback that
// races ahead of checkout cannot complete the order prematurely.
type Order struct {
	ID                uint64      // orders.id
	CartHash          string      // orders.cart_hash (unique)
	UserID            uint64      // orders.user_id
	PurchaserName     string      // orders.purchaser_name
	PurchaserEmail    string      // orders.purchaser_email
	Status            string      // orders.status
	LockToken         *string     // orders.lock_token (nullable)
	CheckoutCompleted bool        // orders.checkout_completed
	TotalCents        int64       // orders.total_cents
	Currency          string      // orders.currency
	Items             []OrderItem // order_items rows, loaded on read
	CreatedAt         time.Time   // orders.created_at
	UpdatedAt         time.Time   // orders.updated_at
}

// OrderItem is one line of an order, captured from the cart at
// creation time. Unit prices are snapshotted so later ticket price
// changes never retroactively alter an existing order.
//
// Fields:
//  ID                    – primary key identifier.
//  OrderID               – owning order.
//  TicketID              – ticket purchased.
//  EventID               – event the ticket admits to.
//  Quantity              – units purchased.
//  UnitPriceCents        – sale price per unit at purchase time.
//  UnitRegularPriceCents – regular price per unit at purchase time.
type OrderItem struct {
	ID                    uint64 // order_items.id
	OrderID               uint64 // order_items.order_id
	TicketID              uint64 // order_items.ticket_id
	EventID               uint64 // order_items.event_id
	Quantity              int    // order_items.quantity
	UnitPriceCents        int64  // order_items.unit_price_cents
	UnitRegularPriceCents int64  // order_items.unit_regular_price_cents
}
