package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/eventloom/tickethub/internal/model"
)

// TicketRepo encapsulates database operations for tickets,
// including the per-ticket stock counters.
type TicketRepo struct {
	db *sql.DB
}

// NewTicketRepo constructs a TicketRepo given a DB handle.
func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db} }

const ticketColumns = `id, event_id, name, price_cents, regular_price_cents, currency,
       available, sold, version, created_at, updated_at`

func scanTicket(row *sql.Row) (*model.Ticket, error) {
	var t model.Ticket
	err := row.Scan(&t.ID, &t.EventID, &t.Name, &t.PriceCents, &t.RegularPriceCents,
		&t.Currency, &t.Available, &t.Sold, &t.Version, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetByID returns a ticket or ErrTicketNotFound.
func (r *TicketRepo) GetByID(ctx context.Context, id uint64) (*model.Ticket, error) {
	return scanTicket(r.db.QueryRowContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, id))
}

// ListByEvent returns all tickets of an event ordered by ID.
func (r *TicketRepo) ListByEvent(ctx context.Context, eventID uint64) ([]model.Ticket, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE event_id = ? ORDER BY id`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tickets := make([]model.Ticket, 0)
	for rows.Next() {
		var t model.Ticket
		if err := rows.Scan(&t.ID, &t.EventID, &t.Name, &t.PriceCents, &t.RegularPriceCents,
			&t.Currency, &t.Available, &t.Sold, &t.Version, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

// Create inserts a ticket definition and populates its ID.
func (r *TicketRepo) Create(ctx context.Context, t *model.Ticket) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO tickets (event_id, name, price_cents, regular_price_cents, currency, available, sold, version)
		 VALUES (?, ?, ?, ?, ?, ?, 0, 0)`,
		t.EventID, t.Name, t.PriceCents, t.RegularPriceCents, t.Currency, t.Available)
	if err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint64(id)
	return nil
}

// AdjustStock moves delta units from available to sold (or back for
// a negative delta). Counters are adjusted relatively, never set to
// an absolute value, because several orders can touch the same
// ticket's stock concurrently. The version column increments with
// every adjustment.
func (r *TicketRepo) AdjustStock(ctx context.Context, id uint64, delta int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE tickets
		 SET sold = sold + ?, available = available - ?, version = version + 1,
		     updated_at = UTC_TIMESTAMP()
		 WHERE id = ?`,
		delta, delta, id)
	if err != nil {
		return fmt.Errorf("adjust stock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTicketNotFound
	}
	return nil
}

// TicketRefKind discriminates the two shapes an order line can
// resolve to when rendered: a live ticket row or a placeholder for
// a ticket that has since been deleted.
type TicketRefKind string

const (
	// RefTicket marks a reference backed by a live ticket row.
	RefTicket TicketRefKind = "ticket"
	// RefPlaceholder marks a reference whose ticket row is gone;
	// only the snapshotted identifiers from the order line remain.
	RefPlaceholder TicketRefKind = "placeholder"
)

// TicketRef is the tagged variant returned by ResolveRef. Ticket is
// non-nil exactly when Kind is RefTicket. The discriminant is
// resolved once at this boundary so callers never duck-type.
type TicketRef struct {
	Kind     TicketRefKind
	TicketID uint64
	Ticket   *model.Ticket
}

// ResolveRef resolves a ticket ID into a TicketRef. A missing row is
// not an error here: order lines must stay renderable after their
// ticket definition is deleted.
func (r *TicketRepo) ResolveRef(ctx context.Context, id uint64) (TicketRef, error) {
	t, err := r.GetByID(ctx, id)
	if errors.Is(err, ErrTicketNotFound) {
		return TicketRef{Kind: RefPlaceholder, TicketID: id}, nil
	}
	if err != nil {
		return TicketRef{}, err
	}
	return TicketRef{Kind: RefTicket, TicketID: id, Ticket: t}, nil
}
