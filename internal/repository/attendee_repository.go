package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/eventloom/tickethub/internal/model"
)

// AttendeeRepo provides data access to the attendees table. One
// attendee row exists per purchased ticket unit.
type AttendeeRepo struct {
	db *sql.DB
}

// NewAttendeeRepo returns a new AttendeeRepo bound to the database.
func NewAttendeeRepo(db *sql.DB) *AttendeeRepo { return &AttendeeRepo{db: db} }

// CountByOrderAndTicket returns how many attendees already exist
// for one order line. Attendee generation creates only the
// difference between the line quantity and this count, which is
// what keeps repeated status entries from duplicating attendees.
func (r *AttendeeRepo) CountByOrderAndTicket(ctx context.Context, orderID, ticketID uint64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attendees WHERE order_id = ? AND ticket_id = ?`,
		orderID, ticketID).Scan(&n)
	return n, err
}

// CreateBatch inserts multiple attendees in a single statement.
// Passing an empty slice has no effect and returns nil.
func (r *AttendeeRepo) CreateBatch(ctx context.Context, attendees []model.Attendee) error {
	if len(attendees) == 0 {
		return nil
	}
	query := `INSERT INTO attendees (id, order_id, ticket_id, event_id, security_code, checked_in) VALUES `
	args := make([]interface{}, 0, len(attendees)*6)
	for i, a := range attendees {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?, ?)"
		args = append(args, a.ID, a.OrderID, a.TicketID, a.EventID, a.SecurityCode, a.CheckedIn)
	}
	_, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("insert attendees: %w", err)
	}
	return nil
}

// GetByID returns an attendee or ErrAttendeeNotFound.
func (r *AttendeeRepo) GetByID(ctx context.Context, id string) (*model.Attendee, error) {
	var a model.Attendee
	err := r.db.QueryRowContext(ctx,
		`SELECT id, order_id, ticket_id, event_id, security_code, checked_in, created_at
		 FROM attendees WHERE id = ?`, id).
		Scan(&a.ID, &a.OrderID, &a.TicketID, &a.EventID, &a.SecurityCode, &a.CheckedIn, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAttendeeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListByOrder returns all attendees generated from an order.
func (r *AttendeeRepo) ListByOrder(ctx context.Context, orderID uint64) ([]model.Attendee, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, order_id, ticket_id, event_id, security_code, checked_in, created_at
		 FROM attendees WHERE order_id = ? ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	attendees := make([]model.Attendee, 0)
	for rows.Next() {
		var a model.Attendee
		if err := rows.Scan(&a.ID, &a.OrderID, &a.TicketID, &a.EventID,
			&a.SecurityCode, &a.CheckedIn, &a.CreatedAt); err != nil {
			return nil, err
		}
		attendees = append(attendees, a)
	}
	return attendees, rows.Err()
}

// MarkCheckedIn flips the checked_in flag exactly once. The
// conditional UPDATE makes the first scan win; it returns false when
// the attendee was already checked in (or does not exist).
func (r *AttendeeRepo) MarkCheckedIn(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE attendees SET checked_in = 1 WHERE id = ? AND checked_in = 0`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
