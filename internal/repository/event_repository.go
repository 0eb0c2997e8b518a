package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/eventloom/tickethub/internal/model"
)

// EventRepo encapsulates database operations for events.
type EventRepo struct {
	db *sql.DB
}

// NewEventRepo constructs an EventRepo given a DB handle.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

const eventColumns = `id, organizer_id, title, venue, starts_at, ends_at, created_at, updated_at`

// GetByID returns an event or ErrEventNotFound.
func (r *EventRepo) GetByID(ctx context.Context, id uint64) (*model.Event, error) {
	var e model.Event
	err := r.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ?`, id).
		Scan(&e.ID, &e.OrganizerID, &e.Title, &e.Venue, &e.StartsAt, &e.EndsAt, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// List returns all events ordered by start time ascending.
func (r *EventRepo) List(ctx context.Context) ([]model.Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events ORDER BY starts_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	events := make([]model.Event, 0)
	for rows.Next() {
		var e model.Event
		if err := rows.Scan(&e.ID, &e.OrganizerID, &e.Title, &e.Venue,
			&e.StartsAt, &e.EndsAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Create inserts an event and populates its generated ID.
func (r *EventRepo) Create(ctx context.Context, e *model.Event) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO events (organizer_id, title, venue, starts_at, ends_at) VALUES (?, ?, ?, ?, ?)`,
		e.OrganizerID, e.Title, e.Venue, e.StartsAt.UTC(), e.EndsAt.UTC())
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = uint64(id)
	return nil
}
