package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/eventloom/tickethub/internal/model"
)

// OrderRepo provides CRUD operations for orders, their line items
// and the per-order applied-stock ledger. All timestamp columns are
// stored in UTC.
//
// Concurrency model: the orders row is the single shared mutable
// resource of the commerce core. Status, lock token and the checkout
// flag are each updated by atomic single-row statements; mutual
// exclusion between writers comes from the lock_token column, which
// only ever moves between NULL and a writer-held token via
// conditional UPDATEs.
type OrderRepo struct {
	db *sql.DB
}

// NewOrderRepo returns a new OrderRepo bound to the given database.
func NewOrderRepo(db *sql.DB) *OrderRepo { return &OrderRepo{db: db} }

// DB exposes the underlying handle for callers that need to open
// transactions spanning multiple repositories.
func (r *OrderRepo) DB() *sql.DB { return r.db }

const orderColumns = `id, cart_hash, user_id, purchaser_name, purchaser_email, status,
       lock_token, checkout_completed, total_cents, currency, created_at, updated_at`

func (r *OrderRepo) scanOrder(row *sql.Row) (*model.Order, error) {
	var o model.Order
	var lockToken sql.NullString
	err := row.Scan(
		&o.ID, &o.CartHash, &o.UserID, &o.PurchaserName, &o.PurchaserEmail, &o.Status,
		&lockToken, &o.CheckoutCompleted, &o.TotalCents, &o.Currency, &o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if lockToken.Valid {
		t := lockToken.String
		o.LockToken = &t
	}
	return &o, nil
}

func (r *OrderRepo) loadItems(ctx context.Context, o *model.Order) error {
	const q = `SELECT id, order_id, ticket_id, event_id, quantity, unit_price_cents, unit_regular_price_cents
	           FROM order_items WHERE order_id = ? ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q, o.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var it model.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.TicketID, &it.EventID, &it.Quantity,
			&it.UnitPriceCents, &it.UnitRegularPriceCents); err != nil {
			return err
		}
		o.Items = append(o.Items, it)
	}
	return rows.Err()
}

// GetByID returns an order and its items. It returns
// ErrOrderNotFound when no order with the given ID exists.
func (r *OrderRepo) GetByID(ctx context.Context, id uint64) (*model.Order, error) {
	o, err := r.scanOrder(r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// GetByCartHash returns the order created from the cart identified
// by hash, or ErrOrderNotFound. The cart_hash column carries a
// unique index, so at most one row can match.
func (r *OrderRepo) GetByCartHash(ctx context.Context, hash string) (*model.Order, error) {
	o, err := r.scanOrder(r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE cart_hash = ?`, hash))
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// Create inserts a new order together with its line items and
// populates the generated ID on the provided record. The insert of
// the order row and its items runs in one transaction.
func (r *OrderRepo) Create(ctx context.Context, o *model.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO orders (cart_hash, user_id, purchaser_name, purchaser_email, status,
		                     checkout_completed, total_cents, currency)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		o.CartHash, o.UserID, o.PurchaserName, o.PurchaserEmail, o.Status,
		o.CheckoutCompleted, o.TotalCents, o.Currency,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	o.ID = uint64(id)

	if err := insertItemsTx(ctx, tx, o.ID, o.Items); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	for i := range o.Items {
		o.Items[i].OrderID = o.ID
	}
	return nil
}

// insertItemsTx bulk-inserts line items in a single statement.
func insertItemsTx(ctx context.Context, tx *sql.Tx, orderID uint64, items []model.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	query := `INSERT INTO order_items (order_id, ticket_id, event_id, quantity, unit_price_cents, unit_regular_price_cents) VALUES `
	args := make([]interface{}, 0, len(items)*6)
	for i, it := range items {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?, ?)"
		args = append(args, orderID, it.TicketID, it.EventID, it.Quantity, it.UnitPriceCents, it.UnitRegularPriceCents)
	}
	_, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("insert order items: %w", err)
	}
	return nil
}

// ReplaceItems swaps an order's line items for the given set and
// writes the recomputed total in the same transaction. This is how
// repeated checkout cycles against the same cart hash update
// quantities instead of creating sibling orders. The applied-stock
// ledger is deliberately left untouched so a later status re-entry
// only applies the incremental difference.
func (r *OrderRepo) ReplaceItems(ctx context.Context, orderID uint64, items []model.OrderItem, totalCents int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = ?`, orderID); err != nil {
		return fmt.Errorf("delete order items: %w", err)
	}
	if err := insertItemsTx(ctx, tx, orderID, items); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE orders SET total_cents = ?, updated_at = UTC_TIMESTAMP() WHERE id = ?`,
		totalCents, orderID); err != nil {
		return fmt.Errorf("update order total: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// UpdateStatus persists a new status value. Status legality is the
// caller's responsibility; this is a plain single-row write.
func (r *OrderRepo) UpdateStatus(ctx context.Context, orderID uint64, status string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = UTC_TIMESTAMP() WHERE id = ?`,
		status, orderID)
	return err
}

// SetCheckoutCompleted marks the purchaser-facing checkout flow as
// finished for the order.
func (r *OrderRepo) SetCheckoutCompleted(ctx context.Context, orderID uint64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE orders SET checkout_completed = 1, updated_at = UTC_TIMESTAMP() WHERE id = ?`,
		orderID)
	return err
}

// AcquireLock attempts to claim the order's lock with the given
// token. It succeeds only when no token is currently set; the
// conditional UPDATE makes acquisition atomic. Returns false without
// error when another writer holds the lock.
func (r *OrderRepo) AcquireLock(ctx context.Context, orderID uint64, token string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET lock_token = ? WHERE id = ? AND lock_token IS NULL`,
		token, orderID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ReleaseLock clears the lock only when the caller still holds it.
// Releasing with a stale token is a no-op: the lock has been rotated
// or taken over and no longer belongs to the caller.
func (r *OrderRepo) ReleaseLock(ctx context.Context, orderID uint64, token string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE orders SET lock_token = NULL WHERE id = ? AND lock_token = ?`,
		orderID, token)
	return err
}

// RotateLock overwrites the lock token unconditionally. Used to
// simulate or recover from a competing writer; a holder of the old
// token will fail its subsequent release.
func (r *OrderRepo) RotateLock(ctx context.Context, orderID uint64, token string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE orders SET lock_token = ? WHERE id = ?`, token, orderID)
	return err
}

// LockToken reads the current lock token, nil when unlocked.
func (r *OrderRepo) LockToken(ctx context.Context, orderID uint64) (*string, error) {
	var token sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT lock_token FROM orders WHERE id = ?`, orderID).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, nil
	}
	t := token.String
	return &t, nil
}

// AppliedStock returns the per-ticket quantities this order has
// already pushed into the stock counters. The ledger is what makes
// stock side effects idempotent: re-entering a status only applies
// the delta between the current item quantities and these values.
func (r *OrderRepo) AppliedStock(ctx context.Context, orderID uint64) (map[uint64]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT ticket_id, applied_qty FROM order_stock_applied WHERE order_id = ?`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	applied := make(map[uint64]int)
	for rows.Next() {
		var ticketID uint64
		var qty int
		if err := rows.Scan(&ticketID, &qty); err != nil {
			return nil, err
		}
		applied[ticketID] = qty
	}
	return applied, rows.Err()
}

// SetAppliedStock records the quantity now reflected in the stock
// counters for one ticket of this order.
func (r *OrderRepo) SetAppliedStock(ctx context.Context, orderID, ticketID uint64, qty int) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO order_stock_applied (order_id, ticket_id, applied_qty) VALUES (?, ?, ?)
		 ON DUPLICATE KEY UPDATE applied_qty = VALUES(applied_qty)`,
		orderID, ticketID, qty)
	return err
}

// ListByUser returns the user's orders newest first, without items.
func (r *OrderRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	orders := make([]model.Order, 0)
	for rows.Next() {
		var o model.Order
		var lockToken sql.NullString
		if err := rows.Scan(
			&o.ID, &o.CartHash, &o.UserID, &o.PurchaserName, &o.PurchaserEmail, &o.Status,
			&lockToken, &o.CheckoutCompleted, &o.TotalCents, &o.Currency, &o.CreatedAt, &o.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if lockToken.Valid {
			t := lockToken.String
			o.LockToken = &t
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
