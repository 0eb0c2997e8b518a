package order

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/eventloom/tickethub/internal/cart"
	"github.com/eventloom/tickethub/internal/model"
	"github.com/eventloom/tickethub/internal/money"
	"github.com/eventloom/tickethub/internal/repository"
)

// Validation errors surface synchronously to the initiating caller
// and are never retried.
var (
	// ErrEmptyCart is returned when checkout runs against a cart
	// with no items.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrMissingPurchaser is returned when the purchaser's name or
	// email is absent.
	ErrMissingPurchaser = errors.New("purchaser name and email are required")
	// ErrUnknownTicket is returned when a cart line references a
	// ticket that does not exist.
	ErrUnknownTicket = errors.New("unknown ticket in cart")
	// ErrOrderLocked is returned by LockOrder when another writer
	// holds the order's lock.
	ErrOrderLocked = errors.New("order is locked by another transition")
)

// Store is the order persistence contract the service depends on.
// *repository.OrderRepo satisfies it; tests use an in-memory fake.
// Every method is an atomic operation against durable storage.
type Store interface {
	GetByID(ctx context.Context, id uint64) (*model.Order, error)
	GetByCartHash(ctx context.Context, hash string) (*model.Order, error)
	Create(ctx context.Context, o *model.Order) error
	ReplaceItems(ctx context.Context, orderID uint64, items []model.OrderItem, totalCents int64) error
	UpdateStatus(ctx context.Context, orderID uint64, status string) error
	SetCheckoutCompleted(ctx context.Context, orderID uint64) error
	AcquireLock(ctx context.Context, orderID uint64, token string) (bool, error)
	ReleaseLock(ctx context.Context, orderID uint64, token string) error
	RotateLock(ctx context.Context, orderID uint64, token string) error
	LockToken(ctx context.Context, orderID uint64) (*string, error)
	AppliedStock(ctx context.Context, orderID uint64) (map[uint64]int, error)
	SetAppliedStock(ctx context.Context, orderID, ticketID uint64, qty int) error
}

// TicketStore is the slice of ticket persistence the service needs:
// price lookups at snapshot time and relative stock adjustment.
type TicketStore interface {
	GetByID(ctx context.Context, id uint64) (*model.Ticket, error)
	AdjustStock(ctx context.Context, id uint64, delta int) error
}

// AttendeeStore covers attendee generation.
type AttendeeStore interface {
	CountByOrderAndTicket(ctx context.Context, orderID, ticketID uint64) (int, error)
	CreateBatch(ctx context.Context, attendees []model.Attendee) error
}

// StatusNotification is handed to the Notifier after a successful
// transition so external listeners (email, analytics) can react.
type StatusNotification struct {
	OrderID        uint64    `json:"order_id"`
	Status         Status    `json:"status"`
	PreviousStatus Status    `json:"previous_status"`
	TotalCents     int64     `json:"total_cents"`
	Currency       string    `json:"currency"`
	PurchaserEmail string    `json:"purchaser_email"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Notifier delivers lifecycle notifications. Delivery is best
// effort: a failed notification never fails the transition.
type Notifier interface {
	Notify(ctx context.Context, n StatusNotification) error
}

// Purchaser carries the checkout form fields captured onto the
// order at creation time.
type Purchaser struct {
	UserID uint64
	Name   string
	Email  string
}

// Service owns the order lifecycle. It is safe for concurrent use;
// all shared state lives behind the Store.
type Service struct {
	Orders    Store
	Tickets   TicketStore
	Attendees AttendeeStore
	Carts     cart.Store
	Currency  money.Currency
	Effects   []Effect
	Notifier  Notifier
}

// NewService wires a Service with the default side-effect pipeline:
// stock adjustment, attendee generation and cart clearing, in that
// order, followed by external notification once the transition has
// committed. notifier may be nil.
func NewService(orders Store, tickets TicketStore, attendees AttendeeStore, carts cart.Store, cur money.Currency, notifier Notifier) *Service {
	s := &Service{
		Orders:    orders,
		Tickets:   tickets,
		Attendees: attendees,
		Carts:     carts,
		Currency:  cur,
		Notifier:  notifier,
	}
	s.Effects = []Effect{
		&StockEffect{Orders: orders, Tickets: tickets},
		&AttendeeEffect{Attendees: attendees},
		&CartClearEffect{Carts: carts},
	}
	return s
}

// CartOwnerKey derives the cart-store owner key for a user. Handlers
// and the cart-clear effect must agree on this convention.
func CartOwnerKey(userID uint64) string {
	return fmt.Sprintf("user:%d", userID)
}

// CreateOrUpdateFromCart turns the owner's cart into a durable
// order. The cart's hash is the idempotency key: when an order for
// it already exists, its items are replaced with the cart's current
// lines and the total recomputed, so repeated checkout cycles update
// quantities instead of creating siblings. The cart itself is left
// untouched; clearing happens as a side effect of later completion.
//
// Unit prices are snapshotted from the ticket rows at this moment
// and never re-derived.
func (s *Service) CreateOrUpdateFromCart(ctx context.Context, owner string, p Purchaser) (*model.Order, error) {
	if strings.TrimSpace(p.Name) == "" || strings.TrimSpace(p.Email) == "" {
		return nil, ErrMissingPurchaser
	}
	lines, err := s.Carts.Items(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("read cart: %w", err)
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}
	hash, err := s.Carts.Hash(ctx, owner, true)
	if err != nil {
		return nil, fmt.Errorf("resolve cart hash: %w", err)
	}

	items := make([]model.OrderItem, 0, len(lines))
	var totalCents int64
	for _, line := range lines {
		t, err := s.Tickets.GetByID(ctx, line.TicketID)
		if errors.Is(err, repository.ErrTicketNotFound) {
			return nil, fmt.Errorf("%w: ticket %d", ErrUnknownTicket, line.TicketID)
		}
		if err != nil {
			return nil, fmt.Errorf("load ticket %d: %w", line.TicketID, err)
		}
		items = append(items, model.OrderItem{
			TicketID:              t.ID,
			EventID:               t.EventID,
			Quantity:              line.Quantity,
			UnitPriceCents:        t.PriceCents,
			UnitRegularPriceCents: t.RegularPriceCents,
		})
		totalCents += t.PriceCents * int64(line.Quantity)
	}

	existing, err := s.Orders.GetByCartHash(ctx, hash)
	if errors.Is(err, repository.ErrOrderNotFound) {
		o := &model.Order{
			CartHash:       hash,
			UserID:         p.UserID,
			PurchaserName:  p.Name,
			PurchaserEmail: p.Email,
			Status:         string(StatusCreated),
			TotalCents:     totalCents,
			Currency:       s.Currency.Code,
			Items:          items,
		}
		if err := s.Orders.Create(ctx, o); err != nil {
			return nil, fmt.Errorf("create order: %w", err)
		}
		return o, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup order by cart hash: %w", err)
	}

	if err := s.Orders.ReplaceItems(ctx, existing.ID, items, totalCents); err != nil {
		return nil, fmt.Errorf("replace order items: %w", err)
	}
	return s.Orders.GetByID(ctx, existing.ID)
}

// LockOrder claims the order's single-writer lock and returns the
// holder token, or ErrOrderLocked when another transition is in
// progress. There is no internal retry loop; callers that can wait
// reschedule themselves instead.
func (s *Service) LockOrder(ctx context.Context, orderID uint64) (string, error) {
	token := uuid.NewString()
	ok, err := s.Orders.AcquireLock(ctx, orderID, token)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrOrderLocked
	}
	return token, nil
}

// UnlockOrder releases the lock held under token. Releasing with a
// token that no longer matches is a silent no-op.
func (s *Service) UnlockOrder(ctx context.Context, orderID uint64, token string) error {
	return s.Orders.ReleaseLock(ctx, orderID, token)
}

// IsOrderLocked reports whether any writer currently holds the
// order's lock.
func (s *Service) IsOrderLocked(ctx context.Context, orderID uint64) (bool, error) {
	token, err := s.Orders.LockToken(ctx, orderID)
	if err != nil {
		return false, err
	}
	return token != nil, nil
}

// GenerateLockID rotates the order's lock token without releasing
// the lock, invalidating the previous holder's token. Used to
// simulate or fence off a competing writer.
func (s *Service) GenerateLockID(ctx context.Context, orderID uint64) (string, error) {
	token := uuid.NewString()
	if err := s.Orders.RotateLock(ctx, orderID, token); err != nil {
		return "", err
	}
	return token, nil
}

// MarkCheckoutCompleted records that the purchaser-facing checkout
// flow has finished for the order.
func (s *Service) MarkCheckoutCompleted(ctx context.Context, orderID uint64) error {
	return s.Orders.SetCheckoutCompleted(ctx, orderID)
}

// ModifyStatus drives the order to target. It returns false, never
// an error, on any condition that should make the caller back off:
// the order is locked by another writer, its persisted status cannot
// be parsed, the transition is illegal, or a persistence write
// fails.
//
// The side-effect pipeline runs BEFORE the status write commits.
// A failure anywhere, in an effect or in the status write itself,
// leaves the persisted status untouched, so a retried task does not
// mistake the order for already transitioned; the retry re-drives
// the whole transition and every effect is idempotent behind its own
// marker, applying only whatever is still missing. The external
// notification alone fires after the commit, so listeners never hear
// about a transition that did not happen.
//
// The lock is released on every exit path, success or failure.
func (s *Service) ModifyStatus(ctx context.Context, orderID uint64, target Status) bool {
	token := uuid.NewString()
	ok, err := s.Orders.AcquireLock(ctx, orderID, token)
	if err != nil || !ok {
		return false
	}
	defer func() {
		if err := s.Orders.ReleaseLock(ctx, orderID, token); err != nil {
			log.Printf("order: release lock for order %d: %v", orderID, err)
		}
	}()

	o, err := s.Orders.GetByID(ctx, orderID)
	if err != nil {
		return false
	}
	current, valid := ParseStatus(o.Status)
	if !valid {
		// Torn or corrupted read; refuse to act on it.
		return false
	}
	if !CanTransition(current, target) {
		return false
	}

	o.Status = string(target)
	for _, e := range s.Effects {
		if !e.AppliesTo(target) {
			continue
		}
		if err := e.Apply(ctx, o, current); err != nil {
			log.Printf("order: effect %s for order %d failed: %v", e.Name(), orderID, err)
			return false
		}
	}

	if err := s.Orders.UpdateStatus(ctx, orderID, string(target)); err != nil {
		log.Printf("order: status write for order %d failed: %v", orderID, err)
		return false
	}

	s.notify(ctx, o, current)
	return true
}

// notify publishes the lifecycle notification for a committed
// transition. Delivery is best effort: a failed publish is logged
// and never fails the transition.
func (s *Service) notify(ctx context.Context, o *model.Order, previous Status) {
	if s.Notifier == nil {
		return
	}
	n := StatusNotification{
		OrderID:        o.ID,
		Status:         Status(o.Status),
		PreviousStatus: previous,
		TotalCents:     o.TotalCents,
		Currency:       o.Currency,
		PurchaserEmail: o.PurchaserEmail,
		OccurredAt:     time.Now().UTC(),
	}
	if err := s.Notifier.Notify(ctx, n); err != nil {
		log.Printf("order: notify for order %d: %v", o.ID, err)
	}
}
