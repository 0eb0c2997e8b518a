package order

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/eventloom/tickethub/internal/model"
	"github.com/eventloom/tickethub/internal/repository"
)

// fakeStore is an in-memory Store with the same single-writer lock
// semantics as the SQL repository.
type fakeStore struct {
	mu              sync.Mutex
	seq             uint64
	orders          map[uint64]*model.Order
	byHash          map[string]uint64
	applied         map[uint64]map[uint64]int
	failStatusWrite bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:  make(map[uint64]*model.Order),
		byHash:  make(map[string]uint64),
		applied: make(map[uint64]map[uint64]int),
	}
}

func copyOrder(o *model.Order) *model.Order {
	c := *o
	c.Items = append([]model.OrderItem(nil), o.Items...)
	if o.LockToken != nil {
		t := *o.LockToken
		c.LockToken = &t
	}
	return &c
}

func (f *fakeStore) GetByID(_ context.Context, id uint64) (*model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return copyOrder(o), nil
}

func (f *fakeStore) GetByCartHash(_ context.Context, hash string) (*model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byHash[hash]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return copyOrder(f.orders[id]), nil
}

func (f *fakeStore) Create(_ context.Context, o *model.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.byHash[o.CartHash]; exists {
		return errors.New("duplicate cart hash")
	}
	f.seq++
	o.ID = f.seq
	f.orders[o.ID] = copyOrder(o)
	f.byHash[o.CartHash] = o.ID
	return nil
}

func (f *fakeStore) ReplaceItems(_ context.Context, orderID uint64, items []model.OrderItem, totalCents int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return repository.ErrOrderNotFound
	}
	o.Items = append([]model.OrderItem(nil), items...)
	o.TotalCents = totalCents
	return nil
}

func (f *fakeStore) UpdateStatus(_ context.Context, orderID uint64, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failStatusWrite {
		return errors.New("simulated write failure")
	}
	o, ok := f.orders[orderID]
	if !ok {
		return repository.ErrOrderNotFound
	}
	o.Status = status
	return nil
}

func (f *fakeStore) SetCheckoutCompleted(_ context.Context, orderID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return repository.ErrOrderNotFound
	}
	o.CheckoutCompleted = true
	return nil
}

func (f *fakeStore) AcquireLock(_ context.Context, orderID uint64, token string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return false, repository.ErrOrderNotFound
	}
	if o.LockToken != nil {
		return false, nil
	}
	o.LockToken = &token
	return true, nil
}

func (f *fakeStore) ReleaseLock(_ context.Context, orderID uint64, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return repository.ErrOrderNotFound
	}
	if o.LockToken != nil && *o.LockToken == token {
		o.LockToken = nil
	}
	return nil
}

func (f *fakeStore) RotateLock(_ context.Context, orderID uint64, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return repository.ErrOrderNotFound
	}
	o.LockToken = &token
	return nil
}

func (f *fakeStore) LockToken(_ context.Context, orderID uint64) (*string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	if o.LockToken == nil {
		return nil, nil
	}
	t := *o.LockToken
	return &t, nil
}

func (f *fakeStore) AppliedStock(_ context.Context, orderID uint64) (map[uint64]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[uint64]int)
	for k, v := range f.applied[orderID] {
		out[k] = v
	}
	return out, nil
}

func (f *fakeStore) SetAppliedStock(_ context.Context, orderID, ticketID uint64, qty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.applied[orderID] == nil {
		f.applied[orderID] = make(map[uint64]int)
	}
	f.applied[orderID][ticketID] = qty
	return nil
}

// fakeTickets records every stock adjustment it performs. Setting
// failNextAdjust makes the next AdjustStock call return that error
// once, simulating a transient database failure.
type fakeTickets struct {
	mu             sync.Mutex
	tickets        map[uint64]*model.Ticket
	adjustments    []stockAdjustment
	failNextAdjust error
}

type stockAdjustment struct {
	ticketID uint64
	delta    int
}

func newFakeTickets(tickets ...*model.Ticket) *fakeTickets {
	f := &fakeTickets{tickets: make(map[uint64]*model.Ticket)}
	for _, t := range tickets {
		f.tickets[t.ID] = t
	}
	return f
}

func (f *fakeTickets) GetByID(_ context.Context, id uint64) (*model.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickets[id]
	if !ok {
		return nil, repository.ErrTicketNotFound
	}
	c := *t
	return &c, nil
}

func (f *fakeTickets) AdjustStock(_ context.Context, id uint64, delta int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNextAdjust != nil {
		err := f.failNextAdjust
		f.failNextAdjust = nil
		return err
	}
	t, ok := f.tickets[id]
	if !ok {
		return repository.ErrTicketNotFound
	}
	t.Sold += delta
	t.Available -= delta
	f.adjustments = append(f.adjustments, stockAdjustment{ticketID: id, delta: delta})
	return nil
}

func (f *fakeTickets) sold(id uint64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tickets[id].Sold
}

// fakeAttendees stores created attendees in memory.
type fakeAttendees struct {
	mu        sync.Mutex
	attendees []model.Attendee
}

func (f *fakeAttendees) CountByOrderAndTicket(_ context.Context, orderID, ticketID uint64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, a := range f.attendees {
		if a.OrderID == orderID && a.TicketID == ticketID {
			n++
		}
	}
	return n, nil
}

func (f *fakeAttendees) CreateBatch(_ context.Context, attendees []model.Attendee) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attendees = append(f.attendees, attendees...)
	return nil
}

func (f *fakeAttendees) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.attendees)
}

// fakeScheduler records every rescheduled task.
type fakeScheduler struct {
	mu     sync.Mutex
	tasks  []Task
	delays []time.Duration
}

func (f *fakeScheduler) Schedule(_ context.Context, t Task, delay time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, t)
	f.delays = append(f.delays, delay)
	return nil
}

func (f *fakeScheduler) scheduled() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tasks)
}

// fakeNotifier collects notifications.
type fakeNotifier struct {
	mu            sync.Mutex
	notifications []StatusNotification
}

func (f *fakeNotifier) Notify(_ context.Context, n StatusNotification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications = append(f.notifications, n)
	return nil
}
