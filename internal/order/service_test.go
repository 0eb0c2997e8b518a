package order

import (
	"context"
	"errors"
	"testing"

	"github.com/eventloom/tickethub/internal/cart"
	"github.com/eventloom/tickethub/internal/model"
	"github.com/eventloom/tickethub/internal/money"
)

func testService(tickets *fakeTickets) (*Service, *fakeStore, *fakeAttendees, *cart.MemoryStore, *fakeNotifier) {
	store := newFakeStore()
	attendees := &fakeAttendees{}
	carts := cart.NewMemoryStore()
	notifier := &fakeNotifier{}
	svc := NewService(store, tickets, attendees, carts, money.Default(), notifier)
	return svc, store, attendees, carts, notifier
}

func ticket(id, eventID uint64, priceCents int64, available int) *model.Ticket {
	return &model.Ticket{
		ID:                id,
		EventID:           eventID,
		Name:              "General",
		PriceCents:        priceCents,
		RegularPriceCents: priceCents,
		Currency:          "USD",
		Available:         available,
	}
}

func TestCreateOrUpdateFromCartIdempotent(t *testing.T) {
	ctx := context.Background()
	tickets := newFakeTickets(ticket(1, 10, 1010, 100), ticket(2, 10, 2030, 100))
	svc, store, _, carts, _ := testService(tickets)
	owner := CartOwnerKey(42)
	p := Purchaser{UserID: 42, Name: "Ada", Email: "ada@example.com"}

	// Item set A.
	_ = carts.UpsertItem(ctx, owner, 1, 1, nil)
	o1, err := svc.CreateOrUpdateFromCart(ctx, owner, p)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if o1.Status != string(StatusCreated) {
		t.Fatalf("new order status = %q", o1.Status)
	}

	// Item set B against the same cart hash.
	_ = carts.UpsertItem(ctx, owner, 1, 3, nil)
	_ = carts.UpsertItem(ctx, owner, 2, 1, nil)
	o2, err := svc.CreateOrUpdateFromCart(ctx, owner, p)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if o2.ID != o1.ID {
		t.Fatalf("sibling order created: %d vs %d", o1.ID, o2.ID)
	}

	// Item set C.
	_ = carts.UpsertItem(ctx, owner, 1, 0, nil)
	_ = carts.UpsertItem(ctx, owner, 2, 2, nil)
	o3, err := svc.CreateOrUpdateFromCart(ctx, owner, p)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if o3.ID != o1.ID {
		t.Fatalf("sibling order created: %d vs %d", o1.ID, o3.ID)
	}
	if len(store.orders) != 1 {
		t.Fatalf("expected exactly one order, have %d", len(store.orders))
	}
	// Final state reflects C only: {ticket 2 x2 @ $20.30} = $40.60.
	if len(o3.Items) != 1 || o3.Items[0].TicketID != 2 || o3.Items[0].Quantity != 2 {
		t.Fatalf("items not replaced: %+v", o3.Items)
	}
	if o3.TotalCents != 4060 {
		t.Fatalf("total = %d, want 4060", o3.TotalCents)
	}
}

func TestCreateFromCartSnapshotsPrices(t *testing.T) {
	ctx := context.Background()
	tickets := newFakeTickets(ticket(1, 10, 1010, 100))
	svc, _, _, carts, _ := testService(tickets)
	owner := CartOwnerKey(7)

	_ = carts.UpsertItem(ctx, owner, 1, 3, nil)
	o, err := svc.CreateOrUpdateFromCart(ctx, owner, Purchaser{UserID: 7, Name: "Bob", Email: "b@example.com"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if o.Items[0].UnitPriceCents != 1010 {
		t.Fatalf("unit price not snapshotted: %d", o.Items[0].UnitPriceCents)
	}
	if o.TotalCents != 3030 {
		t.Fatalf("total = %d, want 3030", o.TotalCents)
	}

	// A later price change must not alter the existing order.
	tickets.tickets[1].PriceCents = 9999
	got, _ := svc.Orders.GetByID(ctx, o.ID)
	if got.Items[0].UnitPriceCents != 1010 {
		t.Fatalf("price change leaked into order: %d", got.Items[0].UnitPriceCents)
	}
}

func TestCreateFromCartValidation(t *testing.T) {
	ctx := context.Background()
	tickets := newFakeTickets(ticket(1, 10, 1010, 100))
	svc, _, _, carts, _ := testService(tickets)
	owner := CartOwnerKey(7)
	p := Purchaser{UserID: 7, Name: "Bob", Email: "b@example.com"}

	if _, err := svc.CreateOrUpdateFromCart(ctx, owner, p); !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("empty cart: got %v", err)
	}

	_ = carts.UpsertItem(ctx, owner, 1, 1, nil)
	if _, err := svc.CreateOrUpdateFromCart(ctx, owner, Purchaser{UserID: 7}); !errors.Is(err, ErrMissingPurchaser) {
		t.Fatalf("missing purchaser: got %v", err)
	}

	_ = carts.UpsertItem(ctx, owner, 99, 1, nil)
	if _, err := svc.CreateOrUpdateFromCart(ctx, owner, p); !errors.Is(err, ErrUnknownTicket) {
		t.Fatalf("unknown ticket: got %v", err)
	}
}

// completedOrder creates an order from the given cart lines and
// drives it created -> pending -> completed.
func completedOrder(t *testing.T, svc *Service, carts *cart.MemoryStore, owner string, lines map[uint64]int) *model.Order {
	t.Helper()
	ctx := context.Background()
	for id, qty := range lines {
		if err := carts.UpsertItem(ctx, owner, id, qty, nil); err != nil {
			t.Fatalf("UpsertItem: %v", err)
		}
	}
	o, err := svc.CreateOrUpdateFromCart(ctx, owner, Purchaser{UserID: 42, Name: "Ada", Email: "ada@example.com"})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if err := svc.MarkCheckoutCompleted(ctx, o.ID); err != nil {
		t.Fatalf("mark checkout: %v", err)
	}
	if !svc.ModifyStatus(ctx, o.ID, StatusPending) {
		t.Fatal("created -> pending refused")
	}
	if !svc.ModifyStatus(ctx, o.ID, StatusCompleted) {
		t.Fatal("pending -> completed refused")
	}
	return o
}

func TestNoDoubleSalesCounting(t *testing.T) {
	ctx := context.Background()
	tickets := newFakeTickets(ticket(1, 10, 1010, 100))
	svc, _, attendees, carts, _ := testService(tickets)
	owner := CartOwnerKey(42)

	o := completedOrder(t, svc, carts, owner, map[uint64]int{1: 2})
	if tickets.sold(1) != 2 {
		t.Fatalf("sold = %d after completion, want 2", tickets.sold(1))
	}
	if attendees.count() != 2 {
		t.Fatalf("attendees = %d, want 2", attendees.count())
	}

	// Duplicate webhook re-enters completed: counters must not move.
	if !svc.ModifyStatus(ctx, o.ID, StatusCompleted) {
		t.Fatal("re-entry into completed refused")
	}
	if tickets.sold(1) != 2 {
		t.Fatalf("sold = %d after re-entry, want 2", tickets.sold(1))
	}
	if attendees.count() != 2 {
		t.Fatalf("attendees = %d after re-entry, want 2", attendees.count())
	}
}

func TestIncrementalStockDelta(t *testing.T) {
	ctx := context.Background()
	tickets := newFakeTickets(ticket(1, 10, 1010, 100), ticket(2, 10, 2030, 100))
	svc, store, _, carts, _ := testService(tickets)
	owner := CartOwnerKey(42)

	o := completedOrder(t, svc, carts, owner, map[uint64]int{1: 1})
	if tickets.sold(1) != 1 {
		t.Fatalf("sold(1) = %d, want 1", tickets.sold(1))
	}
	adjustmentsBefore := len(tickets.adjustments)

	// The order grows a second line; re-entering completed must
	// adjust stock by exactly {ticket 2: +2}, not {1:+1, 2:+2}.
	items := []model.OrderItem{
		{TicketID: 1, EventID: 10, Quantity: 1, UnitPriceCents: 1010, UnitRegularPriceCents: 1010},
		{TicketID: 2, EventID: 10, Quantity: 2, UnitPriceCents: 2030, UnitRegularPriceCents: 2030},
	}
	if err := store.ReplaceItems(ctx, o.ID, items, 1010+2*2030); err != nil {
		t.Fatalf("ReplaceItems: %v", err)
	}
	if !svc.ModifyStatus(ctx, o.ID, StatusCompleted) {
		t.Fatal("re-entry into completed refused")
	}

	applied := tickets.adjustments[adjustmentsBefore:]
	if len(applied) != 1 || applied[0].ticketID != 2 || applied[0].delta != 2 {
		t.Fatalf("unexpected adjustments on re-entry: %+v", applied)
	}
	if tickets.sold(1) != 1 || tickets.sold(2) != 2 {
		t.Fatalf("sold = {1:%d, 2:%d}, want {1:1, 2:2}", tickets.sold(1), tickets.sold(2))
	}
}

func TestRefundReleasesStock(t *testing.T) {
	ctx := context.Background()
	tickets := newFakeTickets(ticket(1, 10, 1010, 100))
	svc, _, _, carts, _ := testService(tickets)
	owner := CartOwnerKey(42)

	o := completedOrder(t, svc, carts, owner, map[uint64]int{1: 3})
	if tickets.sold(1) != 3 {
		t.Fatalf("sold = %d, want 3", tickets.sold(1))
	}
	if !svc.ModifyStatus(ctx, o.ID, StatusRefunded) {
		t.Fatal("completed -> refunded refused")
	}
	if tickets.sold(1) != 0 {
		t.Fatalf("sold = %d after refund, want 0", tickets.sold(1))
	}
}

func TestModifyStatusLockExclusion(t *testing.T) {
	ctx := context.Background()
	tickets := newFakeTickets(ticket(1, 10, 1010, 100))
	svc, store, _, carts, _ := testService(tickets)
	owner := CartOwnerKey(42)

	_ = carts.UpsertItem(ctx, owner, 1, 1, nil)
	o, err := svc.CreateOrUpdateFromCart(ctx, owner, Purchaser{UserID: 42, Name: "Ada", Email: "ada@example.com"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// A foreign writer holds the lock.
	if _, err := svc.GenerateLockID(ctx, o.ID); err != nil {
		t.Fatalf("GenerateLockID: %v", err)
	}
	locked, err := svc.IsOrderLocked(ctx, o.ID)
	if err != nil || !locked {
		t.Fatalf("IsOrderLocked = %v, %v", locked, err)
	}

	if svc.ModifyStatus(ctx, o.ID, StatusPending) {
		t.Fatal("ModifyStatus succeeded against a foreign lock")
	}
	got, _ := store.GetByID(ctx, o.ID)
	if got.Status != string(StatusCreated) {
		t.Fatalf("status mutated despite lock: %q", got.Status)
	}
}

func TestLockOrderLifecycle(t *testing.T) {
	ctx := context.Background()
	tickets := newFakeTickets(ticket(1, 10, 1010, 100))
	svc, _, _, carts, _ := testService(tickets)
	owner := CartOwnerKey(42)

	_ = carts.UpsertItem(ctx, owner, 1, 1, nil)
	o, _ := svc.CreateOrUpdateFromCart(ctx, owner, Purchaser{UserID: 42, Name: "Ada", Email: "ada@example.com"})

	token, err := svc.LockOrder(ctx, o.ID)
	if err != nil {
		t.Fatalf("LockOrder: %v", err)
	}
	if _, err := svc.LockOrder(ctx, o.ID); !errors.Is(err, ErrOrderLocked) {
		t.Fatalf("second LockOrder: got %v, want ErrOrderLocked", err)
	}
	if err := svc.UnlockOrder(ctx, o.ID, token); err != nil {
		t.Fatalf("UnlockOrder: %v", err)
	}
	locked, _ := svc.IsOrderLocked(ctx, o.ID)
	if locked {
		t.Fatal("order still locked after release")
	}
}

func TestTransientEffectFailureRecovered(t *testing.T) {
	ctx := context.Background()
	tickets := newFakeTickets(ticket(1, 10, 1010, 100))
	svc, store, attendees, carts, notifier := testService(tickets)
	sched := &fakeScheduler{}
	proc := NewProcessor(store, svc, sched)
	owner := CartOwnerKey(42)

	_ = carts.UpsertItem(ctx, owner, 1, 2, nil)
	o, err := svc.CreateOrUpdateFromCart(ctx, owner, Purchaser{UserID: 42, Name: "Ada", Email: "ada@example.com"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.MarkCheckoutCompleted(ctx, o.ID); err != nil {
		t.Fatalf("mark checkout: %v", err)
	}
	if !svc.ModifyStatus(ctx, o.ID, StatusPending) {
		t.Fatal("created -> pending refused")
	}

	// The stock adjustment fails once mid-completion. The transition
	// must not commit: a later retry that found status already at
	// completed would no-op and strand the counters forever.
	tickets.failNextAdjust = errors.New("simulated db failure")
	if svc.ModifyStatus(ctx, o.ID, StatusCompleted) {
		t.Fatal("ModifyStatus reported success despite effect failure")
	}
	got, _ := store.GetByID(ctx, o.ID)
	if got.Status != string(StatusPending) {
		t.Fatalf("status = %q after failed effect, want pending", got.Status)
	}
	if tickets.sold(1) != 0 || attendees.count() != 0 {
		t.Fatalf("partial effects leaked: sold=%d attendees=%d", tickets.sold(1), attendees.count())
	}
	if locked, _ := svc.IsOrderLocked(ctx, o.ID); locked {
		t.Fatal("lock leaked after failed effect")
	}

	// The redelivered task re-drives the whole transition.
	err = proc.Process(ctx, Task{
		OrderID:      o.ID,
		TargetStatus: StatusCompleted,
		ExpectedPrev: StatusPending,
		Attempt:      2,
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	got, _ = store.GetByID(ctx, o.ID)
	if got.Status != string(StatusCompleted) {
		t.Fatalf("status = %q after retry, want completed", got.Status)
	}
	if tickets.sold(1) != 2 {
		t.Fatalf("sold = %d after retry, want 2", tickets.sold(1))
	}
	if attendees.count() != 2 {
		t.Fatalf("attendees = %d after retry, want 2", attendees.count())
	}
	last := notifier.notifications[len(notifier.notifications)-1]
	if last.Status != StatusCompleted {
		t.Fatalf("final notification = %+v, want completed", last)
	}
}

func TestModifyStatusTornStatus(t *testing.T) {
	ctx := context.Background()
	tickets := newFakeTickets(ticket(1, 10, 1010, 100))
	svc, store, _, _, notifier := testService(tickets)

	o := &model.Order{
		CartHash:       "feedface",
		UserID:         42,
		PurchaserName:  "Ada",
		PurchaserEmail: "ada@example.com",
		Status:         "limbo",
		TotalCents:     1010,
		Currency:       "USD",
		Items:          []model.OrderItem{{TicketID: 1, EventID: 10, Quantity: 1, UnitPriceCents: 1010, UnitRegularPriceCents: 1010}},
	}
	if err := store.Create(ctx, o); err != nil {
		t.Fatalf("seed order: %v", err)
	}

	if svc.ModifyStatus(ctx, o.ID, StatusPending) {
		t.Fatal("ModifyStatus acted on an unparseable persisted status")
	}
	got, _ := store.GetByID(ctx, o.ID)
	if got.Status != "limbo" {
		t.Fatalf("status rewritten to %q", got.Status)
	}
	if len(tickets.adjustments) != 0 || len(notifier.notifications) != 0 {
		t.Fatalf("side effects ran on a torn read: %d adjustments, %d notifications",
			len(tickets.adjustments), len(notifier.notifications))
	}
	if locked, _ := svc.IsOrderLocked(ctx, o.ID); locked {
		t.Fatal("lock leaked after torn-read refusal")
	}
}

func TestModifyStatusFailedWrite(t *testing.T) {
	ctx := context.Background()
	tickets := newFakeTickets(ticket(1, 10, 1010, 100))
	svc, store, _, carts, notifier := testService(tickets)
	owner := CartOwnerKey(42)

	_ = carts.UpsertItem(ctx, owner, 1, 1, nil)
	o, _ := svc.CreateOrUpdateFromCart(ctx, owner, Purchaser{UserID: 42, Name: "Ada", Email: "ada@example.com"})

	store.failStatusWrite = true
	if svc.ModifyStatus(ctx, o.ID, StatusPending) {
		t.Fatal("ModifyStatus reported success on a failed write")
	}
	// The lock must have been released on the failure path, and no
	// notification published for a transition that never committed.
	locked, _ := svc.IsOrderLocked(ctx, o.ID)
	if locked {
		t.Fatal("lock leaked after failed write")
	}
	if len(notifier.notifications) != 0 {
		t.Fatalf("notified despite failed write: %+v", notifier.notifications)
	}
}

func TestCompletionClearsCart(t *testing.T) {
	ctx := context.Background()
	tickets := newFakeTickets(ticket(1, 10, 1010, 100))
	svc, _, _, carts, notifier := testService(tickets)
	owner := CartOwnerKey(42)

	completedOrder(t, svc, carts, owner, map[uint64]int{1: 1})

	items, _ := carts.Items(ctx, owner)
	if len(items) != 0 {
		t.Fatalf("cart not cleared on completion: %+v", items)
	}
	if h, _ := carts.Hash(ctx, owner, false); h != "" {
		t.Fatalf("cart hash survived completion: %q", h)
	}

	// created -> pending and pending -> completed each notified.
	if len(notifier.notifications) != 2 {
		t.Fatalf("notifications = %d, want 2", len(notifier.notifications))
	}
	last := notifier.notifications[len(notifier.notifications)-1]
	if last.Status != StatusCompleted || last.PreviousStatus != StatusPending {
		t.Fatalf("unexpected final notification: %+v", last)
	}
}
