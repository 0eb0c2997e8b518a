package order

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/eventloom/tickethub/internal/cart"
	"github.com/eventloom/tickethub/internal/model"
	"github.com/eventloom/tickethub/internal/money"
)

func retryFixture(t *testing.T) (*Processor, *Service, *fakeStore, *fakeScheduler, *model.Order) {
	t.Helper()
	ctx := context.Background()
	tickets := newFakeTickets(ticket(1, 10, 1010, 100))
	store := newFakeStore()
	carts := cart.NewMemoryStore()
	svc := NewService(store, tickets, &fakeAttendees{}, carts, money.Default(), nil)
	sched := &fakeScheduler{}
	proc := NewProcessor(store, svc, sched)

	owner := CartOwnerKey(42)
	_ = carts.UpsertItem(ctx, owner, 1, 1, nil)
	o, err := svc.CreateOrUpdateFromCart(ctx, owner, Purchaser{UserID: 42, Name: "Ada", Email: "ada@example.com"})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return proc, svc, store, sched, o
}

func TestProcessNoOpWhenTargetReached(t *testing.T) {
	proc, svc, _, sched, o := retryFixture(t)
	ctx := context.Background()
	_ = svc.MarkCheckoutCompleted(ctx, o.ID)
	if !svc.ModifyStatus(ctx, o.ID, StatusPending) {
		t.Fatal("created -> pending refused")
	}

	// Duplicate delivery of an already-applied transition.
	err := proc.Process(ctx, Task{OrderID: o.ID, TargetStatus: StatusPending, ExpectedPrev: StatusCreated, Attempt: 1})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if sched.scheduled() != 0 {
		t.Fatalf("duplicate delivery rescheduled %d times", sched.scheduled())
	}
}

func TestProcessAppliesTransition(t *testing.T) {
	proc, svc, store, sched, o := retryFixture(t)
	ctx := context.Background()
	_ = svc.MarkCheckoutCompleted(ctx, o.ID)

	err := proc.Process(ctx, Task{OrderID: o.ID, TargetStatus: StatusPending, ExpectedPrev: StatusCreated, Attempt: 1})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	got, _ := store.GetByID(ctx, o.ID)
	if got.Status != string(StatusPending) {
		t.Fatalf("status = %q, want pending", got.Status)
	}
	if sched.scheduled() != 0 {
		t.Fatalf("successful transition rescheduled %d times", sched.scheduled())
	}
}

func TestProcessReschedulesOnStaleExpectedStatus(t *testing.T) {
	proc, svc, _, sched, o := retryFixture(t)
	ctx := context.Background()
	_ = svc.MarkCheckoutCompleted(ctx, o.ID)

	// Order is still in created; the task expects pending.
	err := proc.Process(ctx, Task{OrderID: o.ID, TargetStatus: StatusCompleted, ExpectedPrev: StatusPending, Attempt: 1})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if sched.scheduled() != 1 {
		t.Fatalf("scheduled = %d, want 1", sched.scheduled())
	}
	if sched.tasks[0].Attempt != 2 {
		t.Fatalf("attempt = %d, want 2", sched.tasks[0].Attempt)
	}
	if sched.tasks[0].ExpectedPrev != StatusPending || sched.tasks[0].TargetStatus != StatusCompleted {
		t.Fatalf("task parameters changed on reschedule: %+v", sched.tasks[0])
	}
}

func TestProcessReschedulesBeforeCheckoutCompletes(t *testing.T) {
	proc, _, _, sched, o := retryFixture(t)
	ctx := context.Background()

	err := proc.Process(ctx, Task{OrderID: o.ID, TargetStatus: StatusPending, ExpectedPrev: StatusCreated, Attempt: 1})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if sched.scheduled() != 1 {
		t.Fatalf("scheduled = %d, want 1", sched.scheduled())
	}
}

func TestProcessReschedulesWhileLocked(t *testing.T) {
	proc, svc, store, sched, o := retryFixture(t)
	ctx := context.Background()
	_ = svc.MarkCheckoutCompleted(ctx, o.ID)
	if _, err := svc.GenerateLockID(ctx, o.ID); err != nil {
		t.Fatalf("GenerateLockID: %v", err)
	}

	err := proc.Process(ctx, Task{OrderID: o.ID, TargetStatus: StatusPending, ExpectedPrev: StatusCreated, Attempt: 3})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if sched.scheduled() != 1 || sched.tasks[0].Attempt != 4 {
		t.Fatalf("expected one reschedule at attempt 4, got %+v", sched.tasks)
	}
	got, _ := store.GetByID(ctx, o.ID)
	if got.Status != string(StatusCreated) {
		t.Fatalf("status mutated while locked: %q", got.Status)
	}
}

func TestProcessRetryCeiling(t *testing.T) {
	proc, _, _, sched, o := retryFixture(t)
	ctx := context.Background()

	// Checkout never completes, so the task keeps failing. At the
	// ceiling it must raise the fatal condition, not schedule an
	// eleventh attempt.
	err := proc.Process(ctx, Task{OrderID: o.ID, TargetStatus: StatusPending, ExpectedPrev: StatusCreated, Attempt: MaxAttempts})
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("Process: got %v, want ErrRetryExhausted", err)
	}
	if sched.scheduled() != 0 {
		t.Fatalf("exhausted task was rescheduled %d times", sched.scheduled())
	}
}

func TestRetryDelayGrowsAndCaps(t *testing.T) {
	if RetryDelay(1) != 2*time.Second {
		t.Fatalf("RetryDelay(1) = %s", RetryDelay(1))
	}
	if RetryDelay(2) != 4*time.Second {
		t.Fatalf("RetryDelay(2) = %s", RetryDelay(2))
	}
	for a := 2; a <= MaxAttempts; a++ {
		if RetryDelay(a) < RetryDelay(a-1) {
			t.Fatalf("delay shrank from attempt %d to %d", a-1, a)
		}
	}
	if RetryDelay(MaxAttempts) != 10*time.Minute {
		t.Fatalf("RetryDelay(%d) = %s, want cap", MaxAttempts, RetryDelay(MaxAttempts))
	}
}
