package order

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/eventloom/tickethub/internal/repository"
)

// MaxAttempts is the retry ceiling. A transition that still cannot
// be applied after this many attempts is declared permanently failed
// rather than rescheduled forever against a wedged order.
const MaxAttempts = 10

// ErrRetryExhausted is the fatal, operator-visible condition raised
// when the retry ceiling is exceeded. It is never swallowed: the
// consumer logs it and parks the task for manual intervention.
var ErrRetryExhausted = errors.New("too many retries applying order status transition")

// Task is the work-queue message for one asynchronous transition
// attempt. Everything the processor needs (the target, the
// optimistic-concurrency precondition, the attempt count) rides in
// the payload itself; no scheduler state is assumed.
type Task struct {
	OrderID      uint64            `json:"order_id"`
	TargetStatus Status            `json:"target_status"`
	ExpectedPrev Status            `json:"expected_previous_status"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Attempt      int               `json:"attempt"`
}

// Scheduler re-enqueues a task for execution after a delay. The
// queue guarantees at-least-once delivery with no ordering between
// redeliveries and fresh events; the processor's precondition
// checks carry the correctness burden.
type Scheduler interface {
	Schedule(ctx context.Context, t Task, delay time.Duration) error
}

// Processor applies webhook-driven status transitions with bounded
// retries. Each invocation runs to completion without suspension;
// "waiting" is always external rescheduling. Concurrency comes from
// independent invocations (original delivery, redelivery, admin UI)
// racing on the same order, which is exactly what the expected-
// previous-status check and the order lock defend against.
type Processor struct {
	Orders    Store
	Service   *Service
	Scheduler Scheduler
}

// NewProcessor wires a Processor.
func NewProcessor(orders Store, svc *Service, sched Scheduler) *Processor {
	return &Processor{Orders: orders, Service: svc, Scheduler: sched}
}

// Process executes one transition attempt. It returns nil both when
// the transition applied and when the target status had already been
// reached (a duplicate delivery is a no-op). Transient conditions
// such as a stale expected status, an incomplete checkout or a held
// lock reschedule the task; they are signals, not errors, and never
// surface past this method. Only retry exhaustion (or a scheduler
// failure) comes back as an error.
func (p *Processor) Process(ctx context.Context, t Task) error {
	o, err := p.Orders.GetByID(ctx, t.OrderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			// The order row may not be durable yet; try again.
			return p.reschedule(ctx, t, "order not found")
		}
		return p.reschedule(ctx, t, fmt.Sprintf("load order: %v", err))
	}

	current := Status(o.Status)
	if current == t.TargetStatus {
		return nil
	}
	if current != t.ExpectedPrev {
		// Another writer is mid-flight; our precondition no longer
		// holds. Back off and look again later.
		return p.reschedule(ctx, t, fmt.Sprintf("status %q, expected %q", current, t.ExpectedPrev))
	}
	if !o.CheckoutCompleted {
		return p.reschedule(ctx, t, "checkout not completed")
	}
	locked, err := p.Service.IsOrderLocked(ctx, t.OrderID)
	if err != nil {
		return p.reschedule(ctx, t, fmt.Sprintf("read lock: %v", err))
	}
	if locked {
		return p.reschedule(ctx, t, "order locked")
	}
	if !p.Service.ModifyStatus(ctx, t.OrderID, t.TargetStatus) {
		return p.reschedule(ctx, t, "transition refused")
	}
	return nil
}

// reschedule re-enqueues the task with an incremented attempt count,
// or raises ErrRetryExhausted once the ceiling is passed.
func (p *Processor) reschedule(ctx context.Context, t Task, reason string) error {
	next := t.Attempt + 1
	if next > MaxAttempts {
		log.Printf("retry: giving up on order %d -> %s after %d attempts (%s)",
			t.OrderID, t.TargetStatus, t.Attempt, reason)
		return fmt.Errorf("order %d -> %s: %w", t.OrderID, t.TargetStatus, ErrRetryExhausted)
	}
	t.Attempt = next
	delay := RetryDelay(next)
	log.Printf("retry: order %d -> %s attempt %d in %s (%s)",
		t.OrderID, t.TargetStatus, next, delay, reason)
	return p.Scheduler.Schedule(ctx, t, delay)
}

// RetryDelay returns the backoff before the given attempt: 2s
// doubling per attempt, capped at 10 minutes.
func RetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := 2 * time.Second << (attempt - 1)
	if d > 10*time.Minute || d <= 0 {
		return 10 * time.Minute
	}
	return d
}
