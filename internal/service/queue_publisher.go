// Package queue_publisher publishes domain events and retry tasks to
// RabbitMQ. Errors are logged and returned to allow callers to ignore
// failures without interrupting the main request flow.
package queue_publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/eventloom/tickethub/internal/order"
	q "github.com/eventloom/tickethub/internal/queue"
)

// Publisher opens a fresh connection per publish. Volume on these
// queues is low enough that connection reuse is not worth the
// reconnect bookkeeping; the consumer side owns the long-lived
// connection.
type Publisher struct {
	URL string
}

// New returns a Publisher for the given broker URL.
func New(url string) *Publisher {
	return &Publisher{URL: url}
}

// Schedule enqueues a transition task for delayed delivery. The task
// is published onto the delay queue with a per-message TTL; when it
// expires the broker dead-letters it back onto the retry queue, where
// the consumer picks it up. A zero delay publishes straight to the
// retry queue.
func (p *Publisher) Schedule(ctx context.Context, t order.Task, delay time.Duration) error {
	body, err := json.Marshal(t)
	if err != nil {
		log.Printf("rabbitmq: marshal task failed: %v", err)
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	routingKey := q.QueueRetry
	if delay > 0 {
		routingKey = q.QueueRetryDelay
		pub.Expiration = fmt.Sprintf("%d", delay.Milliseconds())
	}
	return p.publish(ctx, routingKey, pub)
}

// Notify publishes an order.status.changed event.
func (p *Publisher) Notify(ctx context.Context, n order.StatusNotification) error {
	ev := q.OrderStatusChangedEvent{
		OrderID:        n.OrderID,
		PreviousStatus: string(n.PreviousStatus),
		NewStatus:      string(n.Status),
		TotalCents:     n.TotalCents,
		Currency:       n.Currency,
		PurchaserEmail: n.PurchaserEmail,
		ChangedAt:      n.OccurredAt.UTC().Format(time.RFC3339),
	}
	body, err := json.Marshal(ev)
	if err != nil {
		log.Printf("rabbitmq: marshal event failed: %v", err)
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	return p.publish(ctx, q.QueueStatusChanged, pub)
}

func (p *Publisher) publish(ctx context.Context, routingKey string, pub amqp.Publishing) error {
	conn, err := amqp.Dial(p.URL)
	if err != nil {
		log.Printf("rabbitmq: dial failed: %v", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Printf("rabbitmq: channel open failed: %v", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	if err := q.DeclareTopology(ch); err != nil {
		log.Printf("rabbitmq: queue declare failed: %v", err)
		return err
	}

	if err := ch.PublishWithContext(ctx, "", routingKey, false, false, pub); err != nil {
		log.Printf("rabbitmq: publish to %s failed: %v", routingKey, err)
		return err
	}
	return nil
}
