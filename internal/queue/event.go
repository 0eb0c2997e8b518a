// Package queue defines message payloads exchanged over the message
// broker and the background consumer that applies retried order
// status transitions.
package queue

import amqp "github.com/rabbitmq/amqp091-go"

// Queue names. The retry queue carries transition tasks; its delay
// companion holds rescheduled tasks until their per-message TTL
// expires and the broker dead-letters them back onto the retry queue.
// Exhausted tasks are parked on the failed queue for operators.
const (
	QueueRetry         = "order.status.retry"
	QueueRetryDelay    = "order.status.retry.delay"
	QueueStatusChanged = "order.status.changed"
	QueueStatusFailed  = "order.status.failed"
)

// OrderStatusChangedEvent is published after every applied status
// transition. It carries enough for downstream consumers to notify or
// trigger analytics without querying the primary database.
type OrderStatusChangedEvent struct {
	OrderID        uint64 `json:"order_id"`
	PreviousStatus string `json:"previous_status"`
	NewStatus      string `json:"new_status"`
	TotalCents     int64  `json:"total_cents"`
	Currency       string `json:"currency"`
	PurchaserEmail string `json:"purchaser_email"`
	ChangedAt      string `json:"changed_at"`
}

// DeclareTopology declares every queue this application uses. All
// declarations are idempotent and durable; publisher and consumer both
// call this so whichever starts first creates the topology.
func DeclareTopology(ch *amqp.Channel) error {
	if _, err := ch.QueueDeclare(QueueRetry, true, false, false, false, nil); err != nil {
		return err
	}
	// Messages expire per-publishing and dead-letter back onto the
	// retry queue through the default exchange.
	if _, err := ch.QueueDeclare(QueueRetryDelay, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": QueueRetry,
	}); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(QueueStatusChanged, true, false, false, false, nil); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(QueueStatusFailed, true, false, false, false, nil); err != nil {
		return err
	}
	return nil
}
