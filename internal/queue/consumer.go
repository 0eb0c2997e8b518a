package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/eventloom/tickethub/internal/order"
)

// StartRetryConsumer connects to RabbitMQ, declares the queue
// topology, and consumes transition tasks from order.status.retry.
// The function runs a reconnect loop with exponential backoff and
// never returns under normal operation; processing errors are logged
// and the offending message is rejected without requeue so the server
// keeps operating.
func StartRetryConsumer(url string, proc *order.Processor) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Printf("retry-consumer: failed to dial broker: %v; retrying in %s", err, backoff)
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		if err := consumeLoop(conn, proc); err != nil {
			log.Printf("retry-consumer: consume loop ended: %v; reconnecting", err)
			time.Sleep(2 * time.Second)
			continue
		}
	}
}

func consumeLoop(conn *amqp.Connection, proc *order.Processor) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(10, 0, false); err != nil {
		log.Printf("retry-consumer: set QoS failed: %v", err)
	}

	if err := DeclareTopology(ch); err != nil {
		return fmt.Errorf("declare topology: %w", err)
	}

	msgs, err := ch.Consume(QueueRetry, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := handleDelivery(ch, proc, d.Body); err != nil {
			log.Printf("retry-consumer: handle message failed: %v", err)
			_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

// handleDelivery runs one transition attempt. An exhausted task is not
// an error for the queue: the message is parked on the failed queue
// and acked so it never loops.
func handleDelivery(ch *amqp.Channel, proc *order.Processor, body []byte) error {
	var t order.Task
	if err := json.Unmarshal(body, &t); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}

	err := proc.Process(context.Background(), t)
	if err == nil {
		return nil
	}
	if errors.Is(err, order.ErrRetryExhausted) {
		log.Printf("retry-consumer: parking order %d -> %s: %v", t.OrderID, t.TargetStatus, err)
		return park(ch, body)
	}
	return err
}

func park(ch *amqp.Channel, body []byte) error {
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(context.Background(), "", QueueStatusFailed, false, false, pub); err != nil {
		return fmt.Errorf("park failed task: %w", err)
	}
	return nil
}
