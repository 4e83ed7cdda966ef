package queue

import (
	"context"
	"encoding/json"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	spotFreedQueueName    = "booking.spot_freed"
	notificationQueueName = "notification.outbound"
)

// Publisher publishes domain events to RabbitMQ.  Each publish opens a
// short-lived connection; errors are logged and returned so callers can
// ignore failures without interrupting the main request flow.  Messages
// are marked persistent and queues are declared durable, so nothing is
// lost across broker restarts.
type Publisher struct {
	url string
}

// NewPublisher returns a publisher for the given AMQP URL.
func NewPublisher(url string) *Publisher {
	return &Publisher{url: url}
}

func (p *Publisher) publish(ctx context.Context, queueName string, payload any) error {
	conn, err := amqp.Dial(p.url)
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

	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		log.Printf("rabbitmq: queue declare failed: %v", err)
		return err
	}

	body, err := json.Marshal(payload)
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

	if err := ch.PublishWithContext(ctx, "", queueName, false, false, pub); err != nil {
		log.Printf("rabbitmq: publish to %s failed: %v", queueName, err)
		return err
	}
	return nil
}

// SpotFreed publishes a SpotFreedEvent to the booking.spot_freed queue.
func (p *Publisher) SpotFreed(ctx context.Context, offeringID, instanceID uint64, freed int) error {
	return p.publish(ctx, spotFreedQueueName, SpotFreedEvent{
		OfferingID: offeringID,
		InstanceID: instanceID,
		FreedSpots: freed,
		FreedAt:    time.Now().UTC().Format(time.RFC3339),
	})
}

// Notify publishes a NotificationEvent to the notification.outbound queue.
func (p *Publisher) Notify(ctx context.Context, ev NotificationEvent) error {
	if ev.SentAt == "" {
		ev.SentAt = time.Now().UTC().Format(time.RFC3339)
	}
	return p.publish(ctx, notificationQueueName, ev)
}
