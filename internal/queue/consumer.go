package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// SpotFreedHandler reacts to a freed-spot event; the waitlist promotion
// engine implements it.
type SpotFreedHandler interface {
	SpotFreed(ctx context.Context, offeringID, instanceID uint64, freed int) error
}

// StartSpotFreedConsumer connects to RabbitMQ, declares the
// booking.spot_freed queue (durable), and feeds each event to the
// handler.  It runs a reconnect loop with exponential backoff and never
// returns under normal operation; processing errors are logged and the
// offending message is rejected without requeue to avoid tight loops.
func StartSpotFreedConsumer(url string, handler SpotFreedHandler) error {
	return runConsumer(url, spotFreedQueueName, "spot-freed-consumer", func(body []byte) error {
		var ev SpotFreedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return handler.SpotFreed(ctx, ev.OfferingID, ev.InstanceID, ev.FreedSpots)
	})
}

// StartNotificationConsumer drains notification.outbound and appends
// each notification to logs/notifications.log in a single-line format.
// A real delivery channel (email, push) would hang off this consumer.
func StartNotificationConsumer(url string) error {
	return runConsumer(url, notificationQueueName, "notification-consumer", writeNotification)
}

func runConsumer(url, queueName, name string, handle func(body []byte) error) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Printf("%s: failed to dial broker: %v; retrying in %s", name, err, backoff)
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		if err := consumeLoop(conn, queueName, name, handle); err != nil {
			log.Printf("%s: consume loop ended: %v; reconnecting", name, err)
			time.Sleep(2 * time.Second)
			continue
		}
	}
}

func consumeLoop(conn *amqp.Connection, queueName, name string, handle func(body []byte) error) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Printf("%s: set QoS failed: %v", name, err)
	}

	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := handle(d.Body); err != nil {
			log.Printf("%s: handle message failed: %v", name, err)
			_ = d.Nack(false, false) // reject, do not requeue
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

func writeNotification(body []byte) error {
	var ev NotificationEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if err := os.MkdirAll("logs", 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	fpath := filepath.Join("logs", "notifications.log")
	f, err := os.OpenFile(fpath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	extra, _ := json.Marshal(ev.Data)
	line := fmt.Sprintf("[%s] Notification | user_id=%d | template=%s | data=%s\n",
		ev.SentAt, ev.UserID, ev.Template, string(extra))
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}
