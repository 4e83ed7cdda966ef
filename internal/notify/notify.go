// Package notify abstracts outbound guest notifications.  Notifications
// are best-effort side effects: failures are logged by callers and never
// roll back a committed booking change.
package notify

import (
	"context"
	"log"

	"github.com/calebferro/slotbook/internal/queue"
)

// Notifier delivers one templated notification to a user.
type Notifier interface {
	Send(ctx context.Context, userID uint64, template string, data map[string]string) error
}

// Templates understood by the notification consumer.
const (
	TemplatePartySizeChanged     = "booking_party_size_changed"
	TemplateDateChanged          = "booking_date_changed"
	TemplateCancelled            = "booking_cancelled"
	TemplateWaitlistSpotOpen     = "waitlist_spot_available"
	TemplateWaitlistClaimed      = "waitlist_claim_confirmed"
	TemplateWaitlistClaimExpired = "waitlist_claim_expired"
)

// QueueNotifier hands notifications to the broker for asynchronous
// delivery.
type QueueNotifier struct {
	pub *queue.Publisher
}

func NewQueueNotifier(pub *queue.Publisher) *QueueNotifier {
	return &QueueNotifier{pub: pub}
}

func (n *QueueNotifier) Send(ctx context.Context, userID uint64, template string, data map[string]string) error {
	return n.pub.Notify(ctx, queue.NotificationEvent{
		UserID:   userID,
		Template: template,
		Data:     data,
	})
}

// LogNotifier writes notifications to the process log.  Used by the dev
// profile and in tests when no broker is available.
type LogNotifier struct{}

func (LogNotifier) Send(ctx context.Context, userID uint64, template string, data map[string]string) error {
	log.Printf("notify: user=%d template=%s data=%v", userID, template, data)
	return nil
}
