// Package queue defines message payloads exchanged over the message broker
// and the background consumers that drain them.
package queue

// SpotFreedEvent is published whenever a committed modification returns
// spots to an instance that has guests waiting.  The waitlist consumer
// turns it into a promotion.
type SpotFreedEvent struct {
	OfferingID uint64 `json:"offering_id"`
	InstanceID uint64 `json:"instance_id"`
	FreedSpots int    `json:"freed_spots"`
	FreedAt    string `json:"freed_at"`
}

// NotificationEvent carries one outbound guest notification.  Data holds
// template-specific fields (claim token, refund amount, new date) so
// consumers never query the primary database.
type NotificationEvent struct {
	UserID   uint64            `json:"user_id"`
	Template string            `json:"template"`
	Data     map[string]string `json:"data,omitempty"`
	SentAt   string            `json:"sent_at"`
}
