package model

import "time"

// WaitlistStatus is the lifecycle of a waitlist entry.  ACTIVE entries
// queue FIFO by JoinedAt; a freed spot moves the oldest eligible entry
// to NOTIFIED, which resolves to CLAIMED or EXPIRED inside the claim
// window.  CLAIMED, EXPIRED and CANCELLED are terminal.
type WaitlistStatus string

const (
	WaitlistActive    WaitlistStatus = "ACTIVE"
	WaitlistNotified  WaitlistStatus = "NOTIFIED"
	WaitlistClaimed   WaitlistStatus = "CLAIMED"
	WaitlistExpired   WaitlistStatus = "EXPIRED"
	WaitlistCancelled WaitlistStatus = "CANCELLED"
)

// Terminal reports whether the entry can no longer change state.
func (s WaitlistStatus) Terminal() bool {
	switch s {
	case WaitlistClaimed, WaitlistExpired, WaitlistCancelled:
		return true
	}
	return false
}

// WaitlistEntry is a guest's place in the FIFO queue for a sold-out
// instance.  ClaimToken is an opaque token sent with the notification;
// presenting it converts the entry into a booking while the claim
// window is open.
type WaitlistEntry struct {
	ID         uint64         // waitlist_entries.id
	OfferingID uint64         // waitlist_entries.offering_id
	InstanceID uint64         // waitlist_entries.instance_id
	GuestID    uint64         // waitlist_entries.guest_id
	PartySize  int            // waitlist_entries.party_size
	Status     WaitlistStatus // waitlist_entries.status
	ClaimToken string         // waitlist_entries.claim_token
	JoinedAt   time.Time      // waitlist_entries.joined_at (FIFO key)
	NotifiedAt *time.Time     // waitlist_entries.notified_at (nullable)
}
