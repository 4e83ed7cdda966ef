package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BookingStatus is the state machine governing a single booking:
//
//	PENDING_PAYMENT → CONFIRMED → {CHECKED_IN → COMPLETED} | CANCELLED | NO_SHOW
//
// CANCELLED, COMPLETED and NO_SHOW are terminal.  Bookings are never
// deleted; cancellation is a status transition.
type BookingStatus string

const (
	BookingPendingPayment BookingStatus = "PENDING_PAYMENT"
	BookingConfirmed      BookingStatus = "CONFIRMED"
	BookingCheckedIn      BookingStatus = "CHECKED_IN"
	BookingCompleted      BookingStatus = "COMPLETED"
	BookingCancelled      BookingStatus = "CANCELLED"
	BookingNoShow         BookingStatus = "NO_SHOW"
)

// Terminal reports whether no further transition is allowed.
func (s BookingStatus) Terminal() bool {
	switch s {
	case BookingCancelled, BookingCompleted, BookingNoShow:
		return true
	}
	return false
}

// Modifiable reports whether guest-initiated changes (party size, date)
// and cancellation with refund are permitted.  Only CONFIRMED bookings
// qualify.
func (s BookingStatus) Modifiable() bool {
	return s == BookingConfirmed
}

// CanTransitionTo validates a single step of the state machine.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	switch s {
	case BookingPendingPayment:
		return next == BookingConfirmed || next == BookingCancelled
	case BookingConfirmed:
		return next == BookingCheckedIn || next == BookingCancelled || next == BookingNoShow
	case BookingCheckedIn:
		return next == BookingCompleted
	}
	return false
}

// Booking is a guest's reservation against one instance.  GuestCount
// spots of the instance are consumed while the booking is in CONFIRMED,
// CHECKED_IN or COMPLETED state.  InstanceID is reassignable only via a
// date change.
//
// Fields:
//  ID           – primary key identifier.
//  OfferingID   – offering the booking belongs to.
//  InstanceID   – instance whose capacity the booking consumes.
//  GuestID      – owner of the booking.
//  GuestCount   – number of guests (>= 1).
//  BaseAmount   – price before fees/adjustments.
//  TotalAmount  – amount actually paid.
//  Status       – state machine above.
//  CheckInToken – opaque token presented at the door; regenerated on
//                 date change.
//  PaymentRef   – external payment reference used for refunds.
//  CancelledAt  – set when status becomes CANCELLED.
type Booking struct {
	ID           uint64          // bookings.id
	OfferingID   uint64          // bookings.offering_id
	InstanceID   uint64          // bookings.instance_id
	GuestID      uint64          // bookings.guest_id
	GuestCount   int             // bookings.guest_count
	BaseAmount   decimal.Decimal // bookings.base_amount
	TotalAmount  decimal.Decimal // bookings.total_amount
	Currency     string          // bookings.currency
	Status       BookingStatus   // bookings.status
	CheckInToken string          // bookings.check_in_token
	PaymentRef   *string         // bookings.payment_ref (nullable)
	CancelledAt  *time.Time      // bookings.cancelled_at (nullable)
	CreatedAt    time.Time       // bookings.created_at
	UpdatedAt    time.Time       // bookings.updated_at
}

// ConsumesCapacity reports whether the booking currently holds spots on
// its instance.  The capacity invariant sums guest counts over exactly
// these states.
func (b *Booking) ConsumesCapacity() bool {
	switch b.Status {
	case BookingConfirmed, BookingCheckedIn, BookingCompleted:
		return true
	}
	return false
}
