package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ModificationType identifies what a modification attempt changed.
type ModificationType string

const (
	ModPartySizeIncrease ModificationType = "PARTY_SIZE_INCREASE"
	ModPartySizeDecrease ModificationType = "PARTY_SIZE_DECREASE"
	ModDateChange        ModificationType = "DATE_CHANGE"
	ModCancellation      ModificationType = "CANCELLATION"
)

// RefundStatus tracks the asynchronous refund side effect of a
// modification.
type RefundStatus string

const (
	RefundPending   RefundStatus = "PENDING"
	RefundCompleted RefundStatus = "COMPLETED"
)

// BookingModification is the immutable audit record appended for every
// modification attempt that reaches the commit point.  The rows double
// as an append-only event log for the booking.  Nothing is ever updated
// except RefundStatus/RefundedAt, flipped once when the refund side
// effect completes.
//
// Fields:
//  ID           – uuid assigned by the coordinator, also used as the
//                 payment idempotency key.
//  BookingID    – booking the modification applies to.
//  Type         – PARTY_SIZE_INCREASE/_DECREASE, DATE_CHANGE, CANCELLATION.
//  OldValue     – previous value rendered as text (guest count, instance id).
//  NewValue     – new value rendered as text.
//  Reason       – optional free-form reason supplied by the caller.
//  RefundAmount – refund owed, when the modification produces one.
//  RefundStatus – PENDING until the gateway confirms, then COMPLETED.
//  ModifiedBy   – user who performed the modification.
type BookingModification struct {
	ID           string           // booking_modifications.id (uuid)
	BookingID    uint64           // booking_modifications.booking_id
	Type         ModificationType // booking_modifications.type
	OldValue     string           // booking_modifications.old_value
	NewValue     string           // booking_modifications.new_value
	Reason       *string          // booking_modifications.reason (nullable)
	RefundAmount *decimal.Decimal // booking_modifications.refund_amount (nullable)
	RefundStatus *RefundStatus    // booking_modifications.refund_status (nullable)
	RefundedAt   *time.Time       // booking_modifications.refunded_at (nullable)
	ModifiedBy   uint64           // booking_modifications.modified_by
	CreatedAt    time.Time        // booking_modifications.created_at
}
