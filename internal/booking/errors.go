package booking

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/calebferro/slotbook/internal/model"
)

// Sentinel errors returned (possibly wrapped) by the coordinator.  Match
// with errors.Is; the structured variants below carry the detail.
var (
	ErrUnauthorized  = errors.New("caller does not own this booking")
	ErrNotFound      = errors.New("booking not found")
	ErrInvalidState  = errors.New("booking is not in a modifiable state")
	ErrWindowClosed  = errors.New("modification window is closed")
	ErrPaymentFailed = errors.New("payment instruction failed")
	ErrValidation    = errors.New("invalid request")
)

// InvalidStateError reports the status that blocked the modification.
type InvalidStateError struct {
	BookingID uint64
	Status    model.BookingStatus
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("booking %d is %s; only CONFIRMED bookings can be modified", e.BookingID, e.Status)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// WindowClosedError reports how close to the event the attempt was made.
type WindowClosedError struct {
	HoursUntilEvent float64
	WindowHours     float64
}

func (e *WindowClosedError) Error() string {
	return fmt.Sprintf("modifications close %.0fh before the event; %.1fh remain", e.WindowHours, e.HoursUntilEvent)
}

func (e *WindowClosedError) Unwrap() error { return ErrWindowClosed }

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// PaymentError is returned when a post-commit payment instruction fails.
// The booking change itself is already durable; Amount tells the caller
// what is still owed or owing.
type PaymentError struct {
	Op     string // "charge" or "refund"
	Amount decimal.Decimal
	Err    error
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("payment %s of %s failed: %v", e.Op, e.Amount.String(), e.Err)
}

func (e *PaymentError) Unwrap() error { return ErrPaymentFailed }
