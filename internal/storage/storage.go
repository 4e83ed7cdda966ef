// Package storage defines the persistence contract the booking engine is
// written against.  Two implementations exist: mysql (production, row
// locks via SELECT ... FOR UPDATE) and memory (tests and the dev
// profile).  The engine never touches database/sql directly; everything
// that must be atomic goes through WithinTx.
package storage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/calebferro/slotbook/internal/model"
)

// Tx is the set of operations available inside one atomic transaction.
// The *ForUpdate methods take row-level exclusive locks (or the memory
// equivalent) so that a check-then-write sequence on the same rows
// cannot interleave with a concurrent transaction.
type Tx interface {
	// BookingForUpdate loads a booking and locks its row.
	BookingForUpdate(ctx context.Context, id uint64) (*model.Booking, error)

	// InstanceForUpdate loads an instance and locks its row.  Every
	// capacity mutation starts here; the lock is what makes the
	// availability check and the later AdjustAvailableSpots a single
	// atomic step.
	InstanceForUpdate(ctx context.Context, id uint64) (*model.Instance, error)

	// OfferingByID loads an offering (no lock; offerings are read-only
	// to the engine).
	OfferingByID(ctx context.Context, id uint64) (*model.Offering, error)

	// AdjustAvailableSpots applies a signed delta to
	// instances.available_spots and returns the new value.  Callers must
	// hold the instance row lock and have validated the delta.
	AdjustAvailableSpots(ctx context.Context, instanceID uint64, delta int) (int, error)

	// UpdateBookingPartySize rewrites guest count and amounts after a
	// party-size modification.
	UpdateBookingPartySize(ctx context.Context, bookingID uint64, guestCount int, baseAmount, totalAmount decimal.Decimal) error

	// ReassignBookingInstance moves a booking to another instance,
	// updating amounts and the regenerated check-in token.
	ReassignBookingInstance(ctx context.Context, bookingID, newInstanceID uint64, baseAmount, totalAmount decimal.Decimal, checkInToken string) error

	// MarkBookingCancelled transitions a booking to CANCELLED and
	// records the cancellation time.
	MarkBookingCancelled(ctx context.Context, bookingID uint64, at time.Time) error

	// CreateBooking inserts a booking and populates its generated ID.
	CreateBooking(ctx context.Context, b *model.Booking) error

	// AppendModification inserts an audit row.  Audit rows are
	// append-only; nothing in Tx can update or delete them.
	AppendModification(ctx context.Context, m *model.BookingModification) error

	// CreateWaitlistEntry inserts an entry and populates its generated ID.
	CreateWaitlistEntry(ctx context.Context, e *model.WaitlistEntry) error

	// WaitlistPosition returns the 1-based FIFO position of an entry
	// joined at the given time among ACTIVE entries for the pair.
	WaitlistPosition(ctx context.Context, offeringID, instanceID uint64, joinedAt time.Time) (int, error)

	// OldestEligibleActiveEntry returns the oldest ACTIVE entry for the
	// pair whose party size fits in maxPartySize, locking its row.
	// ErrNotFound when the queue is empty or nothing fits.
	OldestEligibleActiveEntry(ctx context.Context, offeringID, instanceID uint64, maxPartySize int) (*model.WaitlistEntry, error)

	// WaitlistEntryByClaimToken loads an entry by its claim token and
	// locks its row.
	WaitlistEntryByClaimToken(ctx context.Context, token string) (*model.WaitlistEntry, error)

	// TransitionWaitlist performs a compare-on-status update, the tie
	// breaker between a late claim and a concurrent expiry.  It reports
	// whether the row was in `from` state and is now in `to` state.
	TransitionWaitlist(ctx context.Context, entryID uint64, from, to model.WaitlistStatus, notifiedAt *time.Time) (bool, error)

	// HasActiveWaitlist reports whether any ACTIVE entry exists for the
	// instance.  Used to decide whether a release should signal the
	// promotion engine.
	HasActiveWaitlist(ctx context.Context, instanceID uint64) (bool, error)
}

// Store is the top-level persistence handle: plain reads, the
// transaction runner, and the few post-commit writes performed by side
// effect handlers.
type Store interface {
	// WithinTx runs fn inside one transaction.  A non-nil error from fn
	// rolls everything back and is returned unchanged.  Implementations
	// surface write conflicts as ErrConflict so callers can retry.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	BookingByID(ctx context.Context, id uint64) (*model.Booking, error)
	BookingsByGuest(ctx context.Context, guestID uint64) ([]model.Booking, error)
	ModificationsByBooking(ctx context.Context, bookingID uint64) ([]model.BookingModification, error)
	OfferingByID(ctx context.Context, id uint64) (*model.Offering, error)
	InstanceByID(ctx context.Context, id uint64) (*model.Instance, error)
	InstancesByOffering(ctx context.Context, offeringID uint64) ([]model.Instance, error)

	// MarkRefundCompleted flips an audit row's refund status to
	// COMPLETED once the gateway confirms.  This is the only permitted
	// mutation of an audit row and happens outside the original
	// transaction by design.
	MarkRefundCompleted(ctx context.Context, modificationID string, at time.Time) error

	// OverdueNotified returns NOTIFIED waitlist entries whose
	// notification is older than cutoff, oldest first.  The expiry
	// worker feeds on this.
	OverdueNotified(ctx context.Context, cutoff time.Time, limit int) ([]model.WaitlistEntry, error)

	CreateUser(ctx context.Context, u *model.User) error
	UserByEmail(ctx context.Context, email string) (*model.User, error)
	UserByID(ctx context.Context, id uint64) (*model.User, error)
}
