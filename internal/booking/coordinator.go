// Package booking coordinates modifications to confirmed bookings:
// party-size changes, date changes and cancellation with refund.  Every
// operation runs its state change and capacity adjustment inside one
// storage transaction, appends exactly one audit row, and only then
// performs side effects (payment instructions, waitlist signals,
// notifications).  A failed side effect never rolls back a committed
// change; it is surfaced to the caller while the change stays durable.
package booking

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/calebferro/slotbook/internal/capacity"
	"github.com/calebferro/slotbook/internal/model"
	"github.com/calebferro/slotbook/internal/notify"
	"github.com/calebferro/slotbook/internal/payment"
	"github.com/calebferro/slotbook/internal/refund"
	"github.com/calebferro/slotbook/internal/storage"
	"github.com/calebferro/slotbook/internal/utils"
)

// Actor identifies the authenticated user performing an operation.
type Actor struct {
	ID   uint64
	Role string
}

func (a Actor) canManage(b *model.Booking) bool {
	return b.GuestID == a.ID || a.Role == model.RoleAdmin
}

// Signaler receives the freed-spot signal emitted after a committed
// release on an instance with an active waitlist.  Production wires the
// broker publisher here; the dev profile wires the promotion engine
// directly.
type Signaler interface {
	SpotFreed(ctx context.Context, offeringID, instanceID uint64, freed int) error
}

// Result is the outcome of a committed modification.  PriceDifference is
// positive when the guest owes more, negative when a refund is due;
// RefundAmount is the refund recorded on the audit row, when any.
type Result struct {
	Booking         *model.Booking
	PriceDifference decimal.Decimal
	RefundAmount    decimal.Decimal
}

// Config tunes the coordinator.  Zero values select the defaults.
type Config struct {
	// WindowHours is the cutoff before the event start after which
	// party-size and date modifications are rejected.  Default 48.
	WindowHours float64
	// TxRetries is how many times a transaction is retried after a
	// write conflict (deadlock victim, lock timeout).  Default 3.
	TxRetries int
	// Schedule overrides the refund tiers.  Default refund.DefaultSchedule.
	Schedule refund.Schedule
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Coordinator executes booking modifications against a Store.
type Coordinator struct {
	store       storage.Store
	gateway     payment.Gateway
	notifier    notify.Notifier
	signaler    Signaler
	schedule    refund.Schedule
	windowHours float64
	txRetries   int
	now         func() time.Time
}

// NewCoordinator wires a coordinator.  signaler may be nil, in which
// case freed spots are not signalled anywhere.
func NewCoordinator(store storage.Store, gateway payment.Gateway, notifier notify.Notifier, signaler Signaler, cfg Config) *Coordinator {
	if cfg.WindowHours <= 0 {
		cfg.WindowHours = 48
	}
	if cfg.TxRetries <= 0 {
		cfg.TxRetries = 3
	}
	if cfg.Schedule == nil {
		cfg.Schedule = refund.DefaultSchedule()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Coordinator{
		store:       store,
		gateway:     gateway,
		notifier:    notifier,
		signaler:    signaler,
		schedule:    cfg.Schedule,
		windowHours: cfg.WindowHours,
		txRetries:   cfg.TxRetries,
		now:         cfg.Now,
	}
}

// withRetry reruns fn when the store reports a write conflict.  fn must
// be safe to rerun from scratch; each attempt starts a fresh transaction.
func (c *Coordinator) withRetry(ctx context.Context, fn func(tx storage.Tx) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = c.store.WithinTx(ctx, fn)
		if err == nil || !errors.Is(err, storage.ErrConflict) || attempt >= c.txRetries {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * 25 * time.Millisecond)
	}
}

func mapNotFound(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// ModifyPartySize changes the guest count of a confirmed booking.  An
// increase must fit in the instance's remaining capacity; a decrease
// releases spots and records a pro-rated refund.  On success the new
// counts and amounts are durable even if the subsequent payment
// instruction fails; in that case Result is returned alongside a
// PaymentError.
func (c *Coordinator) ModifyPartySize(ctx context.Context, actor Actor, bookingID uint64, newPartySize int) (*Result, error) {
	if newPartySize < 1 {
		return nil, &ValidationError{Field: "new_party_size", Message: "must be at least 1"}
	}

	var (
		res         *Result
		mod         *model.BookingModification
		freed       int
		hadWaitlist bool
		offeringID  uint64
		instanceID  uint64
	)
	err := c.withRetry(ctx, func(tx storage.Tx) error {
		res, mod, freed, hadWaitlist = nil, nil, 0, false

		b, err := tx.BookingForUpdate(ctx, bookingID)
		if err != nil {
			return mapNotFound(err)
		}
		if !actor.canManage(b) {
			return ErrUnauthorized
		}
		if !b.Status.Modifiable() {
			return &InvalidStateError{BookingID: b.ID, Status: b.Status}
		}
		if newPartySize == b.GuestCount {
			return &ValidationError{Field: "new_party_size", Message: "party size is unchanged"}
		}

		inst, err := tx.InstanceForUpdate(ctx, b.InstanceID)
		if err != nil {
			return err
		}
		now := c.now()
		if hours := inst.HoursUntilStart(now); hours < c.windowHours {
			return &WindowClosedError{HoursUntilEvent: hours, WindowHours: c.windowHours}
		}

		delta := newPartySize - b.GuestCount
		if _, err := capacity.Reserve(ctx, tx, inst, delta); err != nil {
			return err
		}

		off, err := tx.OfferingByID(ctx, b.OfferingID)
		if err != nil {
			return err
		}
		diff := inst.PricePerGuest(off.BasePrice).Mul(decimal.NewFromInt(int64(delta)))
		newBase := b.BaseAmount.Add(diff)
		newTotal := b.TotalAmount.Add(diff)
		if err := tx.UpdateBookingPartySize(ctx, b.ID, newPartySize, newBase, newTotal); err != nil {
			return err
		}

		m := &model.BookingModification{
			ID:         uuid.NewString(),
			BookingID:  b.ID,
			Type:       model.ModPartySizeIncrease,
			OldValue:   strconv.Itoa(b.GuestCount),
			NewValue:   strconv.Itoa(newPartySize),
			ModifiedBy: actor.ID,
			CreatedAt:  now,
		}
		if delta < 0 {
			m.Type = model.ModPartySizeDecrease
			amt := diff.Neg()
			st := model.RefundPending
			m.RefundAmount = &amt
			m.RefundStatus = &st
			freed = -delta
			if hadWaitlist, err = tx.HasActiveWaitlist(ctx, inst.ID); err != nil {
				return err
			}
		}
		if err := tx.AppendModification(ctx, m); err != nil {
			return err
		}

		nb := *b
		nb.GuestCount = newPartySize
		nb.BaseAmount = newBase
		nb.TotalAmount = newTotal
		mod = m
		offeringID, instanceID = b.OfferingID, b.InstanceID
		res = &Result{Booking: &nb, PriceDifference: diff}
		if m.RefundAmount != nil {
			res.RefundAmount = *m.RefundAmount
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	payErr := c.settle(ctx, res.Booking, mod, res.PriceDifference)
	if freed > 0 && hadWaitlist {
		c.signalSpotFreed(ctx, offeringID, instanceID, freed)
	}
	c.sendNotification(ctx, res.Booking.GuestID, notify.TemplatePartySizeChanged, map[string]string{
		"booking_id":       strconv.FormatUint(res.Booking.ID, 10),
		"party_size":       strconv.Itoa(newPartySize),
		"price_difference": res.PriceDifference.String(),
	})
	return res, payErr
}

// ChangeBookingDate moves a confirmed booking to another instance of the
// same offering.  The full party must fit on the target; spots on the
// current instance are released in the same transaction, and the
// check-in token is regenerated because the old one encodes the old
// date.
func (c *Coordinator) ChangeBookingDate(ctx context.Context, actor Actor, bookingID, newInstanceID uint64) (*Result, error) {
	var (
		res         *Result
		mod         *model.BookingModification
		freed       int
		hadWaitlist bool
		offeringID  uint64
		oldInstID   uint64
		newStartsAt time.Time
	)
	err := c.withRetry(ctx, func(tx storage.Tx) error {
		res, mod, freed, hadWaitlist = nil, nil, 0, false

		b, err := tx.BookingForUpdate(ctx, bookingID)
		if err != nil {
			return mapNotFound(err)
		}
		if !actor.canManage(b) {
			return ErrUnauthorized
		}
		if !b.Status.Modifiable() {
			return &InvalidStateError{BookingID: b.ID, Status: b.Status}
		}
		if newInstanceID == b.InstanceID {
			return &ValidationError{Field: "new_instance_id", Message: "booking is already on this instance"}
		}

		// Lock the two instance rows in ascending ID order so two
		// opposite moves between the same pair cannot deadlock.
		firstID, secondID := b.InstanceID, newInstanceID
		if secondID < firstID {
			firstID, secondID = secondID, firstID
		}
		first, err := tx.InstanceForUpdate(ctx, firstID)
		if err != nil {
			return mapNotFound(err)
		}
		second, err := tx.InstanceForUpdate(ctx, secondID)
		if err != nil {
			return mapNotFound(err)
		}
		cur, tgt := first, second
		if cur.ID != b.InstanceID {
			cur, tgt = second, first
		}
		if tgt.OfferingID != b.OfferingID {
			return &ValidationError{Field: "new_instance_id", Message: "instance belongs to a different offering"}
		}

		now := c.now()
		if hours := cur.HoursUntilStart(now); hours < c.windowHours {
			return &WindowClosedError{HoursUntilEvent: hours, WindowHours: c.windowHours}
		}
		if !tgt.StartsAt.After(now) {
			return &ValidationError{Field: "new_instance_id", Message: "instance is in the past"}
		}

		if _, err := capacity.Reserve(ctx, tx, tgt, b.GuestCount); err != nil {
			return err
		}
		if _, err := capacity.Release(ctx, tx, cur, b.GuestCount); err != nil {
			return err
		}

		off, err := tx.OfferingByID(ctx, b.OfferingID)
		if err != nil {
			return err
		}
		newBase := tgt.PricePerGuest(off.BasePrice).Mul(decimal.NewFromInt(int64(b.GuestCount)))
		diff := newBase.Sub(b.BaseAmount)
		newTotal := b.TotalAmount.Add(diff)
		token := utils.NewOpaqueToken()
		if err := tx.ReassignBookingInstance(ctx, b.ID, tgt.ID, newBase, newTotal, token); err != nil {
			return err
		}

		m := &model.BookingModification{
			ID:         uuid.NewString(),
			BookingID:  b.ID,
			Type:       model.ModDateChange,
			OldValue:   strconv.FormatUint(cur.ID, 10),
			NewValue:   strconv.FormatUint(tgt.ID, 10),
			ModifiedBy: actor.ID,
			CreatedAt:  now,
		}
		if diff.IsNegative() {
			amt := diff.Neg()
			st := model.RefundPending
			m.RefundAmount = &amt
			m.RefundStatus = &st
		}
		if err := tx.AppendModification(ctx, m); err != nil {
			return err
		}

		if hadWaitlist, err = tx.HasActiveWaitlist(ctx, cur.ID); err != nil {
			return err
		}
		freed = b.GuestCount

		nb := *b
		nb.InstanceID = tgt.ID
		nb.BaseAmount = newBase
		nb.TotalAmount = newTotal
		nb.CheckInToken = token
		mod = m
		offeringID, oldInstID = b.OfferingID, cur.ID
		newStartsAt = tgt.StartsAt
		res = &Result{Booking: &nb, PriceDifference: diff}
		if m.RefundAmount != nil {
			res.RefundAmount = *m.RefundAmount
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	payErr := c.settle(ctx, res.Booking, mod, res.PriceDifference)
	if freed > 0 && hadWaitlist {
		c.signalSpotFreed(ctx, offeringID, oldInstID, freed)
	}
	c.sendNotification(ctx, res.Booking.GuestID, notify.TemplateDateChanged, map[string]string{
		"booking_id":       strconv.FormatUint(res.Booking.ID, 10),
		"starts_at":        newStartsAt.UTC().Format(time.RFC3339),
		"price_difference": res.PriceDifference.String(),
	})
	return res, payErr
}

// CancelBookingWithRefund cancels a confirmed booking, releases its
// spots and records the refund owed under the offering's cancellation
// policy.  There is no time cutoff: a late cancellation simply refunds
// nothing.  The refund instruction runs after commit; if it fails the
// audit row stays PENDING and a PaymentError is returned alongside the
// result.
func (c *Coordinator) CancelBookingWithRefund(ctx context.Context, actor Actor, bookingID uint64, reason *string) (*Result, error) {
	var (
		res         *Result
		mod         *model.BookingModification
		freed       int
		hadWaitlist bool
		offeringID  uint64
		instanceID  uint64
	)
	err := c.withRetry(ctx, func(tx storage.Tx) error {
		res, mod, freed, hadWaitlist = nil, nil, 0, false

		b, err := tx.BookingForUpdate(ctx, bookingID)
		if err != nil {
			return mapNotFound(err)
		}
		if !actor.canManage(b) {
			return ErrUnauthorized
		}
		if !b.Status.Modifiable() {
			return &InvalidStateError{BookingID: b.ID, Status: b.Status}
		}

		inst, err := tx.InstanceForUpdate(ctx, b.InstanceID)
		if err != nil {
			return err
		}
		off, err := tx.OfferingByID(ctx, b.OfferingID)
		if err != nil {
			return err
		}

		now := c.now()
		refundAmt := c.schedule.Calculate(b.TotalAmount, inst.HoursUntilStart(now), off.CancellationPolicy)

		if err := tx.MarkBookingCancelled(ctx, b.ID, now); err != nil {
			return err
		}
		if _, err := capacity.Release(ctx, tx, inst, b.GuestCount); err != nil {
			return err
		}

		m := &model.BookingModification{
			ID:         uuid.NewString(),
			BookingID:  b.ID,
			Type:       model.ModCancellation,
			OldValue:   string(b.Status),
			NewValue:   string(model.BookingCancelled),
			Reason:     reason,
			ModifiedBy: actor.ID,
			CreatedAt:  now,
		}
		if refundAmt.IsPositive() {
			st := model.RefundPending
			m.RefundAmount = &refundAmt
			m.RefundStatus = &st
		}
		if err := tx.AppendModification(ctx, m); err != nil {
			return err
		}

		if hadWaitlist, err = tx.HasActiveWaitlist(ctx, inst.ID); err != nil {
			return err
		}
		freed = b.GuestCount

		nb := *b
		nb.Status = model.BookingCancelled
		nb.CancelledAt = &now
		mod = m
		offeringID, instanceID = b.OfferingID, b.InstanceID
		res = &Result{Booking: &nb, RefundAmount: refundAmt}
		return nil
	})
	if err != nil {
		return nil, err
	}

	payErr := c.settle(ctx, res.Booking, mod, decimal.Zero)
	if freed > 0 && hadWaitlist {
		c.signalSpotFreed(ctx, offeringID, instanceID, freed)
	}
	c.sendNotification(ctx, res.Booking.GuestID, notify.TemplateCancelled, map[string]string{
		"booking_id":    strconv.FormatUint(res.Booking.ID, 10),
		"refund_amount": res.RefundAmount.String(),
	})
	return res, payErr
}

// JoinWaitlist enqueues the actor for a sold-out instance and returns
// the created entry with its 1-based FIFO position.
func (c *Coordinator) JoinWaitlist(ctx context.Context, actor Actor, offeringID, instanceID uint64, partySize int) (*model.WaitlistEntry, int, error) {
	if partySize < 1 {
		return nil, 0, &ValidationError{Field: "party_size", Message: "must be at least 1"}
	}

	var (
		entry *model.WaitlistEntry
		pos   int
	)
	err := c.withRetry(ctx, func(tx storage.Tx) error {
		entry, pos = nil, 0

		inst, err := tx.InstanceForUpdate(ctx, instanceID)
		if err != nil {
			return mapNotFound(err)
		}
		if inst.OfferingID != offeringID {
			return ErrNotFound
		}
		now := c.now()
		if !inst.StartsAt.After(now) {
			return &ValidationError{Field: "instance_id", Message: "instance is in the past"}
		}
		if inst.AvailableSpots >= partySize {
			return &ValidationError{Field: "party_size", Message: "instance still has availability; book directly"}
		}

		e := &model.WaitlistEntry{
			OfferingID: offeringID,
			InstanceID: instanceID,
			GuestID:    actor.ID,
			PartySize:  partySize,
			Status:     model.WaitlistActive,
			ClaimToken: utils.NewOpaqueToken(),
			JoinedAt:   now,
		}
		if err := tx.CreateWaitlistEntry(ctx, e); err != nil {
			return err
		}
		if pos, err = tx.WaitlistPosition(ctx, offeringID, instanceID, e.JoinedAt); err != nil {
			return err
		}
		entry = e
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return entry, pos, nil
}

// settle executes the payment side effect for a committed modification.
// chargeAmount > 0 issues a charge keyed by the modification ID; a
// refund recorded on the audit row issues a partial refund against the
// booking's payment reference and flips the row to COMPLETED on success.
func (c *Coordinator) settle(ctx context.Context, b *model.Booking, mod *model.BookingModification, chargeAmount decimal.Decimal) error {
	if chargeAmount.IsPositive() {
		_, err := c.gateway.Charge(ctx, strconv.FormatUint(b.GuestID, 10), chargeAmount, b.Currency, map[string]string{
			"booking_id":      strconv.FormatUint(b.ID, 10),
			"modification_id": mod.ID,
		})
		if err != nil {
			log.Printf("booking: charge for modification %s failed: %v", mod.ID, err)
			return &PaymentError{Op: "charge", Amount: chargeAmount, Err: err}
		}
		return nil
	}

	if mod.RefundAmount == nil || !mod.RefundAmount.IsPositive() {
		return nil
	}
	amt := *mod.RefundAmount
	if b.PaymentRef == nil {
		log.Printf("booking: booking %d has no payment ref; refund %s stays pending (modification %s)", b.ID, amt.String(), mod.ID)
		return nil
	}
	if err := c.gateway.PartialRefund(ctx, *b.PaymentRef, amt, b.Currency); err != nil {
		log.Printf("booking: refund for modification %s failed: %v", mod.ID, err)
		return &PaymentError{Op: "refund", Amount: amt, Err: err}
	}
	if err := c.store.MarkRefundCompleted(ctx, mod.ID, c.now()); err != nil {
		log.Printf("booking: mark refund completed for modification %s failed: %v", mod.ID, err)
	}
	return nil
}

func (c *Coordinator) signalSpotFreed(ctx context.Context, offeringID, instanceID uint64, freed int) {
	if c.signaler == nil {
		return
	}
	if err := c.signaler.SpotFreed(ctx, offeringID, instanceID, freed); err != nil {
		log.Printf("booking: spot-freed signal for instance %d failed: %v", instanceID, err)
	}
}

func (c *Coordinator) sendNotification(ctx context.Context, userID uint64, template string, data map[string]string) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Send(ctx, userID, template, data); err != nil {
		log.Printf("booking: notification %s to user %d failed: %v", template, userID, err)
	}
}
