// Package waitlist implements the promotion engine: when spots free up
// on an instance with guests waiting, the oldest eligible ACTIVE entry
// is moved to NOTIFIED and given a bounded claim window.  Claims and
// expiries race on the entry's status; a compare-on-status update in
// storage decides the winner, so no entry can be both claimed and
// expired.
package waitlist

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/calebferro/slotbook/internal/capacity"
	"github.com/calebferro/slotbook/internal/model"
	"github.com/calebferro/slotbook/internal/notify"
	"github.com/calebferro/slotbook/internal/storage"
	"github.com/calebferro/slotbook/internal/utils"
)

// Sentinel errors for the claim path.
var (
	// ErrClaimWindowClosed is returned when the claim arrives after the
	// window elapsed or the entry was already resolved.
	ErrClaimWindowClosed = errors.New("claim window is closed")
	// ErrNotOwner is returned when the claim token belongs to another
	// guest.
	ErrNotOwner = errors.New("claim token belongs to another guest")
)

// Config tunes the promoter.  Zero values select the defaults.
type Config struct {
	// ClaimWindow is how long a NOTIFIED guest has to claim.  Default
	// 10 minutes.
	ClaimWindow time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Promoter owns every waitlist status transition past ACTIVE.
type Promoter struct {
	store       storage.Store
	notifier    notify.Notifier
	claimWindow time.Duration
	now         func() time.Time
}

func NewPromoter(store storage.Store, notifier notify.Notifier, cfg Config) *Promoter {
	if cfg.ClaimWindow <= 0 {
		cfg.ClaimWindow = 10 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Promoter{
		store:       store,
		notifier:    notifier,
		claimWindow: cfg.ClaimWindow,
		now:         cfg.Now,
	}
}

// SpotFreed promotes the head of the queue for the instance, if any
// entry fits in the spots currently available.  The availability is
// re-read under lock rather than trusted from the event: by the time
// the signal arrives the spot may already be gone.  Implements the
// coordinator's Signaler and the broker consumer's handler.
func (p *Promoter) SpotFreed(ctx context.Context, offeringID, instanceID uint64, freed int) error {
	var promoted *model.WaitlistEntry
	err := p.store.WithinTx(ctx, func(tx storage.Tx) error {
		promoted = nil

		inst, err := tx.InstanceForUpdate(ctx, instanceID)
		if err != nil {
			return err
		}
		if inst.AvailableSpots <= 0 {
			return nil
		}
		e, err := tx.OldestEligibleActiveEntry(ctx, offeringID, instanceID, inst.AvailableSpots)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil
			}
			return err
		}
		now := p.now()
		ok, err := tx.TransitionWaitlist(ctx, e.ID, model.WaitlistActive, model.WaitlistNotified, &now)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		e.Status = model.WaitlistNotified
		e.NotifiedAt = &now
		promoted = e
		return nil
	})
	if err != nil {
		return err
	}
	if promoted == nil {
		return nil
	}

	expiresAt := promoted.NotifiedAt.Add(p.claimWindow)
	p.sendNotification(ctx, promoted.GuestID, notify.TemplateWaitlistSpotOpen, map[string]string{
		"instance_id": strconv.FormatUint(promoted.InstanceID, 10),
		"party_size":  strconv.Itoa(promoted.PartySize),
		"claim_token": promoted.ClaimToken,
		"expires_at":  expiresAt.UTC().Format(time.RFC3339),
	})
	return nil
}

// Claim converts a NOTIFIED entry into a CONFIRMED booking.  The entry
// must belong to the caller, still be inside its claim window, and the
// full party must fit in the instance's remaining capacity.  The status
// transition and the capacity reservation commit together.
func (p *Promoter) Claim(ctx context.Context, guestID uint64, token string) (*model.Booking, error) {
	var booking *model.Booking
	err := p.store.WithinTx(ctx, func(tx storage.Tx) error {
		booking = nil

		e, err := tx.WaitlistEntryByClaimToken(ctx, token)
		if err != nil {
			return err
		}
		if e.GuestID != guestID {
			return ErrNotOwner
		}
		if e.Status != model.WaitlistNotified || e.NotifiedAt == nil {
			return ErrClaimWindowClosed
		}
		now := p.now()
		if now.After(e.NotifiedAt.Add(p.claimWindow)) {
			// Leave the entry NOTIFIED; the expiry worker owns the
			// NOTIFIED -> EXPIRED transition.
			return ErrClaimWindowClosed
		}

		inst, err := tx.InstanceForUpdate(ctx, e.InstanceID)
		if err != nil {
			return err
		}
		if _, err := capacity.Reserve(ctx, tx, inst, e.PartySize); err != nil {
			return err
		}
		ok, err := tx.TransitionWaitlist(ctx, e.ID, model.WaitlistNotified, model.WaitlistClaimed, nil)
		if err != nil {
			return err
		}
		if !ok {
			return ErrClaimWindowClosed
		}

		off, err := tx.OfferingByID(ctx, e.OfferingID)
		if err != nil {
			return err
		}
		amount := inst.PricePerGuest(off.BasePrice).Mul(decimal.NewFromInt(int64(e.PartySize)))
		b := &model.Booking{
			OfferingID:   e.OfferingID,
			InstanceID:   e.InstanceID,
			GuestID:      e.GuestID,
			GuestCount:   e.PartySize,
			BaseAmount:   amount,
			TotalAmount:  amount,
			Currency:     off.Currency,
			Status:       model.BookingConfirmed,
			CheckInToken: utils.NewOpaqueToken(),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.CreateBooking(ctx, b); err != nil {
			return err
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.sendNotification(ctx, booking.GuestID, notify.TemplateWaitlistClaimed, map[string]string{
		"booking_id":  strconv.FormatUint(booking.ID, 10),
		"instance_id": strconv.FormatUint(booking.InstanceID, 10),
	})
	return booking, nil
}

// ExpireOverdue resolves NOTIFIED entries whose claim window has
// elapsed and cascades each freed offer to the next guest in line.  It
// returns how many entries were expired.  Safe to run concurrently with
// claims: the compare-on-status transition lets exactly one side win.
func (p *Promoter) ExpireOverdue(ctx context.Context) (int, error) {
	cutoff := p.now().Add(-p.claimWindow)
	overdue, err := p.store.OverdueNotified(ctx, cutoff, 50)
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range overdue {
		e := &overdue[i]
		var won bool
		err := p.store.WithinTx(ctx, func(tx storage.Tx) error {
			ok, err := tx.TransitionWaitlist(ctx, e.ID, model.WaitlistNotified, model.WaitlistExpired, nil)
			won = ok
			return err
		})
		if err != nil {
			log.Printf("waitlist: expire entry %d failed: %v", e.ID, err)
			continue
		}
		if !won {
			// A claim got there first.
			continue
		}
		expired++

		p.sendNotification(ctx, e.GuestID, notify.TemplateWaitlistClaimExpired, map[string]string{
			"instance_id": strconv.FormatUint(e.InstanceID, 10),
		})

		// The spot the expired guest was offered is still free; offer
		// it to the next entry in line.
		if err := p.SpotFreed(ctx, e.OfferingID, e.InstanceID, e.PartySize); err != nil {
			log.Printf("waitlist: cascade after expiry of entry %d failed: %v", e.ID, err)
		}
	}
	return expired, nil
}

func (p *Promoter) sendNotification(ctx context.Context, userID uint64, template string, data map[string]string) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.Send(ctx, userID, template, data); err != nil {
		log.Printf("waitlist: notification %s to user %d failed: %v", template, userID, err)
	}
}
