package booking_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calebferro/slotbook/internal/booking"
	"github.com/calebferro/slotbook/internal/capacity"
	"github.com/calebferro/slotbook/internal/model"
	"github.com/calebferro/slotbook/internal/payment"
	"github.com/calebferro/slotbook/internal/storage/memory"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type chargeCall struct {
	CustomerRef string
	Amount      decimal.Decimal
	Currency    string
	Metadata    map[string]string
}

type refundCall struct {
	PaymentRef string
	Amount     decimal.Decimal
}

type fakeGateway struct {
	mu         sync.Mutex
	failCharge bool
	failRefund bool
	charges    []chargeCall
	refunds    []refundCall
}

func (g *fakeGateway) Charge(ctx context.Context, customerRef string, amount decimal.Decimal, currency string, metadata map[string]string) (payment.ChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failCharge {
		return payment.ChargeResult{}, errors.New("card declined")
	}
	g.charges = append(g.charges, chargeCall{customerRef, amount, currency, metadata})
	return payment.ChargeResult{ChargeID: "ch_test"}, nil
}

func (g *fakeGateway) PartialRefund(ctx context.Context, paymentRef string, amount decimal.Decimal, currency string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failRefund {
		return errors.New("gateway timeout")
	}
	g.refunds = append(g.refunds, refundCall{paymentRef, amount})
	return nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	sends []string
}

func (n *fakeNotifier) Send(ctx context.Context, userID uint64, template string, data map[string]string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sends = append(n.sends, template)
	return nil
}

type signalCall struct {
	OfferingID uint64
	InstanceID uint64
	Freed      int
}

type fakeSignaler struct {
	mu    sync.Mutex
	calls []signalCall
}

func (s *fakeSignaler) SpotFreed(ctx context.Context, offeringID, instanceID uint64, freed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, signalCall{offeringID, instanceID, freed})
	return nil
}

type env struct {
	store    *memory.Store
	gateway  *fakeGateway
	notifier *fakeNotifier
	signaler *fakeSignaler
	coord    *booking.Coordinator
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		store:    memory.New(),
		gateway:  &fakeGateway{},
		notifier: &fakeNotifier{},
		signaler: &fakeSignaler{},
	}
	e.coord = booking.NewCoordinator(e.store, e.gateway, e.notifier, e.signaler, booking.Config{
		Now: func() time.Time { return testNow },
	})
	e.store.PutOffering(model.Offering{
		ID:                 1,
		HostID:             99,
		Title:              "Pottery Workshop",
		BasePrice:          dec("50.00"),
		Currency:           "USD",
		CancellationPolicy: model.PolicyModerate,
	})
	return e
}

func (e *env) putInstance(id uint64, hoursOut float64, capTotal, available int) {
	e.store.PutInstance(model.Instance{
		ID:             id,
		OfferingID:     1,
		StartsAt:       testNow.Add(time.Duration(hoursOut * float64(time.Hour))),
		EndsAt:         testNow.Add(time.Duration((hoursOut + 2) * float64(time.Hour))),
		Capacity:       capTotal,
		AvailableSpots: available,
	})
}

func (e *env) putBooking(id, guestID, instanceID uint64, guests int, total string) {
	ref := "pay_" + strconv.FormatUint(id, 10)
	e.store.PutBooking(model.Booking{
		ID:           id,
		OfferingID:   1,
		InstanceID:   instanceID,
		GuestID:      guestID,
		GuestCount:   guests,
		BaseAmount:   dec(total),
		TotalAmount:  dec(total),
		Currency:     "USD",
		Status:       model.BookingConfirmed,
		CheckInToken: "token-original",
		PaymentRef:   &ref,
	})
}

const guest = uint64(7)

var asGuest = booking.Actor{ID: guest, Role: model.RoleGuest}

func TestModifyPartySizeIncrease(t *testing.T) {
	e := newEnv(t)
	e.putInstance(1, 100, 10, 4)
	e.putBooking(1, guest, 1, 2, "100.00")

	res, err := e.coord.ModifyPartySize(context.Background(), asGuest, 1, 4)
	require.NoError(t, err)

	assert.Equal(t, 4, res.Booking.GuestCount)
	assert.True(t, res.PriceDifference.Equal(dec("100.00")), "2 extra guests at 50.00")
	assert.True(t, res.Booking.TotalAmount.Equal(dec("200.00")))

	inst, _ := e.store.InstanceByID(context.Background(), 1)
	assert.Equal(t, 2, inst.AvailableSpots)

	b, _ := e.store.BookingByID(context.Background(), 1)
	assert.Equal(t, 4, b.GuestCount)

	mods, _ := e.store.ModificationsByBooking(context.Background(), 1)
	require.Len(t, mods, 1)
	assert.Equal(t, model.ModPartySizeIncrease, mods[0].Type)
	assert.Equal(t, "2", mods[0].OldValue)
	assert.Equal(t, "4", mods[0].NewValue)
	assert.Nil(t, mods[0].RefundAmount)

	require.Len(t, e.gateway.charges, 1)
	assert.True(t, e.gateway.charges[0].Amount.Equal(dec("100.00")))
	assert.Equal(t, mods[0].ID, e.gateway.charges[0].Metadata["modification_id"])
	assert.Empty(t, e.signaler.calls, "an increase frees nothing")
}

func TestModifyPartySizeInsufficientCapacity(t *testing.T) {
	e := newEnv(t)
	e.putInstance(1, 100, 10, 4)
	e.putBooking(1, guest, 1, 2, "100.00")

	_, err := e.coord.ModifyPartySize(context.Background(), asGuest, 1, 9)
	assert.ErrorIs(t, err, capacity.ErrInsufficientCapacity)

	// rejected attempt: no state change, no audit row, no payment
	b, _ := e.store.BookingByID(context.Background(), 1)
	assert.Equal(t, 2, b.GuestCount)
	inst, _ := e.store.InstanceByID(context.Background(), 1)
	assert.Equal(t, 4, inst.AvailableSpots)
	mods, _ := e.store.ModificationsByBooking(context.Background(), 1)
	assert.Empty(t, mods)
	assert.Empty(t, e.gateway.charges)
}

func TestModifyPartySizeDecreaseRefundsAndSignals(t *testing.T) {
	e := newEnv(t)
	e.putInstance(1, 10, 100, 0)
	e.putBooking(1, guest, 1, 3, "150.00")
	e.store.PutWaitlistEntry(model.WaitlistEntry{
		ID: 1, OfferingID: 1, InstanceID: 1, GuestID: 42,
		PartySize: 2, Status: model.WaitlistActive,
		ClaimToken: "tok-42", JoinedAt: testNow.Add(-time.Hour),
	})

	res, err := e.coord.ModifyPartySize(context.Background(), asGuest, 1, 1)
	require.NoError(t, err)

	assert.True(t, res.PriceDifference.Equal(dec("-100.00")))
	assert.True(t, res.RefundAmount.Equal(dec("100.00")))

	inst, _ := e.store.InstanceByID(context.Background(), 1)
	assert.Equal(t, 2, inst.AvailableSpots)

	mods, _ := e.store.ModificationsByBooking(context.Background(), 1)
	require.Len(t, mods, 1)
	assert.Equal(t, model.ModPartySizeDecrease, mods[0].Type)
	require.NotNil(t, mods[0].RefundAmount)
	assert.True(t, mods[0].RefundAmount.Equal(dec("100.00")))
	require.NotNil(t, mods[0].RefundStatus)
	assert.Equal(t, model.RefundCompleted, *mods[0].RefundStatus, "gateway accepted, so the audit row flips")

	require.Len(t, e.gateway.refunds, 1)
	assert.True(t, e.gateway.refunds[0].Amount.Equal(dec("100.00")))

	require.Len(t, e.signaler.calls, 1)
	assert.Equal(t, signalCall{OfferingID: 1, InstanceID: 1, Freed: 2}, e.signaler.calls[0])
}

func TestModifyPartySizeDecreaseNoWaitlistNoSignal(t *testing.T) {
	e := newEnv(t)
	e.putInstance(1, 100, 10, 5)
	e.putBooking(1, guest, 1, 3, "150.00")

	_, err := e.coord.ModifyPartySize(context.Background(), asGuest, 1, 2)
	require.NoError(t, err)
	assert.Empty(t, e.signaler.calls, "nobody is waiting, nothing to signal")
}

func TestModifyPartySizeWindowClosed(t *testing.T) {
	e := newEnv(t)
	e.putInstance(1, 47.9, 10, 4)
	e.putBooking(1, guest, 1, 2, "100.00")

	_, err := e.coord.ModifyPartySize(context.Background(), asGuest, 1, 3)
	assert.ErrorIs(t, err, booking.ErrWindowClosed)

	var wErr *booking.WindowClosedError
	require.True(t, errors.As(err, &wErr))
	assert.InDelta(t, 47.9, wErr.HoursUntilEvent, 0.01)

	mods, _ := e.store.ModificationsByBooking(context.Background(), 1)
	assert.Empty(t, mods, "rejected attempts leave no audit row")
}

func TestModifyPartySizeAuthorization(t *testing.T) {
	e := newEnv(t)
	e.putInstance(1, 100, 10, 4)
	e.putBooking(1, guest, 1, 2, "100.00")

	_, err := e.coord.ModifyPartySize(context.Background(), booking.Actor{ID: 8, Role: model.RoleGuest}, 1, 3)
	assert.ErrorIs(t, err, booking.ErrUnauthorized)

	// admins can act on any booking
	_, err = e.coord.ModifyPartySize(context.Background(), booking.Actor{ID: 8, Role: model.RoleAdmin}, 1, 3)
	assert.NoError(t, err)
}

func TestModifyPartySizeInvalidState(t *testing.T) {
	e := newEnv(t)
	e.putInstance(1, 100, 10, 4)
	e.putBooking(1, guest, 1, 2, "100.00")
	b, _ := e.store.BookingByID(context.Background(), 1)
	b.Status = model.BookingCheckedIn
	e.store.PutBooking(*b)

	_, err := e.coord.ModifyPartySize(context.Background(), asGuest, 1, 3)
	assert.ErrorIs(t, err, booking.ErrInvalidState)
}

func TestModifyPartySizeValidation(t *testing.T) {
	e := newEnv(t)
	e.putInstance(1, 100, 10, 4)
	e.putBooking(1, guest, 1, 2, "100.00")

	_, err := e.coord.ModifyPartySize(context.Background(), asGuest, 1, 0)
	assert.ErrorIs(t, err, booking.ErrValidation)

	_, err = e.coord.ModifyPartySize(context.Background(), asGuest, 1, 2)
	assert.ErrorIs(t, err, booking.ErrValidation, "unchanged size is rejected")

	_, err = e.coord.ModifyPartySize(context.Background(), asGuest, 99, 3)
	assert.ErrorIs(t, err, booking.ErrNotFound)
}

func TestModifyPartySizePaymentFailureAfterCommit(t *testing.T) {
	e := newEnv(t)
	e.gateway.failCharge = true
	e.putInstance(1, 100, 10, 4)
	e.putBooking(1, guest, 1, 2, "100.00")

	res, err := e.coord.ModifyPartySize(context.Background(), asGuest, 1, 3)
	assert.ErrorIs(t, err, booking.ErrPaymentFailed)
	require.NotNil(t, res, "the committed change is returned alongside the payment error")

	// the modification stays durable even though the charge failed
	b, _ := e.store.BookingByID(context.Background(), 1)
	assert.Equal(t, 3, b.GuestCount)
	mods, _ := e.store.ModificationsByBooking(context.Background(), 1)
	assert.Len(t, mods, 1)
}

func TestConcurrentIncreasesNeverOverbook(t *testing.T) {
	e := newEnv(t)
	e.putInstance(1, 20, 20, 5)
	for i := uint64(1); i <= 10; i++ {
		e.putBooking(i, i, 1, 1, "50.00")
	}

	var wg sync.WaitGroup
	results := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			actor := booking.Actor{ID: uint64(n + 1), Role: model.RoleGuest}
			_, results[n] = e.coord.ModifyPartySize(context.Background(), actor, uint64(n+1), 2)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, capacity.ErrInsufficientCapacity)
		}
	}
	assert.Equal(t, 5, succeeded, "exactly the available spots may be granted")

	inst, _ := e.store.InstanceByID(context.Background(), 1)
	assert.Equal(t, 0, inst.AvailableSpots)
}

func TestChangeBookingDate(t *testing.T) {
	e := newEnv(t)
	e.putInstance(1, 100, 10, 4)
	override := dec("60.00")
	e.store.PutInstance(model.Instance{
		ID: 2, OfferingID: 1,
		StartsAt: testNow.Add(200 * time.Hour), EndsAt: testNow.Add(202 * time.Hour),
		Capacity: 10, AvailableSpots: 10, PriceOverride: &override,
	})
	e.putBooking(1, guest, 1, 2, "100.00")

	res, err := e.coord.ChangeBookingDate(context.Background(), asGuest, 1, 2)
	require.NoError(t, err)

	assert.Equal(t, uint64(2), res.Booking.InstanceID)
	assert.True(t, res.Booking.BaseAmount.Equal(dec("120.00")), "2 guests at the 60.00 override")
	assert.True(t, res.PriceDifference.Equal(dec("20.00")))
	assert.NotEqual(t, "token-original", res.Booking.CheckInToken, "check-in token is regenerated")

	oldInst, _ := e.store.InstanceByID(context.Background(), 1)
	newInst, _ := e.store.InstanceByID(context.Background(), 2)
	assert.Equal(t, 6, oldInst.AvailableSpots)
	assert.Equal(t, 8, newInst.AvailableSpots)

	mods, _ := e.store.ModificationsByBooking(context.Background(), 1)
	require.Len(t, mods, 1)
	assert.Equal(t, model.ModDateChange, mods[0].Type)
	assert.Equal(t, "1", mods[0].OldValue)
	assert.Equal(t, "2", mods[0].NewValue)

	require.Len(t, e.gateway.charges, 1)
	assert.True(t, e.gateway.charges[0].Amount.Equal(dec("20.00")))
}

func TestChangeBookingDateTargetFull(t *testing.T) {
	e := newEnv(t)
	e.putInstance(1, 100, 10, 4)
	e.putInstance(2, 200, 10, 1)
	e.putBooking(1, guest, 1, 2, "100.00")

	_, err := e.coord.ChangeBookingDate(context.Background(), asGuest, 1, 2)
	assert.ErrorIs(t, err, capacity.ErrInsufficientCapacity)

	// atomic: the old instance keeps its spots
	oldInst, _ := e.store.InstanceByID(context.Background(), 1)
	assert.Equal(t, 4, oldInst.AvailableSpots)
	b, _ := e.store.BookingByID(context.Background(), 1)
	assert.Equal(t, uint64(1), b.InstanceID)
}

func TestChangeBookingDateValidation(t *testing.T) {
	e := newEnv(t)
	e.putInstance(1, 100, 10, 4)
	e.putBooking(1, guest, 1, 2, "100.00")

	_, err := e.coord.ChangeBookingDate(context.Background(), asGuest, 1, 1)
	assert.ErrorIs(t, err, booking.ErrValidation, "same instance is rejected")

	e.store.PutOffering(model.Offering{ID: 2, HostID: 99, Title: "Other", BasePrice: dec("10.00"), Currency: "USD", CancellationPolicy: model.PolicyFlexible})
	e.store.PutInstance(model.Instance{
		ID: 3, OfferingID: 2,
		StartsAt: testNow.Add(200 * time.Hour), EndsAt: testNow.Add(202 * time.Hour),
		Capacity: 10, AvailableSpots: 10,
	})
	_, err = e.coord.ChangeBookingDate(context.Background(), asGuest, 1, 3)
	assert.ErrorIs(t, err, booking.ErrValidation, "cross-offering move is rejected")
}

func TestCancelBookingWithRefund(t *testing.T) {
	e := newEnv(t)
	e.putInstance(1, 100, 10, 4) // 100h out, MODERATE -> 50%
	e.putBooking(1, guest, 1, 2, "100.00")
	e.store.PutWaitlistEntry(model.WaitlistEntry{
		ID: 1, OfferingID: 1, InstanceID: 1, GuestID: 42,
		PartySize: 2, Status: model.WaitlistActive,
		ClaimToken: "tok-42", JoinedAt: testNow.Add(-time.Hour),
	})

	reason := "change of plans"
	res, err := e.coord.CancelBookingWithRefund(context.Background(), asGuest, 1, &reason)
	require.NoError(t, err)

	assert.Equal(t, model.BookingCancelled, res.Booking.Status)
	assert.True(t, res.RefundAmount.Equal(dec("50.00")), "50%% tier between 24h and 168h")

	b, _ := e.store.BookingByID(context.Background(), 1)
	assert.Equal(t, model.BookingCancelled, b.Status)
	require.NotNil(t, b.CancelledAt)

	inst, _ := e.store.InstanceByID(context.Background(), 1)
	assert.Equal(t, 6, inst.AvailableSpots)

	mods, _ := e.store.ModificationsByBooking(context.Background(), 1)
	require.Len(t, mods, 1)
	assert.Equal(t, model.ModCancellation, mods[0].Type)
	require.NotNil(t, mods[0].Reason)
	assert.Equal(t, reason, *mods[0].Reason)
	require.NotNil(t, mods[0].RefundStatus)
	assert.Equal(t, model.RefundCompleted, *mods[0].RefundStatus)

	require.Len(t, e.gateway.refunds, 1)
	assert.True(t, e.gateway.refunds[0].Amount.Equal(dec("50.00")))
	require.Len(t, e.signaler.calls, 1)
	assert.Equal(t, 2, e.signaler.calls[0].Freed)
}

func TestCancelLateRefundsNothingButStillCancels(t *testing.T) {
	e := newEnv(t)
	e.putInstance(1, 10, 10, 4) // inside 24h, MODERATE -> 0%
	e.putBooking(1, guest, 1, 2, "100.00")

	res, err := e.coord.CancelBookingWithRefund(context.Background(), asGuest, 1, nil)
	require.NoError(t, err)

	assert.True(t, res.RefundAmount.IsZero())
	assert.Equal(t, model.BookingCancelled, res.Booking.Status)
	assert.Empty(t, e.gateway.refunds)

	mods, _ := e.store.ModificationsByBooking(context.Background(), 1)
	require.Len(t, mods, 1)
	assert.Nil(t, mods[0].RefundAmount, "no refund recorded for a zero refund")
}

func TestCancelTwiceFailsInvalidState(t *testing.T) {
	e := newEnv(t)
	e.putInstance(1, 100, 10, 4)
	e.putBooking(1, guest, 1, 2, "100.00")

	_, err := e.coord.CancelBookingWithRefund(context.Background(), asGuest, 1, nil)
	require.NoError(t, err)

	_, err = e.coord.CancelBookingWithRefund(context.Background(), asGuest, 1, nil)
	assert.ErrorIs(t, err, booking.ErrInvalidState)

	inst, _ := e.store.InstanceByID(context.Background(), 1)
	assert.Equal(t, 6, inst.AvailableSpots, "spots released exactly once")
}

func TestJoinWaitlist(t *testing.T) {
	e := newEnv(t)
	e.putInstance(1, 100, 10, 0)

	entry, pos, err := e.coord.JoinWaitlist(context.Background(), asGuest, 1, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
	assert.Equal(t, model.WaitlistActive, entry.Status)
	assert.NotEmpty(t, entry.ClaimToken)

	_, pos2, err := e.coord.JoinWaitlist(context.Background(), booking.Actor{ID: 8, Role: model.RoleGuest}, 1, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, pos2, "FIFO position by join time")
}

func TestJoinWaitlistRejectedWhenSpaceExists(t *testing.T) {
	e := newEnv(t)
	e.putInstance(1, 100, 10, 5)

	_, _, err := e.coord.JoinWaitlist(context.Background(), asGuest, 1, 1, 3)
	assert.ErrorIs(t, err, booking.ErrValidation)

	// a party larger than what's left may still queue
	_, pos, err := e.coord.JoinWaitlist(context.Background(), asGuest, 1, 1, 6)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
}
