package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBookingStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to BookingStatus
		want     bool
	}{
		{BookingPendingPayment, BookingConfirmed, true},
		{BookingPendingPayment, BookingCancelled, true},
		{BookingPendingPayment, BookingCheckedIn, false},
		{BookingConfirmed, BookingCheckedIn, true},
		{BookingConfirmed, BookingCancelled, true},
		{BookingConfirmed, BookingNoShow, true},
		{BookingConfirmed, BookingCompleted, false},
		{BookingCheckedIn, BookingCompleted, true},
		{BookingCheckedIn, BookingCancelled, false},
		{BookingCancelled, BookingConfirmed, false},
		{BookingCompleted, BookingConfirmed, false},
		{BookingNoShow, BookingConfirmed, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestBookingStatusModifiable(t *testing.T) {
	assert.True(t, BookingConfirmed.Modifiable())
	for _, s := range []BookingStatus{
		BookingPendingPayment, BookingCheckedIn, BookingCompleted, BookingCancelled, BookingNoShow,
	} {
		assert.False(t, s.Modifiable(), "%s must not be modifiable", s)
	}
}

func TestConsumesCapacity(t *testing.T) {
	for _, s := range []BookingStatus{BookingConfirmed, BookingCheckedIn, BookingCompleted} {
		b := Booking{Status: s}
		assert.True(t, b.ConsumesCapacity(), "%s holds spots", s)
	}
	for _, s := range []BookingStatus{BookingPendingPayment, BookingCancelled, BookingNoShow} {
		b := Booking{Status: s}
		assert.False(t, b.ConsumesCapacity(), "%s holds no spots", s)
	}
}
