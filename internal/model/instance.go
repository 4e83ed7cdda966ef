package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// InstanceStatus is derived from the spot counters on every read; it is
// never the source of truth.
type InstanceStatus string

const (
	InstanceAvailable InstanceStatus = "AVAILABLE"
	InstanceLimited   InstanceStatus = "LIMITED"
	InstanceSoldOut   InstanceStatus = "SOLD_OUT"
)

// limitedThreshold is the availability ratio below which an instance is
// reported as LIMITED.
const limitedThreshold = 0.30

// Instance is one bookable occurrence of an offering: a specific start
// time with its own capacity counter.  AvailableSpots is mutated only by
// the capacity ledger, inside the same transaction as the booking change
// that caused it, so that
//
//	available_spots + Σ(guest_count of live bookings) == capacity
//
// holds at all times.
type Instance struct {
	ID             uint64           // instances.id
	OfferingID     uint64           // instances.offering_id
	StartsAt       time.Time        // instances.starts_at
	EndsAt         time.Time        // instances.ends_at
	Capacity       int              // instances.capacity (immutable)
	AvailableSpots int              // instances.available_spots (0..capacity)
	PriceOverride  *decimal.Decimal // instances.price_override (nullable)
	CreatedAt      time.Time        // instances.created_at
	UpdatedAt      time.Time        // instances.updated_at
}

// DeriveInstanceStatus computes the display status from the counters.
// SOLD_OUT when nothing is left, LIMITED under 30% availability,
// AVAILABLE otherwise.
func DeriveInstanceStatus(availableSpots, capacity int) InstanceStatus {
	if availableSpots <= 0 {
		return InstanceSoldOut
	}
	if capacity > 0 && float64(availableSpots)/float64(capacity) < limitedThreshold {
		return InstanceLimited
	}
	return InstanceAvailable
}

// Status derives the current availability status of the instance.
func (i *Instance) Status() InstanceStatus {
	return DeriveInstanceStatus(i.AvailableSpots, i.Capacity)
}

// PricePerGuest returns the effective per-guest price: the instance
// override when present, otherwise the offering's base price.
func (i *Instance) PricePerGuest(basePrice decimal.Decimal) decimal.Decimal {
	if i.PriceOverride != nil {
		return *i.PriceOverride
	}
	return basePrice
}

// HoursUntilStart returns the (possibly negative) number of hours between
// now and the instance start time.  Used for the modification window and
// the refund tiers.
func (i *Instance) HoursUntilStart(now time.Time) float64 {
	return i.StartsAt.Sub(now).Hours()
}
