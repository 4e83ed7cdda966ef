package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CancellationPolicy selects the refund tier schedule applied when a
// guest cancels a booking.  It is stored as a string in the database but
// treated as a closed enum everywhere else; ParseCancellationPolicy is
// the only place raw strings are accepted.
type CancellationPolicy string

const (
	PolicyFlexible CancellationPolicy = "FLEXIBLE"
	PolicyModerate CancellationPolicy = "MODERATE"
	PolicyStrict   CancellationPolicy = "STRICT"
)

// ParseCancellationPolicy converts a stored string into a
// CancellationPolicy, rejecting unknown values.
func ParseCancellationPolicy(s string) (CancellationPolicy, error) {
	switch CancellationPolicy(s) {
	case PolicyFlexible, PolicyModerate, PolicyStrict:
		return CancellationPolicy(s), nil
	}
	return "", fmt.Errorf("unknown cancellation policy %q", s)
}

// Offering is a bookable product published by a host: a class, a tour, a
// seating.  Individual dates are Instances.  BasePrice is the per-guest
// price used when an instance carries no override.
//
// Fields:
//  ID                 – primary key identifier.
//  HostID             – user who owns the offering.
//  Title              – display name.
//  BasePrice          – per-guest price (currency-scoped decimal).
//  Currency           – ISO 4217 code, e.g. "USD".
//  CancellationPolicy – FLEXIBLE, MODERATE or STRICT.
//  CreatedAt          – creation timestamp.
//  UpdatedAt          – last update timestamp.
type Offering struct {
	ID                 uint64             // offerings.id
	HostID             uint64             // offerings.host_id
	Title              string             // offerings.title
	BasePrice          decimal.Decimal    // offerings.base_price
	Currency           string             // offerings.currency
	CancellationPolicy CancellationPolicy // offerings.cancellation_policy
	CreatedAt          time.Time          // offerings.created_at
	UpdatedAt          time.Time          // offerings.updated_at
}
