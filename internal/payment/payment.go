// Package payment defines the gateway contract the coordinator emits
// charge/refund instructions against.  The engine never blocks a
// capacity lock on these calls: they run strictly after the booking
// transaction commits.
package payment

import (
	"context"
	"log"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ChargeResult carries the gateway's reference for a successful charge.
type ChargeResult struct {
	ChargeID string
}

// Gateway is the external payment collaborator.  Metadata carries the
// modification ID as an idempotency key; whether the gateway honors it
// is its business, not the coordinator's.
type Gateway interface {
	Charge(ctx context.Context, customerRef string, amount decimal.Decimal, currency string, metadata map[string]string) (ChargeResult, error)
	PartialRefund(ctx context.Context, paymentRef string, amount decimal.Decimal, currency string) error
}

// LogGateway is the dev-profile gateway: it records every instruction
// to the process log and reports success.  Useful when no PSP sandbox
// is configured.
type LogGateway struct{}

func (LogGateway) Charge(ctx context.Context, customerRef string, amount decimal.Decimal, currency string, metadata map[string]string) (ChargeResult, error) {
	id := "dev-" + uuid.NewString()
	log.Printf("payment: charge customer=%s amount=%s %s meta=%v charge_id=%s", customerRef, amount.String(), currency, metadata, id)
	return ChargeResult{ChargeID: id}, nil
}

func (LogGateway) PartialRefund(ctx context.Context, paymentRef string, amount decimal.Decimal, currency string) error {
	log.Printf("payment: refund payment_ref=%s amount=%s %s", paymentRef, amount.String(), currency)
	return nil
}
