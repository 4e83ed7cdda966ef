package mysql

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/calebferro/slotbook/internal/model"
)

const offeringColumns = `id, host_id, title, base_price, currency, cancellation_policy, created_at, updated_at`

func scanOffering(row interface{ Scan(...any) error }) (*model.Offering, error) {
	var o model.Offering
	var basePrice, policy string
	err := row.Scan(
		&o.ID, &o.HostID, &o.Title, &basePrice, &o.Currency,
		&policy, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	price, err := decimal.NewFromString(basePrice)
	if err != nil {
		return nil, err
	}
	o.BasePrice = price
	o.CancellationPolicy, err = model.ParseCancellationPolicy(policy)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (t *dbTx) OfferingByID(ctx context.Context, id uint64) (*model.Offering, error) {
	const q = `SELECT ` + offeringColumns + ` FROM offerings WHERE id = ?`
	o, err := scanOffering(t.tx.QueryRowContext(ctx, q, id))
	if err != nil {
		return nil, mapErr(err)
	}
	return o, nil
}

func (s *Store) OfferingByID(ctx context.Context, id uint64) (*model.Offering, error) {
	const q = `SELECT ` + offeringColumns + ` FROM offerings WHERE id = ?`
	o, err := scanOffering(s.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return nil, mapErr(err)
	}
	return o, nil
}
