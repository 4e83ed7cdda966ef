package mysql

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"

	"github.com/calebferro/slotbook/internal/model"
	"github.com/calebferro/slotbook/internal/storage"
)

const instanceColumns = `id, offering_id, starts_at, ends_at, capacity, available_spots, price_override, created_at, updated_at`

// scanInstance reads one instances row.  price_override is a nullable
// DECIMAL scanned via string to avoid float rounding.
func scanInstance(row interface{ Scan(...any) error }) (*model.Instance, error) {
	var i model.Instance
	var override sql.NullString
	err := row.Scan(
		&i.ID, &i.OfferingID, &i.StartsAt, &i.EndsAt,
		&i.Capacity, &i.AvailableSpots, &override,
		&i.CreatedAt, &i.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if override.Valid {
		d, err := decimal.NewFromString(override.String)
		if err != nil {
			return nil, err
		}
		i.PriceOverride = &d
	}
	return &i, nil
}

// InstanceForUpdate loads the instance row under an exclusive lock.
// This lock is what serializes every capacity check-then-write on the
// instance.
func (t *dbTx) InstanceForUpdate(ctx context.Context, id uint64) (*model.Instance, error) {
	const q = `SELECT ` + instanceColumns + ` FROM instances WHERE id = ? FOR UPDATE`
	i, err := scanInstance(t.tx.QueryRowContext(ctx, q, id))
	if err != nil {
		return nil, mapErr(err)
	}
	return i, nil
}

// AdjustAvailableSpots applies the signed delta and reads back the new
// counter.  The caller holds the row lock, so the read-back cannot race.
func (t *dbTx) AdjustAvailableSpots(ctx context.Context, instanceID uint64, delta int) (int, error) {
	const upd = `UPDATE instances SET available_spots = available_spots + ? WHERE id = ?`
	res, err := t.tx.ExecContext(ctx, upd, delta, instanceID)
	if err != nil {
		return 0, mapErr(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return 0, storage.ErrNotFound
	}
	const sel = `SELECT available_spots FROM instances WHERE id = ?`
	var available int
	if err := t.tx.QueryRowContext(ctx, sel, instanceID).Scan(&available); err != nil {
		return 0, mapErr(err)
	}
	return available, nil
}

// InstanceByID returns an instance without locking (browse reads).
func (s *Store) InstanceByID(ctx context.Context, id uint64) (*model.Instance, error) {
	const q = `SELECT ` + instanceColumns + ` FROM instances WHERE id = ?`
	i, err := scanInstance(s.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return nil, mapErr(err)
	}
	return i, nil
}

// InstancesByOffering lists an offering's instances ordered by start
// time, soonest first.
func (s *Store) InstancesByOffering(ctx context.Context, offeringID uint64) ([]model.Instance, error) {
	const q = `SELECT ` + instanceColumns + ` FROM instances WHERE offering_id = ? ORDER BY starts_at`
	rows, err := s.db.QueryContext(ctx, q, offeringID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	out := make([]model.Instance, 0)
	for rows.Next() {
		i, err := scanInstance(rows)
		if err != nil {
			return nil, mapErr(err)
		}
		out = append(out, *i)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}
