package mysql

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"github.com/calebferro/slotbook/internal/model"
	"github.com/calebferro/slotbook/internal/storage"
)

const modificationColumns = `id, booking_id, type, old_value, new_value, reason, refund_amount, refund_status, refunded_at, modified_by, created_at`

func scanModification(row interface{ Scan(...any) error }) (*model.BookingModification, error) {
	var m model.BookingModification
	var modType string
	var reason, refundAmount, refundStatus sql.NullString
	var refundedAt sql.NullTime
	err := row.Scan(
		&m.ID, &m.BookingID, &modType, &m.OldValue, &m.NewValue,
		&reason, &refundAmount, &refundStatus, &refundedAt,
		&m.ModifiedBy, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.Type = model.ModificationType(modType)
	if reason.Valid {
		r := reason.String
		m.Reason = &r
	}
	if refundAmount.Valid {
		d, err := decimal.NewFromString(refundAmount.String)
		if err != nil {
			return nil, err
		}
		m.RefundAmount = &d
	}
	if refundStatus.Valid {
		rs := model.RefundStatus(refundStatus.String)
		m.RefundStatus = &rs
	}
	if refundedAt.Valid {
		at := refundedAt.Time
		m.RefundedAt = &at
	}
	return &m, nil
}

// AppendModification inserts one audit row.  The table has no UPDATE
// path inside transactions; refund completion goes through the
// top-level MarkRefundCompleted.
func (t *dbTx) AppendModification(ctx context.Context, m *model.BookingModification) error {
	const q = `INSERT INTO booking_modifications (id, booking_id, type, old_value, new_value, reason, refund_amount, refund_status, modified_by, created_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	var reason, refundAmount, refundStatus any
	if m.Reason != nil {
		reason = *m.Reason
	}
	if m.RefundAmount != nil {
		refundAmount = m.RefundAmount.String()
	}
	if m.RefundStatus != nil {
		refundStatus = string(*m.RefundStatus)
	}
	_, err := t.tx.ExecContext(ctx, q,
		m.ID, m.BookingID, string(m.Type), m.OldValue, m.NewValue,
		reason, refundAmount, refundStatus, m.ModifiedBy, m.CreatedAt.UTC(),
	)
	return mapErr(err)
}

// MarkRefundCompleted is the single permitted mutation of an audit row,
// applied after the refund side effect succeeds.  The status guard makes
// the update idempotent.
func (s *Store) MarkRefundCompleted(ctx context.Context, modificationID string, at time.Time) error {
	const q = `UPDATE booking_modifications SET refund_status = ?, refunded_at = ? WHERE id = ? AND refund_status = ?`
	res, err := s.db.ExecContext(ctx, q,
		string(model.RefundCompleted), at.UTC(), modificationID, string(model.RefundPending),
	)
	if err != nil {
		return mapErr(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) ModificationsByBooking(ctx context.Context, bookingID uint64) ([]model.BookingModification, error) {
	const q = `SELECT ` + modificationColumns + ` FROM booking_modifications WHERE booking_id = ? ORDER BY created_at, id`
	rows, err := s.db.QueryContext(ctx, q, bookingID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	out := make([]model.BookingModification, 0)
	for rows.Next() {
		m, err := scanModification(rows)
		if err != nil {
			return nil, mapErr(err)
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}
