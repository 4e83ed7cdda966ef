package mysql

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"github.com/calebferro/slotbook/internal/model"
	"github.com/calebferro/slotbook/internal/storage"
)

const bookingColumns = `id, offering_id, instance_id, guest_id, guest_count, base_amount, total_amount, currency, status, check_in_token, payment_ref, cancelled_at, created_at, updated_at`

func scanBooking(row interface{ Scan(...any) error }) (*model.Booking, error) {
	var b model.Booking
	var base, total, status string
	var paymentRef sql.NullString
	var cancelledAt sql.NullTime
	err := row.Scan(
		&b.ID, &b.OfferingID, &b.InstanceID, &b.GuestID, &b.GuestCount,
		&base, &total, &b.Currency, &status, &b.CheckInToken,
		&paymentRef, &cancelledAt, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if b.BaseAmount, err = decimal.NewFromString(base); err != nil {
		return nil, err
	}
	if b.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return nil, err
	}
	b.Status = model.BookingStatus(status)
	if paymentRef.Valid {
		ref := paymentRef.String
		b.PaymentRef = &ref
	}
	if cancelledAt.Valid {
		at := cancelledAt.Time
		b.CancelledAt = &at
	}
	return &b, nil
}

// BookingForUpdate locks the booking row for the duration of the
// transaction so a booking cannot be modified twice concurrently.
func (t *dbTx) BookingForUpdate(ctx context.Context, id uint64) (*model.Booking, error) {
	const q = `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ? FOR UPDATE`
	b, err := scanBooking(t.tx.QueryRowContext(ctx, q, id))
	if err != nil {
		return nil, mapErr(err)
	}
	return b, nil
}

func (t *dbTx) UpdateBookingPartySize(ctx context.Context, bookingID uint64, guestCount int, baseAmount, totalAmount decimal.Decimal) error {
	const q = `UPDATE bookings SET guest_count = ?, base_amount = ?, total_amount = ? WHERE id = ?`
	res, err := t.tx.ExecContext(ctx, q, guestCount, baseAmount.String(), totalAmount.String(), bookingID)
	if err != nil {
		return mapErr(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (t *dbTx) ReassignBookingInstance(ctx context.Context, bookingID, newInstanceID uint64, baseAmount, totalAmount decimal.Decimal, checkInToken string) error {
	const q = `UPDATE bookings SET instance_id = ?, base_amount = ?, total_amount = ?, check_in_token = ? WHERE id = ?`
	res, err := t.tx.ExecContext(ctx, q, newInstanceID, baseAmount.String(), totalAmount.String(), checkInToken, bookingID)
	if err != nil {
		return mapErr(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (t *dbTx) MarkBookingCancelled(ctx context.Context, bookingID uint64, at time.Time) error {
	const q = `UPDATE bookings SET status = ?, cancelled_at = ? WHERE id = ?`
	res, err := t.tx.ExecContext(ctx, q, string(model.BookingCancelled), at.UTC(), bookingID)
	if err != nil {
		return mapErr(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// CreateBooking inserts a booking (waitlist claims produce these) and
// populates the generated ID.
func (t *dbTx) CreateBooking(ctx context.Context, b *model.Booking) error {
	const q = `INSERT INTO bookings (offering_id, instance_id, guest_id, guest_count, base_amount, total_amount, currency, status, check_in_token)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := t.tx.ExecContext(ctx, q,
		b.OfferingID, b.InstanceID, b.GuestID, b.GuestCount,
		b.BaseAmount.String(), b.TotalAmount.String(), b.Currency,
		string(b.Status), b.CheckInToken,
	)
	if err != nil {
		return mapErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return mapErr(err)
	}
	b.ID = uint64(id)
	return nil
}

func (s *Store) BookingByID(ctx context.Context, id uint64) (*model.Booking, error) {
	const q = `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	b, err := scanBooking(s.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return nil, mapErr(err)
	}
	return b, nil
}

func (s *Store) BookingsByGuest(ctx context.Context, guestID uint64) ([]model.Booking, error) {
	const q = `SELECT ` + bookingColumns + ` FROM bookings WHERE guest_id = ? ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, q, guestID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	out := make([]model.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, mapErr(err)
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}
