package mysql

import (
	"context"
	"database/sql"
	"time"

	"github.com/calebferro/slotbook/internal/model"
)

const waitlistColumns = `id, offering_id, instance_id, guest_id, party_size, status, claim_token, joined_at, notified_at`

func scanWaitlistEntry(row interface{ Scan(...any) error }) (*model.WaitlistEntry, error) {
	var e model.WaitlistEntry
	var status string
	var notifiedAt sql.NullTime
	err := row.Scan(
		&e.ID, &e.OfferingID, &e.InstanceID, &e.GuestID, &e.PartySize,
		&status, &e.ClaimToken, &e.JoinedAt, &notifiedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Status = model.WaitlistStatus(status)
	if notifiedAt.Valid {
		at := notifiedAt.Time
		e.NotifiedAt = &at
	}
	return &e, nil
}

func (t *dbTx) CreateWaitlistEntry(ctx context.Context, e *model.WaitlistEntry) error {
	const q = `INSERT INTO waitlist_entries (offering_id, instance_id, guest_id, party_size, status, claim_token, joined_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := t.tx.ExecContext(ctx, q,
		e.OfferingID, e.InstanceID, e.GuestID, e.PartySize,
		string(e.Status), e.ClaimToken, e.JoinedAt.UTC(),
	)
	if err != nil {
		return mapErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return mapErr(err)
	}
	e.ID = uint64(id)
	return nil
}

func (t *dbTx) WaitlistPosition(ctx context.Context, offeringID, instanceID uint64, joinedAt time.Time) (int, error) {
	const q = `SELECT COUNT(*) FROM waitlist_entries
	           WHERE offering_id = ? AND instance_id = ? AND status = ? AND joined_at <= ?`
	var pos int
	err := t.tx.QueryRowContext(ctx, q, offeringID, instanceID, string(model.WaitlistActive), joinedAt.UTC()).Scan(&pos)
	if err != nil {
		return 0, mapErr(err)
	}
	return pos, nil
}

// OldestEligibleActiveEntry picks the head of the FIFO queue that fits
// the freed spots, locking the row so two concurrent promotions cannot
// pick the same entry.
func (t *dbTx) OldestEligibleActiveEntry(ctx context.Context, offeringID, instanceID uint64, maxPartySize int) (*model.WaitlistEntry, error) {
	const q = `SELECT ` + waitlistColumns + ` FROM waitlist_entries
	           WHERE offering_id = ? AND instance_id = ? AND status = ? AND party_size <= ?
	           ORDER BY joined_at, id LIMIT 1 FOR UPDATE`
	e, err := scanWaitlistEntry(t.tx.QueryRowContext(ctx, q, offeringID, instanceID, string(model.WaitlistActive), maxPartySize))
	if err != nil {
		return nil, mapErr(err)
	}
	return e, nil
}

func (t *dbTx) WaitlistEntryByClaimToken(ctx context.Context, token string) (*model.WaitlistEntry, error) {
	const q = `SELECT ` + waitlistColumns + ` FROM waitlist_entries WHERE claim_token = ? FOR UPDATE`
	e, err := scanWaitlistEntry(t.tx.QueryRowContext(ctx, q, token))
	if err != nil {
		return nil, mapErr(err)
	}
	return e, nil
}

// TransitionWaitlist is a compare-on-status update: it only succeeds if
// the row is still in the expected state.  Whichever of a claim or an
// expiry commits first wins; the loser sees zero rows affected.
func (t *dbTx) TransitionWaitlist(ctx context.Context, entryID uint64, from, to model.WaitlistStatus, notifiedAt *time.Time) (bool, error) {
	var res sql.Result
	var err error
	if notifiedAt != nil {
		const q = `UPDATE waitlist_entries SET status = ?, notified_at = ? WHERE id = ? AND status = ?`
		res, err = t.tx.ExecContext(ctx, q, string(to), notifiedAt.UTC(), entryID, string(from))
	} else {
		const q = `UPDATE waitlist_entries SET status = ? WHERE id = ? AND status = ?`
		res, err = t.tx.ExecContext(ctx, q, string(to), entryID, string(from))
	}
	if err != nil {
		return false, mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, mapErr(err)
	}
	return n > 0, nil
}

func (t *dbTx) HasActiveWaitlist(ctx context.Context, instanceID uint64) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM waitlist_entries WHERE instance_id = ? AND status = ?)`
	var exists bool
	if err := t.tx.QueryRowContext(ctx, q, instanceID, string(model.WaitlistActive)).Scan(&exists); err != nil {
		return false, mapErr(err)
	}
	return exists, nil
}

// OverdueNotified feeds the expiry worker: NOTIFIED entries whose claim
// window opened at or before cutoff, oldest first.
func (s *Store) OverdueNotified(ctx context.Context, cutoff time.Time, limit int) ([]model.WaitlistEntry, error) {
	const q = `SELECT ` + waitlistColumns + ` FROM waitlist_entries
	           WHERE status = ? AND notified_at <= ?
	           ORDER BY notified_at, id LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, string(model.WaitlistNotified), cutoff.UTC(), limit)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	out := make([]model.WaitlistEntry, 0)
	for rows.Next() {
		e, err := scanWaitlistEntry(rows)
		if err != nil {
			return nil, mapErr(err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}
