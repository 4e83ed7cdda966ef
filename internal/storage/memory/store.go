// Package memory provides an in-process storage.Store used by the test
// suite and by the dev profile (STORE_DRIVER=memory).  A single mutex
// serializes transactions, which gives the same effective isolation the
// MySQL implementation gets from row locks; rollback is implemented by
// snapshotting state when a transaction begins and restoring it on
// error.
package memory

import (
	"context"
	"sort"
	"time"

	"sync"

	"github.com/shopspring/decimal"

	"github.com/calebferro/slotbook/internal/model"
	"github.com/calebferro/slotbook/internal/storage"
)

// Store keeps every table as a map keyed by primary key.  Values are
// stored by value so a snapshot is a plain map copy.
type Store struct {
	mu sync.Mutex

	users         map[uint64]model.User
	userIDByEmail map[string]uint64
	offerings     map[uint64]model.Offering
	instances     map[uint64]model.Instance
	bookings      map[uint64]model.Booking
	modifications map[string]model.BookingModification
	modOrder      []string
	waitlist      map[uint64]model.WaitlistEntry

	userSeq     uint64
	bookingSeq  uint64
	waitlistSeq uint64
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		users:         make(map[uint64]model.User),
		userIDByEmail: make(map[string]uint64),
		offerings:     make(map[uint64]model.Offering),
		instances:     make(map[uint64]model.Instance),
		bookings:      make(map[uint64]model.Booking),
		modifications: make(map[string]model.BookingModification),
		waitlist:      make(map[uint64]model.WaitlistEntry),
	}
}

// snapshot captures the full state for rollback.
type snapshot struct {
	users         map[uint64]model.User
	userIDByEmail map[string]uint64
	offerings     map[uint64]model.Offering
	instances     map[uint64]model.Instance
	bookings      map[uint64]model.Booking
	modifications map[string]model.BookingModification
	modOrder      []string
	waitlist      map[uint64]model.WaitlistEntry
	userSeq       uint64
	bookingSeq    uint64
	waitlistSeq   uint64
}

func (s *Store) takeSnapshot() snapshot {
	snap := snapshot{
		users:         make(map[uint64]model.User, len(s.users)),
		userIDByEmail: make(map[string]uint64, len(s.userIDByEmail)),
		offerings:     make(map[uint64]model.Offering, len(s.offerings)),
		instances:     make(map[uint64]model.Instance, len(s.instances)),
		bookings:      make(map[uint64]model.Booking, len(s.bookings)),
		modifications: make(map[string]model.BookingModification, len(s.modifications)),
		modOrder:      append([]string(nil), s.modOrder...),
		waitlist:      make(map[uint64]model.WaitlistEntry, len(s.waitlist)),
		userSeq:       s.userSeq,
		bookingSeq:    s.bookingSeq,
		waitlistSeq:   s.waitlistSeq,
	}
	for k, v := range s.users {
		snap.users[k] = v
	}
	for k, v := range s.userIDByEmail {
		snap.userIDByEmail[k] = v
	}
	for k, v := range s.offerings {
		snap.offerings[k] = v
	}
	for k, v := range s.instances {
		snap.instances[k] = v
	}
	for k, v := range s.bookings {
		snap.bookings[k] = v
	}
	for k, v := range s.modifications {
		snap.modifications[k] = v
	}
	for k, v := range s.waitlist {
		snap.waitlist[k] = v
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.users = snap.users
	s.userIDByEmail = snap.userIDByEmail
	s.offerings = snap.offerings
	s.instances = snap.instances
	s.bookings = snap.bookings
	s.modifications = snap.modifications
	s.modOrder = snap.modOrder
	s.waitlist = snap.waitlist
	s.userSeq = snap.userSeq
	s.bookingSeq = snap.bookingSeq
	s.waitlistSeq = snap.waitlistSeq
}

// WithinTx runs fn under the store mutex.  On error the pre-transaction
// snapshot is restored, so partial writes never become visible.
func (s *Store) WithinTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	snap := s.takeSnapshot()
	if err := fn(&memTx{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// ---------------------------------------------------------------------
// Seeding helpers used by tests and the dev profile.  They bypass the
// transaction machinery on purpose.
// ---------------------------------------------------------------------

// PutOffering stores an offering, assigning sequential IDs is left to
// the caller since offerings are reference data here.
func (s *Store) PutOffering(o model.Offering) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offerings[o.ID] = o
}

// PutInstance stores an instance verbatim.
func (s *Store) PutInstance(i model.Instance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances[i.ID] = i
}

// PutBooking stores a booking verbatim, bumping the ID sequence so
// later inserts do not collide.
func (s *Store) PutBooking(b model.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID > s.bookingSeq {
		s.bookingSeq = b.ID
	}
	s.bookings[b.ID] = b
}

// PutWaitlistEntry stores an entry verbatim, bumping the ID sequence.
func (s *Store) PutWaitlistEntry(e model.WaitlistEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID > s.waitlistSeq {
		s.waitlistSeq = e.ID
	}
	s.waitlist[e.ID] = e
}

// ---------------------------------------------------------------------
// Store reads
// ---------------------------------------------------------------------

func (s *Store) BookingByID(ctx context.Context, id uint64) (*model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &b, nil
}

func (s *Store) BookingsByGuest(ctx context.Context, guestID uint64) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Booking, 0)
	for _, b := range s.bookings {
		if b.GuestID == guestID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ModificationsByBooking(ctx context.Context, bookingID uint64) ([]model.BookingModification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.BookingModification, 0)
	for _, id := range s.modOrder {
		if m, ok := s.modifications[id]; ok && m.BookingID == bookingID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Store) OfferingByID(ctx context.Context, id uint64) (*model.Offering, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.offerings[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &o, nil
}

func (s *Store) InstanceByID(ctx context.Context, id uint64) (*model.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.instances[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &i, nil
}

func (s *Store) InstancesByOffering(ctx context.Context, offeringID uint64) ([]model.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Instance, 0)
	for _, i := range s.instances {
		if i.OfferingID == offeringID {
			out = append(out, i)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, nil
}

func (s *Store) MarkRefundCompleted(ctx context.Context, modificationID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.modifications[modificationID]
	if !ok {
		return storage.ErrNotFound
	}
	completed := model.RefundCompleted
	m.RefundStatus = &completed
	m.RefundedAt = &at
	s.modifications[modificationID] = m
	return nil
}

func (s *Store) OverdueNotified(ctx context.Context, cutoff time.Time, limit int) ([]model.WaitlistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.WaitlistEntry, 0)
	for _, e := range s.waitlist {
		if e.Status == model.WaitlistNotified && e.NotifiedAt != nil && !e.NotifiedAt.After(cutoff) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NotifiedAt.Before(*out[j].NotifiedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.userIDByEmail[u.Email]; exists {
		return storage.ErrDuplicate
	}
	s.userSeq++
	u.ID = s.userSeq
	s.users[u.ID] = *u
	s.userIDByEmail[u.Email] = u.ID
	return nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.userIDByEmail[email]
	if !ok {
		return nil, storage.ErrNotFound
	}
	u := s.users[id]
	return &u, nil
}

func (s *Store) UserByID(ctx context.Context, id uint64) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &u, nil
}

// ---------------------------------------------------------------------
// Transaction view.  The store mutex is already held; methods mutate
// live maps and rely on WithinTx's snapshot for rollback.
// ---------------------------------------------------------------------

type memTx struct {
	s *Store
}

func (t *memTx) BookingForUpdate(ctx context.Context, id uint64) (*model.Booking, error) {
	b, ok := t.s.bookings[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &b, nil
}

func (t *memTx) InstanceForUpdate(ctx context.Context, id uint64) (*model.Instance, error) {
	i, ok := t.s.instances[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &i, nil
}

func (t *memTx) OfferingByID(ctx context.Context, id uint64) (*model.Offering, error) {
	o, ok := t.s.offerings[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &o, nil
}

func (t *memTx) AdjustAvailableSpots(ctx context.Context, instanceID uint64, delta int) (int, error) {
	i, ok := t.s.instances[instanceID]
	if !ok {
		return 0, storage.ErrNotFound
	}
	i.AvailableSpots += delta
	t.s.instances[instanceID] = i
	return i.AvailableSpots, nil
}

func (t *memTx) UpdateBookingPartySize(ctx context.Context, bookingID uint64, guestCount int, baseAmount, totalAmount decimal.Decimal) error {
	b, ok := t.s.bookings[bookingID]
	if !ok {
		return storage.ErrNotFound
	}
	b.GuestCount = guestCount
	b.BaseAmount = baseAmount
	b.TotalAmount = totalAmount
	b.UpdatedAt = time.Now().UTC()
	t.s.bookings[bookingID] = b
	return nil
}

func (t *memTx) ReassignBookingInstance(ctx context.Context, bookingID, newInstanceID uint64, baseAmount, totalAmount decimal.Decimal, checkInToken string) error {
	b, ok := t.s.bookings[bookingID]
	if !ok {
		return storage.ErrNotFound
	}
	b.InstanceID = newInstanceID
	b.BaseAmount = baseAmount
	b.TotalAmount = totalAmount
	b.CheckInToken = checkInToken
	b.UpdatedAt = time.Now().UTC()
	t.s.bookings[bookingID] = b
	return nil
}

func (t *memTx) MarkBookingCancelled(ctx context.Context, bookingID uint64, at time.Time) error {
	b, ok := t.s.bookings[bookingID]
	if !ok {
		return storage.ErrNotFound
	}
	b.Status = model.BookingCancelled
	b.CancelledAt = &at
	b.UpdatedAt = at
	t.s.bookings[bookingID] = b
	return nil
}

func (t *memTx) CreateBooking(ctx context.Context, b *model.Booking) error {
	t.s.bookingSeq++
	b.ID = t.s.bookingSeq
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now
	t.s.bookings[b.ID] = *b
	return nil
}

func (t *memTx) AppendModification(ctx context.Context, m *model.BookingModification) error {
	if _, exists := t.s.modifications[m.ID]; exists {
		return storage.ErrDuplicate
	}
	t.s.modifications[m.ID] = *m
	t.s.modOrder = append(t.s.modOrder, m.ID)
	return nil
}

func (t *memTx) CreateWaitlistEntry(ctx context.Context, e *model.WaitlistEntry) error {
	t.s.waitlistSeq++
	e.ID = t.s.waitlistSeq
	t.s.waitlist[e.ID] = *e
	return nil
}

func (t *memTx) WaitlistPosition(ctx context.Context, offeringID, instanceID uint64, joinedAt time.Time) (int, error) {
	pos := 0
	for _, e := range t.s.waitlist {
		if e.OfferingID == offeringID && e.InstanceID == instanceID &&
			e.Status == model.WaitlistActive && !e.JoinedAt.After(joinedAt) {
			pos++
		}
	}
	return pos, nil
}

func (t *memTx) OldestEligibleActiveEntry(ctx context.Context, offeringID, instanceID uint64, maxPartySize int) (*model.WaitlistEntry, error) {
	var best *model.WaitlistEntry
	for id := range t.s.waitlist {
		e := t.s.waitlist[id]
		if e.OfferingID != offeringID || e.InstanceID != instanceID {
			continue
		}
		if e.Status != model.WaitlistActive || e.PartySize > maxPartySize {
			continue
		}
		if best == nil || e.JoinedAt.Before(best.JoinedAt) ||
			(e.JoinedAt.Equal(best.JoinedAt) && e.ID < best.ID) {
			copied := e
			best = &copied
		}
	}
	if best == nil {
		return nil, storage.ErrNotFound
	}
	return best, nil
}

func (t *memTx) WaitlistEntryByClaimToken(ctx context.Context, token string) (*model.WaitlistEntry, error) {
	for _, e := range t.s.waitlist {
		if e.ClaimToken == token {
			copied := e
			return &copied, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (t *memTx) TransitionWaitlist(ctx context.Context, entryID uint64, from, to model.WaitlistStatus, notifiedAt *time.Time) (bool, error) {
	e, ok := t.s.waitlist[entryID]
	if !ok {
		return false, storage.ErrNotFound
	}
	if e.Status != from {
		return false, nil
	}
	e.Status = to
	if notifiedAt != nil {
		e.NotifiedAt = notifiedAt
	}
	t.s.waitlist[entryID] = e
	return true, nil
}

func (t *memTx) HasActiveWaitlist(ctx context.Context, instanceID uint64) (bool, error) {
	for _, e := range t.s.waitlist {
		if e.InstanceID == instanceID && e.Status == model.WaitlistActive {
			return true, nil
		}
	}
	return false, nil
}
