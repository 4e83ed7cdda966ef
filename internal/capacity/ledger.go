// Package capacity is the single place available_spots is mutated.
// Every caller first locks the instance row (storage.Tx.InstanceForUpdate)
// and then calls Reserve or Release inside the same transaction as the
// booking change the adjustment backs; the row lock makes the
// check-then-write one atomic step, so two requests racing on the last
// spots cannot both pass the availability check.
package capacity

import (
	"context"
	"errors"
	"fmt"

	"github.com/calebferro/slotbook/internal/model"
	"github.com/calebferro/slotbook/internal/storage"
)

// ErrInsufficientCapacity is the sentinel wrapped by
// InsufficientCapacityError.  Match with errors.Is.
var ErrInsufficientCapacity = errors.New("insufficient capacity")

// InsufficientCapacityError reports how many spots were requested and
// how many actually remain, so callers can tell the guest what is left.
type InsufficientCapacityError struct {
	InstanceID uint64
	Requested  int
	Available  int
}

func (e *InsufficientCapacityError) Error() string {
	return fmt.Sprintf("instance %d: requested %d spots, %d available", e.InstanceID, e.Requested, e.Available)
}

func (e *InsufficientCapacityError) Unwrap() error { return ErrInsufficientCapacity }

// Reserve consumes delta spots on the instance when delta is positive,
// or releases -delta spots when negative.  A release always succeeds
// (clamped at capacity); a consume fails with InsufficientCapacityError
// when fewer than delta spots remain.  inst must have been loaded with
// InstanceForUpdate on the same tx; its AvailableSpots field is kept in
// sync with the committed counter.
func Reserve(ctx context.Context, tx storage.Tx, inst *model.Instance, delta int) (int, error) {
	if delta == 0 {
		return inst.AvailableSpots, nil
	}
	if delta > 0 && inst.AvailableSpots < delta {
		return inst.AvailableSpots, &InsufficientCapacityError{
			InstanceID: inst.ID,
			Requested:  delta,
			Available:  inst.AvailableSpots,
		}
	}
	if delta < 0 && inst.AvailableSpots-delta > inst.Capacity {
		// Releasing more than was ever consumed would break the
		// available_spots <= capacity bound; clamp.
		delta = -(inst.Capacity - inst.AvailableSpots)
	}
	available, err := tx.AdjustAvailableSpots(ctx, inst.ID, delta)
	if err != nil {
		return inst.AvailableSpots, err
	}
	inst.AvailableSpots = available
	return available, nil
}

// Release frees spots spots on the instance.  Always succeeds.
func Release(ctx context.Context, tx storage.Tx, inst *model.Instance, spots int) (int, error) {
	return Reserve(ctx, tx, inst, -spots)
}
