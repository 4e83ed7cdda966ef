package capacity_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calebferro/slotbook/internal/capacity"
	"github.com/calebferro/slotbook/internal/model"
	"github.com/calebferro/slotbook/internal/storage"
	"github.com/calebferro/slotbook/internal/storage/memory"
)

func seedInstance(t *testing.T, capTotal, available int) *memory.Store {
	t.Helper()
	s := memory.New()
	s.PutInstance(model.Instance{
		ID:             1,
		OfferingID:     1,
		StartsAt:       time.Now().Add(72 * time.Hour),
		EndsAt:         time.Now().Add(74 * time.Hour),
		Capacity:       capTotal,
		AvailableSpots: available,
	})
	return s
}

func TestReserveConsumesSpots(t *testing.T) {
	s := seedInstance(t, 10, 4)
	err := s.WithinTx(context.Background(), func(tx storage.Tx) error {
		inst, err := tx.InstanceForUpdate(context.Background(), 1)
		require.NoError(t, err)
		left, err := capacity.Reserve(context.Background(), tx, inst, 3)
		require.NoError(t, err)
		assert.Equal(t, 1, left)
		assert.Equal(t, 1, inst.AvailableSpots)
		return nil
	})
	require.NoError(t, err)

	inst, err := s.InstanceByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, inst.AvailableSpots)
}

func TestReserveInsufficient(t *testing.T) {
	s := seedInstance(t, 10, 2)
	err := s.WithinTx(context.Background(), func(tx storage.Tx) error {
		inst, err := tx.InstanceForUpdate(context.Background(), 1)
		require.NoError(t, err)
		_, err = capacity.Reserve(context.Background(), tx, inst, 3)
		return err
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, capacity.ErrInsufficientCapacity)

	var capErr *capacity.InsufficientCapacityError
	require.True(t, errors.As(err, &capErr))
	assert.Equal(t, 3, capErr.Requested)
	assert.Equal(t, 2, capErr.Available)

	// the failed transaction must leave the counter untouched
	inst, err := s.InstanceByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, inst.AvailableSpots)
}

func TestReleaseReturnsSpots(t *testing.T) {
	s := seedInstance(t, 10, 4)
	err := s.WithinTx(context.Background(), func(tx storage.Tx) error {
		inst, err := tx.InstanceForUpdate(context.Background(), 1)
		require.NoError(t, err)
		left, err := capacity.Release(context.Background(), tx, inst, 2)
		require.NoError(t, err)
		assert.Equal(t, 6, left)
		return nil
	})
	require.NoError(t, err)
}

func TestReleaseClampedAtCapacity(t *testing.T) {
	s := seedInstance(t, 10, 9)
	err := s.WithinTx(context.Background(), func(tx storage.Tx) error {
		inst, err := tx.InstanceForUpdate(context.Background(), 1)
		require.NoError(t, err)
		left, err := capacity.Release(context.Background(), tx, inst, 5)
		require.NoError(t, err)
		assert.Equal(t, 10, left, "available spots must never exceed capacity")
		return nil
	})
	require.NoError(t, err)
}

func TestReserveZeroIsNoop(t *testing.T) {
	s := seedInstance(t, 10, 4)
	err := s.WithinTx(context.Background(), func(tx storage.Tx) error {
		inst, err := tx.InstanceForUpdate(context.Background(), 1)
		require.NoError(t, err)
		left, err := capacity.Reserve(context.Background(), tx, inst, 0)
		require.NoError(t, err)
		assert.Equal(t, 4, left)
		return nil
	})
	require.NoError(t, err)
}
