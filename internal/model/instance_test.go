package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestDeriveInstanceStatus(t *testing.T) {
	tests := []struct {
		name      string
		available int
		capacity  int
		want      InstanceStatus
	}{
		{"full availability", 10, 10, InstanceAvailable},
		{"exactly at threshold", 3, 10, InstanceAvailable}, // 30% is not below 30%
		{"just under threshold", 2, 10, InstanceLimited},
		{"one spot left", 1, 50, InstanceLimited},
		{"nothing left", 0, 10, InstanceSoldOut},
		{"never negative but guard anyway", -1, 10, InstanceSoldOut},
		{"zero capacity", 0, 0, InstanceSoldOut},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveInstanceStatus(tt.available, tt.capacity))
		})
	}
}

func TestPricePerGuest(t *testing.T) {
	base := decimal.RequireFromString("50.00")

	inst := Instance{}
	assert.True(t, inst.PricePerGuest(base).Equal(base))

	override := decimal.RequireFromString("65.00")
	inst.PriceOverride = &override
	assert.True(t, inst.PricePerGuest(base).Equal(override))
}

func TestHoursUntilStart(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	inst := Instance{StartsAt: now.Add(48 * time.Hour)}
	assert.InDelta(t, 48, inst.HoursUntilStart(now), 1e-9)

	past := Instance{StartsAt: now.Add(-2 * time.Hour)}
	assert.InDelta(t, -2, past.HoursUntilStart(now), 1e-9)
}
