package refund_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/calebferro/slotbook/internal/model"
	"github.com/calebferro/slotbook/internal/refund"
)

func TestCalculateTiers(t *testing.T) {
	tests := []struct {
		name   string
		policy model.CancellationPolicy
		total  string
		hours  float64
		want   string
	}{
		{"flexible full refund", model.PolicyFlexible, "200.00", 25, "200"},
		{"flexible at boundary", model.PolicyFlexible, "200.00", 24, "200"},
		{"flexible inside 24h", model.PolicyFlexible, "200.00", 23.5, "0"},

		{"moderate full refund", model.PolicyModerate, "500.00", 200, "500"},
		{"moderate half refund", model.PolicyModerate, "500.00", 100, "250"},
		{"moderate at week boundary", model.PolicyModerate, "500.00", 168, "500"},
		{"moderate at day boundary", model.PolicyModerate, "500.00", 24, "250"},
		{"moderate inside 24h", model.PolicyModerate, "500.00", 2, "0"},

		{"strict full refund", model.PolicyStrict, "300.00", 400, "300"},
		{"strict five days out", model.PolicyStrict, "300.00", 120, "0"},
		{"strict at boundary", model.PolicyStrict, "300.00", 336, "300"},

		{"event already started", model.PolicyFlexible, "100.00", -3, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			total := decimal.RequireFromString(tt.total)
			got := refund.Calculate(total, tt.hours, tt.policy)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)),
				"got %s, want %s", got, tt.want)
		})
	}
}

func TestCalculateBounds(t *testing.T) {
	t.Run("zero total refunds nothing", func(t *testing.T) {
		got := refund.Calculate(decimal.Zero, 500, model.PolicyFlexible)
		assert.True(t, got.IsZero())
	})

	t.Run("negative total refunds nothing", func(t *testing.T) {
		got := refund.Calculate(decimal.NewFromInt(-10), 500, model.PolicyFlexible)
		assert.True(t, got.IsZero())
	})

	t.Run("unknown policy refunds nothing", func(t *testing.T) {
		got := refund.Calculate(decimal.NewFromInt(100), 500, model.CancellationPolicy("LENIENT"))
		assert.True(t, got.IsZero())
	})

	t.Run("half refund rounds to cents", func(t *testing.T) {
		got := refund.Calculate(decimal.RequireFromString("99.99"), 100, model.PolicyModerate)
		assert.Equal(t, "50.00", got.StringFixed(2))
	})
}

func TestCustomSchedule(t *testing.T) {
	s := refund.Schedule{
		model.PolicyFlexible: {
			{MinHours: 1, Fraction: decimal.RequireFromString("0.75")},
		},
	}
	got := s.Calculate(decimal.NewFromInt(100), 2, model.PolicyFlexible)
	assert.Equal(t, "75.00", got.StringFixed(2))
}
