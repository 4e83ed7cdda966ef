package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calebferro/slotbook/internal/booking"
	"github.com/calebferro/slotbook/internal/model"
	"github.com/calebferro/slotbook/internal/payment"
	"github.com/calebferro/slotbook/internal/storage/memory"
)

var handlerNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newBookingHandler(t *testing.T) (*BookingHandler, *memory.Store) {
	t.Helper()
	store := memory.New()
	store.PutOffering(model.Offering{
		ID:                 1,
		HostID:             99,
		Title:              "City Food Tour",
		BasePrice:          decimal.RequireFromString("30.00"),
		Currency:           "USD",
		CancellationPolicy: model.PolicyModerate,
	})
	store.PutInstance(model.Instance{
		ID:             1,
		OfferingID:     1,
		StartsAt:       handlerNow.Add(100 * time.Hour),
		EndsAt:         handlerNow.Add(103 * time.Hour),
		Capacity:       10,
		AvailableSpots: 4,
	})
	ref := "pay_1"
	store.PutBooking(model.Booking{
		ID:           1,
		OfferingID:   1,
		InstanceID:   1,
		GuestID:      7,
		GuestCount:   2,
		BaseAmount:   decimal.RequireFromString("60.00"),
		TotalAmount:  decimal.RequireFromString("60.00"),
		Currency:     "USD",
		Status:       model.BookingConfirmed,
		CheckInToken: "tok",
		PaymentRef:   &ref,
	})
	coord := booking.NewCoordinator(store, payment.LogGateway{}, nil, nil, booking.Config{
		Now: func() time.Time { return handlerNow },
	})
	return NewBookingHandler(coord, store), store
}

func patchPartySize(h *BookingHandler, userID uint64, bookingID, body string) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPatch, "/v1/bookings/"+bookingID+"/party-size", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/v1/bookings/:id/party-size")
	c.SetParamNames("id")
	c.SetParamValues(bookingID)
	c.Set("user_id", userID)
	c.Set("role", model.RoleGuest)
	_ = h.ModifyPartySize(c)
	return rec
}

func TestModifyPartySizeEndpoint(t *testing.T) {
	h, store := newBookingHandler(t)

	rec := patchPartySize(h, 7, "1", `{"new_party_size":3}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Booking struct {
			GuestCount  int    `json:"guest_count"`
			TotalAmount string `json:"total_amount"`
		} `json:"booking"`
		PriceDifference string `json:"price_difference"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Booking.GuestCount)
	assert.Equal(t, "90.00", resp.Booking.TotalAmount)
	assert.Equal(t, "30.00", resp.PriceDifference)

	inst, _ := store.InstanceByID(context.Background(), 1)
	assert.Equal(t, 3, inst.AvailableSpots)
}

func TestModifyPartySizeEndpointErrors(t *testing.T) {
	h, _ := newBookingHandler(t)

	tests := []struct {
		name     string
		userID   uint64
		booking  string
		body     string
		wantCode int
		wantErr  string
	}{
		{"zero size", 7, "1", `{"new_party_size":0}`, http.StatusBadRequest, "validation_error"},
		{"not the owner", 8, "1", `{"new_party_size":3}`, http.StatusForbidden, "unauthorized"},
		{"unknown booking", 7, "99", `{"new_party_size":3}`, http.StatusNotFound, "not_found"},
		{"over capacity", 7, "1", `{"new_party_size":9}`, http.StatusConflict, "insufficient_capacity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := patchPartySize(h, tt.userID, tt.booking, tt.body)
			assert.Equal(t, tt.wantCode, rec.Code)

			var resp struct {
				Error string `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantErr, resp.Error)
		})
	}
}

func TestModifyPartySizeEndpointWindowClosed(t *testing.T) {
	h, store := newBookingHandler(t)
	store.PutInstance(model.Instance{
		ID:             1,
		OfferingID:     1,
		StartsAt:       handlerNow.Add(12 * time.Hour),
		EndsAt:         handlerNow.Add(15 * time.Hour),
		Capacity:       10,
		AvailableSpots: 4,
	})

	rec := patchPartySize(h, 7, "1", `{"new_party_size":3}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "modification_window_closed", resp.Error)
}

func TestCapacityErrorCarriesCounts(t *testing.T) {
	h, _ := newBookingHandler(t)

	rec := patchPartySize(h, 7, "1", `{"new_party_size":9}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	var resp struct {
		Requested int `json:"requested"`
		Available int `json:"available"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 7, resp.Requested)
	assert.Equal(t, 4, resp.Available)
}
