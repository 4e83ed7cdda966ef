package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/calebferro/slotbook/internal/booking"
	"github.com/calebferro/slotbook/internal/model"
	"github.com/calebferro/slotbook/internal/storage"
)

// BookingHandler exposes the modification operations on confirmed
// bookings plus read access to a guest's own bookings and their audit
// history.
type BookingHandler struct {
	Coordinator *booking.Coordinator
	Store       storage.Store
}

func NewBookingHandler(coord *booking.Coordinator, store storage.Store) *BookingHandler {
	if coord == nil || store == nil {
		panic("nil dependency passed to NewBookingHandler")
	}
	return &BookingHandler{Coordinator: coord, Store: store}
}

type bookingResp struct {
	ID           uint64     `json:"id"`
	OfferingID   uint64     `json:"offering_id"`
	InstanceID   uint64     `json:"instance_id"`
	GuestCount   int        `json:"guest_count"`
	BaseAmount   string     `json:"base_amount"`
	TotalAmount  string     `json:"total_amount"`
	Currency     string     `json:"currency"`
	Status       string     `json:"status"`
	CheckInToken string     `json:"check_in_token,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func bookingView(b *model.Booking) bookingResp {
	return bookingResp{
		ID:           b.ID,
		OfferingID:   b.OfferingID,
		InstanceID:   b.InstanceID,
		GuestCount:   b.GuestCount,
		BaseAmount:   b.BaseAmount.StringFixed(2),
		TotalAmount:  b.TotalAmount.StringFixed(2),
		Currency:     b.Currency,
		Status:       string(b.Status),
		CheckInToken: b.CheckInToken,
		CancelledAt:  b.CancelledAt,
		CreatedAt:    b.CreatedAt,
		UpdatedAt:    b.UpdatedAt,
	}
}

type modificationResp struct {
	ID           string     `json:"id"`
	Type         string     `json:"type"`
	OldValue     string     `json:"old_value"`
	NewValue     string     `json:"new_value"`
	Reason       *string    `json:"reason,omitempty"`
	RefundAmount *string    `json:"refund_amount,omitempty"`
	RefundStatus *string    `json:"refund_status,omitempty"`
	RefundedAt   *time.Time `json:"refunded_at,omitempty"`
	ModifiedBy   uint64     `json:"modified_by"`
	CreatedAt    time.Time  `json:"created_at"`
}

func modificationView(m *model.BookingModification) modificationResp {
	out := modificationResp{
		ID:         m.ID,
		Type:       string(m.Type),
		OldValue:   m.OldValue,
		NewValue:   m.NewValue,
		Reason:     m.Reason,
		RefundedAt: m.RefundedAt,
		ModifiedBy: m.ModifiedBy,
		CreatedAt:  m.CreatedAt,
	}
	if m.RefundAmount != nil {
		s := m.RefundAmount.StringFixed(2)
		out.RefundAmount = &s
	}
	if m.RefundStatus != nil {
		s := string(*m.RefundStatus)
		out.RefundStatus = &s
	}
	return out
}

// paymentFailed renders a committed change whose payment instruction
// failed.  The modification is durable; only the money movement is
// outstanding.
func paymentFailed(c echo.Context, res *booking.Result, err error) error {
	return c.JSON(http.StatusPaymentRequired, echo.Map{
		"error":   "payment_failed",
		"message": err.Error(),
		"booking": bookingView(res.Booking),
	})
}

// ModifyPartySize handles PATCH /v1/bookings/:id/party-size.
func (h *BookingHandler) ModifyPartySize(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	bookingID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	var body struct {
		NewPartySize int `json:"new_party_size"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	res, err := h.Coordinator.ModifyPartySize(c.Request().Context(), actor, bookingID, body.NewPartySize)
	if err != nil {
		if res != nil && errors.Is(err, booking.ErrPaymentFailed) {
			return paymentFailed(c, res, err)
		}
		return engineError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"booking":          bookingView(res.Booking),
		"price_difference": res.PriceDifference.StringFixed(2),
	})
}

// ChangeDate handles PATCH /v1/bookings/:id/date.
func (h *BookingHandler) ChangeDate(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	bookingID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	var body struct {
		NewInstanceID uint64 `json:"new_instance_id"`
	}
	if err := c.Bind(&body); err != nil || body.NewInstanceID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "new_instance_id is required"})
	}

	res, err := h.Coordinator.ChangeBookingDate(c.Request().Context(), actor, bookingID, body.NewInstanceID)
	if err != nil {
		if res != nil && errors.Is(err, booking.ErrPaymentFailed) {
			return paymentFailed(c, res, err)
		}
		return engineError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"booking":          bookingView(res.Booking),
		"price_difference": res.PriceDifference.StringFixed(2),
	})
}

// Cancel handles POST /v1/bookings/:id/cancel.
func (h *BookingHandler) Cancel(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	bookingID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	var body struct {
		Reason *string `json:"reason"`
	}
	_ = c.Bind(&body)

	res, err := h.Coordinator.CancelBookingWithRefund(c.Request().Context(), actor, bookingID, body.Reason)
	if err != nil {
		if res != nil && errors.Is(err, booking.ErrPaymentFailed) {
			return paymentFailed(c, res, err)
		}
		return engineError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"booking":       bookingView(res.Booking),
		"refund_amount": res.RefundAmount.StringFixed(2),
	})
}

// List handles GET /v1/my-bookings.
func (h *BookingHandler) List(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	items, err := h.Store.BookingsByGuest(c.Request().Context(), uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load bookings"})
	}
	out := make([]bookingResp, 0, len(items))
	for i := range items {
		out = append(out, bookingView(&items[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"items": out})
}

// Get handles GET /v1/bookings/:id.
func (h *BookingHandler) Get(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	bookingID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	b, err := h.loadOwned(c, actor, bookingID)
	if err != nil {
		return engineError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": bookingView(b)})
}

// History handles GET /v1/bookings/:id/modifications: the append-only
// audit trail, newest last.
func (h *BookingHandler) History(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	bookingID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	if _, err := h.loadOwned(c, actor, bookingID); err != nil {
		return engineError(c, err)
	}
	mods, err := h.Store.ModificationsByBooking(c.Request().Context(), bookingID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load modifications"})
	}
	out := make([]modificationResp, 0, len(mods))
	for i := range mods {
		out = append(out, modificationView(&mods[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"items": out})
}

func (h *BookingHandler) loadOwned(c echo.Context, actor booking.Actor, bookingID uint64) (*model.Booking, error) {
	b, err := h.Store.BookingByID(c.Request().Context(), bookingID)
	if err != nil {
		return nil, err
	}
	if b.GuestID != actor.ID && actor.Role != model.RoleAdmin {
		return nil, booking.ErrUnauthorized
	}
	return b, nil
}
