package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/calebferro/slotbook/internal/booking"
	"github.com/calebferro/slotbook/internal/waitlist"
)

// WaitlistHandler exposes joining the queue and claiming a promoted
// spot.
type WaitlistHandler struct {
	Coordinator *booking.Coordinator
	Promoter    *waitlist.Promoter
}

func NewWaitlistHandler(coord *booking.Coordinator, promoter *waitlist.Promoter) *WaitlistHandler {
	if coord == nil || promoter == nil {
		panic("nil dependency passed to NewWaitlistHandler")
	}
	return &WaitlistHandler{Coordinator: coord, Promoter: promoter}
}

// Join handles POST /v1/waitlist.  The guest queues for a sold-out
// instance and learns their FIFO position.
func (h *WaitlistHandler) Join(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body struct {
		OfferingID uint64 `json:"offering_id"`
		InstanceID uint64 `json:"instance_id"`
		PartySize  int    `json:"party_size"`
	}
	if err := c.Bind(&body); err != nil || body.OfferingID == 0 || body.InstanceID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "offering_id and instance_id are required"})
	}

	entry, pos, err := h.Coordinator.JoinWaitlist(c.Request().Context(), actor, body.OfferingID, body.InstanceID, body.PartySize)
	if err != nil {
		return engineError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"entry_id":  entry.ID,
		"position":  pos,
		"status":    string(entry.Status),
		"joined_at": entry.JoinedAt.UTC().Format(time.RFC3339),
	})
}

// Claim handles POST /v1/waitlist/claim.  Presenting the claim token
// inside the window converts the entry into a confirmed booking.
func (h *WaitlistHandler) Claim(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body struct {
		ClaimToken string `json:"claim_token"`
	}
	if err := c.Bind(&body); err != nil || body.ClaimToken == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "claim_token is required"})
	}

	b, err := h.Promoter.Claim(c.Request().Context(), uid, body.ClaimToken)
	if err != nil {
		return engineError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"booking": bookingView(b)})
}
