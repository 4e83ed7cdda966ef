package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/calebferro/slotbook/internal/model"
	"github.com/calebferro/slotbook/internal/storage"
)

// BrowseHandler serves the public availability endpoints.  Instance
// status is derived from the spot counters on every read and never
// stored, so these responses are always consistent with the ledger.
type BrowseHandler struct {
	Store storage.Store
}

func NewBrowseHandler(store storage.Store) *BrowseHandler {
	return &BrowseHandler{Store: store}
}

type instanceResp struct {
	ID             uint64 `json:"id"`
	OfferingID     uint64 `json:"offering_id"`
	StartsAt       string `json:"starts_at"`
	EndsAt         string `json:"ends_at"`
	Capacity       int    `json:"capacity"`
	AvailableSpots int    `json:"available_spots"`
	Status         string `json:"status"`
	PricePerGuest  string `json:"price_per_guest"`
}

func instanceView(i *model.Instance, price decimal.Decimal) instanceResp {
	return instanceResp{
		ID:             i.ID,
		OfferingID:     i.OfferingID,
		StartsAt:       i.StartsAt.UTC().Format(time.RFC3339),
		EndsAt:         i.EndsAt.UTC().Format(time.RFC3339),
		Capacity:       i.Capacity,
		AvailableSpots: i.AvailableSpots,
		Status:         string(i.Status()),
		PricePerGuest:  price.StringFixed(2),
	}
}

// GetOffering handles GET /v1/offerings/:id.
func (h *BrowseHandler) GetOffering(c echo.Context) error {
	offeringID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid offering id"})
	}
	off, err := h.Store.OfferingByID(c.Request().Context(), offeringID)
	if err != nil {
		return engineError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"id":                  off.ID,
		"title":               off.Title,
		"base_price":          off.BasePrice.StringFixed(2),
		"currency":            off.Currency,
		"cancellation_policy": string(off.CancellationPolicy),
	})
}

// ListInstances handles GET /v1/offerings/:id/instances with the
// derived AVAILABLE/LIMITED/SOLD_OUT status per instance.
func (h *BrowseHandler) ListInstances(c echo.Context) error {
	offeringID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid offering id"})
	}
	ctx := c.Request().Context()
	off, err := h.Store.OfferingByID(ctx, offeringID)
	if err != nil {
		return engineError(c, err)
	}
	instances, err := h.Store.InstancesByOffering(ctx, offeringID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load instances"})
	}
	out := make([]instanceResp, 0, len(instances))
	for i := range instances {
		inst := &instances[i]
		out = append(out, instanceView(inst, inst.PricePerGuest(off.BasePrice)))
	}
	return c.JSON(http.StatusOK, echo.Map{"items": out})
}
