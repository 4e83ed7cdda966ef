// Package handler defines the HTTP surface of the booking engine.
// Handlers translate requests into engine calls and engine errors into
// status codes; no business rule lives here.
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/calebferro/slotbook/internal/booking"
	"github.com/calebferro/slotbook/internal/capacity"
	"github.com/calebferro/slotbook/internal/storage"
	"github.com/calebferro/slotbook/internal/waitlist"
)

// getUserID extracts the authenticated user's ID from the context.
func getUserID(c echo.Context) (uint64, error) {
	switch t := c.Get("user_id").(type) {
	case uint64:
		return t, nil
	case float64:
		return uint64(t), nil
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

// actorFrom builds the engine actor for the authenticated user.
func actorFrom(c echo.Context) (booking.Actor, error) {
	uid, err := getUserID(c)
	if err != nil {
		return booking.Actor{}, err
	}
	role, _ := c.Get("role").(string)
	return booking.Actor{ID: uid, Role: role}, nil
}

// pathID parses a positive uint64 path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

// engineError maps an engine error onto an HTTP response.  The mapping
// is the single place the error taxonomy meets status codes, so every
// endpoint reports the same failure the same way.
func engineError(c echo.Context, err error) error {
	var capErr *capacity.InsufficientCapacityError
	switch {
	case errors.Is(err, booking.ErrValidation):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation_error", "message": err.Error()})
	case errors.Is(err, booking.ErrUnauthorized), errors.Is(err, waitlist.ErrNotOwner):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "unauthorized", "message": err.Error()})
	case errors.Is(err, booking.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not_found"})
	case errors.Is(err, booking.ErrWindowClosed):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "modification_window_closed", "message": err.Error()})
	case errors.As(err, &capErr):
		return c.JSON(http.StatusConflict, echo.Map{
			"error":     "insufficient_capacity",
			"message":   err.Error(),
			"requested": capErr.Requested,
			"available": capErr.Available,
		})
	case errors.Is(err, capacity.ErrInsufficientCapacity):
		return c.JSON(http.StatusConflict, echo.Map{"error": "insufficient_capacity", "message": err.Error()})
	case errors.Is(err, booking.ErrInvalidState):
		return c.JSON(http.StatusConflict, echo.Map{"error": "invalid_state", "message": err.Error()})
	case errors.Is(err, waitlist.ErrClaimWindowClosed):
		return c.JSON(http.StatusGone, echo.Map{"error": "claim_window_closed", "message": err.Error()})
	case errors.Is(err, storage.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "conflict", "message": "concurrent update, please retry"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal_error"})
	}
}
