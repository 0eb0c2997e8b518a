package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/eventloom/tickethub/internal/cart"
	"github.com/eventloom/tickethub/internal/order"
	"github.com/eventloom/tickethub/internal/repository"
)

// CartHandler exposes the authenticated user's shopping cart. All
// methods assume JWT middleware already ran.
type CartHandler struct {
	Carts   cart.Store
	Tickets *repository.TicketRepo
}

func NewCartHandler(carts cart.Store, tickets *repository.TicketRepo) *CartHandler {
	if carts == nil || tickets == nil {
		panic("nil dependency passed to NewCartHandler")
	}
	return &CartHandler{Carts: carts, Tickets: tickets}
}

type cartLine struct {
	TicketID uint64            `json:"ticket_id"`
	Quantity int               `json:"quantity"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// Get handles GET /v1/cart.
func (h *CartHandler) Get(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	items, err := h.Carts.Items(c.Request().Context(), order.CartOwnerKey(userID))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "cart read failed"})
	}
	lines := make([]cartLine, 0, len(items))
	for _, it := range items {
		lines = append(lines, cartLine{TicketID: it.TicketID, Quantity: it.Quantity, Extra: it.Extra})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": lines})
}

// Upsert handles PUT /v1/cart/items. A quantity of zero removes the
// line.
func (h *CartHandler) Upsert(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body cartLine
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.TicketID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "ticket_id is required"})
	}
	ctx := c.Request().Context()
	if body.Quantity > 0 {
		// Only live, purchasable tickets can enter the cart.
		t, err := h.Tickets.GetByID(ctx, body.TicketID)
		if err != nil {
			if errors.Is(err, repository.ErrTicketNotFound) {
				return c.JSON(http.StatusNotFound, echo.Map{"error": "ticket not found"})
			}
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
		}
		if t.Available < body.Quantity {
			return c.JSON(http.StatusConflict, echo.Map{"error": "insufficient stock"})
		}
	}
	if err := h.Carts.UpsertItem(ctx, order.CartOwnerKey(userID), body.TicketID, body.Quantity, body.Extra); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "cart write failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

// Clear handles DELETE /v1/cart.
func (h *CartHandler) Clear(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	if err := h.Carts.Clear(c.Request().Context(), order.CartOwnerKey(userID)); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "cart clear failed"})
	}
	return c.NoContent(http.StatusNoContent)
}
