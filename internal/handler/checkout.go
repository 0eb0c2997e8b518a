package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/eventloom/tickethub/internal/model"
	"github.com/eventloom/tickethub/internal/money"
	"github.com/eventloom/tickethub/internal/order"
	"github.com/eventloom/tickethub/internal/repository"
)

// CheckoutHandler turns the authenticated user's cart into an order.
type CheckoutHandler struct {
	Service *order.Service
	Users   *repository.UserRepo
	Cur     money.Currency
}

func NewCheckoutHandler(svc *order.Service, users *repository.UserRepo, cur money.Currency) *CheckoutHandler {
	if svc == nil || users == nil {
		panic("nil dependency passed to NewCheckoutHandler")
	}
	return &CheckoutHandler{Service: svc, Users: users, Cur: cur}
}

type checkoutReq struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type orderItemPart struct {
	TicketID       uint64 `json:"ticket_id"`
	Quantity       int    `json:"quantity"`
	UnitPrice      string `json:"unit_price"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

type orderPart struct {
	ID         uint64          `json:"id"`
	Status     string          `json:"status"`
	Total      string          `json:"total"`
	TotalCents int64           `json:"total_cents"`
	Items      []orderItemPart `json:"items"`
}

// Checkout handles POST /v1/checkout. Submitting the same cart twice
// updates the existing order in place rather than creating a second
// one; only a cleared (or completed) cart starts a fresh order.
func (h *CheckoutHandler) Checkout(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req checkoutReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx := c.Request().Context()
	p := order.Purchaser{
		UserID: userID,
		Name:   strings.TrimSpace(req.Name),
		Email:  strings.ToLower(strings.TrimSpace(req.Email)),
	}
	if p.Name == "" || p.Email == "" {
		// Fall back to the account profile.
		u, err := h.Users.GetByID(ctx, userID)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
		}
		if p.Name == "" {
			p.Name = u.Name
		}
		if p.Email == "" {
			p.Email = u.Email
		}
	}

	o, err := h.Service.CreateOrUpdateFromCart(ctx, order.CartOwnerKey(userID), p)
	if err != nil {
		switch {
		case errors.Is(err, order.ErrEmptyCart):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "cart is empty"})
		case errors.Is(err, order.ErrMissingPurchaser):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "purchaser name and email required"})
		case errors.Is(err, order.ErrUnknownTicket):
			return c.JSON(http.StatusConflict, echo.Map{"error": "cart references an unknown ticket"})
		case errors.Is(err, order.ErrOrderLocked):
			return c.JSON(http.StatusConflict, echo.Map{"error": "order is being processed"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "checkout failed"})
	}

	if err := h.Service.MarkCheckoutCompleted(ctx, o.ID); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "checkout failed"})
	}
	// Hand the order to the payment flow. Refusal here means a
	// concurrent webhook already advanced it, which is fine.
	if h.Service.ModifyStatus(ctx, o.ID, order.StatusPending) {
		o.Status = string(order.StatusPending)
	}

	return c.JSON(http.StatusCreated, h.render(o))
}

func (h *CheckoutHandler) render(o *model.Order) orderPart {
	items := make([]orderItemPart, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemPart{
			TicketID:       it.TicketID,
			Quantity:       it.Quantity,
			UnitPrice:      money.Format(it.UnitPriceCents, h.Cur),
			UnitPriceCents: it.UnitPriceCents,
		})
	}
	return orderPart{
		ID:         o.ID,
		Status:     o.Status,
		Total:      money.Format(o.TotalCents, h.Cur),
		TotalCents: o.TotalCents,
		Items:      items,
	}
}
