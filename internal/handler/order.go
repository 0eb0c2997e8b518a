package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/eventloom/tickethub/internal/middleware"
	"github.com/eventloom/tickethub/internal/model"
	"github.com/eventloom/tickethub/internal/money"
	"github.com/eventloom/tickethub/internal/order"
	"github.com/eventloom/tickethub/internal/repository"
)

// OrderHandler serves order retrieval for customers and the manual
// status override for admins.
type OrderHandler struct {
	Orders  *repository.OrderRepo
	Tickets *repository.TicketRepo
	Service *order.Service
	Cur     money.Currency
}

func NewOrderHandler(orders *repository.OrderRepo, tickets *repository.TicketRepo, svc *order.Service, cur money.Currency) *OrderHandler {
	if orders == nil || tickets == nil || svc == nil {
		panic("nil dependency passed to NewOrderHandler")
	}
	return &OrderHandler{Orders: orders, Tickets: tickets, Service: svc, Cur: cur}
}

type orderLinePart struct {
	TicketID       uint64 `json:"ticket_id"`
	TicketName     string `json:"ticket_name,omitempty"`
	TicketDeleted  bool   `json:"ticket_deleted,omitempty"`
	Quantity       int    `json:"quantity"`
	UnitPrice      string `json:"unit_price"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

type orderDetail struct {
	ID             uint64          `json:"id"`
	Status         string          `json:"status"`
	PurchaserName  string          `json:"purchaser_name"`
	PurchaserEmail string          `json:"purchaser_email"`
	Total          string          `json:"total"`
	TotalCents     int64           `json:"total_cents"`
	Items          []orderLinePart `json:"items"`
}

// List handles GET /v1/orders and returns the caller's orders.
func (h *OrderHandler) List(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	orders, err := h.Orders.ListByUser(c.Request().Context(), userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	out := make([]orderDetail, 0, len(orders))
	for i := range orders {
		out = append(out, h.summary(&orders[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"orders": out})
}

// Get handles GET /v1/orders/:id. Order lines reference tickets that
// may have been deleted since purchase; those lines render from the
// snapshot with ticket_deleted set.
func (h *OrderHandler) Get(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
	}

	ctx := c.Request().Context()
	o, err := h.Orders.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "order not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	role, _ := c.Get("role").(string)
	if o.UserID != userID && role != middleware.RoleAdmin {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}

	detail := h.summary(o)
	for i, it := range o.Items {
		ref, err := h.Tickets.ResolveRef(ctx, it.TicketID)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
		}
		switch ref.Kind {
		case repository.RefTicket:
			detail.Items[i].TicketName = ref.Ticket.Name
		case repository.RefPlaceholder:
			detail.Items[i].TicketDeleted = true
		}
	}
	return c.JSON(http.StatusOK, detail)
}

type setStatusReq struct {
	Status string `json:"status"`
}

// SetStatus handles POST /v1/orders/:id/status, the admin override.
// It runs through the same state machine and side effects as the
// webhook path, so a manual completion still counts stock and issues
// attendees exactly once.
func (h *OrderHandler) SetStatus(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
	}
	var req setStatusReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	target, ok := order.ParseStatus(req.Status)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown status"})
	}

	ctx := c.Request().Context()
	if _, err := h.Orders.GetByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "order not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	if !h.Service.ModifyStatus(ctx, id, target) {
		return c.JSON(http.StatusConflict, echo.Map{"error": "transition refused"})
	}
	o, err := h.Orders.GetByID(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, h.summary(o))
}

func (h *OrderHandler) summary(o *model.Order) orderDetail {
	items := make([]orderLinePart, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderLinePart{
			TicketID:       it.TicketID,
			Quantity:       it.Quantity,
			UnitPrice:      money.Format(it.UnitPriceCents, h.Cur),
			UnitPriceCents: it.UnitPriceCents,
		})
	}
	return orderDetail{
		ID:             o.ID,
		Status:         o.Status,
		PurchaserName:  o.PurchaserName,
		PurchaserEmail: o.PurchaserEmail,
		Total:          money.Format(o.TotalCents, h.Cur),
		TotalCents:     o.TotalCents,
		Items:          items,
	}
}
