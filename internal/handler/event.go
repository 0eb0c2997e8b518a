package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/eventloom/tickethub/internal/middleware"
	"github.com/eventloom/tickethub/internal/model"
	"github.com/eventloom/tickethub/internal/money"
	"github.com/eventloom/tickethub/internal/repository"
)

// EventHandler covers event browsing and organizer management.
type EventHandler struct {
	Events  *repository.EventRepo
	Tickets *repository.TicketRepo
	Cur     money.Currency
}

func NewEventHandler(events *repository.EventRepo, tickets *repository.TicketRepo, cur money.Currency) *EventHandler {
	if events == nil || tickets == nil {
		panic("nil dependency passed to NewEventHandler")
	}
	return &EventHandler{Events: events, Tickets: tickets, Cur: cur}
}

type eventPart struct {
	ID       uint64    `json:"id"`
	Title    string    `json:"title"`
	Venue    string    `json:"venue"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

type ticketPart struct {
	ID           uint64 `json:"id"`
	Name         string `json:"name"`
	Price        string `json:"price"`
	PriceCents   int64  `json:"price_cents"`
	RegularPrice string `json:"regular_price,omitempty"`
	Available    int    `json:"available"`
}

func toEventPart(e *model.Event) eventPart {
	return eventPart{ID: e.ID, Title: e.Title, Venue: e.Venue, StartsAt: e.StartsAt, EndsAt: e.EndsAt}
}

// List handles GET /v1/events.
func (h *EventHandler) List(c echo.Context) error {
	events, err := h.Events.List(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	out := make([]eventPart, 0, len(events))
	for i := range events {
		out = append(out, toEventPart(&events[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"events": out})
}

// Get handles GET /v1/events/:id.
func (h *EventHandler) Get(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	e, err := h.Events.GetByID(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, toEventPart(e))
}

// ListTickets handles GET /v1/events/:id/tickets.
func (h *EventHandler) ListTickets(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	ctx := c.Request().Context()
	if _, err := h.Events.GetByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	tickets, err := h.Tickets.ListByEvent(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	out := make([]ticketPart, 0, len(tickets))
	for _, t := range tickets {
		p := ticketPart{
			ID:         t.ID,
			Name:       t.Name,
			Price:      money.Format(t.PriceCents, h.Cur),
			PriceCents: t.PriceCents,
			Available:  t.Available,
		}
		if t.RegularPriceCents != t.PriceCents {
			p.RegularPrice = money.Format(t.RegularPriceCents, h.Cur)
		}
		out = append(out, p)
	}
	return c.JSON(http.StatusOK, echo.Map{"tickets": out})
}

type createEventReq struct {
	Title    string    `json:"title"`
	Venue    string    `json:"venue"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

// Create handles POST /v1/events for organizers.
func (h *EventHandler) Create(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req createEventReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Title == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "title is required"})
	}
	if !req.EndsAt.IsZero() && req.EndsAt.Before(req.StartsAt) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "ends_at before starts_at"})
	}

	e := &model.Event{
		OrganizerID: userID,
		Title:       req.Title,
		Venue:       req.Venue,
		StartsAt:    req.StartsAt,
		EndsAt:      req.EndsAt,
	}
	if err := h.Events.Create(c.Request().Context(), e); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create event failed"})
	}
	return c.JSON(http.StatusCreated, toEventPart(e))
}

type createTicketReq struct {
	Name         string `json:"name"`
	Price        string `json:"price"`         // display string, e.g. "50.60"
	RegularPrice string `json:"regular_price"` // optional, defaults to price
	Available    int    `json:"available"`
}

// CreateTicket handles POST /v1/events/:id/tickets. Prices arrive as
// display strings and are parsed into minor units on the way in; the
// database never stores floats.
func (h *EventHandler) CreateTicket(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	eventID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || eventID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	var req createTicketReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Name == "" || req.Price == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name and price are required"})
	}
	if req.Available < 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "available must be non-negative"})
	}

	ctx := c.Request().Context()
	e, err := h.Events.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	role, _ := c.Get("role").(string)
	if e.OrganizerID != userID && role != middleware.RoleAdmin {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}

	priceCents, err := money.ToMinorUnits(req.Price, h.Cur)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid price"})
	}
	regularCents := priceCents
	if req.RegularPrice != "" {
		regularCents, err = money.ToMinorUnits(req.RegularPrice, h.Cur)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid regular price"})
		}
	}

	t := &model.Ticket{
		EventID:           eventID,
		Name:              req.Name,
		PriceCents:        priceCents,
		RegularPriceCents: regularCents,
		Currency:          h.Cur.Code,
		Available:         req.Available,
	}
	if err := h.Tickets.Create(ctx, t); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create ticket failed"})
	}
	return c.JSON(http.StatusCreated, ticketPart{
		ID:         t.ID,
		Name:       t.Name,
		Price:      money.Format(t.PriceCents, h.Cur),
		PriceCents: t.PriceCents,
		Available:  t.Available,
	})
}
