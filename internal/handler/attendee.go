package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/eventloom/tickethub/internal/middleware"
	"github.com/eventloom/tickethub/internal/repository"
	"github.com/eventloom/tickethub/internal/utils"
)

// AttendeeHandler serves the per-attendee ticket artifacts: listing,
// the signed QR image, and gate check-in.
type AttendeeHandler struct {
	Attendees *repository.AttendeeRepo
	Orders    *repository.OrderRepo
	QRSecret  string
}

func NewAttendeeHandler(attendees *repository.AttendeeRepo, orders *repository.OrderRepo, qrSecret string) *AttendeeHandler {
	if attendees == nil || orders == nil {
		panic("nil dependency passed to NewAttendeeHandler")
	}
	return &AttendeeHandler{Attendees: attendees, Orders: orders, QRSecret: qrSecret}
}

type attendeePart struct {
	ID        string `json:"id"`
	TicketID  uint64 `json:"ticket_id"`
	EventID   uint64 `json:"event_id"`
	CheckedIn bool   `json:"checked_in"`
}

// ListByOrder handles GET /v1/orders/:id/attendees.
func (h *AttendeeHandler) ListByOrder(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	orderID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || orderID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
	}

	ctx := c.Request().Context()
	o, err := h.Orders.GetByID(ctx, orderID)
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

	attendees, err := h.Attendees.ListByOrder(ctx, orderID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	out := make([]attendeePart, 0, len(attendees))
	for _, a := range attendees {
		out = append(out, attendeePart{ID: a.ID, TicketID: a.TicketID, EventID: a.EventID, CheckedIn: a.CheckedIn})
	}
	return c.JSON(http.StatusOK, echo.Map{"attendees": out})
}

// qrPayload serializes the fields a scanner needs plus an HMAC so the
// gate can verify offline that the code was issued by this server.
func (h *AttendeeHandler) qrPayload(id, securityCode string) string {
	base := fmt.Sprintf("%s|%s", id, securityCode)
	return base + "|" + utils.Sign(h.QRSecret, []byte(base))
}

// QR handles GET /v1/attendees/:id/qr and returns a PNG.
func (h *AttendeeHandler) QR(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id := c.Param("id")

	ctx := c.Request().Context()
	a, err := h.Attendees.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrAttendeeNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "attendee not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	o, err := h.Orders.GetByID(ctx, a.OrderID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	role, _ := c.Get("role").(string)
	if o.UserID != userID && role != middleware.RoleAdmin {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}

	png, err := qrcode.Encode(h.qrPayload(a.ID, a.SecurityCode), qrcode.Medium, 256)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "qr generation failed"})
	}
	return c.Blob(http.StatusOK, "image/png", png)
}

type checkInReq struct {
	QRData string `json:"qr_data"`
}

// CheckIn handles POST /v1/checkin. It validates the scanned payload
// signature and flips the attendee to checked-in exactly once; a
// second scan of the same code is rejected.
func (h *AttendeeHandler) CheckIn(c echo.Context) error {
	var req checkInReq
	if err := c.Bind(&req); err != nil || req.QRData == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "qr_data is required"})
	}
	parts := strings.Split(req.QRData, "|")
	if len(parts) != 3 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid qr format"})
	}
	id, code, sig := parts[0], parts[1], parts[2]
	if !utils.VerifySignature(h.QRSecret, []byte(id+"|"+code), sig) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid qr signature"})
	}

	ctx := c.Request().Context()
	a, err := h.Attendees.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrAttendeeNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "attendee not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if a.SecurityCode != code {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid security code"})
	}

	ok, err := h.Attendees.MarkCheckedIn(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if !ok {
		return c.JSON(http.StatusConflict, echo.Map{"error": "already checked in"})
	}
	return c.JSON(http.StatusOK, echo.Map{"checked_in": true, "attendee_id": id})
}
