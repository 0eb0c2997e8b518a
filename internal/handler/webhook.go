package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/eventloom/tickethub/internal/order"
	"github.com/eventloom/tickethub/internal/repository"
	"github.com/eventloom/tickethub/internal/utils"
)

// signatureHeader carries the HMAC of the raw request body.
const signatureHeader = "X-Webhook-Signature"

// WebhookHandler accepts normalized payment-gateway callbacks and
// enqueues them as transition tasks. The handler never applies a
// transition inline: acknowledging fast and retrying asynchronously is
// what keeps gateway timeouts from duplicating work.
type WebhookHandler struct {
	Orders    *repository.OrderRepo
	Scheduler order.Scheduler
	Secret    string
}

func NewWebhookHandler(orders *repository.OrderRepo, sched order.Scheduler, secret string) *WebhookHandler {
	if orders == nil || sched == nil {
		panic("nil dependency passed to NewWebhookHandler")
	}
	return &WebhookHandler{Orders: orders, Scheduler: sched, Secret: secret}
}

type webhookReq struct {
	OrderID        uint64            `json:"order_id"`
	Status         string            `json:"status"`
	PreviousStatus string            `json:"previous_status"`
	Metadata       map[string]string `json:"metadata"`
}

// Receive handles POST /v1/webhooks/payment.
func (h *WebhookHandler) Receive(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unreadable body"})
	}
	if !utils.VerifySignature(h.Secret, body, c.Request().Header.Get(signatureHeader)) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid signature"})
	}

	var req webhookReq
	if err := json.Unmarshal(body, &req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payload"})
	}
	if req.OrderID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "order_id is required"})
	}
	target, ok := order.ParseStatus(req.Status)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown status"})
	}

	ctx := c.Request().Context()
	expected := order.StatusCreated
	if req.PreviousStatus != "" {
		expected, ok = order.ParseStatus(req.PreviousStatus)
		if !ok {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown previous status"})
		}
	} else if o, err := h.Orders.GetByID(ctx, req.OrderID); err == nil {
		expected = order.Status(o.Status)
	} else if !errors.Is(err, repository.ErrOrderNotFound) {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	t := order.Task{
		OrderID:      req.OrderID,
		TargetStatus: target,
		ExpectedPrev: expected,
		Metadata:     req.Metadata,
		Attempt:      1,
	}
	if err := h.Scheduler.Schedule(ctx, t, 0); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "enqueue failed"})
	}
	return c.JSON(http.StatusAccepted, echo.Map{"accepted": true})
}
