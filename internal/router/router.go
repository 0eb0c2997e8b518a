// Package router defines how HTTP routes are registered for the API.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/eventloom/tickethub/internal/handler"
	"github.com/eventloom/tickethub/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers registration/login under /v1/auth and the
// profile endpoint under the protected /v1 group.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)

	auth := e.Group("/v1", middleware.JWTAuth(jwtSecret))
	auth.GET("/me", a.Me)
}

// RegisterPublic registers unauthenticated browse endpoints. Guests
// can inspect events and their ticket types before signing up.
func RegisterPublic(e *echo.Echo, ev *handler.EventHandler) {
	e.GET("/v1/events", ev.List)
	e.GET("/v1/events/:id", ev.Get)
	e.GET("/v1/events/:id/tickets", ev.ListTickets)
}

// RegisterCustomer registers the cart, checkout and order endpoints.
// All routes require a valid JWT; any authenticated role may shop.
func RegisterCustomer(e *echo.Echo, cart *handler.CartHandler, checkout *handler.CheckoutHandler, orders *handler.OrderHandler, attendees *handler.AttendeeHandler, jwtSecret string) {
	g := e.Group("/v1", middleware.JWTAuth(jwtSecret))

	g.GET("/cart", cart.Get)
	g.POST("/cart/items", cart.Upsert)
	g.DELETE("/cart", cart.Clear)

	g.POST("/checkout", checkout.Checkout)

	g.GET("/orders", orders.List)
	g.GET("/orders/:id", orders.Get)
	g.GET("/orders/:id/attendees", attendees.ListByOrder)
	g.GET("/attendees/:id/qr", attendees.QR)
}

// RegisterOrganizer registers event management endpoints for
// organizers and admins, including gate check-in.
func RegisterOrganizer(e *echo.Echo, ev *handler.EventHandler, attendees *handler.AttendeeHandler, jwtSecret string) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleOrganizer, middleware.RoleAdmin),
	)
	g.POST("/events", ev.Create)
	g.POST("/events/:id/tickets", ev.CreateTicket)
	g.POST("/attendees/checkin", attendees.CheckIn)
}

// RegisterAdmin registers the manual status override, admin only.
func RegisterAdmin(e *echo.Echo, orders *handler.OrderHandler, jwtSecret string) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleAdmin),
	)
	g.POST("/orders/:id/status", orders.SetStatus)
}

// RegisterWebhooks registers the payment gateway callback. The route
// is unauthenticated; the handler verifies the HMAC signature itself.
func RegisterWebhooks(e *echo.Echo, w *handler.WebhookHandler) {
	e.POST("/v1/webhooks/payment", w.Receive)
}
