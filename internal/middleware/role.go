package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Role values stored in the JWT "role" claim.
const (
	RoleCustomer  = "CUSTOMER"
	RoleOrganizer = "ORGANIZER"
	RoleAdmin     = "ADMIN"
)

// RequireRole enforces that the authenticated user carries one of the
// given roles. It assumes JWTAuth already stored the role under the
// context key "role"; a missing or unknown role yields 403.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, ok := c.Get("role").(string)
			if !ok || !allowed[role] {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			return next(c)
		}
	}
}
