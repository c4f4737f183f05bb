package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	HeaderUserID    = "X-User-Id"
	HeaderUserEmail = "X-User-Email"

	ctxUserID    = "user_id"
	ctxUserEmail = "user_email"
)

// AuthMiddleware trusts the identity headers set by the upstream auth
// gateway. Requests without a user id are rejected.
func AuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := strings.TrimSpace(c.Request().Header.Get(HeaderUserID))
			if userID == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing user identity")
			}

			c.Set(ctxUserID, userID)
			c.Set(ctxUserEmail, strings.TrimSpace(c.Request().Header.Get(HeaderUserEmail)))
			return next(c)
		}
	}
}

func UserID(c echo.Context) string {
	id, _ := c.Get(ctxUserID).(string)
	return id
}

func UserEmail(c echo.Context) string {
	email, _ := c.Get(ctxUserEmail).(string)
	return email
}
