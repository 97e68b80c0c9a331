package common

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const userIDContextKey = "bannerforge.user_id"

// Identity resolves the caller set by the upstream auth proxy. The header
// wins over the cookie; credentials are never verified here.
func Identity(header, cookie string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := strings.TrimSpace(c.Request().Header.Get(header))
			if userID == "" && cookie != "" {
				if ck, err := c.Cookie(cookie); err == nil {
					userID = strings.TrimSpace(ck.Value)
				}
			}
			if userID != "" {
				c.Set(userIDContextKey, userID)
			}
			return next(c)
		}
	}
}

// UserID returns the identity resolved by Identity, or "".
func UserID(c echo.Context) string {
	userID, _ := c.Get(userIDContextKey).(string)
	return userID
}

// RequireUser rejects requests without an identity with 401.
func RequireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if UserID(c) == "" {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		}
		return next(c)
	}
}
