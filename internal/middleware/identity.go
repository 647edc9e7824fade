package middleware

// identity.go holds the context keys JWTAuth fills and the helpers other
// middleware and handlers use to read them back.

import "github.com/labstack/echo/v4"

const (
	ContextUsername = "username"
	ContextRole     = "role"
)

// Username returns the authenticated subject, or "" for anonymous requests.
func Username(c echo.Context) string {
	s, _ := c.Get(ContextUsername).(string)
	return s
}

// Role returns the role claim of the authenticated request.
func Role(c echo.Context) string {
	s, _ := c.Get(ContextRole).(string)
	return s
}

// userID is the identity used in rate limit keys.
func userID(c echo.Context) string {
	if u := Username(c); u != "" {
		return u
	}
	return "guest"
}
