package handler

import (
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
)

// Health is the load balancer probe.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// KeepAlive answers the self-ping that keeps free-tier hosts awake.
func KeepAlive(clock clockwork.Clock) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.String(http.StatusOK, "Service is alive at "+clock.Now().Format(time.RFC3339))
	}
}
