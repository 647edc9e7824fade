package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/portfolio-backend/internal/auth"
	"github.com/iliyamo/portfolio-backend/internal/observability"
	"github.com/iliyamo/portfolio-backend/internal/portfolio"
)

// statusOf maps a domain error to the HTTP status the API answers with.
// Anything unrecognised is an internal fault.
func statusOf(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidRefreshToken),
		errors.Is(err, auth.ErrRefreshTokenNotRecognized):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrAlreadyRegistered),
		errors.Is(err, auth.ErrUsernameTaken):
		return http.StatusConflict
	case errors.Is(err, auth.ErrNotificationFailed),
		errors.Is(err, auth.ErrProviderUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, auth.ErrInvalidInput),
		errors.Is(err, auth.ErrInvalidOrExpiredOtp),
		errors.Is(err, auth.ErrEmailNotVerified),
		errors.Is(err, auth.ErrEmailNotProvided),
		errors.Is(err, portfolio.ErrInvalidPhoto),
		errors.Is(err, portfolio.ErrNameRequired):
		return http.StatusBadRequest
	case errors.Is(err, portfolio.ErrPortfolioNotFound):
		return http.StatusNotFound
	case errors.Is(err, portfolio.ErrForbidden):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// fail writes {"error": msg}. Internal faults get a generic message and are
// reported to Sentry with the route that produced them.
func fail(c echo.Context, err error) error {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		slog.ErrorContext(c.Request().Context(), "request failed",
			"method", c.Request().Method, "route", c.Path(), "err", err)
		observability.CaptureError(err, c.Request().Method, c.Path())
		return c.JSON(status, echo.Map{"error": "internal server error"})
	}
	return c.JSON(status, echo.Map{"error": err.Error()})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}

type messageResp struct {
	Message string `json:"message"`
}
