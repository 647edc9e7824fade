package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/portfolio-backend/internal/auth"
	"github.com/iliyamo/portfolio-backend/internal/utils"
)

type federatedResp struct {
	auth.TokenPair
	User auth.IdentitySummary `json:"user"`
}

// GoogleRedirect sends the browser to the Google consent screen.
func (h *AuthHandler) GoogleRedirect(c echo.Context) error {
	state, err := utils.RandomHex(16)
	if err != nil {
		return fail(c, err)
	}
	return c.Redirect(http.StatusFound, h.Sessions.AuthCodeURL(state))
}

// GoogleCallback exchanges the authorization code posted by the frontend.
func (h *AuthHandler) GoogleCallback(c echo.Context) error {
	code := c.QueryParam("code")
	if code == "" {
		code = c.FormValue("code")
	}
	if code == "" {
		return badRequest(c, "code is required")
	}
	pair, user, err := h.Sessions.FederatedLogin(c.Request().Context(), code)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, federatedResp{TokenPair: pair, User: user})
}
