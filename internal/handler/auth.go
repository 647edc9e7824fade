package handler

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/portfolio-backend/internal/auth"
)

// Registrar is the email registration flow (auth.RegistrationFlow).
type Registrar interface {
	Start(ctx context.Context, email string) error
	ConfirmOtp(ctx context.Context, email, code string) error
	SetCredentials(ctx context.Context, email, username, password string) error
}

// Sessions issues and checks tokens (auth.SessionFlow).
type Sessions interface {
	Login(ctx context.Context, username, password string) (auth.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (auth.TokenPair, error)
	CheckToken(tokenString string) bool
	AuthCodeURL(state string) string
	FederatedLogin(ctx context.Context, code string) (auth.TokenPair, auth.IdentitySummary, error)
}

// AuthHandler serves /api/auth.
type AuthHandler struct {
	Registration Registrar
	Sessions     Sessions
}

func NewAuthHandler(reg Registrar, sessions Sessions) *AuthHandler {
	return &AuthHandler{Registration: reg, Sessions: sessions}
}

type setCredsReq struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Register: POST /api/auth/register?email=
func (h *AuthHandler) Register(c echo.Context) error {
	if err := h.Registration.Start(c.Request().Context(), c.QueryParam("email")); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, messageResp{Message: "OTP sent to email"})
}

// VerifyOtp: POST /api/auth/verify-otp?email=&otp=
func (h *AuthHandler) VerifyOtp(c echo.Context) error {
	err := h.Registration.ConfirmOtp(c.Request().Context(), c.QueryParam("email"), c.QueryParam("otp"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, messageResp{Message: "OTP verified. Please set your username and password."})
}

// SetCreds: POST /api/auth/set-creds
func (h *AuthHandler) SetCreds(c echo.Context) error {
	var req setCredsReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if err := h.Registration.SetCredentials(c.Request().Context(), req.Email, req.Username, req.Password); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, messageResp{Message: "Registration completed successfully"})
}

// Login: POST /api/auth/login
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	pair, err := h.Sessions.Login(c.Request().Context(), strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, pair)
}

// Refresh: POST /api/auth/refresh?refreshToken=
func (h *AuthHandler) Refresh(c echo.Context) error {
	pair, err := h.Sessions.Refresh(c.Request().Context(), c.QueryParam("refreshToken"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, pair)
}

// CheckToken answers true or false for the raw token in the body.
func (h *AuthHandler) CheckToken(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, 8<<10))
	if err != nil {
		return badRequest(c, "invalid body")
	}
	raw := strings.Trim(strings.TrimSpace(string(body)), `"`)
	return c.JSON(http.StatusOK, h.Sessions.CheckToken(raw))
}
