package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/portfolio-backend/internal/middleware"
	"github.com/iliyamo/portfolio-backend/internal/model"
	"github.com/iliyamo/portfolio-backend/internal/portfolio"
)

// PortfolioService is implemented by portfolio.Service.
type PortfolioService interface {
	Create(ctx context.Context, owner string, in portfolio.Input) (*model.Portfolio, error)
	Update(ctx context.Context, owner, id string, in portfolio.Input) (*model.Portfolio, error)
	Delete(ctx context.Context, owner, id string) error
	ListMine(ctx context.Context, owner string) ([]model.Portfolio, error)
	ListPublic(ctx context.Context) ([]model.Portfolio, error)
	Get(ctx context.Context, viewer, id string) (*model.Portfolio, error)
	ToggleVisibility(ctx context.Context, owner, id string) (*model.Portfolio, error)
}

// Purger drops cached public listings after a write.
type Purger interface {
	Purge(ctx context.Context)
}

type PortfolioHandler struct {
	Service PortfolioService
	Cache   Purger
}

func NewPortfolioHandler(svc PortfolioService, cache Purger) *PortfolioHandler {
	return &PortfolioHandler{Service: svc, Cache: cache}
}

func (h *PortfolioHandler) purge(c echo.Context) {
	if h.Cache != nil {
		h.Cache.Purge(c.Request().Context())
	}
}

// Create: POST /api/portfolios (multipart)
func (h *PortfolioHandler) Create(c echo.Context) error {
	in, err := readInput(c)
	if err != nil {
		return fail(c, err)
	}
	p, err := h.Service.Create(c.Request().Context(), middleware.Username(c), in)
	if err != nil {
		return fail(c, err)
	}
	h.purge(c)
	return c.JSON(http.StatusCreated, p)
}

// Update: PUT /api/portfolios/:id (multipart)
func (h *PortfolioHandler) Update(c echo.Context) error {
	in, err := readInput(c)
	if err != nil {
		return fail(c, err)
	}
	p, err := h.Service.Update(c.Request().Context(), middleware.Username(c), c.Param("id"), in)
	if err != nil {
		return fail(c, err)
	}
	h.purge(c)
	return c.JSON(http.StatusOK, p)
}

func (h *PortfolioHandler) Delete(c echo.Context) error {
	if err := h.Service.Delete(c.Request().Context(), middleware.Username(c), c.Param("id")); err != nil {
		return fail(c, err)
	}
	h.purge(c)
	return c.JSON(http.StatusOK, messageResp{Message: "Portfolio deleted successfully"})
}

func (h *PortfolioHandler) ListMine(c echo.Context) error {
	list, err := h.Service.ListMine(c.Request().Context(), middleware.Username(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *PortfolioHandler) ListPublic(c echo.Context) error {
	list, err := h.Service.ListPublic(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *PortfolioHandler) Get(c echo.Context) error {
	p, err := h.Service.Get(c.Request().Context(), middleware.Username(c), c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// ToggleVisibility: PATCH /api/portfolios/:id/visibility
func (h *PortfolioHandler) ToggleVisibility(c echo.Context) error {
	p, err := h.Service.ToggleVisibility(c.Request().Context(), middleware.Username(c), c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	h.purge(c)
	return c.JSON(http.StatusOK, p)
}

// readInput collects the multipart fields. skills may be repeated or
// comma separated; userPhoto is optional.
func readInput(c echo.Context) (portfolio.Input, error) {
	in := portfolio.Input{
		Name:        c.FormValue("name"),
		Email:       c.FormValue("email"),
		PhoneNumber: c.FormValue("phoneNumber"),
		Address:     c.FormValue("address"),
	}
	in.IsPublic, _ = strconv.ParseBool(c.FormValue("isPublic"))

	if form, err := c.MultipartForm(); err == nil {
		for _, v := range form.Value["skills"] {
			in.Skills = append(in.Skills, strings.Split(v, ",")...)
		}
	} else if v := c.FormValue("skills"); v != "" {
		in.Skills = strings.Split(v, ",")
	}

	fh, err := c.FormFile("userPhoto")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return in, nil
	}
	if err != nil {
		return in, fmt.Errorf("%w: %v", portfolio.ErrInvalidPhoto, err)
	}
	f, err := fh.Open()
	if err != nil {
		return in, err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, portfolio.MaxPhotoBytes+1))
	if err != nil {
		return in, err
	}
	in.Upload = &portfolio.Photo{Data: data, ContentType: fh.Header.Get(echo.HeaderContentType)}
	return in, nil
}
