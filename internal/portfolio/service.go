// Package portfolio manages the portfolios users publish about themselves.
// Only the owner may change a portfolio; private ones are visible to their
// owner alone.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"

	"github.com/iliyamo/portfolio-backend/internal/model"
	"github.com/iliyamo/portfolio-backend/internal/repository"
)

const MaxPhotoBytes = 5 << 20

var (
	ErrPortfolioNotFound = errors.New("portfolio not found")
	ErrForbidden         = repository.ErrForbidden
	ErrInvalidPhoto      = errors.New("photo must be an image of at most 5 MiB")
	ErrNameRequired      = errors.New("name is required")
)

// Store is satisfied by repository.PortfolioRepo.
type Store interface {
	Create(ctx context.Context, p *model.Portfolio) error
	Update(ctx context.Context, p *model.Portfolio) error
	Delete(ctx context.Context, id, userID string) error
	GetByID(ctx context.Context, id string) (*model.Portfolio, error)
	ListByUser(ctx context.Context, userID string) ([]model.Portfolio, error)
	ListPublic(ctx context.Context) ([]model.Portfolio, error)
}

// Photo is an uploaded image.
type Photo struct {
	Data        []byte
	ContentType string
}

// Input carries the editable fields of a portfolio.
type Input struct {
	Name        string
	Email       string
	PhoneNumber string
	Address     string
	Skills      []string
	IsPublic    bool
	Upload      *Photo // nil keeps the current photo on update
}

type Service struct {
	store  Store
	photos PhotoStore
	logger *slog.Logger
}

func NewService(store Store, photos PhotoStore, logger *slog.Logger) *Service {
	if photos == nil {
		photos = InlinePhotoStore{}
	}
	return &Service{store: store, photos: photos, logger: logger.With("component", "portfolio")}
}

func (s *Service) Create(ctx context.Context, owner string, in Input) (*model.Portfolio, error) {
	if err := validate(in); err != nil {
		return nil, err
	}
	p := &model.Portfolio{}
	if err := copier.Copy(p, &in); err != nil {
		return nil, fmt.Errorf("map portfolio: %w", err)
	}
	p.ID = uuid.NewString()
	p.UserID = owner
	p.Skills = cleanSkills(in.Skills)
	if err := s.attachPhoto(ctx, p, in.Upload); err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create portfolio: %w", err)
	}
	s.logger.Info("portfolio created", "id", p.ID, "owner", owner)
	return p, nil
}

// Update replaces the editable fields. Empty strings leave the stored value
// untouched; IsPublic and Skills are always taken from in.
func (s *Service) Update(ctx context.Context, owner, id string, in Input) (*model.Portfolio, error) {
	if err := validatePhoto(in.Upload); err != nil {
		return nil, err
	}
	p, err := s.owned(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if err := copier.CopyWithOption(p, &in, copier.Option{IgnoreEmpty: true}); err != nil {
		return nil, fmt.Errorf("map portfolio: %w", err)
	}
	p.IsPublic = in.IsPublic
	p.Skills = cleanSkills(in.Skills)
	if err := s.attachPhoto(ctx, p, in.Upload); err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, p); err != nil {
		return nil, s.storeErr("update", err)
	}
	return p, nil
}

func (s *Service) Delete(ctx context.Context, owner, id string) error {
	if _, err := s.owned(ctx, owner, id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id, owner); err != nil {
		return s.storeErr("delete", err)
	}
	s.logger.Info("portfolio deleted", "id", id, "owner", owner)
	return nil
}

func (s *Service) ListMine(ctx context.Context, owner string) ([]model.Portfolio, error) {
	return s.store.ListByUser(ctx, owner)
}

func (s *Service) ListPublic(ctx context.Context) ([]model.Portfolio, error) {
	return s.store.ListPublic(ctx)
}

// Get returns a portfolio that is public or owned by viewer.
func (s *Service) Get(ctx context.Context, viewer, id string) (*model.Portfolio, error) {
	p, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, s.storeErr("get", err)
	}
	if !p.IsPublic && p.UserID != viewer {
		return nil, ErrForbidden
	}
	return p, nil
}

func (s *Service) ToggleVisibility(ctx context.Context, owner, id string) (*model.Portfolio, error) {
	p, err := s.owned(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	p.IsPublic = !p.IsPublic
	if err := s.store.Update(ctx, p); err != nil {
		return nil, s.storeErr("update", err)
	}
	return p, nil
}

func (s *Service) owned(ctx context.Context, owner, id string) (*model.Portfolio, error) {
	p, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, s.storeErr("get", err)
	}
	if p.UserID != owner {
		return nil, ErrForbidden
	}
	return p, nil
}

func (s *Service) attachPhoto(ctx context.Context, p *model.Portfolio, upload *Photo) error {
	if upload == nil {
		return nil
	}
	ref, err := s.photos.Store(ctx, p.UserID, *upload)
	if err != nil {
		return err
	}
	p.Photo = ref
	return nil
}

func (s *Service) storeErr(op string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrPortfolioNotFound
	}
	return fmt.Errorf("%s portfolio: %w", op, err)
}

func validate(in Input) error {
	if strings.TrimSpace(in.Name) == "" {
		return ErrNameRequired
	}
	return validatePhoto(in.Upload)
}

func validatePhoto(p *Photo) error {
	if p == nil {
		return nil
	}
	if len(p.Data) == 0 || len(p.Data) > MaxPhotoBytes {
		return ErrInvalidPhoto
	}
	detected := http.DetectContentType(p.Data)
	if !strings.HasPrefix(detected, "image/") {
		return ErrInvalidPhoto
	}
	p.ContentType = detected
	return nil
}

func cleanSkills(skills []string) []string {
	out := make([]string, 0, len(skills))
	for _, s := range skills {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
