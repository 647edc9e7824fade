// Package auth implements email registration with one-time codes and the
// session flows that issue and refresh tokens, including Google sign-in.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/iliyamo/portfolio-backend/internal/model"
	"github.com/iliyamo/portfolio-backend/internal/oauth"
	"github.com/iliyamo/portfolio-backend/internal/repository"
)

// IdentityStore persists users. Lookups that match nothing return an error
// satisfying errors.Is(err, repository.ErrNotFound).
type IdentityStore interface {
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	Save(ctx context.Context, u *model.User) error
	DeleteByEmail(ctx context.Context, email string) error
}

// Notifier delivers a code to an address.
type Notifier interface {
	Send(ctx context.Context, address, code string) error
}

// Provider is a federated identity provider.
type Provider interface {
	AuthCodeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (string, error)
	FetchProfile(ctx context.Context, accessToken string) (oauth.Profile, error)
}

// TokenPair is returned by every successful sign-in.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// IdentitySummary is the public view of a user returned after federated login.
type IdentitySummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func isNotFound(err error) bool { return errors.Is(err, repository.ErrNotFound) }

// normalizeEmail trims and lower-cases the address and rejects anything that
// is not a bare address.
func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: malformed email", ErrInvalidInput)
	}
	return email, nil
}
