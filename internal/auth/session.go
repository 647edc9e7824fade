package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/iliyamo/portfolio-backend/internal/model"
	"github.com/iliyamo/portfolio-backend/internal/oauth"
	"github.com/iliyamo/portfolio-backend/internal/refresh"
	"github.com/iliyamo/portfolio-backend/internal/repository"
	"github.com/iliyamo/portfolio-backend/internal/token"
	"github.com/iliyamo/portfolio-backend/internal/utils"
)

type SessionConfig struct {
	BcryptCost      int
	ProviderTimeout time.Duration
}

// SessionFlow signs users in and keeps them signed in.
type SessionFlow struct {
	users    IdentityStore
	issuer   *token.Issuer
	registry refresh.Registry
	provider Provider
	cfg      SessionConfig
	logger   *slog.Logger
}

func NewSessionFlow(users IdentityStore, issuer *token.Issuer, registry refresh.Registry, provider Provider, cfg SessionConfig, logger *slog.Logger) *SessionFlow {
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 10 * time.Second
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 10
	}
	return &SessionFlow{
		users:    users,
		issuer:   issuer,
		registry: registry,
		provider: provider,
		cfg:      cfg,
		logger:   logger.With("component", "session"),
	}
}

// Login checks the password and issues a token pair. Every way of failing
// produces the same ErrInvalidCredentials.
func (f *SessionFlow) Login(ctx context.Context, username, password string) (TokenPair, error) {
	u, err := f.users.FindByUsername(ctx, strings.TrimSpace(username))
	if isNotFound(err) {
		return TokenPair{}, ErrInvalidCredentials
	}
	if err != nil {
		return TokenPair{}, fmt.Errorf("find user by username: %w", err)
	}
	if !u.EmailVerified || !u.HasCredentials() || !utils.VerifyPassword(u.PasswordHash, password) {
		return TokenPair{}, ErrInvalidCredentials
	}
	return f.issue(ctx, u.Username)
}

// Refresh returns a new access token alongside the same refresh token.
func (f *SessionFlow) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	if !f.issuer.Validate(refreshToken) {
		return TokenPair{}, ErrInvalidRefreshToken
	}
	subject, err := f.issuer.SubjectOf(refreshToken)
	if err != nil {
		return TokenPair{}, ErrInvalidRefreshToken
	}
	bound, ok, err := f.registry.Lookup(ctx, refreshToken)
	if err != nil {
		return TokenPair{}, fmt.Errorf("lookup refresh token: %w", err)
	}
	if !ok || bound != subject {
		return TokenPair{}, ErrRefreshTokenNotRecognized
	}
	access, err := f.issuer.IssueAccess(subject)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refreshToken}, nil
}

// CheckToken reports whether token is currently valid.
func (f *SessionFlow) CheckToken(tokenString string) bool {
	return f.issuer.Validate(tokenString)
}

// AuthCodeURL is where the browser goes to start federated login.
func (f *SessionFlow) AuthCodeURL(state string) string {
	return f.provider.AuthCodeURL(state)
}

// FederatedLogin signs in with a provider authorization code, creating the
// user on first sight.
func (f *SessionFlow) FederatedLogin(ctx context.Context, code string) (TokenPair, IdentitySummary, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return TokenPair{}, IdentitySummary{}, fmt.Errorf("%w: authorization code is required", ErrInvalidInput)
	}

	profile, err := f.fetchProfile(ctx, code)
	if err != nil {
		return TokenPair{}, IdentitySummary{}, err
	}
	email := strings.ToLower(strings.TrimSpace(profile.Email))
	if email == "" {
		return TokenPair{}, IdentitySummary{}, ErrEmailNotProvided
	}

	u, err := f.users.FindByEmail(ctx, email)
	switch {
	case isNotFound(err):
		u, err = f.createFederated(ctx, profile, email)
	case err != nil:
		err = fmt.Errorf("find user by email: %w", err)
	case u.Username == "" || !u.EmailVerified:
		err = f.completeFederated(ctx, u, profile)
	}
	if err != nil {
		return TokenPair{}, IdentitySummary{}, err
	}

	pair, err := f.issue(ctx, u.Username)
	if err != nil {
		return TokenPair{}, IdentitySummary{}, err
	}
	f.logger.Info("federated login", "user_id", u.ID)
	return pair, IdentitySummary{ID: u.ID, Username: u.Username, Email: u.Email}, nil
}

func (f *SessionFlow) fetchProfile(ctx context.Context, code string) (oauth.Profile, error) {
	pctx, cancel := context.WithTimeout(ctx, f.cfg.ProviderTimeout)
	defer cancel()

	providerToken, err := f.provider.ExchangeCode(pctx, code)
	if err != nil {
		f.logger.Warn("code exchange failed", "err", err)
		return oauth.Profile{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	profile, err := f.provider.FetchProfile(pctx, providerToken)
	if err != nil {
		f.logger.Warn("userinfo fetch failed", "err", err)
		return oauth.Profile{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return profile, nil
}

// maxUsernameAttempts bounds retries when a generated username is taken
// between the existence check and the insert.
const maxUsernameAttempts = 3

func (f *SessionFlow) createFederated(ctx context.Context, profile oauth.Profile, email string) (*model.User, error) {
	hash, err := utils.HashPassword(utils.UnusablePassword(), f.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &model.User{
		ID:            uuid.NewString(),
		Email:         email,
		PasswordHash:  hash,
		EmailVerified: true,
		Role:          token.RoleUser,
	}
	if err := f.saveWithUsername(ctx, u, profile); err != nil {
		return nil, err
	}
	f.logger.Info("federated user created", "user_id", u.ID, "username", u.Username)
	return u, nil
}

// completeFederated gives an existing user found by email a username and
// marks the email verified, since the provider vouched for it.
func (f *SessionFlow) completeFederated(ctx context.Context, u *model.User, profile oauth.Profile) error {
	u.EmailVerified = true
	if u.Username != "" {
		if err := f.users.Save(ctx, u); err != nil {
			return fmt.Errorf("save user: %w", err)
		}
		return nil
	}
	if u.PasswordHash == "" {
		hash, err := utils.HashPassword(utils.UnusablePassword(), f.cfg.BcryptCost)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		u.PasswordHash = hash
	}
	return f.saveWithUsername(ctx, u, profile)
}

func (f *SessionFlow) saveWithUsername(ctx context.Context, u *model.User, profile oauth.Profile) error {
	base := usernameBase(profile, u.Email)
	for attempt := 0; attempt < maxUsernameAttempts; attempt++ {
		username, err := f.uniqueUsername(ctx, base)
		if err != nil {
			return err
		}
		u.Username = username
		err = f.users.Save(ctx, u)
		if errors.Is(err, repository.ErrUsernameExists) {
			continue
		}
		if err != nil {
			return fmt.Errorf("save user: %w", err)
		}
		return nil
	}
	return fmt.Errorf("save user: %w", repository.ErrUsernameExists)
}

// uniqueUsername returns base, or base followed by the first free counter
// starting at 1.
func (f *SessionFlow) uniqueUsername(ctx context.Context, base string) (string, error) {
	candidate := base
	for counter := 1; ; counter++ {
		taken, err := f.users.ExistsByUsername(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check username: %w", err)
		}
		if !taken {
			return candidate, nil
		}
		candidate = base + strconv.Itoa(counter)
	}
}

// maxUsernameBase leaves room in a VARCHAR(64) username for the counter
// appended by uniqueUsername.
const maxUsernameBase = maxUsernameBytes - 6

// usernameBase prefers the given name, then the full name without spaces,
// then the local part of the email. The result is cut to maxUsernameBase
// bytes on a rune boundary.
func usernameBase(p oauth.Profile, email string) string {
	var base string
	if g := strings.TrimSpace(p.GivenName); g != "" {
		base = strings.Join(strings.Fields(g), "")
	} else if n := strings.Join(strings.Fields(p.Name), ""); n != "" {
		base = n
	} else {
		base, _, _ = strings.Cut(email, "@")
	}
	base = strings.ToLower(base)
	for len(base) > maxUsernameBase {
		_, size := utf8.DecodeLastRuneInString(base)
		base = base[:len(base)-size]
	}
	return base
}

func (f *SessionFlow) issue(ctx context.Context, subject string) (TokenPair, error) {
	access, err := f.issuer.IssueAccess(subject)
	if err != nil {
		return TokenPair{}, err
	}
	refreshToken, err := f.issuer.IssueRefresh(subject)
	if err != nil {
		return TokenPair{}, err
	}
	if err := f.registry.Register(ctx, refreshToken, subject); err != nil {
		return TokenPair{}, fmt.Errorf("register refresh token: %w", err)
	}
	return TokenPair{AccessToken: access, RefreshToken: refreshToken}, nil
}
