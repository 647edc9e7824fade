package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/portfolio-backend/internal/model"
	"github.com/iliyamo/portfolio-backend/internal/otp"
	"github.com/iliyamo/portfolio-backend/internal/repository"
	"github.com/iliyamo/portfolio-backend/internal/token"
	"github.com/iliyamo/portfolio-backend/internal/utils"
)

const (
	// bcrypt refuses longer inputs.
	maxPasswordBytes = 72
	// users.username and user_portfolios.user_id are VARCHAR(64).
	maxUsernameBytes = 64
)

type RegistrationConfig struct {
	BcryptCost    int
	NotifyTimeout time.Duration
}

// RegistrationFlow takes an email from first contact to a user with
// credentials: Start mails a code, ConfirmOtp creates the verified user
// and SetCredentials attaches username and password.
type RegistrationFlow struct {
	users    IdentityStore
	otps     *otp.Store
	notifier Notifier
	cfg      RegistrationConfig
	logger   *slog.Logger
}

func NewRegistrationFlow(users IdentityStore, otps *otp.Store, notifier Notifier, cfg RegistrationConfig, logger *slog.Logger) *RegistrationFlow {
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 10 * time.Second
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 10
	}
	return &RegistrationFlow{
		users:    users,
		otps:     otps,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With("component", "registration"),
	}
}

// Start sends a code to email. A leftover unverified user for the address
// is removed first. When delivery fails the code stays valid, so a later
// Start resends the same one.
func (f *RegistrationFlow) Start(ctx context.Context, rawEmail string) error {
	email, err := normalizeEmail(rawEmail)
	if err != nil {
		return err
	}

	existing, err := f.users.FindByEmail(ctx, email)
	switch {
	case err == nil && existing.EmailVerified:
		return ErrAlreadyRegistered
	case err == nil:
		if err := f.users.DeleteByEmail(ctx, email); err != nil {
			return fmt.Errorf("delete unverified user: %w", err)
		}
		f.logger.Info("removed unverified user before restart", "email", email)
	case !isNotFound(err):
		return fmt.Errorf("find user by email: %w", err)
	}

	code, err := f.otps.Generate(ctx, email)
	if err != nil {
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, f.cfg.NotifyTimeout)
	defer cancel()
	if err := f.notifier.Send(sendCtx, email, code); err != nil {
		f.logger.Warn("otp delivery failed", "email", email, "err", err)
		return fmt.Errorf("%w: %v", ErrNotificationFailed, err)
	}
	return nil
}

// ConfirmOtp marks the email verified, creating the user when needed. The
// code is consumed only once the user is saved, so a failed save leaves it
// usable for another attempt.
func (f *RegistrationFlow) ConfirmOtp(ctx context.Context, rawEmail, code string) error {
	email, err := normalizeEmail(rawEmail)
	if err != nil {
		return err
	}

	var userID string
	ok, err := f.otps.VerifyAndApply(ctx, email, strings.TrimSpace(code), func() error {
		id, err := f.markVerified(ctx, email)
		userID = id
		return err
	})
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidOrExpiredOtp
	}
	f.logger.Info("email verified", "email", email, "user_id", userID)
	return nil
}

// markVerified looks the user up on every call, so running it again after
// a retried update finds the row saved the first time.
func (f *RegistrationFlow) markVerified(ctx context.Context, email string) (string, error) {
	u, err := f.users.FindByEmail(ctx, email)
	switch {
	case isNotFound(err):
		u = &model.User{ID: uuid.NewString(), Email: email, Role: token.RoleUser}
	case err != nil:
		return "", fmt.Errorf("find user by email: %w", err)
	}
	u.EmailVerified = true
	if err := f.users.Save(ctx, u); err != nil {
		return "", fmt.Errorf("save verified user: %w", err)
	}
	return u.ID, nil
}

// SetCredentials completes a verified user that has no credentials yet.
// Credentials are set once; a user who already has them gets
// ErrAlreadyRegistered and nothing is written.
func (f *RegistrationFlow) SetCredentials(ctx context.Context, rawEmail, username, password string) error {
	email, err := normalizeEmail(rawEmail)
	if err != nil {
		return err
	}
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return fmt.Errorf("%w: username and password are required", ErrInvalidInput)
	}
	if len(username) > maxUsernameBytes {
		return fmt.Errorf("%w: username longer than %d bytes", ErrInvalidInput, maxUsernameBytes)
	}
	if len(password) > maxPasswordBytes {
		return fmt.Errorf("%w: password longer than %d bytes", ErrInvalidInput, maxPasswordBytes)
	}

	u, err := f.users.FindByEmail(ctx, email)
	if isNotFound(err) {
		return ErrEmailNotVerified
	}
	if err != nil {
		return fmt.Errorf("find user by email: %w", err)
	}
	if !u.EmailVerified {
		return ErrEmailNotVerified
	}
	if u.HasCredentials() {
		f.logger.Warn("credentials already set", "user_id", u.ID)
		return ErrAlreadyRegistered
	}

	holder, err := f.users.FindByUsername(ctx, username)
	switch {
	case err == nil && holder.ID != u.ID:
		return ErrUsernameTaken
	case err != nil && !isNotFound(err):
		return fmt.Errorf("find user by username: %w", err)
	}

	hash, err := utils.HashPassword(password, f.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	updated := *u
	updated.Username = username
	updated.PasswordHash = hash
	if err := f.users.Save(ctx, &updated); err != nil {
		if errors.Is(err, repository.ErrUsernameExists) {
			return ErrUsernameTaken
		}
		return fmt.Errorf("save credentials: %w", err)
	}
	f.logger.Info("credentials set", "user_id", u.ID)
	return nil
}
