// Package token signs and checks the HS256 JWTs handed to clients.
//
// Access tokens carry the username as subject and the role claim used by
// the HTTP role guard. Refresh tokens carry type=refresh and a random jti
// so that two refresh tokens issued within the same second still differ.
package token

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	RoleUser    = "ROLE_USER"
	TypeRefresh = "refresh"

	minProductionSecret = 32
)

var (
	ErrEmptySecret = errors.New("token: signing secret is empty")
	ErrWeakSecret  = fmt.Errorf("token: signing secret must be at least %d bytes in production", minProductionSecret)
)

// Claims is the payload of both token kinds.
type Claims struct {
	Role string `json:"role,omitempty"`
	Type string `json:"type,omitempty"`
	jwt.RegisteredClaims
}

type Config struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Production bool
}

type Issuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	clock      clockwork.Clock
	logger     *slog.Logger
}

// NewIssuer validates the secret and returns a ready issuer. A nil clock
// means wall time.
func NewIssuer(cfg Config, clock clockwork.Clock, logger *slog.Logger) (*Issuer, error) {
	if len(cfg.Secret) == 0 {
		return nil, ErrEmptySecret
	}
	if cfg.Production && len(cfg.Secret) < minProductionSecret {
		return nil, ErrWeakSecret
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token: lifetimes must be positive")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Issuer{
		secret:     cfg.Secret,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		clock:      clock,
		logger:     logger.With("component", "token"),
	}, nil
}

// RefreshTTL is the lifetime given to refresh tokens.
func (i *Issuer) RefreshTTL() time.Duration { return i.refreshTTL }

func (i *Issuer) IssueAccess(subject string) (string, error) {
	now := i.clock.Now()
	return i.sign(Claims{
		Role: RoleUser,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.accessTTL)),
		},
	})
}

func (i *Issuer) IssueRefresh(subject string) (string, error) {
	now := i.clock.Now()
	return i.sign(Claims{
		Type: TypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.refreshTTL)),
		},
	})
}

func (i *Issuer) sign(c Claims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate reports whether the token is an HS256 token signed with our
// secret whose expiry lies strictly after now. Failures are logged at
// debug level and never returned.
func (i *Issuer) Validate(tokenString string) bool {
	claims, err := i.parse(tokenString, true)
	if err != nil {
		i.logger.Debug("token rejected", "err", err)
		return false
	}
	if !claims.ExpiresAt.Time.After(i.clock.Now()) {
		i.logger.Debug("token rejected", "err", "expired")
		return false
	}
	return true
}

// SubjectOf returns the sub claim. Only the signature is checked, so call
// it on tokens that already passed Validate.
func (i *Issuer) SubjectOf(tokenString string) (string, error) {
	claims, err := i.parse(tokenString, false)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// RoleOf returns the role claim, empty for refresh tokens.
func (i *Issuer) RoleOf(tokenString string) (string, error) {
	claims, err := i.parse(tokenString, false)
	if err != nil {
		return "", err
	}
	return claims.Role, nil
}

func (i *Issuer) IsRefresh(tokenString string) bool {
	claims, err := i.parse(tokenString, false)
	return err == nil && claims.Type == TypeRefresh
}

func (i *Issuer) parse(tokenString string, checkTime bool) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.clock.Now),
	}
	if checkTime {
		opts = append(opts, jwt.WithExpirationRequired())
	} else {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !tok.Valid {
		return nil, jwt.ErrTokenSignatureInvalid
	}
	return claims, nil
}
