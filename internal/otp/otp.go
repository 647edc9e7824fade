// Package otp issues and checks short-lived numeric codes sent to users
// during email verification.
//
// A key has at most one pending code. Generating again while the code is
// still valid returns the same code, so a resent email never invalidates
// the one the user already received. Verification is single-use and a
// key is dropped after too many failed guesses.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	DefaultTTL         = 5 * time.Minute
	DefaultMaxAttempts = 3

	codeMin  = 100000
	codeSpan = 900000
)

// Store is the OTP lifecycle on top of a Repository.
type Store struct {
	repo        Repository
	clock       clockwork.Clock
	ttl         time.Duration
	maxAttempts int
	newCode     func() (string, error)
	logger      *slog.Logger
}

type Option func(*Store)

func WithTTL(d time.Duration) Option { return func(s *Store) { s.ttl = d } }

func WithMaxAttempts(n int) Option { return func(s *Store) { s.maxAttempts = n } }

func WithClock(c clockwork.Clock) Option { return func(s *Store) { s.clock = c } }

func WithLogger(l *slog.Logger) Option { return func(s *Store) { s.logger = l } }

// WithCodeGenerator replaces the random six digit generator.
func WithCodeGenerator(fn func() (string, error)) Option {
	return func(s *Store) { s.newCode = fn }
}

func NewStore(repo Repository, opts ...Option) *Store {
	s := &Store{
		repo:        repo,
		clock:       clockwork.NewRealClock(),
		ttl:         DefaultTTL,
		maxAttempts: DefaultMaxAttempts,
		newCode:     randomCode,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ttl <= 0 {
		s.ttl = DefaultTTL
	}
	if s.maxAttempts < 1 {
		s.maxAttempts = DefaultMaxAttempts
	}
	s.logger = s.logger.With("component", "otp")
	return s
}

// TTL is the lifetime given to new codes.
func (s *Store) TTL() time.Duration { return s.ttl }

// Generate returns the active code for key, creating one if there is none
// or the previous one expired. A fresh code starts with zero attempts.
func (s *Store) Generate(ctx context.Context, key string) (string, error) {
	now := s.clock.Now()
	var (
		code   string
		reused bool
	)
	err := s.repo.Update(ctx, key, func(cur *Entry) (*Entry, error) {
		if cur != nil && !cur.Expired(now) {
			code, reused = cur.Code, true
			return cur, nil
		}
		c, err := s.newCode()
		if err != nil {
			return nil, err
		}
		code, reused = c, false
		return &Entry{Code: c, ExpiresAt: now.Add(s.ttl)}, nil
	})
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	s.logger.Debug("otp generated", "key", key, "reused", reused)
	return code, nil
}

// Verify checks candidate against the code for key. A match consumes the
// code. A mismatch counts as an attempt; once the attempt budget is spent
// the entry is removed and later calls fail even with the right code.
// The error is reserved for repository faults.
func (s *Store) Verify(ctx context.Context, key, candidate string) (bool, error) {
	return s.verify(ctx, key, candidate, nil)
}

// VerifyAndApply is Verify where a matching code is consumed only if apply
// succeeds. When apply fails the entry is left untouched, so the same code
// can be submitted again, and apply's error is returned. apply may run more
// than once when the backend retries an update, so it must be idempotent.
func (s *Store) VerifyAndApply(ctx context.Context, key, candidate string, apply func() error) (bool, error) {
	return s.verify(ctx, key, candidate, apply)
}

func (s *Store) verify(ctx context.Context, key, candidate string, apply func() error) (bool, error) {
	now := s.clock.Now()
	var (
		ok       bool
		outcome  string
		applyErr error
	)
	err := s.repo.Update(ctx, key, func(cur *Entry) (*Entry, error) {
		ok, applyErr = false, nil
		switch {
		case cur == nil:
			outcome = "missing"
			return nil, nil
		case cur.Expired(now):
			outcome = "expired"
			return nil, nil
		case cur.Attempts >= s.maxAttempts:
			outcome = "exhausted"
			return nil, nil
		}
		if subtle.ConstantTimeCompare([]byte(cur.Code), []byte(candidate)) == 1 {
			if apply != nil {
				if applyErr = apply(); applyErr != nil {
					outcome = "apply failed"
					return nil, applyErr
				}
			}
			ok, outcome = true, "verified"
			return nil, nil
		}
		next := *cur
		next.Attempts++
		outcome = "mismatch"
		return &next, nil
	})
	s.logger.Debug("otp verify", "key", key, "outcome", outcome)
	if applyErr != nil {
		return false, applyErr
	}
	if err != nil {
		return false, fmt.Errorf("verify otp: %w", err)
	}
	return ok, nil
}

// HasActive reports whether key holds an unexpired code. It never mutates.
func (s *Store) HasActive(ctx context.Context, key string) (bool, error) {
	e, err := s.repo.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("load otp: %w", err)
	}
	return e != nil && !e.Expired(s.clock.Now()), nil
}

// Sweep removes every expired entry and returns how many it dropped. Each
// key is re-checked under its own update, so codes created or refreshed
// while the sweep runs are left alone.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	keys, err := s.repo.Keys(ctx)
	if err != nil {
		return 0, fmt.Errorf("list otp keys: %w", err)
	}
	now := s.clock.Now()
	removed := 0
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		var dropped bool
		err := s.repo.Update(ctx, key, func(cur *Entry) (*Entry, error) {
			dropped = cur != nil && cur.Expired(now)
			if dropped {
				return nil, nil
			}
			return cur, nil
		})
		if err != nil {
			return removed, fmt.Errorf("sweep %s: %w", key, err)
		}
		if dropped {
			removed++
		}
	}
	return removed, nil
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpan))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+codeMin), nil
}
