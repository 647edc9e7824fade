package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/portfolio-backend/internal/refresh"
)

// TokenRepo is the MySQL refresh registry. Only the SHA-256 of a token is
// stored, keyed in the single 'token_hash' column.
type TokenRepo struct {
	DB        *sql.DB
	Retention time.Duration // informational expires_at, normally the refresh TTL
	Now       func() time.Time
}

func NewTokenRepo(db *sql.DB, retention time.Duration) *TokenRepo {
	return &TokenRepo{DB: db, Retention: retention, Now: func() time.Time { return time.Now().UTC() }}
}

// Register records the binding. Registering the same token again rebinds it.
func (r *TokenRepo) Register(ctx context.Context, token, subject string) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO refresh_tokens (token_hash, username, expires_at) VALUES (?,?,?) "+
			"ON DUPLICATE KEY UPDATE username=VALUES(username), expires_at=VALUES(expires_at)",
		refresh.HashToken(token), subject, r.Now().Add(r.Retention))
	return err
}

// Lookup returns the bound username. expires_at is not consulted; token
// validation already rejects expired refresh tokens.
func (r *TokenRepo) Lookup(ctx context.Context, token string) (string, bool, error) {
	var username string
	err := r.DB.QueryRowContext(ctx,
		"SELECT username FROM refresh_tokens WHERE token_hash=? LIMIT 1",
		refresh.HashToken(token)).Scan(&username)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return username, true, nil
}

// PurgeExpired deletes rows past their retention.
func (r *TokenRepo) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE expires_at < ?", r.Now())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

var _ refresh.Registry = (*TokenRepo)(nil)
