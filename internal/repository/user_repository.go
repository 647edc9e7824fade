package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/portfolio-backend/internal/model"
)

const userColumns = "id,email,username,password_hash,email_verified,role,created_at,updated_at"

// UserRepo is the MySQL identity store.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

type rowScanner interface{ Scan(dest ...any) error }

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u        model.User
		username sql.NullString
		hash     sql.NullString
	)
	err := row.Scan(&u.ID, &u.Email, &username, &hash, &u.EmailVerified, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Username = username.String
	u.PasswordHash = hash.String
	return &u, nil
}

// FindByEmail fetches a user by normalized email.
func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email))
}

func (r *UserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE username=? LIMIT 1", username))
}

func (r *UserRepo) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM users WHERE username=?)", username).Scan(&exists)
	return exists, err
}

// Save inserts the user or updates the row with the same id. Unique index
// violations come back as ErrEmailExists or ErrUsernameExists.
func (r *UserRepo) Save(ctx context.Context, u *model.User) error {
	var exists bool
	if err := r.DB.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM users WHERE id=?)", u.ID).Scan(&exists); err != nil {
		return err
	}

	var err error
	if exists {
		_, err = r.DB.ExecContext(ctx,
			"UPDATE users SET email=?, username=?, password_hash=?, email_verified=?, role=? WHERE id=?",
			u.Email, nullable(u.Username), nullable(u.PasswordHash), u.EmailVerified, u.Role, u.ID)
	} else {
		_, err = r.DB.ExecContext(ctx,
			"INSERT INTO users (id, email, username, password_hash, email_verified, role) VALUES (?,?,?,?,?,?)",
			u.ID, u.Email, nullable(u.Username), nullable(u.PasswordHash), u.EmailVerified, u.Role)
	}
	if msg, dup := duplicateKey(err); dup {
		if strings.Contains(msg, "username") {
			return ErrUsernameExists
		}
		return ErrEmailExists
	}
	if err != nil {
		return fmt.Errorf("save user %s: %w", u.ID, err)
	}
	return nil
}

func (r *UserRepo) DeleteByEmail(ctx context.Context, email string) error {
	_, err := r.DB.ExecContext(ctx, "DELETE FROM users WHERE email=?", strings.ToLower(strings.TrimSpace(email)))
	return err
}

// nullable keeps unset usernames NULL so the unique index ignores them.
func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
