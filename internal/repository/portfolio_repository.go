package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/iliyamo/portfolio-backend/internal/model"
)

const portfolioColumns = "id,user_id,name,photo,email,phone_number,address,skills,is_public,created_at,updated_at"

// PortfolioRepo persists portfolios; skills are kept in a JSON column.
type PortfolioRepo struct{ DB *sql.DB }

func NewPortfolioRepo(db *sql.DB) *PortfolioRepo { return &PortfolioRepo{DB: db} }

func scanPortfolio(row rowScanner) (*model.Portfolio, error) {
	var (
		p      model.Portfolio
		photo  sql.NullString
		skills []byte
	)
	err := row.Scan(&p.ID, &p.UserID, &p.Name, &photo, &p.Email, &p.PhoneNumber, &p.Address,
		&skills, &p.IsPublic, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Photo = photo.String
	p.Skills = []string{}
	if len(skills) > 0 {
		if err := json.Unmarshal(skills, &p.Skills); err != nil {
			return nil, fmt.Errorf("decode skills of %s: %w", p.ID, err)
		}
	}
	return &p, nil
}

func encodeSkills(skills []string) ([]byte, error) {
	if skills == nil {
		skills = []string{}
	}
	return json.Marshal(skills)
}

func (r *PortfolioRepo) Create(ctx context.Context, p *model.Portfolio) error {
	skills, err := encodeSkills(p.Skills)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx,
		"INSERT INTO user_portfolios (id,user_id,name,photo,email,phone_number,address,skills,is_public) VALUES (?,?,?,?,?,?,?,?,?)",
		p.ID, p.UserID, p.Name, nullable(p.Photo), p.Email, p.PhoneNumber, p.Address, skills, p.IsPublic)
	return err
}

func (r *PortfolioRepo) Update(ctx context.Context, p *model.Portfolio) error {
	skills, err := encodeSkills(p.Skills)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx,
		"UPDATE user_portfolios SET name=?, photo=?, email=?, phone_number=?, address=?, skills=?, is_public=? WHERE id=? AND user_id=?",
		p.Name, nullable(p.Photo), p.Email, p.PhoneNumber, p.Address, skills, p.IsPublic, p.ID, p.UserID)
	if err != nil {
		return err
	}
	return expectRow(res)
}

// Delete removes the portfolio only when owned by userID.
func (r *PortfolioRepo) Delete(ctx context.Context, id, userID string) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM user_portfolios WHERE id=? AND user_id=?", id, userID)
	if err != nil {
		return err
	}
	return expectRow(res)
}

func (r *PortfolioRepo) GetByID(ctx context.Context, id string) (*model.Portfolio, error) {
	p, err := scanPortfolio(r.DB.QueryRowContext(ctx,
		"SELECT "+portfolioColumns+" FROM user_portfolios WHERE id=? LIMIT 1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (r *PortfolioRepo) ListByUser(ctx context.Context, userID string) ([]model.Portfolio, error) {
	return r.list(ctx, "SELECT "+portfolioColumns+" FROM user_portfolios WHERE user_id=? ORDER BY created_at DESC", userID)
}

func (r *PortfolioRepo) ListPublic(ctx context.Context) ([]model.Portfolio, error) {
	return r.list(ctx, "SELECT "+portfolioColumns+" FROM user_portfolios WHERE is_public=TRUE ORDER BY created_at DESC")
}

func (r *PortfolioRepo) list(ctx context.Context, query string, args ...any) ([]model.Portfolio, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Portfolio{}
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
