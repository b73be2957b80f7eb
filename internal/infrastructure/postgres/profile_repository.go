package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldmatch/fieldmatch/internal/domain/identity"
)

// ProfileRepository implements identity.Repository.
type ProfileRepository struct {
	pool *pgxpool.Pool
}

func NewProfileRepository(pool *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{pool: pool}
}

func (r *ProfileRepository) Upsert(ctx context.Context, p *identity.Profile) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO profiles
		(identity, name, email, phone, role, category, rating, rating_count, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (identity) DO UPDATE SET
			name=EXCLUDED.name, email=EXCLUDED.email, phone=EXCLUDED.phone,
			role=EXCLUDED.role, category=EXCLUDED.category, status=EXCLUDED.status,
			updated_at=EXCLUDED.updated_at
	`, p.Identity, p.Name, p.Email, p.Phone, p.Role, p.Category,
		p.Rating, p.RatingCount, p.Status, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r *ProfileRepository) GetByIdentity(ctx context.Context, id string) (*identity.Profile, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT identity, name, email, phone, role, category, rating, rating_count, status, created_at, updated_at
		FROM profiles WHERE identity=$1
	`, id)
	return scanProfile(row)
}

func (r *ProfileRepository) ListByRole(ctx context.Context, role string) ([]*identity.Profile, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT identity, name, email, phone, role, category, rating, rating_count, status, created_at, updated_at
		FROM profiles WHERE role=$1 ORDER BY name
	`, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProfiles(rows)
}

func (r *ProfileRepository) ListByRoleAndCategory(ctx context.Context, role, category string) ([]*identity.Profile, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT identity, name, email, phone, role, category, rating, rating_count, status, created_at, updated_at
		FROM profiles WHERE role=$1 AND category=$2 ORDER BY name
	`, role, category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProfiles(rows)
}

func (r *ProfileRepository) UpdateRating(ctx context.Context, id string, rating float64, count int) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE profiles SET rating=$1, rating_count=$2, updated_at=$3 WHERE identity=$4
	`, rating, count, time.Now().UTC(), id)
	return err
}

func scanProfile(row pgx.Row) (*identity.Profile, error) {
	var p identity.Profile
	if err := row.Scan(&p.Identity, &p.Name, &p.Email, &p.Phone, &p.Role, &p.Category,
		&p.Rating, &p.RatingCount, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func collectProfiles(rows pgx.Rows) ([]*identity.Profile, error) {
	var out []*identity.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
