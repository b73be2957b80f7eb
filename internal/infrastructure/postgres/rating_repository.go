package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldmatch/fieldmatch/internal/domain/rating"
)

// RatingRepository implements rating.Repository.
type RatingRepository struct {
	pool *pgxpool.Pool
}

func NewRatingRepository(pool *pgxpool.Pool) *RatingRepository {
	return &RatingRepository{pool: pool}
}

func (r *RatingRepository) Create(ctx context.Context, rt *rating.Rating) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO ratings
		(id, booking_id, provider_identity, requester_identity, score, comment, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, rt.ID, rt.BookingID, rt.ProviderIdentity, rt.RequesterIdentity, rt.Score, rt.Comment, rt.CreatedAt)
	return err
}

func (r *RatingRepository) ListByProvider(ctx context.Context, providerIdentity string, limit int) ([]*rating.Rating, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, booking_id, provider_identity, requester_identity, score, comment, created_at
		FROM ratings WHERE provider_identity=$1 ORDER BY created_at DESC LIMIT $2
	`, providerIdentity, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*rating.Rating
	for rows.Next() {
		var rt rating.Rating
		if err := rows.Scan(&rt.ID, &rt.BookingID, &rt.ProviderIdentity, &rt.RequesterIdentity,
			&rt.Score, &rt.Comment, &rt.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &rt)
	}
	return out, rows.Err()
}
