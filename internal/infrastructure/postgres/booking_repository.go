package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldmatch/fieldmatch/internal/domain/booking"
)

// BookingRepository implements booking.Repository.
type BookingRepository struct {
	pool *pgxpool.Pool
}

func NewBookingRepository(pool *pgxpool.Pool) *BookingRepository {
	return &BookingRepository{pool: pool}
}

func (r *BookingRepository) Create(ctx context.Context, b *booking.Booking) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO bookings
		(id, provider_identity, requester_identity, service_type, lat, lng, price, status, paid_amount, created_at, paid_at, closed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, b.ID, b.ProviderIdentity, b.RequesterIdentity, b.ServiceType,
		b.Location.Lat, b.Location.Lng, b.Price, b.Status, b.PaidAmount,
		b.CreatedAt, b.PaidAt, b.ClosedAt)
	return err
}

func (r *BookingRepository) GetByID(ctx context.Context, id string) (*booking.Booking, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, provider_identity, requester_identity, service_type, lat, lng, price, status, paid_amount, created_at, paid_at, closed_at
		FROM bookings WHERE id=$1
	`, id)
	return scanBooking(row)
}

func (r *BookingRepository) UpdateStatus(ctx context.Context, id string, status booking.Status) error {
	if status == booking.StatusClosed {
		_, err := r.pool.Exec(ctx, `UPDATE bookings SET status=$1, closed_at=$2 WHERE id=$3`,
			status, time.Now().UTC(), id)
		return err
	}
	_, err := r.pool.Exec(ctx, `UPDATE bookings SET status=$1 WHERE id=$2`, status, id)
	return err
}

func (r *BookingRepository) MarkPaid(ctx context.Context, id string, amount float64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE bookings SET status=$1, paid_amount=$2, paid_at=$3 WHERE id=$4
	`, booking.StatusPaid, amount, time.Now().UTC(), id)
	return err
}

func (r *BookingRepository) ListByProvider(ctx context.Context, providerIdentity string, limit int) ([]*booking.Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, provider_identity, requester_identity, service_type, lat, lng, price, status, paid_amount, created_at, paid_at, closed_at
		FROM bookings WHERE provider_identity=$1 ORDER BY created_at DESC LIMIT $2
	`, providerIdentity, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*booking.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanBooking(row pgx.Row) (*booking.Booking, error) {
	var b booking.Booking
	if err := row.Scan(&b.ID, &b.ProviderIdentity, &b.RequesterIdentity, &b.ServiceType,
		&b.Location.Lat, &b.Location.Lng, &b.Price, &b.Status, &b.PaidAmount,
		&b.CreatedAt, &b.PaidAt, &b.ClosedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}
