package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aeromarket/transfercore/internal/model"
)

// BookingRepository persists the core's read-model of bookings consumed
// from the BookingPaid/BookingCancelled webhooks. The core never writes
// most Booking fields — only Status, on assignment and cancellation.
type BookingRepository struct {
	pool *pgxpool.Pool
}

// NewBookingRepository creates a new booking repository.
func NewBookingRepository(pool *pgxpool.Pool) *BookingRepository {
	return &BookingRepository{pool: pool}
}

// Upsert stores (or refreshes) the read-model row for a consumed booking.
func (r *BookingRepository) Upsert(ctx context.Context, b model.Booking) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO bookings (
			id, customer_id, customer_price, pickup_postcode, pickup_address,
			dropoff_address, dropoff_postcode, vehicle_type, pickup_datetime,
			journey_type, booking_group_id, status, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now(),now())
		ON CONFLICT (id) DO UPDATE SET
			customer_price = EXCLUDED.customer_price,
			status = EXCLUDED.status,
			updated_at = now()
	`, b.ID, b.CustomerID, b.CustomerPrice, b.PickupPostcode, b.PickupAddress,
		b.DropoffAddress, b.DropoffPostcode, b.VehicleType, b.PickupDatetime,
		b.JourneyType, b.BookingGroupID, b.Status)
	if err != nil {
		return fmt.Errorf("booking: upsert %s: %w", b.ID, err)
	}
	return nil
}

// GetBooking fetches a booking read-model row by id.
func (r *BookingRepository) GetBooking(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	b := &model.Booking{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, customer_id, customer_price, pickup_postcode, pickup_address,
		       dropoff_address, dropoff_postcode, vehicle_type, pickup_datetime,
		       journey_type, booking_group_id, status, created_at, updated_at
		FROM bookings WHERE id = $1
	`, id).Scan(
		&b.ID, &b.CustomerID, &b.CustomerPrice, &b.PickupPostcode, &b.PickupAddress,
		&b.DropoffAddress, &b.DropoffPostcode, &b.VehicleType, &b.PickupDatetime,
		&b.JourneyType, &b.BookingGroupID, &b.Status, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("booking: get %s: %w", id, err)
	}
	return b, nil
}

// SetStatus updates just the Status column, the only field the auction
// core ever mutates on a consumed booking (on assignment/cancellation).
func (r *BookingRepository) SetStatus(ctx context.Context, id uuid.UUID, status model.BookingStatus) error {
	_, err := r.pool.Exec(ctx, `UPDATE bookings SET status = $1, updated_at = now() WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("booking: set status %s: %w", id, err)
	}
	return nil
}
