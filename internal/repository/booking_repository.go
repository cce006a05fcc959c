package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/waspershola/hospitech-nexus-sub005/internal/db"
	"github.com/waspershola/hospitech-nexus-sub005/internal/domain"
)

type BookingRepository struct {
	DB *db.Postgres
}

const bookingColumns = `id::text, tenant_id::text, room_id::text, guest_id::text, check_in, check_out, status,
	total_amount, nightly_rate, metadata, created_at, updated_at`

func scanBooking(row rowScanner) (*domain.Booking, error) {
	var (
		b       domain.Booking
		guestID pgtype.Text
		status  string
		meta    []byte
	)
	if err := row.Scan(&b.ID, &b.TenantID, &b.RoomID, &guestID, &b.CheckIn, &b.CheckOut, &status,
		&b.TotalAmount, &b.NightlyRate, &meta, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &b.Metadata); err != nil {
			return nil, fmt.Errorf("decode booking metadata: %w", err)
		}
	}
	b.GuestID = textPtr(guestID)
	b.Status = domain.BookingStatus(status)
	return &b, nil
}

func (r BookingRepository) GetBooking(ctx context.Context, tenantID, bookingID string) (*domain.Booking, error) {
	if !validID(tenantID, bookingID) {
		return nil, ErrNotFound
	}
	b, err := scanBooking(r.DB.Pool.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id=$1 AND tenant_id=$2
	`, bookingID, tenantID))
	if err != nil {
		return nil, notFound(err)
	}
	return b, nil
}

func (r BookingRepository) GetRoom(ctx context.Context, tenantID, roomID string) (*domain.Room, error) {
	if !validID(tenantID, roomID) {
		return nil, ErrNotFound
	}
	var room domain.Room
	err := r.DB.Pool.QueryRow(ctx, `
		SELECT id::text, tenant_id::text, number, rate
		FROM rooms
		WHERE id=$1 AND tenant_id=$2
	`, roomID, tenantID).Scan(&room.ID, &room.TenantID, &room.Number, &room.Rate)
	if err != nil {
		return nil, notFound(err)
	}
	return &room, nil
}

// UpdateBooking overwrites the mutable booking fields, metadata included.
func (r BookingRepository) UpdateBooking(ctx context.Context, b domain.Booking) (*domain.Booking, error) {
	if !validID(b.TenantID, b.ID) {
		return nil, ErrNotFound
	}
	meta, err := json.Marshal(b.Metadata)
	if err != nil {
		return nil, err
	}
	out, err := scanBooking(r.DB.Pool.QueryRow(ctx, `
		UPDATE bookings
		SET room_id=$3, guest_id=$4, check_in=$5, check_out=$6, status=$7,
		    total_amount=$8, nightly_rate=$9, metadata=$10, updated_at=now()
		WHERE id=$1 AND tenant_id=$2
		RETURNING `+bookingColumns,
		b.ID, b.TenantID, b.RoomID, b.GuestID, b.CheckIn, b.CheckOut, string(b.Status),
		b.TotalAmount, b.NightlyRate, meta))
	if err != nil {
		return nil, notFound(err)
	}
	return out, nil
}

func (r BookingRepository) SetBookingStatus(ctx context.Context, tenantID, bookingID string, status domain.BookingStatus) error {
	if !validID(tenantID, bookingID) {
		return ErrNotFound
	}
	tag, err := r.DB.Pool.Exec(ctx, `
		UPDATE bookings SET status=$3, updated_at=now() WHERE id=$1 AND tenant_id=$2
	`, bookingID, tenantID, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r BookingRepository) RoomConflicts(ctx context.Context, tenantID, roomID, excludeBookingID string, checkIn, checkOut time.Time) (bool, error) {
	if !validID(tenantID, roomID) {
		return false, nil
	}
	var exists bool
	err := r.DB.Pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM bookings
			WHERE tenant_id=$1 AND room_id=$2
			  AND id::text <> $3
			  AND status IN ('reserved', 'checked_in')
			  AND check_in < $5 AND $4 < check_out
		)
	`, tenantID, roomID, excludeBookingID, checkIn, checkOut).Scan(&exists)
	return exists, err
}
