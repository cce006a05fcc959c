package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/waspershola/hospitech-nexus-sub005/internal/db"
	"github.com/waspershola/hospitech-nexus-sub005/internal/domain"
)

type PlatformFeeRepository struct {
	DB *db.Postgres
}

const feeColumns = `id::text, tenant_id::text, booking_id::text, amount, status, waived_reason, waived_by::text, waived_at, created_at`

func scanFee(row rowScanner) (*domain.PlatformFee, error) {
	var (
		f                domain.PlatformFee
		status           string
		reason, waivedBy pgtype.Text
		waivedAt         pgtype.Timestamptz
	)
	if err := row.Scan(&f.ID, &f.TenantID, &f.BookingID, &f.Amount, &status, &reason, &waivedBy, &waivedAt, &f.CreatedAt); err != nil {
		return nil, err
	}
	f.Status = domain.PlatformFeeStatus(status)
	f.WaivedReason = textPtr(reason)
	f.WaivedBy = textPtr(waivedBy)
	if waivedAt.Valid {
		t := waivedAt.Time
		f.WaivedAt = &t
	}
	return &f, nil
}

// WaivableFees lists pending and billed fees of the booking.
func (r PlatformFeeRepository) WaivableFees(ctx context.Context, tenantID, bookingID string) ([]domain.PlatformFee, error) {
	if !validID(tenantID, bookingID) {
		return nil, nil
	}
	rows, err := r.DB.Pool.Query(ctx, `
		SELECT `+feeColumns+`
		FROM platform_fees
		WHERE tenant_id=$1 AND booking_id=$2 AND status IN ('pending', 'billed')
		ORDER BY created_at, id
	`, tenantID, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PlatformFee
	for rows.Next() {
		f, err := scanFee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

// WaiveFee waives a fee that is still pending or billed; anything else reads as not found.
func (r PlatformFeeRepository) WaiveFee(ctx context.Context, tenantID, feeID, reason, actorID string) (*domain.PlatformFee, error) {
	if !validID(tenantID, feeID) {
		return nil, ErrNotFound
	}
	f, err := scanFee(r.DB.Pool.QueryRow(ctx, `
		UPDATE platform_fees
		SET status='waived', waived_reason=$3, waived_by=$4, waived_at=now()
		WHERE id=$1 AND tenant_id=$2 AND status IN ('pending', 'billed')
		RETURNING `+feeColumns,
		feeID, tenantID, reason, nullString(actorID)))
	if err != nil {
		return nil, notFound(err)
	}
	return f, nil
}
