package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/waspershola/hospitech-nexus-sub005/internal/db"
	"github.com/waspershola/hospitech-nexus-sub005/internal/domain"
)

// StaffRepository resolves staff for sign-in and keeps their manager PIN state.
type StaffRepository struct {
	DB *db.Postgres
}

const staffColumns = `id::text, user_id::text, tenant_id::text, name, email, role, password_hash, manager_pin_hash,
	pin_attempts, pin_locked_until, created_at, updated_at`

func (r StaffRepository) StaffByEmail(ctx context.Context, email string) (*domain.Staff, error) {
	st, err := scanStaff(r.DB.Pool.QueryRow(ctx, `
		SELECT `+staffColumns+`
		FROM staff
		WHERE lower(email)=lower($1)
	`, email))
	if err != nil {
		return nil, notFound(err)
	}
	return st, nil
}

func (r StaffRepository) StaffByUser(ctx context.Context, tenantID, userID string) (*domain.Staff, error) {
	if !validID(tenantID, userID) {
		return nil, ErrNotFound
	}
	st, err := scanStaff(r.DB.Pool.QueryRow(ctx, `
		SELECT `+staffColumns+`
		FROM staff
		WHERE tenant_id=$1 AND user_id=$2
	`, tenantID, userID))
	if err != nil {
		return nil, notFound(err)
	}
	return st, nil
}

// CompareAndSwapPinState writes next only when the row still carries expected.
func (r StaffRepository) CompareAndSwapPinState(ctx context.Context, staffID string, expected, next domain.PinState) (bool, error) {
	tag, err := r.DB.Pool.Exec(ctx, `
		UPDATE staff
		SET pin_attempts=$4, pin_locked_until=$5, updated_at=now()
		WHERE id=$1 AND pin_attempts=$2 AND pin_locked_until IS NOT DISTINCT FROM $3
	`, staffID, expected.Attempts, expected.LockedUntil, next.Attempts, next.LockedUntil)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SetManagerPin stores a new PIN hash and clears any lockout.
func (r StaffRepository) SetManagerPin(ctx context.Context, staffID, pinHash string) error {
	tag, err := r.DB.Pool.Exec(ctx, `
		UPDATE staff
		SET manager_pin_hash=$2, pin_attempts=0, pin_locked_until=NULL, updated_at=now()
		WHERE id=$1
	`, staffID, pinHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanStaff(row rowScanner) (*domain.Staff, error) {
	var (
		st            domain.Staff
		role          string
		password, pin pgtype.Text
		lockedUntil   pgtype.Timestamptz
	)
	if err := row.Scan(
		&st.ID,
		&st.UserID,
		&st.TenantID,
		&st.Name,
		&st.Email,
		&role,
		&password,
		&pin,
		&st.PinAttempts,
		&lockedUntil,
		&st.CreatedAt,
		&st.UpdatedAt,
	); err != nil {
		return nil, err
	}
	st.Role = domain.StaffRole(role)
	st.PasswordHash = textPtr(password)
	st.ManagerPinHash = textPtr(pin)
	if lockedUntil.Valid {
		t := lockedUntil.Time
		st.PinLockedUntil = &t
	}
	return &st, nil
}
