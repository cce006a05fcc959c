package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/waspershola/hospitech-nexus-sub005/internal/domain"
	"github.com/waspershola/hospitech-nexus-sub005/internal/ports"
)

// ApprovalRepository adds approval tokens and the approval log on top of staff PIN state.
type ApprovalRepository struct {
	StaffRepository
}

func (r ApprovalRepository) InsertToken(ctx context.Context, t domain.ApprovalToken) error {
	_, err := r.DB.Pool.Exec(ctx, `
		INSERT INTO approval_tokens (token, approver_id, tenant_id, action_type, action_reference, amount, issued_at, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, t.Token, t.ApproverID, t.TenantID, string(t.ActionType), t.ActionReference, t.Amount, t.IssuedAt, t.ExpiresAt)
	if IsDuplicate(err) {
		return ports.ErrDuplicate
	}
	return err
}

// ConsumeToken is a single conditional UPDATE so two callers can never both win.
func (r ApprovalRepository) ConsumeToken(ctx context.Context, in ports.ConsumeToken) (bool, error) {
	if !validID(in.TenantID) {
		return false, nil
	}
	tag, err := r.DB.Pool.Exec(ctx, `
		UPDATE approval_tokens
		SET consumed_at=$6
		WHERE token=$1
		  AND tenant_id=$2
		  AND action_type=$3
		  AND action_reference IS NOT DISTINCT FROM $4
		  AND amount IS NOT DISTINCT FROM $5
		  AND consumed_at IS NULL
		  AND expires_at > $6
	`, in.Token, in.TenantID, string(in.ActionType), in.ActionReference, in.Amount, in.Now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r ApprovalRepository) ClearTokens(ctx context.Context, tenantID, approverID string) (int64, error) {
	if !validID(tenantID, approverID) {
		return 0, nil
	}
	tag, err := r.DB.Pool.Exec(ctx, `
		DELETE FROM approval_tokens
		WHERE tenant_id=$1 AND approver_id=$2 AND consumed_at IS NULL
	`, tenantID, approverID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r ApprovalRepository) InsertApprovalLog(ctx context.Context, l domain.ApprovalLog) error {
	_, err := r.DB.Pool.Exec(ctx, `
		INSERT INTO approval_logs (tenant_id, staff_id, user_id, action_type, action_reference, amount,
		                           reason, success, error_code, attempts_remaining, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10, now())
	`, l.TenantID, l.StaffID, l.UserID, string(l.ActionType), l.ActionReference, l.Amount,
		l.Reason, l.Success, nullString(l.ErrorCode), l.AttemptsRemaining)
	return err
}

func (r ApprovalRepository) ListApprovalLogs(ctx context.Context, tenantID string, limit int) ([]domain.ApprovalLog, error) {
	if !validID(tenantID) {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.Pool.Query(ctx, `
		SELECT id::text, tenant_id::text, staff_id::text, user_id::text, action_type, action_reference, amount,
		       reason, success, error_code, attempts_remaining, created_at
		FROM approval_logs
		WHERE tenant_id=$1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ApprovalLog
	for rows.Next() {
		var (
			l                     domain.ApprovalLog
			action                string
			staffID, ref, errCode pgtype.Text
			amount                pgtype.Int8
			remaining             pgtype.Int4
		)
		if err := rows.Scan(&l.ID, &l.TenantID, &staffID, &l.UserID, &action, &ref, &amount,
			&l.Reason, &l.Success, &errCode, &remaining, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.ActionType = domain.ActionType(action)
		l.StaffID = textPtr(staffID)
		l.ActionReference = textPtr(ref)
		l.Amount = int8Ptr(amount)
		l.ErrorCode = errCode.String
		if remaining.Valid {
			n := int(remaining.Int32)
			l.AttemptsRemaining = &n
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
