package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/waspershola/hospitech-nexus-sub005/internal/db"
	"github.com/waspershola/hospitech-nexus-sub005/internal/domain"
	"github.com/waspershola/hospitech-nexus-sub005/internal/ports"
)

// AuditLogRepository appends to the per-tenant hash chain. A transaction-scoped advisory
// lock on the tenant serializes appends so no two entries share a predecessor.
type AuditLogRepository struct {
	DB *db.Postgres
}

func (r AuditLogRepository) AppendAudit(ctx context.Context, e domain.AuditEntry) (*domain.AuditEntry, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.CreatedAt = e.CreatedAt.UTC().Truncate(time.Microsecond)

	before, err := marshalNullable(e.Before)
	if err != nil {
		return nil, err
	}
	after, err := marshalNullable(e.After)
	if err != nil {
		return nil, err
	}

	err = r.DB.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, e.TenantID); err != nil {
			return err
		}
		prev := ""
		err := tx.QueryRow(ctx, `
			SELECT hash FROM audit_logs WHERE tenant_id=$1 ORDER BY id DESC LIMIT 1
		`, e.TenantID).Scan(&prev)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		e.PrevHash = prev
		if e.Hash, err = domain.AuditHash(prev, e); err != nil {
			return err
		}
		return tx.QueryRow(ctx, `
			INSERT INTO audit_logs (tenant_id, table_name, record_id, action, user_id, before, after, prev_hash, hash, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			RETURNING id
		`, e.TenantID, e.TableName, e.RecordID, e.Action, nullString(e.UserID), before, after,
			e.PrevHash, e.Hash, e.CreatedAt).Scan(&e.ID)
	})
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListAudit returns the newest matching entries in chain order.
func (r AuditLogRepository) ListAudit(ctx context.Context, tenantID string, f ports.AuditFilter) ([]domain.AuditEntry, error) {
	if !validID(tenantID) {
		return nil, nil
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.Pool.Query(ctx, `
		SELECT id, tenant_id::text, table_name, record_id, action, user_id::text, before, after, prev_hash, hash, created_at
		FROM audit_logs
		WHERE tenant_id=$1
		  AND ($2 = '' OR table_name = $2)
		  AND ($3 = '' OR record_id = $3)
		ORDER BY id DESC
		LIMIT $4
	`, tenantID, f.TableName, f.RecordID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AuditEntry
	for rows.Next() {
		var (
			e             domain.AuditEntry
			userID        pgtype.Text
			before, after []byte
		)
		if err := rows.Scan(&e.ID, &e.TenantID, &e.TableName, &e.RecordID, &e.Action, &userID,
			&before, &after, &e.PrevHash, &e.Hash, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.UserID = userID.String
		if e.Before, err = unmarshalNullable(before); err != nil {
			return nil, err
		}
		if e.After, err = unmarshalNullable(after); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func marshalNullable(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func unmarshalNullable(raw []byte) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
