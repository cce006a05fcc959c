package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/waspershola/hospitech-nexus-sub005/internal/db"
	"github.com/waspershola/hospitech-nexus-sub005/internal/domain"
	"github.com/waspershola/hospitech-nexus-sub005/internal/ports"
)

// FolioRepository stores folios and ledger entries. Every balance change happens under a
// row lock on the folio so concurrent postings serialize per folio.
type FolioRepository struct {
	DB *db.Postgres
}

var folioFields = []string{
	"id::text", "tenant_id::text", "booking_id::text", "folio_number", "kind", "parent_folio_id::text", "group_id",
	"status", "total_charges", "total_payments", "balance", "currency", "metadata", "created_at", "updated_at",
}

func folioColumns(alias string) string {
	if alias == "" {
		return strings.Join(folioFields, ", ")
	}
	cols := make([]string, len(folioFields))
	for i, c := range folioFields {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

const entryColumns = `id::text, tenant_id::text, folio_id::text, kind, amount, description, reference_type, reference_id, department, created_by::text, created_at`

func scanFolio(row rowScanner) (*domain.Folio, error) {
	var (
		f                          domain.Folio
		kind, status               string
		bookingID, parent, groupID pgtype.Text
		meta                       []byte
	)
	if err := row.Scan(
		&f.ID, &f.TenantID, &bookingID, &f.FolioNumber, &kind, &parent, &groupID,
		&status, &f.TotalCharges, &f.TotalPayments, &f.Balance, &f.Currency, &meta, &f.CreatedAt, &f.UpdatedAt,
	); err != nil {
		return nil, err
	}
	m, err := jsonMap(meta)
	if err != nil {
		return nil, fmt.Errorf("decode folio metadata: %w", err)
	}
	f.Kind = domain.FolioKind(kind)
	f.Status = domain.FolioStatus(status)
	f.BookingID = textPtr(bookingID)
	f.ParentFolioID = textPtr(parent)
	f.GroupID = textPtr(groupID)
	f.Metadata = m
	return &f, nil
}

func scanEntry(row rowScanner) (*domain.LedgerEntry, error) {
	var (
		e                               domain.LedgerEntry
		kind                            string
		refType, refID, dept, createdBy pgtype.Text
	)
	if err := row.Scan(&e.ID, &e.TenantID, &e.FolioID, &kind, &e.Amount, &e.Description,
		&refType, &refID, &dept, &createdBy, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Kind = domain.EntryKind(kind)
	e.ReferenceType = textPtr(refType)
	e.ReferenceID = textPtr(refID)
	e.Department = textPtr(dept)
	e.CreatedBy = textPtr(createdBy)
	return &e, nil
}

// validID rejects ids that would make Postgres fail the uuid cast; such ids cannot exist.
func validID(ids ...string) bool {
	for _, id := range ids {
		if uuid.Validate(id) != nil {
			return false
		}
	}
	return true
}

func (r FolioRepository) GetFolio(ctx context.Context, tenantID, folioID string) (*domain.Folio, error) {
	if !validID(tenantID, folioID) {
		return nil, ErrNotFound
	}
	f, err := scanFolio(r.DB.Pool.QueryRow(ctx, `
		SELECT `+folioColumns("")+`
		FROM folios
		WHERE id=$1 AND tenant_id=$2
	`, folioID, tenantID))
	if err != nil {
		return nil, notFound(err)
	}
	return f, nil
}

func (r FolioRepository) OpenFolioForBooking(ctx context.Context, tenantID, bookingID string) (*domain.Folio, error) {
	if !validID(tenantID, bookingID) {
		return nil, ErrNotFound
	}
	f, err := scanFolio(r.DB.Pool.QueryRow(ctx, `
		SELECT `+folioColumns("")+`
		FROM folios
		WHERE tenant_id=$1 AND booking_id=$2 AND kind='room' AND status='open'
	`, tenantID, bookingID))
	if err != nil {
		return nil, notFound(err)
	}
	return f, nil
}

func (r FolioRepository) LatestRoomFolio(ctx context.Context, tenantID, bookingID string) (*domain.Folio, error) {
	if !validID(tenantID, bookingID) {
		return nil, ErrNotFound
	}
	f, err := scanFolio(r.DB.Pool.QueryRow(ctx, `
		SELECT `+folioColumns("")+`
		FROM folios
		WHERE tenant_id=$1 AND booking_id=$2 AND kind='room'
		ORDER BY created_at DESC
		LIMIT 1
	`, tenantID, bookingID))
	if err != nil {
		return nil, notFound(err)
	}
	return f, nil
}

// NextFolioNumber allocates FOL-YYYYMM-NNNNN from a per-tenant monthly counter.
func (r FolioRepository) NextFolioNumber(ctx context.Context, tenantID string) (string, error) {
	period := time.Now().UTC().Format("200601")
	var n int
	err := r.DB.Pool.QueryRow(ctx, `
		INSERT INTO folio_counters (tenant_id, period, last_value)
		VALUES ($1, $2, 1)
		ON CONFLICT (tenant_id, period) DO UPDATE SET last_value = folio_counters.last_value + 1
		RETURNING last_value
	`, tenantID, period).Scan(&n)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("FOL-%s-%05d", period, n), nil
}

func (r FolioRepository) CreateFolio(ctx context.Context, f domain.Folio) (*domain.Folio, error) {
	if f.Metadata == nil {
		f.Metadata = map[string]any{}
	}
	meta, err := json.Marshal(f.Metadata)
	if err != nil {
		return nil, err
	}
	status := f.Status
	if status == "" {
		status = domain.FolioOpen
	}
	out, err := scanFolio(r.DB.Pool.QueryRow(ctx, `
		INSERT INTO folios (tenant_id, booking_id, folio_number, kind, parent_folio_id, group_id, status,
		                    total_charges, total_payments, balance, currency, metadata, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$8-$9,$10,$11, now(), now())
		RETURNING `+folioColumns(""),
		f.TenantID, f.BookingID, f.FolioNumber, string(f.Kind), f.ParentFolioID, f.GroupID, string(status),
		f.TotalCharges, f.TotalPayments, f.Currency, meta))
	if err != nil {
		if IsDuplicate(err) {
			return nil, ports.ErrDuplicate
		}
		return nil, err
	}
	return out, nil
}

// DeleteFolio removes a folio with its entries. Attached booking payments are released by the
// ON DELETE SET NULL foreign keys.
func (r FolioRepository) DeleteFolio(ctx context.Context, tenantID, folioID string) error {
	if !validID(tenantID, folioID) {
		return ErrNotFound
	}
	tag, err := r.DB.Pool.Exec(ctx, `DELETE FROM folios WHERE id=$1 AND tenant_id=$2`, folioID, tenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetFolioStatus moves an open folio to status and merges metadata into its metadata.
func (r FolioRepository) SetFolioStatus(ctx context.Context, tenantID, folioID string, status domain.FolioStatus, metadata map[string]any) (*domain.Folio, error) {
	if !validID(tenantID, folioID) {
		return nil, ErrNotFound
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return nil, err
	}
	f, err := scanFolio(r.DB.Pool.QueryRow(ctx, `
		UPDATE folios
		SET status=$3, metadata = metadata || $4::jsonb, updated_at=now()
		WHERE id=$1 AND tenant_id=$2 AND status='open'
		RETURNING `+folioColumns(""),
		folioID, tenantID, string(status), meta))
	if err == nil {
		return f, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if _, getErr := r.GetFolio(ctx, tenantID, folioID); getErr != nil {
		return nil, getErr
	}
	return nil, ports.ErrFolioNotOpen
}

// PostEntry locks the folio row, checks tenant and status, applies the delta and inserts the entry.
func (r FolioRepository) PostEntry(ctx context.Context, in ports.PostEntry) (*ports.PostedEntry, error) {
	if !validID(in.FolioID) {
		return nil, ErrNotFound
	}
	var out *ports.PostedEntry
	err := r.DB.WithTx(ctx, func(tx pgx.Tx) error {
		if err := lockOpenFolio(ctx, tx, in.TenantID, in.FolioID); err != nil {
			return err
		}
		posted, err := postLocked(ctx, tx, in)
		if err != nil {
			return err
		}
		out = posted
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func lockOpenFolio(ctx context.Context, q pgxQuerier, tenantID, folioID string) error {
	var owner, status string
	err := q.QueryRow(ctx, `
		SELECT tenant_id::text, status
		FROM folios
		WHERE id=$1
		FOR UPDATE
	`, folioID).Scan(&owner, &status)
	if err != nil {
		return notFound(err)
	}
	if owner != tenantID {
		return ports.ErrTenantMismatch
	}
	if status != string(domain.FolioOpen) {
		return ports.ErrFolioNotOpen
	}
	return nil
}

// postLocked must run in a transaction that already holds the folio row lock.
func postLocked(ctx context.Context, q pgxQuerier, in ports.PostEntry) (*ports.PostedEntry, error) {
	var charges, payments int64
	if in.Kind == domain.EntryPayment {
		payments = in.Amount
	} else {
		charges = in.Amount
	}
	f, err := scanFolio(q.QueryRow(ctx, `
		UPDATE folios
		SET total_charges = total_charges + $2,
		    total_payments = total_payments + $3,
		    balance = (total_charges + $2) - (total_payments + $3),
		    updated_at = now()
		WHERE id=$1
		RETURNING `+folioColumns(""),
		in.FolioID, charges, payments))
	if err != nil {
		return nil, err
	}
	e, err := scanEntry(q.QueryRow(ctx, `
		INSERT INTO ledger_entries (tenant_id, folio_id, kind, amount, description, reference_type, reference_id, department, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9, now())
		RETURNING `+entryColumns,
		in.TenantID, in.FolioID, string(in.Kind), in.Amount, in.Description, in.ReferenceType, in.ReferenceID, in.Department, in.CreatedBy))
	if err != nil {
		return nil, err
	}
	return &ports.PostedEntry{Entry: *e, Folio: *f}, nil
}

func (r FolioRepository) GetEntry(ctx context.Context, tenantID, entryID string) (*domain.LedgerEntry, error) {
	if !validID(tenantID, entryID) {
		return nil, ErrNotFound
	}
	e, err := scanEntry(r.DB.Pool.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE id=$1 AND tenant_id=$2
	`, entryID, tenantID))
	if err != nil {
		return nil, notFound(err)
	}
	return e, nil
}

func (r FolioRepository) ListEntries(ctx context.Context, tenantID, folioID string) ([]domain.LedgerEntry, error) {
	if !validID(tenantID, folioID) {
		return nil, nil
	}
	rows, err := r.DB.Pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE folio_id=$1 AND tenant_id=$2
		ORDER BY seq
	`, folioID, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// AttachBookingPayments posts every unattached pre-arrival payment of the booking to the folio.
func (r FolioRepository) AttachBookingPayments(ctx context.Context, tenantID, bookingID, folioID string, createdBy *string) ([]domain.BookingPayment, error) {
	var out []domain.BookingPayment
	err := r.DB.WithTx(ctx, func(tx pgx.Tx) error {
		if err := lockOpenFolio(ctx, tx, tenantID, folioID); err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `
			SELECT id::text, amount, method, created_at
			FROM booking_payments
			WHERE tenant_id=$1 AND booking_id=$2 AND folio_id IS NULL
			ORDER BY created_at, id
			FOR UPDATE
		`, tenantID, bookingID)
		if err != nil {
			return err
		}
		var pending []domain.BookingPayment
		for rows.Next() {
			p := domain.BookingPayment{TenantID: tenantID, BookingID: bookingID}
			if err := rows.Scan(&p.ID, &p.Amount, &p.Method, &p.CreatedAt); err != nil {
				rows.Close()
				return err
			}
			pending = append(pending, p)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		ref := domain.RefBookingPayment
		for _, p := range pending {
			pid := p.ID
			posted, err := postLocked(ctx, tx, ports.PostEntry{
				TenantID:      tenantID,
				FolioID:       folioID,
				Kind:          domain.EntryPayment,
				Amount:        p.Amount,
				Description:   "Pre-arrival payment (" + p.Method + ")",
				ReferenceType: &ref,
				ReferenceID:   &pid,
				CreatedBy:     createdBy,
			})
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `
				UPDATE booking_payments SET folio_id=$2, ledger_entry_id=$3 WHERE id=$1
			`, p.ID, folioID, posted.Entry.ID); err != nil {
				return err
			}
			fid, eid := folioID, posted.Entry.ID
			p.FolioID = &fid
			p.LedgerEntryID = &eid
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r FolioRepository) MasterFolioByGroup(ctx context.Context, tenantID, groupID string) (*domain.Folio, error) {
	if !validID(tenantID) {
		return nil, ErrNotFound
	}
	f, err := scanFolio(r.DB.Pool.QueryRow(ctx, `
		SELECT `+folioColumns("")+`
		FROM folios
		WHERE tenant_id=$1 AND group_id=$2 AND kind='master'
	`, tenantID, groupID))
	if err != nil {
		return nil, notFound(err)
	}
	return f, nil
}

// CreateMasterFolio inserts the group's master folio. The partial unique index on
// (tenant_id, group_id) settles concurrent creates; the loser reads the winner's row.
func (r FolioRepository) CreateMasterFolio(ctx context.Context, in ports.NewMasterFolio) (*domain.Folio, bool, error) {
	meta := map[string]any{"group_name": in.GroupName, "master_booking_id": in.MasterBookingID}
	if in.GuestID != nil {
		meta["guest_id"] = *in.GuestID
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, false, err
	}
	f, err := scanFolio(r.DB.Pool.QueryRow(ctx, `
		INSERT INTO folios (tenant_id, folio_number, kind, group_id, status, currency, metadata, created_at, updated_at)
		VALUES ($1,$2,'master',$3,'open',$4,$5, now(), now())
		ON CONFLICT (tenant_id, group_id) WHERE kind = 'master' DO NOTHING
		RETURNING `+folioColumns(""),
		in.TenantID, in.FolioNumber, in.GroupID, in.Currency, raw))
	if err == nil {
		return f, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}
	existing, err := r.MasterFolioByGroup(ctx, in.TenantID, in.GroupID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r FolioRepository) LinkChild(ctx context.Context, tenantID, childFolioID, masterFolioID string) (*domain.Folio, error) {
	if !validID(tenantID, childFolioID, masterFolioID) {
		return nil, ErrNotFound
	}
	f, err := scanFolio(r.DB.Pool.QueryRow(ctx, `
		UPDATE folios
		SET parent_folio_id=$3, updated_at=now()
		WHERE id=$1 AND tenant_id=$2
		  AND EXISTS (SELECT 1 FROM folios m WHERE m.id=$3 AND m.tenant_id=$2 AND m.kind='master')
		RETURNING `+folioColumns(""),
		childFolioID, tenantID, masterFolioID))
	if err != nil {
		return nil, notFound(err)
	}
	return f, nil
}

// SyncMasterTotals recomputes the master from its children plus entries posted on the master itself.
func (r FolioRepository) SyncMasterTotals(ctx context.Context, tenantID, masterFolioID string) (*domain.Folio, error) {
	if !validID(tenantID, masterFolioID) {
		return nil, ErrNotFound
	}
	var out *domain.Folio
	err := r.DB.WithTx(ctx, func(tx pgx.Tx) error {
		var id string
		if err := tx.QueryRow(ctx, `
			SELECT id::text FROM folios WHERE id=$1 AND tenant_id=$2 FOR UPDATE
		`, masterFolioID, tenantID).Scan(&id); err != nil {
			return notFound(err)
		}
		f, err := scanFolio(tx.QueryRow(ctx, `
			WITH children AS (
				SELECT COALESCE(SUM(total_charges), 0)::bigint AS charges,
				       COALESCE(SUM(total_payments), 0)::bigint AS payments
				FROM folios
				WHERE parent_folio_id=$1 AND tenant_id=$2
			), direct AS (
				SELECT COALESCE(SUM(amount) FILTER (WHERE kind <> 'payment'), 0)::bigint AS charges,
				       COALESCE(SUM(amount) FILTER (WHERE kind = 'payment'), 0)::bigint AS payments
				FROM ledger_entries
				WHERE folio_id=$1
			)
			UPDATE folios f
			SET total_charges = children.charges + direct.charges,
			    total_payments = children.payments + direct.payments,
			    balance = (children.charges + direct.charges) - (children.payments + direct.payments),
			    updated_at = now()
			FROM children, direct
			WHERE f.id=$1 AND f.tenant_id=$2
			RETURNING `+folioColumns("f"),
			masterFolioID, tenantID))
		if err != nil {
			return err
		}
		out = f
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
