package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/waspershola/hospitech-nexus-sub005/internal/domain"
	"github.com/waspershola/hospitech-nexus-sub005/internal/events"
	"github.com/waspershola/hospitech-nexus-sub005/internal/metrics"
	"github.com/waspershola/hospitech-nexus-sub005/internal/ports"
)

// SideEffect describes a secondary posting that failed after the primary change committed.
// It is returned to the caller and handed to reconciliation; it never rolls back the primary change.
type SideEffect struct {
	Effect string `json:"effect"`
	Target string `json:"target"`
	Error  string `json:"error"`
}

// SideChannel reports failed secondary postings.
type SideChannel struct {
	Events events.Publisher
	Logger *slog.Logger
}

func (c SideChannel) Failed(ctx context.Context, tenantID, effect, target string, cause error, ids map[string]any) SideEffect {
	metrics.SideEffectFailures.WithLabelValues(effect).Inc()
	if c.Logger != nil {
		c.Logger.Error("secondary posting failed", "effect", effect, "target", target, "tenant_id", tenantID, "err", cause)
	}
	if c.Events != nil {
		err := c.Events.Publish(ctx, events.Event{
			Type:       events.TypeReconciliationRequired,
			TenantID:   tenantID,
			EntityIDs:  ids,
			Payload:    map[string]any{"effect": effect, "target": target, "error": cause.Error()},
			OccurredAt: time.Now().UTC(),
		})
		if err != nil && c.Logger != nil {
			c.Logger.Error("reconciliation event not published", "effect", effect, "target", target, "err", err)
		}
	}
	return SideEffect{Effect: effect, Target: target, Error: cause.Error()}
}

// Notify publishes an informational event; failures are logged only.
func (c SideChannel) Notify(ctx context.Context, e events.Event) {
	if c.Events == nil {
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	if err := c.Events.Publish(ctx, e); err != nil && c.Logger != nil {
		c.Logger.Warn("event not published", "type", e.Type, "err", err)
	}
}

// AuditRecorder writes before/after snapshots to the append-only audit log.
type AuditRecorder struct {
	Store ports.AuditStore
}

func (a AuditRecorder) Record(ctx context.Context, actor domain.Actor, table, recordID, action string, before, after any) error {
	if a.Store == nil {
		return nil
	}
	_, err := a.Store.AppendAudit(ctx, domain.AuditEntry{
		TenantID:  actor.TenantID,
		TableName: table,
		RecordID:  recordID,
		Action:    action,
		UserID:    actor.UserID,
		Before:    before,
		After:     after,
	})
	return err
}

func (a AuditRecorder) List(ctx context.Context, actor domain.Actor, f ports.AuditFilter) ([]domain.AuditEntry, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 200
	}
	entries, err := a.Store.ListAudit(ctx, actor.TenantID, f)
	if err != nil {
		return nil, domain.External("list audit log", err)
	}
	return entries, nil
}

// storeErr maps a store failure to the error taxonomy. notFound is the code used for ports.ErrNotFound.
func storeErr(op, notFound string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ports.ErrNotFound):
		return domain.State(notFound, notFoundMessage(notFound))
	case errors.Is(err, ports.ErrFolioNotOpen):
		return domain.State(domain.CodeFolioNotOpen, "folio is not open")
	case errors.Is(err, ports.ErrTenantMismatch):
		return domain.Authorization(domain.CodeTenantMismatch, "folio belongs to another tenant")
	case errors.Is(err, ports.ErrDuplicate):
		return domain.Conflict(domain.CodeDuplicateFolio, "record already exists")
	}
	if _, ok := domain.AsError(err); ok {
		return err
	}
	return domain.External(op, err)
}

func notFoundMessage(code string) string {
	switch code {
	case domain.CodeBookingNotFound:
		return "booking not found"
	case domain.CodeRoomNotFound:
		return "room not found"
	case domain.CodeGroupNotFound:
		return "group master folio not found"
	case domain.CodeEntryNotFound:
		return "ledger entry not found"
	case domain.CodeStaffNotFound:
		return "staff record not found"
	}
	return "folio not found"
}

func nowOr(now func() time.Time) time.Time {
	if now == nil {
		return time.Now()
	}
	return now()
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func ptr[T any](v T) *T { return &v }
