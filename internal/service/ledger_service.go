package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/waspershola/hospitech-nexus-sub005/internal/domain"
	"github.com/waspershola/hospitech-nexus-sub005/internal/metrics"
	"github.com/waspershola/hospitech-nexus-sub005/internal/ports"
)

// LedgerService posts charges and payments against folios.
// Postings are not idempotent; two identical calls post twice.
type LedgerService struct {
	Folios ports.FolioStore
	Logger *slog.Logger
}

type PostInput struct {
	FolioID       string
	Amount        int64
	Description   string
	ReferenceType *string
	ReferenceID   *string
	Department    *string
}

type PostResult struct {
	EntryID string
	Balance int64
	Entry   domain.LedgerEntry
	Folio   domain.Folio
}

// PostCharge increments total_charges. A negative amount is recorded as a credit entry.
func (s LedgerService) PostCharge(ctx context.Context, actor domain.Actor, in PostInput) (*PostResult, error) {
	kind := domain.EntryCharge
	if in.Amount < 0 {
		kind = domain.EntryCredit
	}
	return s.post(ctx, actor, kind, in)
}

// PostPayment increments total_payments. A negative amount is a refund of an earlier payment.
func (s LedgerService) PostPayment(ctx context.Context, actor domain.Actor, in PostInput) (*PostResult, error) {
	return s.post(ctx, actor, domain.EntryPayment, in)
}

func (s LedgerService) post(ctx context.Context, actor domain.Actor, kind domain.EntryKind, in PostInput) (*PostResult, error) {
	in.Description = strings.TrimSpace(in.Description)
	if in.FolioID == "" {
		return nil, domain.Validation("folio_id is required")
	}
	if in.Amount == 0 {
		return nil, domain.Validation("amount must not be zero")
	}
	if in.Description == "" {
		return nil, domain.Validation("description is required")
	}

	posted, err := s.Folios.PostEntry(ctx, ports.PostEntry{
		TenantID:      actor.TenantID,
		FolioID:       in.FolioID,
		Kind:          kind,
		Amount:        in.Amount,
		Description:   in.Description,
		ReferenceType: in.ReferenceType,
		ReferenceID:   in.ReferenceID,
		Department:    in.Department,
		CreatedBy:     strPtr(actor.UserID),
	})
	if err != nil {
		mapped := storeErr("post ledger entry", domain.CodeFolioNotFound, err)
		if de, ok := domain.AsError(mapped); ok {
			metrics.LedgerPostingFailures.WithLabelValues(de.Code).Inc()
		}
		if s.Logger != nil {
			s.Logger.Warn("ledger posting rejected", "folio_id", in.FolioID, "kind", kind, "amount", in.Amount, "err", err)
		}
		return nil, mapped
	}
	metrics.LedgerPostings.WithLabelValues(string(kind)).Inc()
	return &PostResult{
		EntryID: posted.Entry.ID,
		Balance: posted.Folio.Balance,
		Entry:   posted.Entry,
		Folio:   posted.Folio,
	}, nil
}

// Reverse posts an opposite-signed entry of the same kind referencing the original entry.
func (s LedgerService) Reverse(ctx context.Context, actor domain.Actor, entry domain.LedgerEntry, refType, description string) (*PostResult, error) {
	kind := entry.Kind
	if kind != domain.EntryPayment {
		kind = domain.EntryCharge
		if entry.Amount > 0 {
			kind = domain.EntryCredit
		}
	}
	return s.post(ctx, actor, kind, PostInput{
		FolioID:       entry.FolioID,
		Amount:        -entry.Amount,
		Description:   description,
		ReferenceType: &refType,
		ReferenceID:   &entry.ID,
		Department:    entry.Department,
	})
}

func (s LedgerService) GetFolio(ctx context.Context, actor domain.Actor, folioID string) (*domain.Folio, error) {
	f, err := s.Folios.GetFolio(ctx, actor.TenantID, folioID)
	if err != nil {
		return nil, storeErr("get folio", domain.CodeFolioNotFound, err)
	}
	return f, nil
}

func (s LedgerService) GetEntry(ctx context.Context, actor domain.Actor, entryID string) (*domain.LedgerEntry, error) {
	e, err := s.Folios.GetEntry(ctx, actor.TenantID, entryID)
	if err != nil {
		return nil, storeErr("get ledger entry", domain.CodeEntryNotFound, err)
	}
	return e, nil
}

// Statement returns the folio and its entries in posting order.
func (s LedgerService) Statement(ctx context.Context, actor domain.Actor, folioID string) (*domain.Folio, []domain.LedgerEntry, error) {
	f, err := s.GetFolio(ctx, actor, folioID)
	if err != nil {
		return nil, nil, err
	}
	entries, err := s.Folios.ListEntries(ctx, actor.TenantID, folioID)
	if err != nil {
		return nil, nil, domain.External("list ledger entries", err)
	}
	return f, entries, nil
}
