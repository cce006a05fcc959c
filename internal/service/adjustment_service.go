package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/waspershola/hospitech-nexus-sub005/internal/domain"
)

// Adjustment is one approval-gated money movement on a folio. The set of variants is closed.
type Adjustment interface {
	Action() domain.ActionType
	reason() string
	plan(ctx context.Context, s AdjustmentService, actor domain.Actor, f *domain.Folio) (adjustmentPlan, error)
}

type adjustmentPlan struct {
	kind        domain.EntryKind
	amount      int64
	approved    int64
	description string
	referenceID *string
}

// WriteOff forgives part of the outstanding balance.
type WriteOff struct {
	Amount int64
	Reason string
}

// Rebate credits the guest for a service problem. room_rebate requests decode to this.
type Rebate struct {
	Amount int64
	Reason string
}

// Refund returns money already paid.
type Refund struct {
	Amount int64
	Reason string
}

// ReverseTransaction cancels one earlier ledger entry with an opposite-signed entry.
type ReverseTransaction struct {
	EntryID string
	Reason  string
}

// Overpayment accepts a payment larger than the outstanding balance.
type Overpayment struct {
	Amount int64
	Method string
	Reason string
}

// Underpayment accepts a payment that leaves part of the balance unpaid.
type Underpayment struct {
	Amount int64
	Method string
	Reason string
}

func (WriteOff) Action() domain.ActionType           { return domain.ActionWriteOff }
func (Rebate) Action() domain.ActionType             { return domain.ActionRebate }
func (Refund) Action() domain.ActionType             { return domain.ActionRefund }
func (ReverseTransaction) Action() domain.ActionType { return domain.ActionReverseTransaction }
func (Overpayment) Action() domain.ActionType        { return domain.ActionOverpayment }
func (Underpayment) Action() domain.ActionType       { return domain.ActionUnderpayment }

func positive(amount int64) error {
	if amount <= 0 {
		return domain.Validation("amount must be positive")
	}
	return nil
}

func (a WriteOff) plan(_ context.Context, _ AdjustmentService, _ domain.Actor, f *domain.Folio) (adjustmentPlan, error) {
	if err := positive(a.Amount); err != nil {
		return adjustmentPlan{}, err
	}
	if a.Amount > f.Balance {
		return adjustmentPlan{}, domain.Validation("write-off exceeds the outstanding balance").With("balance", f.Balance)
	}
	return adjustmentPlan{kind: domain.EntryCredit, amount: -a.Amount, approved: a.Amount, description: "Write-off: " + a.Reason}, nil
}

func (a Rebate) plan(_ context.Context, _ AdjustmentService, _ domain.Actor, _ *domain.Folio) (adjustmentPlan, error) {
	if err := positive(a.Amount); err != nil {
		return adjustmentPlan{}, err
	}
	return adjustmentPlan{kind: domain.EntryCredit, amount: -a.Amount, approved: a.Amount, description: "Rebate: " + a.Reason}, nil
}

func (a Refund) plan(_ context.Context, _ AdjustmentService, _ domain.Actor, f *domain.Folio) (adjustmentPlan, error) {
	if err := positive(a.Amount); err != nil {
		return adjustmentPlan{}, err
	}
	if a.Amount > f.TotalPayments {
		return adjustmentPlan{}, domain.Validation("refund exceeds total payments").With("total_payments", f.TotalPayments)
	}
	return adjustmentPlan{kind: domain.EntryPayment, amount: -a.Amount, approved: a.Amount, description: "Refund: " + a.Reason}, nil
}

func (a ReverseTransaction) plan(ctx context.Context, s AdjustmentService, actor domain.Actor, f *domain.Folio) (adjustmentPlan, error) {
	if a.EntryID == "" {
		return adjustmentPlan{}, domain.Validation("entry_id is required")
	}
	e, err := s.Ledger.GetEntry(ctx, actor, a.EntryID)
	if err != nil {
		return adjustmentPlan{}, err
	}
	if e.FolioID != f.ID {
		return adjustmentPlan{}, domain.Validation("entry does not belong to this folio")
	}
	kind := e.Kind
	if kind != domain.EntryPayment {
		kind = domain.EntryCharge
		if e.Amount > 0 {
			kind = domain.EntryCredit
		}
	}
	return adjustmentPlan{
		kind:        kind,
		amount:      -e.Amount,
		approved:    e.Amount,
		description: fmt.Sprintf("Reversal of %s: %s", e.Description, a.Reason),
		referenceID: &e.ID,
	}, nil
}

func (a Overpayment) plan(_ context.Context, _ AdjustmentService, _ domain.Actor, f *domain.Folio) (adjustmentPlan, error) {
	if err := positive(a.Amount); err != nil {
		return adjustmentPlan{}, err
	}
	if a.Amount <= f.Balance {
		return adjustmentPlan{}, domain.Validation("payment does not exceed the outstanding balance").With("balance", f.Balance)
	}
	return adjustmentPlan{kind: domain.EntryPayment, amount: a.Amount, approved: a.Amount, description: paymentDescription("Overpayment", a.Method, a.Reason)}, nil
}

func (a Underpayment) plan(_ context.Context, _ AdjustmentService, _ domain.Actor, f *domain.Folio) (adjustmentPlan, error) {
	if err := positive(a.Amount); err != nil {
		return adjustmentPlan{}, err
	}
	if a.Amount >= f.Balance {
		return adjustmentPlan{}, domain.Validation("payment covers the outstanding balance").With("balance", f.Balance)
	}
	return adjustmentPlan{kind: domain.EntryPayment, amount: a.Amount, approved: a.Amount, description: paymentDescription("Partial payment", a.Method, a.Reason)}, nil
}

func paymentDescription(label, method, reason string) string {
	if method != "" {
		label += " (" + method + ")"
	}
	return label + ": " + reason
}

func (a WriteOff) reason() string           { return a.Reason }
func (a Rebate) reason() string             { return a.Reason }
func (a Refund) reason() string             { return a.Reason }
func (a ReverseTransaction) reason() string { return a.Reason }
func (a Overpayment) reason() string        { return a.Reason }
func (a Underpayment) reason() string       { return a.Reason }

// AdjustmentService applies approval-gated adjustments to folios.
type AdjustmentService struct {
	Ledger    LedgerService
	Approvals ApprovalService
	Audit     AuditRecorder
	Side      SideChannel
	Logger    *slog.Logger
}

type AdjustmentResult struct {
	Action domain.ActionType
	PostResult
}

// Apply consumes an approval token bound to (action, folio, amount) and posts the adjustment.
// The folio is checked before the token is spent so a closed folio does not burn an approval.
func (s AdjustmentService) Apply(ctx context.Context, actor domain.Actor, folioID, token string, adj Adjustment) (*AdjustmentResult, error) {
	if adj == nil {
		return nil, domain.Validation("adjustment is required")
	}
	if strings.TrimSpace(adj.reason()) == "" {
		return nil, domain.Validation("reason is required")
	}
	folio, err := s.Ledger.GetFolio(ctx, actor, folioID)
	if err != nil {
		return nil, err
	}
	if folio.Status != domain.FolioOpen {
		return nil, domain.State(domain.CodeFolioNotOpen, "folio is not open")
	}

	p, err := adj.plan(ctx, s, actor, folio)
	if err != nil {
		return nil, err
	}
	if p.referenceID == nil {
		p.referenceID = &folio.ID
	}
	approved := p.approved
	if err := s.Approvals.Require(ctx, actor, ConsumeInput{
		Token:           token,
		ActionType:      adj.Action(),
		ActionReference: &folio.ID,
		Amount:          &approved,
	}); err != nil {
		return nil, err
	}

	res, err := s.Ledger.post(ctx, actor, p.kind, PostInput{
		FolioID:       folio.ID,
		Amount:        p.amount,
		Description:   p.description,
		ReferenceType: ptr(domain.RefFolioAdjustment),
		ReferenceID:   p.referenceID,
	})
	if err != nil {
		if s.Logger != nil {
			s.Logger.Error("approved adjustment not posted", "folio_id", folio.ID, "action", adj.Action(), "err", err)
		}
		return nil, err
	}

	if err := s.Audit.Record(ctx, actor, "folios", folio.ID, domain.AuditUpdate, folio, res.Folio); err != nil {
		s.Side.Failed(ctx, actor.TenantID, "audit_log", "folios/"+folio.ID, err, map[string]any{"folio_id": folio.ID})
	}
	return &AdjustmentResult{Action: adj.Action(), PostResult: *res}, nil
}
