package handler

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/xuri/excelize/v2"

	"github.com/waspershola/hospitech-nexus-sub005/internal/domain"
	"github.com/waspershola/hospitech-nexus-sub005/internal/service"
)

// FolioHandler serves folio reads, direct postings and approval-gated adjustments.
type FolioHandler struct {
	Ledger      service.LedgerService
	Adjustments service.AdjustmentService
	Logger      *slog.Logger
}

func (h FolioHandler) RegisterRoutes(r chi.Router) {
	r.Get("/folios/{id}", h.get)
	r.Get("/folios/{id}/entries", h.entries)
	r.Get("/folios/{id}/statement", h.statement)
	r.Post("/folios/{id}/charges", h.postCharge)
	r.Post("/folios/{id}/payments", h.postPayment)
}

// RegisterAdjustmentRoutes mounts adjustments; the approval token is still checked per request.
func (h FolioHandler) RegisterAdjustmentRoutes(r chi.Router) {
	r.Post("/folios/{id}/adjustments", h.adjust)
}

func (h FolioHandler) get(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	f, err := h.Ledger.GetFolio(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (h FolioHandler) entries(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	_, entries, err := h.Ledger.Statement(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, h.Logger, err)
		return
	}
	if entries == nil {
		entries = []domain.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

type postRequest struct {
	Amount        int64   `json:"amount" validate:"required"`
	Description   string  `json:"description" validate:"required"`
	ReferenceType *string `json:"reference_type"`
	ReferenceID   *string `json:"reference_id"`
	Department    *string `json:"department"`
}

func (h FolioHandler) postCharge(w http.ResponseWriter, r *http.Request) {
	h.post(w, r, h.Ledger.PostCharge)
}

func (h FolioHandler) postPayment(w http.ResponseWriter, r *http.Request) {
	h.post(w, r, h.Ledger.PostPayment)
}

func (h FolioHandler) post(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, actor domain.Actor, in service.PostInput) (*service.PostResult, error)) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	var req postRequest
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, h.Logger, err)
		return
	}
	res, err := fn(r.Context(), actor, service.PostInput{
		FolioID:       chi.URLParam(r, "id"),
		Amount:        req.Amount,
		Description:   req.Description,
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
		Department:    req.Department,
	})
	if err != nil {
		writeDomainError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"entry_id": res.EntryID,
		"balance":  res.Balance,
		"entry":    res.Entry,
		"folio":    res.Folio,
	})
}

// adjustmentRequest is the wire form of every adjustment; action_type picks the variant.
type adjustmentRequest struct {
	ActionType    string `json:"action_type" validate:"required"`
	ApprovalToken string `json:"approval_token"`
	Amount        int64  `json:"amount" validate:"gte=0"`
	EntryID       string `json:"entry_id"`
	Method        string `json:"method"`
	Reason        string `json:"reason" validate:"required"`
}

// toAdjustment decodes the request into its typed variant.
func (req adjustmentRequest) toAdjustment() (service.Adjustment, error) {
	action, err := domain.ParseActionType(req.ActionType)
	if err != nil {
		return nil, err
	}
	needAmount := func() error {
		if req.Amount <= 0 {
			return domain.Validation("amount must be greater than zero")
		}
		return nil
	}
	switch action {
	case domain.ActionWriteOff:
		return service.WriteOff{Amount: req.Amount, Reason: req.Reason}, needAmount()
	case domain.ActionRebate:
		return service.Rebate{Amount: req.Amount, Reason: req.Reason}, needAmount()
	case domain.ActionRefund:
		return service.Refund{Amount: req.Amount, Reason: req.Reason}, needAmount()
	case domain.ActionOverpayment:
		return service.Overpayment{Amount: req.Amount, Method: req.Method, Reason: req.Reason}, needAmount()
	case domain.ActionUnderpayment:
		return service.Underpayment{Amount: req.Amount, Method: req.Method, Reason: req.Reason}, needAmount()
	case domain.ActionReverseTransaction:
		if req.EntryID == "" {
			return nil, domain.Validation("entry_id is required")
		}
		return service.ReverseTransaction{EntryID: req.EntryID, Reason: req.Reason}, nil
	}
	return nil, domain.NewError(domain.KindValidation, domain.CodeInvalidActionType,
		"action_type "+string(action)+" is not a folio adjustment")
}

func (h FolioHandler) adjust(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	var req adjustmentRequest
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, h.Logger, err)
		return
	}
	adj, err := req.toAdjustment()
	if err != nil {
		writeDomainError(w, h.Logger, err)
		return
	}
	res, err := h.Adjustments.Apply(r.Context(), actor, chi.URLParam(r, "id"), req.ApprovalToken, adj)
	if err != nil {
		writeDomainError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"action_type": string(res.Action),
		"entry_id":    res.EntryID,
		"balance":     res.Balance,
		"entry":       res.Entry,
	})
}

func (h FolioHandler) statement(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	folio, entries, err := h.Ledger.Statement(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, h.Logger, err)
		return
	}
	lines := statementLines(entries)
	filename := fmt.Sprintf("statement_%s_%s", folio.FolioNumber, time.Now().Format("20060102_150405"))

	switch format {
	case "json":
		writeJSON(w, http.StatusOK, map[string]any{"folio": folio, "lines": lines})
	case "csv":
		data, err := exportStatementCSV(folio, lines)
		if err != nil {
			writeDomainError(w, h.Logger, domain.External("export statement", err))
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.csv\"", filename))
		_, _ = w.Write(data)
	case "xlsx", "excel":
		data, err := exportStatementXLSX(folio, lines)
		if err != nil {
			writeDomainError(w, h.Logger, domain.External("export statement", err))
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.xlsx\"", filename))
		_, _ = w.Write(data)
	default:
		writeError(w, http.StatusBadRequest, "invalid format (use json, csv or xlsx)")
	}
}

type statementLine struct {
	Date        time.Time `json:"date"`
	Kind        string    `json:"kind"`
	Description string    `json:"description"`
	Reference   string    `json:"reference"`
	Debit       int64     `json:"debit"`
	Credit      int64     `json:"credit"`
	Balance     int64     `json:"balance"`
}

// statementLines puts charges in the debit column and credits and payments in the credit column,
// carrying a running balance.
func statementLines(entries []domain.LedgerEntry) []statementLine {
	out := make([]statementLine, 0, len(entries))
	var balance int64
	for _, e := range entries {
		l := statementLine{
			Date:        e.CreatedAt,
			Kind:        string(e.Kind),
			Description: e.Description,
			Reference:   derefString(e.ReferenceType),
		}
		switch {
		case e.Kind == domain.EntryPayment:
			l.Credit = e.Amount
			balance -= e.Amount
		case e.Amount < 0:
			l.Credit = -e.Amount
			balance += e.Amount
		default:
			l.Debit = e.Amount
			balance += e.Amount
		}
		l.Balance = balance
		out = append(out, l)
	}
	return out
}

func exportStatementCSV(f *domain.Folio, lines []statementLine) ([]byte, error) {
	buf := new(bytes.Buffer)
	w := csv.NewWriter(buf)
	_ = w.Write([]string{"folio", f.FolioNumber, "currency", f.Currency})
	_ = w.Write([]string{"date", "kind", "description", "reference", "debit", "credit", "balance"})
	for _, l := range lines {
		_ = w.Write([]string{
			l.Date.Format("2006-01-02 15:04"),
			l.Kind,
			l.Description,
			l.Reference,
			strconv.FormatInt(l.Debit, 10),
			strconv.FormatInt(l.Credit, 10),
			strconv.FormatInt(l.Balance, 10),
		})
	}
	_ = w.Write([]string{"total_charges", strconv.FormatInt(f.TotalCharges, 10),
		"total_payments", strconv.FormatInt(f.TotalPayments, 10),
		"balance", strconv.FormatInt(f.Balance, 10)})
	w.Flush()
	return buf.Bytes(), w.Error()
}

func exportStatementXLSX(f *domain.Folio, lines []statementLine) ([]byte, error) {
	x := excelize.NewFile()
	defer x.Close()
	sheet := "Statement"
	index, err := x.NewSheet(sheet)
	if err != nil {
		return nil, err
	}
	x.DeleteSheet("Sheet1")
	x.SetActiveSheet(index)

	_ = x.SetCellValue(sheet, "A1", "Folio")
	_ = x.SetCellValue(sheet, "B1", f.FolioNumber)
	_ = x.SetCellValue(sheet, "C1", "Currency")
	_ = x.SetCellValue(sheet, "D1", f.Currency)

	header := []string{"Date", "Kind", "Description", "Reference", "Debit", "Credit", "Balance"}
	for c, v := range header {
		cell, _ := excelize.CoordinatesToCellName(c+1, 3)
		_ = x.SetCellValue(sheet, cell, v)
	}
	for i, l := range lines {
		row := i + 4
		values := []any{l.Date.Format("2006-01-02 15:04"), l.Kind, l.Description, l.Reference, l.Debit, l.Credit, l.Balance}
		for c, v := range values {
			cell, _ := excelize.CoordinatesToCellName(c+1, row)
			_ = x.SetCellValue(sheet, cell, v)
		}
	}
	total := len(lines) + 5
	_ = x.SetCellValue(sheet, fmt.Sprintf("D%d", total), "Balance")
	_ = x.SetCellValue(sheet, fmt.Sprintf("G%d", total), f.Balance)

	_ = x.SetColWidth(sheet, "A", "A", 18)
	_ = x.SetColWidth(sheet, "B", "B", 10)
	_ = x.SetColWidth(sheet, "C", "C", 36)
	_ = x.SetColWidth(sheet, "D", "D", 24)
	_ = x.SetColWidth(sheet, "E", "G", 14)

	style, _ := x.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#1F2937"}, Pattern: 1},
	})
	_ = x.SetCellStyle(sheet, "A3", "G3", style)

	buf, err := x.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
