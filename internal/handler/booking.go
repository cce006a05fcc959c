package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/waspershola/hospitech-nexus-sub005/internal/domain"
	"github.com/waspershola/hospitech-nexus-sub005/internal/service"
)

// BookingHandler exposes the front-desk operations that move money on a folio.
type BookingHandler struct {
	Service service.BookingService
	Logger  *slog.Logger
}

func (h BookingHandler) RegisterRoutes(r chi.Router) {
	r.Post("/checkin-guest", h.checkIn)
	r.Post("/amend-booking", h.amend)
	r.Post("/extend-stay", h.extend)
	r.Post("/cancel-booking", h.cancel)
}

func (h BookingHandler) checkIn(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	var req struct {
		BookingID string `json:"booking_id" validate:"required"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, h.Logger, err)
		return
	}
	res, err := h.Service.CheckIn(r.Context(), actor, req.BookingID)
	if err != nil {
		writeDomainError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"folio":        res.Folio,
		"existing":     res.Existing,
		"side_effects": sideEffects(res.SideEffects),
	})
}

func (h BookingHandler) amend(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	var req struct {
		BookingID       string  `json:"booking_id" validate:"required"`
		CheckIn         string  `json:"check_in"`
		CheckOut        string  `json:"check_out"`
		RoomID          *string `json:"room_id"`
		RateOverride    *int64  `json:"rate_override" validate:"omitempty,gt=0"`
		ApprovalToken   string  `json:"approval_token"`
		AmendmentReason string  `json:"amendment_reason" validate:"required"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, h.Logger, err)
		return
	}
	checkIn, err := parseOptionalDate("check_in", req.CheckIn)
	if err != nil {
		writeDomainError(w, h.Logger, err)
		return
	}
	checkOut, err := parseOptionalDate("check_out", req.CheckOut)
	if err != nil {
		writeDomainError(w, h.Logger, err)
		return
	}
	res, err := h.Service.Amend(r.Context(), actor, service.AmendInput{
		BookingID:     req.BookingID,
		CheckIn:       checkIn,
		CheckOut:      checkOut,
		RoomID:        req.RoomID,
		RateOverride:  req.RateOverride,
		ApprovalToken: req.ApprovalToken,
		Reason:        req.AmendmentReason,
	})
	if err != nil {
		writeDomainError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"price_difference": res.PriceDifference,
		"folio_adjusted":   res.FolioAdjusted,
		"new_total_amount": res.NewTotalAmount,
		"booking":          res.Booking,
		"side_effects":     sideEffects(res.SideEffects),
	})
}

func (h BookingHandler) extend(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	var req struct {
		BookingID   string `json:"booking_id" validate:"required"`
		NewCheckout string `json:"new_checkout" validate:"required"`
		Reason      string `json:"reason" validate:"required"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, h.Logger, err)
		return
	}
	checkout, err := parseOptionalDate("new_checkout", req.NewCheckout)
	if err == nil && checkout == nil {
		err = domain.Validation("new_checkout is required")
	}
	if err != nil {
		writeDomainError(w, h.Logger, err)
		return
	}
	res, err := h.Service.Extend(r.Context(), actor, service.ExtendInput{
		BookingID:   req.BookingID,
		NewCheckout: *checkout,
		Reason:      req.Reason,
	})
	if err != nil {
		writeDomainError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":            true,
		"additional_nights":  res.AdditionalNights,
		"additional_charges": res.AdditionalCharges,
		"new_total_amount":   res.NewTotalAmount,
		"ledger_entry_id":    res.LedgerEntryID,
		"side_effects":       sideEffects(res.SideEffects),
	})
}

func (h BookingHandler) cancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	var req struct {
		BookingID     string `json:"booking_id" validate:"required"`
		ForceCancel   bool   `json:"force_cancel"`
		ApprovalToken string `json:"approval_token"`
		Reason        string `json:"reason"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, h.Logger, err)
		return
	}
	res, err := h.Service.Cancel(r.Context(), actor, service.CancelInput{
		BookingID:     req.BookingID,
		ForceCancel:   req.ForceCancel,
		ApprovalToken: req.ApprovalToken,
		Reason:        req.Reason,
	})
	if err != nil {
		writeDomainError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":              true,
		"folio_status":         res.FolioStatus,
		"platform_fees_waived": res.PlatformFeesWaived,
		"side_effects":         sideEffects(res.SideEffects),
	})
}

// sideEffects keeps the field an array in JSON even when nothing failed.
func sideEffects(in []service.SideEffect) []service.SideEffect {
	if in == nil {
		return []service.SideEffect{}
	}
	return in
}

// parseOptionalDate accepts YYYY-MM-DD or RFC 3339. An empty value yields nil.
func parseOptionalDate(field, raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, domain.Validation(field + " must be a date (YYYY-MM-DD)")
	}
	return &t, nil
}
