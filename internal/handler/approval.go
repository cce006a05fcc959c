package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/waspershola/hospitech-nexus-sub005/internal/domain"
	"github.com/waspershola/hospitech-nexus-sub005/internal/service"
)

type ApprovalHandler struct {
	Service service.ApprovalService
	Logger  *slog.Logger
}

// RegisterRoutes mounts PIN validation, which any signed-in staff member may call.
func (h ApprovalHandler) RegisterRoutes(r chi.Router) {
	r.Post("/validate-manager-pin", h.validatePin)
}

// RegisterAdminRoutes mounts PIN and token management for approver roles.
func (h ApprovalHandler) RegisterAdminRoutes(r chi.Router) {
	r.Post("/staff/manager-pin", h.setPin)
	r.Post("/approval-tokens/clear", h.clearTokens)
	r.Get("/approval-logs", h.logs)
}

func (h ApprovalHandler) validatePin(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	var req struct {
		Pin             string  `json:"pin" validate:"required"`
		ActionType      string  `json:"action_type" validate:"required"`
		ActionReference *string `json:"action_reference"`
		Amount          *int64  `json:"amount"`
		Reason          string  `json:"reason" validate:"required"`
	}
	if err := decodeBody(r, &req); err != nil {
		writePinFailure(w, h.Logger, err)
		return
	}
	approval, err := h.Service.Validate(r.Context(), actor, service.ValidatePinInput{
		Pin:             req.Pin,
		ActionType:      req.ActionType,
		ActionReference: req.ActionReference,
		Amount:          req.Amount,
		Reason:          req.Reason,
	})
	if err != nil {
		writePinFailure(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":          true,
		"approval_token": approval.Token,
		"expires_at":     approval.ExpiresAt.UTC().Format(time.RFC3339),
		"action_type":    string(approval.ActionType),
		"approver": map[string]any{
			"id":   approval.ApproverID,
			"name": approval.ApproverName,
			"role": string(approval.ApproverRole),
		},
	})
}

// writePinFailure answers {valid:false, error, message} with the lockout details when present.
func writePinFailure(w http.ResponseWriter, logger *slog.Logger, err error) {
	de, ok := domain.AsError(err)
	if !ok || de.Kind == domain.KindExternal {
		writeDomainError(w, logger, err)
		return
	}
	body := errorBody(de.Code, de.Message, de.Details)
	body["valid"] = false
	status := statusFor(de)
	writeRawJSON(w, status, apiResponse{
		Status:  "error",
		Message: de.Message,
		Data:    body,
		Error: &apiError{
			Code:   status,
			Status: http.StatusText(status),
			Kind:   string(de.Kind),
			Reason: de.Code,
		},
	})
}

func (h ApprovalHandler) setPin(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	var req struct {
		Pin string `json:"pin" validate:"required,numeric,min=4,max=8"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, h.Logger, err)
		return
	}
	if err := h.Service.SetManagerPin(r.Context(), actor, req.Pin); err != nil {
		writeDomainError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h ApprovalHandler) clearTokens(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	n, err := h.Service.Clear(r.Context(), actor)
	if err != nil {
		writeDomainError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "cleared": n})
}

func (h ApprovalHandler) logs(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	items, err := h.Service.Logs(r.Context(), actor, limit)
	if err != nil {
		writeDomainError(w, h.Logger, err)
		return
	}
	resp := make([]map[string]any, 0, len(items))
	for _, l := range items {
		item := map[string]any{
			"id":               l.ID,
			"user_id":          l.UserID,
			"action_type":      string(l.ActionType),
			"action_reference": l.ActionReference,
			"amount":           l.Amount,
			"reason":           l.Reason,
			"success":          l.Success,
			"timestamp":        l.CreatedAt.UTC().Format(time.RFC3339),
		}
		if l.ErrorCode != "" {
			item["error_code"] = l.ErrorCode
		}
		if l.AttemptsRemaining != nil {
			item["attempts_remaining"] = *l.AttemptsRemaining
		}
		resp = append(resp, item)
	}
	writeJSON(w, http.StatusOK, resp)
}
