package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/waspershola/hospitech-nexus-sub005/internal/ports"
	"github.com/waspershola/hospitech-nexus-sub005/internal/service"
)

type AuditLogHandler struct {
	Audit  service.AuditRecorder
	Logger *slog.Logger
}

func (h AuditLogHandler) RegisterRoutes(r chi.Router) {
	r.Get("/audit-logs", h.list)
}

func (h AuditLogHandler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	limit := 100
	if raw := q.Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	items, err := h.Audit.List(r.Context(), actor, ports.AuditFilter{
		TableName: q.Get("table"),
		RecordID:  q.Get("record_id"),
		Limit:     limit,
	})
	if err != nil {
		writeDomainError(w, h.Logger, err)
		return
	}
	resp := make([]map[string]any, 0, len(items))
	for _, e := range items {
		resp = append(resp, map[string]any{
			"id":         e.ID,
			"table_name": e.TableName,
			"record_id":  e.RecordID,
			"action":     e.Action,
			"user_id":    e.UserID,
			"before":     e.Before,
			"after":      e.After,
			"prev_hash":  e.PrevHash,
			"hash":       e.Hash,
			"timestamp":  e.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
