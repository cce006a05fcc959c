package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/waspershola/hospitech-nexus-sub005/internal/service"
)

type GroupHandler struct {
	Service service.GroupService
	Logger  *slog.Logger
}

func (h GroupHandler) RegisterRoutes(r chi.Router) {
	r.Post("/group-folios", h.create)
	r.Get("/group-folios/by-group/{groupID}", h.byGroup)
	r.Post("/group-folios/{id}/children", h.linkChild)
	r.Post("/group-folios/{id}/sync", h.sync)
}

func (h GroupHandler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	var req struct {
		GroupID         string  `json:"group_id" validate:"required"`
		MasterBookingID string  `json:"master_booking_id" validate:"required"`
		GuestID         *string `json:"guest_id"`
		GroupName       string  `json:"group_name"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, h.Logger, err)
		return
	}
	folio, existing, err := h.Service.CreateOrGetMasterFolio(r.Context(), actor, service.MasterFolioInput{
		GroupID:         req.GroupID,
		MasterBookingID: req.MasterBookingID,
		GuestID:         req.GuestID,
		GroupName:       req.GroupName,
	})
	if err != nil {
		writeDomainError(w, h.Logger, err)
		return
	}
	status := http.StatusCreated
	if existing {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{"folio": folio, "existing": existing})
}

func (h GroupHandler) byGroup(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	folio, err := h.Service.MasterForGroup(r.Context(), actor, chi.URLParam(r, "groupID"))
	if err != nil {
		writeDomainError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, folio)
}

func (h GroupHandler) linkChild(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	var req struct {
		ChildFolioID string `json:"child_folio_id" validate:"required"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, h.Logger, err)
		return
	}
	child, err := h.Service.LinkChild(r.Context(), actor, req.ChildFolioID, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, child)
}

func (h GroupHandler) sync(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	master, err := h.Service.SyncMasterTotals(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, master)
}
