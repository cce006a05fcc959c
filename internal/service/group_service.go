package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/waspershola/hospitech-nexus-sub005/internal/domain"
	"github.com/waspershola/hospitech-nexus-sub005/internal/ports"
)

// GroupService links room folios of a multi-room booking to a shared master folio.
// Master totals are always recomputed in full from the children.
type GroupService struct {
	Folios   ports.FolioStore
	Groups   ports.GroupStore
	Audit    AuditRecorder
	Logger   *slog.Logger
	Currency string
}

type MasterFolioInput struct {
	GroupID         string
	MasterBookingID string
	GuestID         *string
	GroupName       string
}

// CreateOrGetMasterFolio returns the group's master folio, creating it on first use.
// existing is true when the folio was already there.
func (s GroupService) CreateOrGetMasterFolio(ctx context.Context, actor domain.Actor, in MasterFolioInput) (folio *domain.Folio, existing bool, err error) {
	in.GroupID = strings.TrimSpace(in.GroupID)
	if in.GroupID == "" {
		return nil, false, domain.Validation("group_id is required")
	}
	if in.MasterBookingID == "" {
		return nil, false, domain.Validation("master_booking_id is required")
	}

	if f, err := s.Groups.MasterFolioByGroup(ctx, actor.TenantID, in.GroupID); err == nil {
		return f, true, nil
	} else if !errors.Is(err, ports.ErrNotFound) {
		return nil, false, domain.External("get master folio", err)
	}

	number, err := s.Folios.NextFolioNumber(ctx, actor.TenantID)
	if err != nil {
		return nil, false, domain.External("generate folio number", err)
	}
	f, created, err := s.Groups.CreateMasterFolio(ctx, ports.NewMasterFolio{
		TenantID:        actor.TenantID,
		GroupID:         in.GroupID,
		MasterBookingID: in.MasterBookingID,
		GuestID:         in.GuestID,
		GroupName:       in.GroupName,
		FolioNumber:     number,
		Currency:        s.Currency,
	})
	if err != nil {
		return nil, false, domain.External("create master folio", err)
	}
	if created {
		if err := s.Audit.Record(ctx, actor, "folios", f.ID, domain.AuditCreate, nil, f); err != nil && s.Logger != nil {
			s.Logger.Error("audit write failed", "table", "folios", "record_id", f.ID, "err", err)
		}
	}
	return f, !created, nil
}

// LinkChild points a room folio at a master folio. Balances are not moved.
func (s GroupService) LinkChild(ctx context.Context, actor domain.Actor, childFolioID, masterFolioID string) (*domain.Folio, error) {
	if childFolioID == "" || masterFolioID == "" {
		return nil, domain.Validation("child_folio_id and master_folio_id are required")
	}
	if childFolioID == masterFolioID {
		return nil, domain.Validation("a folio cannot be its own master")
	}
	child, err := s.Folios.GetFolio(ctx, actor.TenantID, childFolioID)
	if err != nil {
		return nil, storeErr("get child folio", domain.CodeFolioNotFound, err)
	}
	master, err := s.Folios.GetFolio(ctx, actor.TenantID, masterFolioID)
	if err != nil {
		return nil, storeErr("get master folio", domain.CodeGroupNotFound, err)
	}
	if master.Kind != domain.FolioMaster {
		return nil, domain.Validation("target folio is not a master folio")
	}
	if child.Kind != domain.FolioRoom {
		return nil, domain.Validation("only room folios can be linked to a master")
	}
	if child.ParentFolioID != nil {
		if *child.ParentFolioID == master.ID {
			return child, nil
		}
		return nil, domain.Conflict(domain.CodeDuplicateFolio, "folio is already linked to another master").
			With("parent_folio_id", *child.ParentFolioID)
	}

	linked, err := s.Groups.LinkChild(ctx, actor.TenantID, child.ID, master.ID)
	if err != nil {
		return nil, storeErr("link child folio", domain.CodeFolioNotFound, err)
	}
	if err := s.Audit.Record(ctx, actor, "folios", child.ID, domain.AuditUpdate,
		map[string]any{"parent_folio_id": nil}, map[string]any{"parent_folio_id": master.ID}); err != nil && s.Logger != nil {
		s.Logger.Error("audit write failed", "table", "folios", "record_id", child.ID, "err", err)
	}
	return linked, nil
}

// SyncMasterTotals recomputes the master's totals from its children and direct postings.
func (s GroupService) SyncMasterTotals(ctx context.Context, actor domain.Actor, masterFolioID string) (*domain.Folio, error) {
	master, err := s.Folios.GetFolio(ctx, actor.TenantID, masterFolioID)
	if err != nil {
		return nil, storeErr("get master folio", domain.CodeGroupNotFound, err)
	}
	if master.Kind != domain.FolioMaster {
		return nil, domain.Validation("folio is not a master folio")
	}
	synced, err := s.Groups.SyncMasterTotals(ctx, actor.TenantID, masterFolioID)
	if err != nil {
		return nil, storeErr("sync master folio totals", domain.CodeGroupNotFound, err)
	}
	return synced, nil
}

// MasterForGroup looks up the master folio of a group.
func (s GroupService) MasterForGroup(ctx context.Context, actor domain.Actor, groupID string) (*domain.Folio, error) {
	f, err := s.Groups.MasterFolioByGroup(ctx, actor.TenantID, groupID)
	if err != nil {
		return nil, storeErr("get master folio", domain.CodeGroupNotFound, err)
	}
	return f, nil
}
