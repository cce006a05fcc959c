package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/waspershola/hospitech-nexus-sub005/internal/domain"
	"github.com/waspershola/hospitech-nexus-sub005/internal/events"
	"github.com/waspershola/hospitech-nexus-sub005/internal/ports"
)

// BookingService runs the front-desk use cases that move money: check-in, amend, extend and cancel.
// Each store call is atomic on its own; the gaps between calls are covered by compensating
// postings or reported as side effects.
type BookingService struct {
	Bookings  ports.BookingStore
	Folios    ports.FolioStore
	Fees      ports.PlatformFeeStore
	Ledger    LedgerService
	Groups    GroupService
	Approvals ApprovalService
	Audit     AuditRecorder
	Side      SideChannel
	Logger    *slog.Logger
	Currency  string
	Now       func() time.Time
}

type CheckInResult struct {
	Folio       domain.Folio
	Existing    bool
	SideEffects []SideEffect
}

// CheckIn opens the room folio for a booking and marks it checked in.
// Calling it again for the same booking returns the open folio unchanged.
func (s BookingService) CheckIn(ctx context.Context, actor domain.Actor, bookingID string) (*CheckInResult, error) {
	if bookingID == "" {
		return nil, domain.Validation("booking_id is required")
	}
	b, err := s.getBooking(ctx, actor, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Status != domain.BookingReserved && b.Status != domain.BookingCheckedIn {
		return nil, invalidStatus(b, "check in")
	}

	existing, err := s.openFolio(ctx, actor, b.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return s.existingCheckIn(ctx, actor, b, existing)
	}

	number, err := s.Folios.NextFolioNumber(ctx, actor.TenantID)
	if err != nil {
		return nil, domain.External("generate folio number", err)
	}
	meta := map[string]any{"room_id": b.RoomID}
	if b.GuestID != nil {
		meta["guest_id"] = *b.GuestID
	}
	folio, err := s.Folios.CreateFolio(ctx, domain.Folio{
		TenantID:    actor.TenantID,
		BookingID:   &b.ID,
		FolioNumber: number,
		Kind:        domain.FolioRoom,
		Status:      domain.FolioOpen,
		Currency:    s.Currency,
		Metadata:    meta,
	})
	if err != nil {
		if errors.Is(err, ports.ErrDuplicate) {
			// A concurrent check-in created the folio first.
			if f, ferr := s.openFolio(ctx, actor, b.ID); ferr == nil && f != nil {
				return s.existingCheckIn(ctx, actor, b, f)
			}
		}
		return nil, domain.External("create folio", err)
	}

	var effects []SideEffect
	if b.TotalAmount != 0 {
		_, err := s.Ledger.PostCharge(ctx, actor, PostInput{
			FolioID:       folio.ID,
			Amount:        b.TotalAmount,
			Description:   fmt.Sprintf("Room charge (%d night(s))", b.Nights()),
			ReferenceType: ptr(domain.RefRoomCharge),
			ReferenceID:   &b.ID,
			Department:    ptr("rooms"),
		})
		if err != nil {
			s.discardFolio(ctx, actor, folio, nil)
			return nil, err
		}
	}

	var masterID string
	if b.Metadata.GroupID != nil && *b.Metadata.GroupID != "" {
		masterID, effects = s.joinGroup(ctx, actor, *b.Metadata.GroupID, folio.ID, effects)
	}

	if _, err := s.Folios.AttachBookingPayments(ctx, actor.TenantID, b.ID, folio.ID, strPtr(actor.UserID)); err != nil {
		effects = append(effects, s.Side.Failed(ctx, actor.TenantID, "attach_booking_payments", folio.ID, err,
			map[string]any{"booking_id": b.ID, "folio_id": folio.ID}))
	}

	if err := s.Bookings.SetBookingStatus(ctx, actor.TenantID, b.ID, domain.BookingCheckedIn); err != nil {
		if s.Logger != nil {
			s.Logger.Error("check-in status update failed, removing folio", "booking_id", b.ID, "folio_id", folio.ID, "err", err)
		}
		s.discardFolio(ctx, actor, folio, &masterID)
		return nil, domain.External("update booking status", err)
	}

	final, err := s.Folios.GetFolio(ctx, actor.TenantID, folio.ID)
	if err != nil {
		final = folio
	}
	s.audit(ctx, actor, "folios", final.ID, domain.AuditCreate, nil, final)
	s.audit(ctx, actor, "bookings", b.ID, domain.AuditUpdate,
		map[string]any{"status": b.Status}, map[string]any{"status": domain.BookingCheckedIn})

	return &CheckInResult{Folio: *final, SideEffects: effects}, nil
}

func (s BookingService) existingCheckIn(ctx context.Context, actor domain.Actor, b *domain.Booking, f *domain.Folio) (*CheckInResult, error) {
	if b.Status != domain.BookingCheckedIn {
		if err := s.Bookings.SetBookingStatus(ctx, actor.TenantID, b.ID, domain.BookingCheckedIn); err != nil {
			return nil, domain.External("correct booking status", err)
		}
		s.audit(ctx, actor, "bookings", b.ID, domain.AuditUpdate,
			map[string]any{"status": b.Status}, map[string]any{"status": domain.BookingCheckedIn})
	}
	return &CheckInResult{Folio: *f, Existing: true}, nil
}

func (s BookingService) joinGroup(ctx context.Context, actor domain.Actor, groupID, folioID string, effects []SideEffect) (string, []SideEffect) {
	master, err := s.Groups.Groups.MasterFolioByGroup(ctx, actor.TenantID, groupID)
	if err != nil {
		if !errors.Is(err, ports.ErrNotFound) {
			effects = append(effects, s.Side.Failed(ctx, actor.TenantID, "group_link", folioID, err,
				map[string]any{"group_id": groupID, "folio_id": folioID}))
		}
		return "", effects
	}
	if _, err := s.Groups.LinkChild(ctx, actor, folioID, master.ID); err != nil {
		return "", append(effects, s.Side.Failed(ctx, actor.TenantID, "group_link", folioID, err,
			map[string]any{"group_id": groupID, "folio_id": folioID, "master_folio_id": master.ID}))
	}
	if _, err := s.Groups.SyncMasterTotals(ctx, actor, master.ID); err != nil {
		effects = append(effects, s.Side.Failed(ctx, actor.TenantID, "group_sync", master.ID, err,
			map[string]any{"group_id": groupID, "master_folio_id": master.ID}))
	}
	return master.ID, effects
}

// discardFolio removes a folio created by a check-in that could not complete.
func (s BookingService) discardFolio(ctx context.Context, actor domain.Actor, folio *domain.Folio, masterID *string) {
	if err := s.Folios.DeleteFolio(ctx, actor.TenantID, folio.ID); err != nil {
		s.Side.Failed(ctx, actor.TenantID, "delete_orphan_folio", folio.ID, err,
			map[string]any{"folio_id": folio.ID, "booking_id": folio.BookingID})
		return
	}
	if masterID != nil && *masterID != "" {
		if _, err := s.Groups.Groups.SyncMasterTotals(ctx, actor.TenantID, *masterID); err != nil {
			s.Side.Failed(ctx, actor.TenantID, "group_sync", *masterID, err, map[string]any{"master_folio_id": *masterID})
		}
	}
}

type AmendInput struct {
	BookingID     string
	CheckIn       *time.Time
	CheckOut      *time.Time
	RoomID        *string
	RateOverride  *int64
	ApprovalToken string
	Reason        string
}

type AmendResult struct {
	Booking         domain.Booking
	PriceDifference int64
	FolioAdjusted   bool
	NewTotalAmount  int64
	SideEffects     []SideEffect
}

// Amend changes dates, room or rate and re-prices the stay. For checked-in guests the
// price difference is posted to the open folio as one adjustment.
func (s BookingService) Amend(ctx context.Context, actor domain.Actor, in AmendInput) (*AmendResult, error) {
	in.Reason = strings.TrimSpace(in.Reason)
	if in.BookingID == "" {
		return nil, domain.Validation("booking_id is required")
	}
	if in.Reason == "" {
		return nil, domain.Validation("amendment_reason is required")
	}
	if in.RateOverride != nil && *in.RateOverride <= 0 {
		return nil, domain.Validation("rate_override must be positive")
	}

	b, err := s.getBooking(ctx, actor, in.BookingID)
	if err != nil {
		return nil, err
	}
	if b.Status != domain.BookingReserved && b.Status != domain.BookingCheckedIn {
		return nil, invalidStatus(b, "amend")
	}

	newIn, newOut := b.CheckIn, b.CheckOut
	if in.CheckIn != nil {
		newIn = *in.CheckIn
	}
	if in.CheckOut != nil {
		newOut = *in.CheckOut
	}
	nights := domain.NightsBetween(newIn, newOut)
	if nights < 1 {
		return nil, domain.Validation("check_out must be after check_in")
	}

	roomChanged := in.RoomID != nil && *in.RoomID != "" && *in.RoomID != b.RoomID
	newRoomID := b.RoomID
	var targetRoom *domain.Room
	if roomChanged {
		newRoomID = *in.RoomID
		targetRoom, err = s.getRoom(ctx, actor, newRoomID)
		if err != nil {
			return nil, err
		}
		conflict, err := s.Bookings.RoomConflicts(ctx, actor.TenantID, newRoomID, b.ID, newIn, newOut)
		if err != nil {
			return nil, domain.External("check room availability", err)
		}
		if conflict {
			return nil, domain.Conflict(domain.CodeRoomConflict, "target room is already booked for these dates").
				With("room_id", newRoomID)
		}
	}

	var rate int64
	switch {
	case in.RateOverride != nil:
		rate = *in.RateOverride
	case roomChanged:
		rate = targetRoom.Rate
	default:
		rate, err = s.nightlyRate(ctx, actor, b)
		if err != nil {
			return nil, err
		}
	}

	var folio *domain.Folio
	if b.Status == domain.BookingCheckedIn {
		folio, err = s.requireOpenFolio(ctx, actor, b.ID)
		if err != nil {
			return nil, err
		}
	}

	// An override on an in-house stay moves money on the folio and always needs a manager.
	if in.RateOverride != nil && (in.ApprovalToken != "" || folio != nil) {
		if err := s.Approvals.Require(ctx, actor, ConsumeInput{
			Token:           in.ApprovalToken,
			ActionType:      domain.ActionManualRateOverride,
			ActionReference: &b.ID,
			Amount:          in.RateOverride,
		}); err != nil {
			return nil, err
		}
	}

	newTotal := int64(nights) * rate
	diff := newTotal - b.TotalAmount

	var posted *PostResult
	if folio != nil {
		if diff != 0 {
			posted, err = s.Ledger.PostCharge(ctx, actor, PostInput{
				FolioID:       folio.ID,
				Amount:        diff,
				Description:   "Booking amendment: " + in.Reason,
				ReferenceType: ptr(domain.RefBookingAmendment),
				ReferenceID:   &b.ID,
				Department:    ptr("rooms"),
			})
			if err != nil {
				return nil, err
			}
		}
	}

	updated := *b
	updated.CheckIn = newIn
	updated.CheckOut = newOut
	updated.RoomID = newRoomID
	updated.NightlyRate = rate
	updated.TotalAmount = newTotal
	updated.Metadata.Amendments = append(append([]domain.Amendment(nil), b.Metadata.Amendments...), domain.Amendment{
		AmendedAt:        nowOr(s.Now).UTC(),
		AmendedBy:        actor.UserID,
		Reason:           in.Reason,
		PreviousCheckIn:  b.CheckIn,
		PreviousCheckOut: b.CheckOut,
		PreviousRoomID:   b.RoomID,
		PreviousTotal:    b.TotalAmount,
		NewCheckIn:       newIn,
		NewCheckOut:      newOut,
		NewRoomID:        newRoomID,
		NewTotal:         newTotal,
		EffectiveRate:    rate,
		PriceDifference:  diff,
	})

	saved, err := s.Bookings.UpdateBooking(ctx, updated)
	if err != nil {
		var effects []SideEffect
		if posted != nil {
			effects = s.reverse(ctx, actor, posted.Entry, domain.RefBookingAmendReversal, "Reversal of failed booking amendment")
		}
		if s.Logger != nil {
			s.Logger.Error("amend booking update failed", "booking_id", b.ID, "side_effects", len(effects), "err", err)
		}
		return nil, domain.External("update booking", err)
	}
	s.audit(ctx, actor, "bookings", b.ID, domain.AuditUpdate, b, saved)

	return &AmendResult{
		Booking:         *saved,
		PriceDifference: diff,
		FolioAdjusted:   posted != nil,
		NewTotalAmount:  newTotal,
	}, nil
}

type ExtendInput struct {
	BookingID   string
	NewCheckout time.Time
	Reason      string
}

type ExtendResult struct {
	Booking           domain.Booking
	AdditionalNights  int
	AdditionalCharges int64
	NewTotalAmount    int64
	LedgerEntryID     string
	SideEffects       []SideEffect
}

// Extend pushes out the checkout of a checked-in stay and charges the extra nights.
// If the booking cannot be saved after the charge posted, the charge is reversed.
func (s BookingService) Extend(ctx context.Context, actor domain.Actor, in ExtendInput) (*ExtendResult, error) {
	in.Reason = strings.TrimSpace(in.Reason)
	if in.BookingID == "" {
		return nil, domain.Validation("booking_id is required")
	}
	if in.NewCheckout.IsZero() {
		return nil, domain.Validation("new_checkout is required")
	}
	if in.Reason == "" {
		return nil, domain.Validation("reason is required")
	}

	b, err := s.getBooking(ctx, actor, in.BookingID)
	if err != nil {
		return nil, err
	}
	if b.Status != domain.BookingCheckedIn {
		return nil, invalidStatus(b, "extend")
	}
	nights := domain.NightsBetween(b.CheckOut, in.NewCheckout)
	if nights < 1 {
		return nil, domain.Validation("new_checkout must be later than the current checkout")
	}
	folio, err := s.requireOpenFolio(ctx, actor, b.ID)
	if err != nil {
		return nil, err
	}
	rate, err := s.nightlyRate(ctx, actor, b)
	if err != nil {
		return nil, err
	}
	charge := int64(nights) * rate

	posted, err := s.Ledger.PostCharge(ctx, actor, PostInput{
		FolioID:       folio.ID,
		Amount:        charge,
		Description:   fmt.Sprintf("Stay extension: %d night(s)", nights),
		ReferenceType: ptr(domain.RefStayExtension),
		ReferenceID:   &b.ID,
		Department:    ptr("rooms"),
	})
	if err != nil {
		return nil, err
	}

	updated := *b
	updated.CheckOut = in.NewCheckout
	updated.TotalAmount = b.TotalAmount + charge
	updated.Metadata.ExtensionHistory = append(append([]domain.StayExtension(nil), b.Metadata.ExtensionHistory...), domain.StayExtension{
		ExtendedAt:        nowOr(s.Now).UTC(),
		ExtendedBy:        actor.UserID,
		Reason:            in.Reason,
		PreviousCheckOut:  b.CheckOut,
		NewCheckOut:       in.NewCheckout,
		AdditionalNights:  nights,
		AdditionalCharges: charge,
		LedgerEntryID:     posted.EntryID,
	})

	saved, err := s.Bookings.UpdateBooking(ctx, updated)
	if err != nil {
		effects := s.reverse(ctx, actor, posted.Entry, domain.RefStayExtensionReversal, "Reversal of failed stay extension")
		if s.Logger != nil {
			s.Logger.Error("extend-stay booking update failed", "booking_id", b.ID, "entry_id", posted.EntryID, "side_effects", len(effects), "err", err)
		}
		return nil, domain.External("update booking", err)
	}
	s.audit(ctx, actor, "bookings", b.ID, domain.AuditUpdate, b, saved)

	return &ExtendResult{
		Booking:           *saved,
		AdditionalNights:  nights,
		AdditionalCharges: charge,
		NewTotalAmount:    saved.TotalAmount,
		LedgerEntryID:     posted.EntryID,
	}, nil
}

// reverse posts a compensating entry; a failure is handed to reconciliation.
func (s BookingService) reverse(ctx context.Context, actor domain.Actor, entry domain.LedgerEntry, refType, description string) []SideEffect {
	if _, err := s.Ledger.Reverse(ctx, actor, entry, refType, description); err != nil {
		return []SideEffect{s.Side.Failed(ctx, actor.TenantID, "compensating_reversal", entry.ID, err,
			map[string]any{"entry_id": entry.ID, "folio_id": entry.FolioID})}
	}
	return nil
}

type CancelInput struct {
	BookingID     string
	ForceCancel   bool
	ApprovalToken string
	Reason        string
}

type CancelResult struct {
	Booking            domain.Booking
	FolioID            string
	FolioStatus        string
	PlatformFeesWaived int
	SideEffects        []SideEffect
}

// Cancel cancels a booking. An open folio with a positive balance blocks cancellation unless
// force_cancel is set and a manager approval token for that exact balance is presented.
// A retry after a failed booking update completes against the already force-cancelled folio.
func (s BookingService) Cancel(ctx context.Context, actor domain.Actor, in CancelInput) (*CancelResult, error) {
	if in.BookingID == "" {
		return nil, domain.Validation("booking_id is required")
	}
	b, err := s.getBooking(ctx, actor, in.BookingID)
	if err != nil {
		return nil, err
	}
	if !domain.ValidBookingTransition(b.Status, domain.BookingCancelled) {
		return nil, invalidStatus(b, "cancel")
	}
	folio, err := s.openFolio(ctx, actor, b.ID)
	if err != nil {
		return nil, err
	}

	now := nowOr(s.Now).UTC()
	res := &CancelResult{FolioStatus: "none"}
	forced := false
	var balance int64

	if folio == nil {
		// A folio force-cancelled by an earlier attempt whose booking update failed;
		// finish that cancellation without asking for a second approval.
		prior, err := s.forceCancelledFolio(ctx, actor, b.ID)
		if err != nil {
			return nil, err
		}
		if prior != nil {
			forced = true
			balance = prior.Balance
			res.FolioID = prior.ID
			res.FolioStatus = string(prior.Status)
		}
	}

	if folio != nil {
		res.FolioID = folio.ID
		var status domain.FolioStatus
		var meta map[string]any
		if folio.Balance > 0 {
			if !in.ForceCancel {
				return nil, domain.State(domain.CodeFolioOutstandingBalance, "folio has an outstanding balance").
					With("folio_id", folio.ID).
					With("balance", folio.Balance)
			}
			balance = folio.Balance
			if err := s.Approvals.Require(ctx, actor, ConsumeInput{
				Token:           in.ApprovalToken,
				ActionType:      domain.ActionForceCancel,
				ActionReference: &b.ID,
				Amount:          &balance,
			}); err != nil {
				return nil, err
			}
			forced = true
			status = domain.FolioCancelled
			meta = map[string]any{
				"outstanding_balance": balance,
				"cancel_reason":       in.Reason,
				"cancelled_by":        actor.UserID,
				"cancelled_at":        now,
				"force_cancel":        true,
			}
		} else {
			status = domain.FolioClosed
			meta = map[string]any{"closed_reason": "booking_cancelled", "closed_at": now, "closed_by": actor.UserID}
		}
		updated, err := s.Folios.SetFolioStatus(ctx, actor.TenantID, folio.ID, status, meta)
		if err != nil {
			return nil, storeErr("update folio status", domain.CodeFolioNotFound, err)
		}
		res.FolioStatus = string(updated.Status)
		s.audit(ctx, actor, "folios", folio.ID, domain.AuditUpdate, folio, updated)
	}

	updated := *b
	updated.Status = domain.BookingCancelled
	updated.Metadata.Cancellation = &domain.CancellationNote{
		CancelledAt: now,
		CancelledBy: actor.UserID,
		Reason:      in.Reason,
		Forced:      forced,
	}
	saved, err := s.Bookings.UpdateBooking(ctx, updated)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Error("cancel booking update failed", "booking_id", b.ID, "folio_status", res.FolioStatus, "err", err)
		}
		if forced {
			s.Side.Failed(ctx, actor.TenantID, "booking_cancel", b.ID, err,
				map[string]any{"booking_id": b.ID, "folio_id": res.FolioID})
		}
		return nil, domain.External("update booking", err)
	}
	res.Booking = *saved
	s.audit(ctx, actor, "bookings", b.ID, domain.AuditUpdate, map[string]any{"status": b.Status}, map[string]any{"status": saved.Status})

	if forced {
		res.PlatformFeesWaived, res.SideEffects = s.waiveFees(ctx, actor, b.ID, in.Reason)
		s.Side.Notify(ctx, events.Event{
			Type:      events.TypeFolioCancelled,
			TenantID:  actor.TenantID,
			EntityIDs: map[string]any{"booking_id": b.ID, "folio_id": res.FolioID},
			Payload:   map[string]any{"outstanding_balance": balance, "approved_by_token": true, "reason": in.Reason},
		})
	}
	return res, nil
}

func (s BookingService) waiveFees(ctx context.Context, actor domain.Actor, bookingID, reason string) (int, []SideEffect) {
	if s.Fees == nil {
		return 0, nil
	}
	if reason == "" {
		reason = "booking force-cancelled"
	}
	fees, err := s.Fees.WaivableFees(ctx, actor.TenantID, bookingID)
	if err != nil {
		return 0, []SideEffect{s.Side.Failed(ctx, actor.TenantID, "platform_fee_waiver", bookingID, err,
			map[string]any{"booking_id": bookingID})}
	}
	var effects []SideEffect
	waived := 0
	for _, fee := range fees {
		updated, err := s.Fees.WaiveFee(ctx, actor.TenantID, fee.ID, reason, actor.UserID)
		if err != nil {
			effects = append(effects, s.Side.Failed(ctx, actor.TenantID, "platform_fee_waiver", fee.ID, err,
				map[string]any{"booking_id": bookingID, "fee_id": fee.ID}))
			continue
		}
		waived++
		s.audit(ctx, actor, "platform_fees", fee.ID, domain.AuditWaive, fee, updated)
		s.Side.Notify(ctx, events.Event{
			Type:      events.TypePlatformFeeWaived,
			TenantID:  actor.TenantID,
			EntityIDs: map[string]any{"booking_id": bookingID, "fee_id": fee.ID},
			Payload:   map[string]any{"amount": fee.Amount, "previous_status": string(fee.Status), "reason": reason},
		})
	}
	return waived, effects
}

func (s BookingService) getBooking(ctx context.Context, actor domain.Actor, id string) (*domain.Booking, error) {
	b, err := s.Bookings.GetBooking(ctx, actor.TenantID, id)
	if err != nil {
		return nil, storeErr("get booking", domain.CodeBookingNotFound, err)
	}
	return b, nil
}

func (s BookingService) getRoom(ctx context.Context, actor domain.Actor, id string) (*domain.Room, error) {
	r, err := s.Bookings.GetRoom(ctx, actor.TenantID, id)
	if err != nil {
		return nil, storeErr("get room", domain.CodeRoomNotFound, err)
	}
	return r, nil
}

// openFolio returns the booking's open room folio or nil when there is none.
func (s BookingService) openFolio(ctx context.Context, actor domain.Actor, bookingID string) (*domain.Folio, error) {
	f, err := s.Folios.OpenFolioForBooking(ctx, actor.TenantID, bookingID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, nil
		}
		return nil, domain.External("find open folio", err)
	}
	return f, nil
}

// forceCancelledFolio returns the booking's latest room folio when it was force-cancelled,
// or nil otherwise.
func (s BookingService) forceCancelledFolio(ctx context.Context, actor domain.Actor, bookingID string) (*domain.Folio, error) {
	f, err := s.Folios.LatestRoomFolio(ctx, actor.TenantID, bookingID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, nil
		}
		return nil, domain.External("find folio", err)
	}
	if f.Status != domain.FolioCancelled {
		return nil, nil
	}
	if force, _ := f.Metadata["force_cancel"].(bool); !force {
		return nil, nil
	}
	return f, nil
}

func (s BookingService) requireOpenFolio(ctx context.Context, actor domain.Actor, bookingID string) (*domain.Folio, error) {
	f, err := s.openFolio(ctx, actor, bookingID)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, domain.State(domain.CodeNoOpenFolio, "no open folio for booking").With("booking_id", bookingID)
	}
	return f, nil
}

// nightlyRate is the booking's agreed rate, falling back to the room's rack rate.
func (s BookingService) nightlyRate(ctx context.Context, actor domain.Actor, b *domain.Booking) (int64, error) {
	if b.NightlyRate > 0 {
		return b.NightlyRate, nil
	}
	room, err := s.getRoom(ctx, actor, b.RoomID)
	if err != nil {
		return 0, err
	}
	return room.Rate, nil
}

func (s BookingService) audit(ctx context.Context, actor domain.Actor, table, recordID, action string, before, after any) {
	if err := s.Audit.Record(ctx, actor, table, recordID, action, before, after); err != nil {
		s.Side.Failed(ctx, actor.TenantID, "audit_log", table+"/"+recordID, err,
			map[string]any{"table_name": table, "record_id": recordID})
	}
}

func invalidStatus(b *domain.Booking, op string) error {
	return domain.State(domain.CodeInvalidBookingStatus, fmt.Sprintf("cannot %s a booking in status %s", op, b.Status)).
		With("status", string(b.Status))
}
