package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waspershola/hospitech-nexus-sub005/internal/domain"
	"github.com/waspershola/hospitech-nexus-sub005/internal/events"
	"github.com/waspershola/hospitech-nexus-sub005/internal/ports"
)

var errStoreDown = errors.New("connection reset by peer")

func entriesWithRef(t *testing.T, f *fixture, folioID, ref string) []domain.LedgerEntry {
	t.Helper()
	all, err := f.store.ListEntries(context.Background(), testTenant, folioID)
	require.NoError(t, err)
	var out []domain.LedgerEntry
	for _, e := range all {
		if e.ReferenceType != nil && *e.ReferenceType == ref {
			out = append(out, e)
		}
	}
	return out
}

func TestCheckInOpensFolioAndAttachesPayments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.reservation(2, roomRate)
	f.store.AddBookingPayment(domain.BookingPayment{TenantID: testTenant, BookingID: b.ID, Amount: 10000, Method: "transfer"})

	res, err := f.bookings.CheckIn(ctx, f.desk, b.ID)
	require.NoError(t, err)
	assert.False(t, res.Existing)
	assert.Empty(t, res.SideEffects)

	folio := res.Folio
	assert.Equal(t, domain.FolioRoom, folio.Kind)
	assert.Equal(t, domain.FolioOpen, folio.Status)
	assert.Equal(t, "FOL-202605-00001", folio.FolioNumber)
	assert.Equal(t, int64(40000), folio.TotalCharges)
	assert.Equal(t, int64(10000), folio.TotalPayments)
	assert.Equal(t, int64(30000), folio.Balance)
	assert.Len(t, entriesWithRef(t, f, folio.ID, domain.RefRoomCharge), 1)
	assert.Len(t, entriesWithRef(t, f, folio.ID, domain.RefBookingPayment), 1)
	assert.Equal(t, domain.BookingCheckedIn, f.store.Booking(b.ID).Status)

	again, err := f.bookings.CheckIn(ctx, f.desk, b.ID)
	require.NoError(t, err)
	assert.True(t, again.Existing)
	assert.Equal(t, folio.ID, again.Folio.ID)
	assert.Equal(t, folio.Balance, again.Folio.Balance)
	assert.Len(t, entriesWithRef(t, f, folio.ID, domain.RefRoomCharge), 1)
	assert.Len(t, f.store.FoliosForBooking(b.ID), 1)

	assert.Equal(t, -1, domain.VerifyAuditChain(f.store.AuditEntries()))
}

func TestConcurrentCheckInCreatesOneFolio(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.reservation(1, roomRate)

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.bookings.CheckIn(ctx, f.desk, b.ID)
			if err == nil {
				ids[i] = res.Folio.ID
			}
		}(i)
	}
	wg.Wait()

	folios := f.store.FoliosForBooking(b.ID)
	require.Len(t, folios, 1)
	for _, id := range ids {
		assert.Equal(t, folios[0].ID, id)
	}
	assert.Len(t, entriesWithRef(t, f, folios[0].ID, domain.RefRoomCharge), 1)
}

func TestCheckInCorrectsStatusDrift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b, folio := f.checkedIn(t, 1, roomRate)
	require.NoError(t, f.store.SetBookingStatus(ctx, testTenant, b.ID, domain.BookingReserved))

	res, err := f.bookings.CheckIn(ctx, f.desk, b.ID)
	require.NoError(t, err)
	assert.True(t, res.Existing)
	assert.Equal(t, folio.ID, res.Folio.ID)
	assert.Equal(t, domain.BookingCheckedIn, f.store.Booking(b.ID).Status)
}

func TestCheckInRejectsUnknownAndClosedBookings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.bookings.CheckIn(ctx, f.desk, "nope")
	requireCode(t, err, domain.CodeBookingNotFound)

	b := f.reservation(1, roomRate)
	require.NoError(t, f.store.SetBookingStatus(ctx, testTenant, b.ID, domain.BookingCancelled))
	_, err = f.bookings.CheckIn(ctx, f.desk, b.ID)
	requireCode(t, err, domain.CodeInvalidBookingStatus)
}

func TestCheckInJoinsGroupMaster(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	master, _, err := f.groups.CreateOrGetMasterFolio(ctx, f.desk, MasterFolioInput{GroupID: "conf-2026", MasterBookingID: "lead"})
	require.NoError(t, err)

	group := "conf-2026"
	in := f.clock.Now().Truncate(24 * time.Hour)
	b := f.store.AddBooking(domain.Booking{
		TenantID: testTenant, RoomID: f.room.ID, CheckIn: in, CheckOut: in.AddDate(0, 0, 3),
		NightlyRate: roomRate, TotalAmount: 3 * roomRate,
		Metadata: domain.BookingMetadata{GroupID: &group},
	})

	res, err := f.bookings.CheckIn(ctx, f.desk, b.ID)
	require.NoError(t, err)
	require.NotNil(t, res.Folio.ParentFolioID)
	assert.Equal(t, master.ID, *res.Folio.ParentFolioID)
	assert.Equal(t, int64(60000), f.folio(t, master.ID).TotalCharges)
}

func TestCheckInDeletesFolioWhenStatusUpdateFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.reservation(2, roomRate)
	f.store.FailOn("SetBookingStatus", errStoreDown)

	_, err := f.bookings.CheckIn(ctx, f.desk, b.ID)
	de := requireCode(t, err, domain.CodeExternal)
	assert.ErrorIs(t, de, errStoreDown)
	assert.Empty(t, f.store.FoliosForBooking(b.ID))
	assert.Equal(t, domain.BookingReserved, f.store.Booking(b.ID).Status)
}

func TestCheckInDeletesFolioWhenChargeFails(t *testing.T) {
	f := newFixture(t)
	b := f.reservation(2, roomRate)
	f.store.FailOn("PostEntry", errStoreDown)

	_, err := f.bookings.CheckIn(context.Background(), f.desk, b.ID)
	requireCode(t, err, domain.CodeExternal)
	assert.Empty(t, f.store.FoliosForBooking(b.ID))
}

func TestCheckInReportsFailedPaymentAttach(t *testing.T) {
	f := newFixture(t)
	b := f.reservation(1, roomRate)
	f.store.AddBookingPayment(domain.BookingPayment{TenantID: testTenant, BookingID: b.ID, Amount: 5000, Method: "card"})
	f.store.FailOn("AttachBookingPayments", errStoreDown)

	res, err := f.bookings.CheckIn(context.Background(), f.desk, b.ID)
	require.NoError(t, err)
	require.Len(t, res.SideEffects, 1)
	assert.Equal(t, "attach_booking_payments", res.SideEffects[0].Effect)
	assert.Equal(t, roomRate, f.folio(t, res.Folio.ID).Balance)

	recon := f.events.OfType(events.TypeReconciliationRequired)
	require.Len(t, recon, 1)
	assert.Equal(t, b.ID, recon[0].EntityIDs["booking_id"])
}

func TestCheckInAttachesPaymentsAllOrNone(t *testing.T) {
	f := newFixture(t)
	b := f.reservation(1, roomRate)
	at := f.clock.Now()
	f.store.AddBookingPayment(domain.BookingPayment{TenantID: testTenant, BookingID: b.ID, Amount: 5000, Method: "card", CreatedAt: at})
	f.store.AddBookingPayment(domain.BookingPayment{TenantID: testTenant, BookingID: b.ID, Amount: 0, Method: "voucher", CreatedAt: at.Add(time.Minute)})

	res, err := f.bookings.CheckIn(context.Background(), f.desk, b.ID)
	require.NoError(t, err)
	require.Len(t, res.SideEffects, 1)
	assert.Equal(t, "attach_booking_payments", res.SideEffects[0].Effect)

	got := f.folio(t, res.Folio.ID)
	assert.Zero(t, got.TotalPayments)
	assert.Equal(t, roomRate, got.Balance)
	assert.Empty(t, entriesWithRef(t, f, res.Folio.ID, domain.RefBookingPayment))
}

func TestExtendStayChargesAdditionalNights(t *testing.T) {
	f := newFixture(t)
	b, folio := f.checkedIn(t, 2, roomRate)

	res, err := f.bookings.Extend(context.Background(), f.desk, ExtendInput{
		BookingID:   b.ID,
		NewCheckout: b.CheckOut.AddDate(0, 0, 2),
		Reason:      "guest extended business trip",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.AdditionalNights)
	assert.Equal(t, int64(40000), res.AdditionalCharges)
	assert.Equal(t, int64(80000), res.NewTotalAmount)

	got := f.folio(t, folio.ID)
	assert.Equal(t, int64(80000), got.TotalCharges)
	assert.Equal(t, int64(80000), got.Balance)

	saved := f.store.Booking(b.ID)
	assert.Equal(t, int64(80000), saved.TotalAmount)
	assert.True(t, saved.CheckOut.Equal(b.CheckOut.AddDate(0, 0, 2)))
	require.Len(t, saved.Metadata.ExtensionHistory, 1)
	assert.Equal(t, res.LedgerEntryID, saved.Metadata.ExtensionHistory[0].LedgerEntryID)
}

func TestExtendStayValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reserved := f.reservation(2, roomRate)
	_, err := f.bookings.Extend(ctx, f.desk, ExtendInput{BookingID: reserved.ID, NewCheckout: reserved.CheckOut.AddDate(0, 0, 1), Reason: "x"})
	requireCode(t, err, domain.CodeInvalidBookingStatus)

	b, _ := f.checkedIn(t, 2, roomRate)
	_, err = f.bookings.Extend(ctx, f.desk, ExtendInput{BookingID: b.ID, NewCheckout: b.CheckOut, Reason: "x"})
	requireCode(t, err, domain.CodeValidationFailed)

	_, err = f.bookings.Extend(ctx, f.desk, ExtendInput{BookingID: b.ID, NewCheckout: b.CheckOut.AddDate(0, 0, 1)})
	requireCode(t, err, domain.CodeValidationFailed)

	noFolio := f.reservation(1, roomRate)
	require.NoError(t, f.store.SetBookingStatus(ctx, testTenant, noFolio.ID, domain.BookingCheckedIn))
	_, err = f.bookings.Extend(ctx, f.desk, ExtendInput{BookingID: noFolio.ID, NewCheckout: noFolio.CheckOut.AddDate(0, 0, 1), Reason: "x"})
	requireCode(t, err, domain.CodeNoOpenFolio)
}

func TestExtendStayReversesChargeWhenBookingUpdateFails(t *testing.T) {
	f := newFixture(t)
	b, folio := f.checkedIn(t, 2, roomRate)
	f.store.FailOn("UpdateBooking", errStoreDown)

	_, err := f.bookings.Extend(context.Background(), f.desk, ExtendInput{
		BookingID: b.ID, NewCheckout: b.CheckOut.AddDate(0, 0, 2), Reason: "late flight",
	})
	requireCode(t, err, domain.CodeExternal)

	got := f.folio(t, folio.ID)
	assert.Equal(t, int64(40000), got.Balance)
	assert.Len(t, entriesWithRef(t, f, folio.ID, domain.RefStayExtension), 1)
	assert.Len(t, entriesWithRef(t, f, folio.ID, domain.RefStayExtensionReversal), 1)
	assert.Empty(t, f.events.OfType(events.TypeReconciliationRequired))
}

// flakyFolios fails every PostEntry after the first n.
type flakyFolios struct {
	ports.FolioStore
	mu sync.Mutex
	n  int
}

func (s *flakyFolios) PostEntry(ctx context.Context, in ports.PostEntry) (*ports.PostedEntry, error) {
	s.mu.Lock()
	s.n--
	left := s.n
	s.mu.Unlock()
	if left < 0 {
		return nil, errStoreDown
	}
	return s.FolioStore.PostEntry(ctx, in)
}

func TestExtendStayReportsFailedReversal(t *testing.T) {
	f := newFixture(t)
	b, folio := f.checkedIn(t, 2, roomRate)
	f.store.FailOn("UpdateBooking", errStoreDown)
	svc := f.bookings
	svc.Ledger.Folios = &flakyFolios{FolioStore: f.store, n: 1}

	_, err := svc.Extend(context.Background(), f.desk, ExtendInput{
		BookingID: b.ID, NewCheckout: b.CheckOut.AddDate(0, 0, 1), Reason: "late flight",
	})
	requireCode(t, err, domain.CodeExternal)

	assert.Equal(t, int64(60000), f.folio(t, folio.ID).Balance)
	recon := f.events.OfType(events.TypeReconciliationRequired)
	require.Len(t, recon, 1)
	assert.Equal(t, folio.ID, recon[0].EntityIDs["folio_id"])
}

func TestAmendReservedBookingReprices(t *testing.T) {
	f := newFixture(t)
	b := f.reservation(2, roomRate)
	newOut := b.CheckOut.AddDate(0, 0, 1)

	res, err := f.bookings.Amend(context.Background(), f.desk, AmendInput{
		BookingID: b.ID, CheckOut: &newOut, Reason: "guest added a night",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(60000), res.NewTotalAmount)
	assert.Equal(t, int64(20000), res.PriceDifference)
	assert.False(t, res.FolioAdjusted)

	saved := f.store.Booking(b.ID)
	assert.Equal(t, int64(60000), saved.TotalAmount)
	require.Len(t, saved.Metadata.Amendments, 1)
	assert.Equal(t, int64(40000), saved.Metadata.Amendments[0].PreviousTotal)
}

func TestAmendCheckedInWithApprovedRateOverride(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b, folio := f.checkedIn(t, 2, roomRate)
	override := int64(15000)

	_, err := f.bookings.Amend(ctx, f.desk, AmendInput{
		BookingID: b.ID, RateOverride: &override, ApprovalToken: "forged", Reason: "corporate rate",
	})
	requireCode(t, err, domain.CodeManagerApprovalRequired)
	assert.Equal(t, int64(40000), f.folio(t, folio.ID).Balance)

	token := f.approve(t, domain.ActionManualRateOverride, b.ID, override)
	res, err := f.bookings.Amend(ctx, f.desk, AmendInput{
		BookingID: b.ID, RateOverride: &override, ApprovalToken: token, Reason: "corporate rate",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(-10000), res.PriceDifference)
	assert.True(t, res.FolioAdjusted)

	got := f.folio(t, folio.ID)
	assert.Equal(t, int64(30000), got.TotalCharges)
	adj := entriesWithRef(t, f, folio.ID, domain.RefBookingAmendment)
	require.Len(t, adj, 1)
	assert.Equal(t, domain.EntryCredit, adj[0].Kind)
	assert.Equal(t, override, f.store.Booking(b.ID).NightlyRate)
}

func TestAmendCheckedInRateOverrideNeedsApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b, folio := f.checkedIn(t, 2, roomRate)
	override := int64(15000)

	_, err := f.bookings.Amend(ctx, f.desk, AmendInput{BookingID: b.ID, RateOverride: &override, Reason: "corporate rate"})
	de := requireCode(t, err, domain.CodeManagerApprovalRequired)
	assert.Equal(t, string(domain.ActionManualRateOverride), de.Details["action_type"])
	assert.Equal(t, int64(40000), f.folio(t, folio.ID).Balance)
	assert.Empty(t, entriesWithRef(t, f, folio.ID, domain.RefBookingAmendment))
	assert.Equal(t, roomRate, f.store.Booking(b.ID).NightlyRate)

	// Reservations have no folio to adjust, so the override alone is accepted.
	reserved := f.reservation(2, roomRate)
	res, err := f.bookings.Amend(ctx, f.desk, AmendInput{BookingID: reserved.ID, RateOverride: &override, Reason: "corporate rate"})
	require.NoError(t, err)
	assert.Equal(t, int64(30000), res.NewTotalAmount)
}

func TestAmendKeepsTokenWhenFolioIsNotOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b, folio := f.checkedIn(t, 2, roomRate)
	_, err := f.store.SetFolioStatus(ctx, testTenant, folio.ID, domain.FolioClosed, nil)
	require.NoError(t, err)
	override := int64(15000)
	token := f.approve(t, domain.ActionManualRateOverride, b.ID, override)

	_, err = f.bookings.Amend(ctx, f.desk, AmendInput{
		BookingID: b.ID, RateOverride: &override, ApprovalToken: token, Reason: "corporate rate",
	})
	requireCode(t, err, domain.CodeNoOpenFolio)

	tok, ok := f.store.Token(token)
	require.True(t, ok)
	assert.Nil(t, tok.ConsumedAt)
	assert.Equal(t, roomRate, f.store.Booking(b.ID).NightlyRate)
}

func TestAmendRoomChangeChecksAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	suite := f.store.AddRoom(domain.Room{TenantID: testTenant, Number: "501", Rate: 50000})
	b := f.reservation(2, roomRate)
	f.store.AddBooking(domain.Booking{
		TenantID: testTenant, RoomID: suite.ID, CheckIn: b.CheckIn.AddDate(0, 0, 1), CheckOut: b.CheckOut.AddDate(0, 0, 1),
		Status: domain.BookingReserved, NightlyRate: 50000, TotalAmount: 100000,
	})

	_, err := f.bookings.Amend(ctx, f.desk, AmendInput{BookingID: b.ID, RoomID: &suite.ID, Reason: "upgrade"})
	requireCode(t, err, domain.CodeRoomConflict)

	free := f.store.AddRoom(domain.Room{TenantID: testTenant, Number: "502", Rate: 45000})
	res, err := f.bookings.Amend(ctx, f.desk, AmendInput{BookingID: b.ID, RoomID: &free.ID, Reason: "upgrade"})
	require.NoError(t, err)
	assert.Equal(t, int64(90000), res.NewTotalAmount)
	assert.Equal(t, free.ID, f.store.Booking(b.ID).RoomID)
}

func TestAmendValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.reservation(2, roomRate)

	_, err := f.bookings.Amend(ctx, f.desk, AmendInput{BookingID: b.ID})
	requireCode(t, err, domain.CodeValidationFailed)

	before := b.CheckIn
	_, err = f.bookings.Amend(ctx, f.desk, AmendInput{BookingID: b.ID, CheckOut: &before, Reason: "typo"})
	requireCode(t, err, domain.CodeValidationFailed)

	noFolio := f.reservation(1, roomRate)
	require.NoError(t, f.store.SetBookingStatus(ctx, testTenant, noFolio.ID, domain.BookingCheckedIn))
	out := noFolio.CheckOut.AddDate(0, 0, 1)
	_, err = f.bookings.Amend(ctx, f.desk, AmendInput{BookingID: noFolio.ID, CheckOut: &out, Reason: "longer"})
	requireCode(t, err, domain.CodeNoOpenFolio)
}

func TestAmendReversesPostingWhenBookingUpdateFails(t *testing.T) {
	f := newFixture(t)
	b, folio := f.checkedIn(t, 2, roomRate)
	f.store.FailOn("UpdateBooking", errStoreDown)
	out := b.CheckOut.AddDate(0, 0, 1)

	_, err := f.bookings.Amend(context.Background(), f.desk, AmendInput{BookingID: b.ID, CheckOut: &out, Reason: "longer"})
	requireCode(t, err, domain.CodeExternal)
	assert.Equal(t, int64(40000), f.folio(t, folio.ID).Balance)
	assert.Len(t, entriesWithRef(t, f, folio.ID, domain.RefBookingAmendReversal), 1)
}

func outstandingStay(t *testing.T, f *fixture) (domain.Booking, domain.Folio) {
	t.Helper()
	b, folio := f.checkedIn(t, 1, 5000)
	require.Equal(t, int64(5000), folio.Balance)
	f.store.AddPlatformFee(domain.PlatformFee{TenantID: testTenant, BookingID: b.ID, Amount: 250, Status: domain.FeePending})
	f.store.AddPlatformFee(domain.PlatformFee{TenantID: testTenant, BookingID: b.ID, Amount: 250, Status: domain.FeeBilled})
	f.store.AddPlatformFee(domain.PlatformFee{ID: "fee-paid", TenantID: testTenant, BookingID: b.ID, Amount: 250, Status: domain.FeePaid})
	return b, folio
}

func TestCancelBlockedByOutstandingBalance(t *testing.T) {
	f := newFixture(t)
	b, folio := outstandingStay(t, f)

	_, err := f.bookings.Cancel(context.Background(), f.desk, CancelInput{BookingID: b.ID, Reason: "no show"})
	de := requireCode(t, err, domain.CodeFolioOutstandingBalance)
	assert.Equal(t, int64(5000), de.Details["balance"])

	got := f.folio(t, folio.ID)
	assert.Equal(t, domain.FolioOpen, got.Status)
	assert.Equal(t, int64(5000), got.Balance)
	assert.Equal(t, domain.BookingCheckedIn, f.store.Booking(b.ID).Status)
}

func TestForceCancelRequiresApproval(t *testing.T) {
	f := newFixture(t)
	b, folio := outstandingStay(t, f)

	_, err := f.bookings.Cancel(context.Background(), f.desk, CancelInput{BookingID: b.ID, ForceCancel: true, Reason: "guest left"})
	requireCode(t, err, domain.CodeManagerApprovalRequired)
	assert.Equal(t, domain.FolioOpen, f.folio(t, folio.ID).Status)
	assert.Equal(t, domain.BookingCheckedIn, f.store.Booking(b.ID).Status)

	// A token approved for a different amount does not match.
	token := f.approve(t, domain.ActionForceCancel, b.ID, 4000)
	_, err = f.bookings.Cancel(context.Background(), f.desk, CancelInput{BookingID: b.ID, ForceCancel: true, ApprovalToken: token})
	requireCode(t, err, domain.CodeManagerApprovalRequired)
}

func TestForceCancelWithApproval(t *testing.T) {
	f := newFixture(t)
	b, folio := outstandingStay(t, f)
	token := f.approve(t, domain.ActionForceCancel, b.ID, 5000)

	res, err := f.bookings.Cancel(context.Background(), f.desk, CancelInput{
		BookingID: b.ID, ForceCancel: true, ApprovalToken: token, Reason: "guest left without paying",
	})
	require.NoError(t, err)
	assert.Equal(t, "cancelled", res.FolioStatus)
	assert.Equal(t, 2, res.PlatformFeesWaived)
	assert.Empty(t, res.SideEffects)

	got := f.folio(t, folio.ID)
	assert.Equal(t, domain.FolioCancelled, got.Status)
	assert.Equal(t, int64(5000), got.Metadata["outstanding_balance"])

	saved := f.store.Booking(b.ID)
	assert.Equal(t, domain.BookingCancelled, saved.Status)
	require.NotNil(t, saved.Metadata.Cancellation)
	assert.True(t, saved.Metadata.Cancellation.Forced)

	assert.Equal(t, domain.FeePaid, f.store.Fee("fee-paid").Status)
	assert.Len(t, f.events.OfType(events.TypePlatformFeeWaived), 2)
	assert.Len(t, f.events.OfType(events.TypeFolioCancelled), 1)

	waivers := 0
	for _, e := range f.store.AuditEntries() {
		if e.Action == domain.AuditWaive {
			waivers++
		}
	}
	assert.Equal(t, 2, waivers)
	assert.Equal(t, -1, domain.VerifyAuditChain(f.store.AuditEntries()))

	_, err = f.bookings.Cancel(context.Background(), f.desk, CancelInput{BookingID: b.ID})
	requireCode(t, err, domain.CodeInvalidBookingStatus)
}

func TestForceCancelResumesAfterBookingUpdateFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b, folio := outstandingStay(t, f)
	token := f.approve(t, domain.ActionForceCancel, b.ID, 5000)
	f.store.FailOn("UpdateBooking", errStoreDown)

	_, err := f.bookings.Cancel(ctx, f.desk, CancelInput{BookingID: b.ID, ForceCancel: true, ApprovalToken: token, Reason: "walked out"})
	requireCode(t, err, domain.CodeExternal)
	assert.Equal(t, domain.FolioCancelled, f.folio(t, folio.ID).Status)
	assert.Equal(t, domain.BookingCheckedIn, f.store.Booking(b.ID).Status)
	assert.Empty(t, f.events.OfType(events.TypePlatformFeeWaived))

	recon := f.events.OfType(events.TypeReconciliationRequired)
	require.Len(t, recon, 1)
	assert.Equal(t, "booking_cancel", recon[0].Payload["effect"])
	assert.Equal(t, folio.ID, recon[0].EntityIDs["folio_id"])

	// The approval was spent on the folio; the retry finishes without another one.
	f.store.FailOn("UpdateBooking", nil)
	res, err := f.bookings.Cancel(ctx, f.desk, CancelInput{BookingID: b.ID, Reason: "walked out"})
	require.NoError(t, err)
	assert.Equal(t, folio.ID, res.FolioID)
	assert.Equal(t, "cancelled", res.FolioStatus)
	assert.Equal(t, 2, res.PlatformFeesWaived)

	saved := f.store.Booking(b.ID)
	assert.Equal(t, domain.BookingCancelled, saved.Status)
	require.NotNil(t, saved.Metadata.Cancellation)
	assert.True(t, saved.Metadata.Cancellation.Forced)

	cancelled := f.events.OfType(events.TypeFolioCancelled)
	require.Len(t, cancelled, 1)
	assert.Equal(t, int64(5000), cancelled[0].Payload["outstanding_balance"])
}

func TestCancelAfterPlainFolioCancelNeedsNoWaiver(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b, folio := outstandingStay(t, f)
	_, err := f.store.SetFolioStatus(ctx, testTenant, folio.ID, domain.FolioCancelled, map[string]any{"cancel_reason": "duplicate"})
	require.NoError(t, err)

	res, err := f.bookings.Cancel(ctx, f.desk, CancelInput{BookingID: b.ID})
	require.NoError(t, err)
	assert.Equal(t, "none", res.FolioStatus)
	assert.Zero(t, res.PlatformFeesWaived)
	assert.False(t, f.store.Booking(b.ID).Metadata.Cancellation.Forced)
}

func TestForceCancelReportsFailedWaiver(t *testing.T) {
	f := newFixture(t)
	b, _ := outstandingStay(t, f)
	token := f.approve(t, domain.ActionForceCancel, b.ID, 5000)
	f.store.FailOn("WaiveFee", errStoreDown)

	res, err := f.bookings.Cancel(context.Background(), f.desk, CancelInput{BookingID: b.ID, ForceCancel: true, ApprovalToken: token})
	require.NoError(t, err)
	assert.Zero(t, res.PlatformFeesWaived)
	assert.Len(t, res.SideEffects, 2)
	assert.Equal(t, domain.BookingCancelled, f.store.Booking(b.ID).Status)
	assert.Len(t, f.events.OfType(events.TypeReconciliationRequired), 2)
}

func TestCancelSettledFolioCloses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b, folio := f.checkedIn(t, 1, 5000)
	_, err := f.ledger.PostPayment(ctx, f.desk, PostInput{FolioID: folio.ID, Amount: 5000, Description: "Cash"})
	require.NoError(t, err)

	res, err := f.bookings.Cancel(ctx, f.desk, CancelInput{BookingID: b.ID, Reason: "plans changed"})
	require.NoError(t, err)
	assert.Equal(t, "closed", res.FolioStatus)
	assert.Zero(t, res.PlatformFeesWaived)
	assert.Equal(t, domain.FolioClosed, f.folio(t, folio.ID).Status)
	assert.Equal(t, domain.BookingCancelled, f.store.Booking(b.ID).Status)
}

func TestCancelReservationWithoutFolio(t *testing.T) {
	f := newFixture(t)
	b := f.reservation(3, roomRate)

	res, err := f.bookings.Cancel(context.Background(), f.desk, CancelInput{BookingID: b.ID})
	require.NoError(t, err)
	assert.Equal(t, "none", res.FolioStatus)
	assert.Equal(t, domain.BookingCancelled, f.store.Booking(b.ID).Status)
}
