// Package memstore is an in-memory implementation of the store ports. A single mutex
// serializes every operation, which gives it the same atomicity the Postgres
// repositories get from row locks and conditional updates.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/waspershola/hospitech-nexus-sub005/internal/domain"
	"github.com/waspershola/hospitech-nexus-sub005/internal/ports"
)

// errZeroAmount mirrors the ledger_entries amount <> 0 check constraint.
var errZeroAmount = errors.New("ledger entry amount must be non-zero")

type Store struct {
	mu sync.Mutex

	folios       map[string]*domain.Folio
	entries      map[string]*domain.LedgerEntry
	entryOrder   []string
	bookings     map[string]*domain.Booking
	rooms        map[string]*domain.Room
	staff        map[string]*domain.Staff
	tokens       map[string]*domain.ApprovalToken
	approvalLogs []domain.ApprovalLog
	audit        []domain.AuditEntry
	fees         map[string]*domain.PlatformFee
	payments     map[string]*domain.BookingPayment
	folioSeq     map[string]int

	// failures makes the named operation return the error, for exercising compensation paths.
	failures map[string]error
	now      func() time.Time
}

func New() *Store {
	return &Store{
		folios:   map[string]*domain.Folio{},
		entries:  map[string]*domain.LedgerEntry{},
		bookings: map[string]*domain.Booking{},
		rooms:    map[string]*domain.Room{},
		staff:    map[string]*domain.Staff{},
		tokens:   map[string]*domain.ApprovalToken{},
		fees:     map[string]*domain.PlatformFee{},
		payments: map[string]*domain.BookingPayment{},
		folioSeq: map[string]int{},
		failures: map[string]error{},
		now:      time.Now,
	}
}

// FailOn makes op return err until cleared with a nil error.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *Store) fail(op string) error {
	return s.failures[op]
}

// SetClock overrides the time source used for created_at stamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) Health(context.Context) error { return nil }

// Seeding helpers.

func (s *Store) AddRoom(r domain.Room) domain.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	s.rooms[r.ID] = &r
	return r
}

func (s *Store) AddBooking(b domain.Booking) domain.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = domain.BookingReserved
	}
	b.CreatedAt = s.now()
	b.UpdatedAt = b.CreatedAt
	cp := cloneBooking(b)
	s.bookings[b.ID] = &cp
	return b
}

func (s *Store) AddStaff(st domain.Staff) domain.Staff {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	s.staff[st.ID] = &st
	return st
}

func (s *Store) AddPlatformFee(f domain.PlatformFee) domain.PlatformFee {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.Status == "" {
		f.Status = domain.FeePending
	}
	s.fees[f.ID] = &f
	return f
}

func (s *Store) AddBookingPayment(p domain.BookingPayment) domain.BookingPayment {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	s.payments[p.ID] = &p
	return p
}

// Inspection helpers.

func (s *Store) Booking(id string) domain.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneBooking(*s.bookings[id])
}

func (s *Store) Folio(id string) (domain.Folio, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.folios[id]
	if !ok {
		return domain.Folio{}, false
	}
	return cloneFolio(*f), true
}

func (s *Store) FoliosForBooking(bookingID string) []domain.Folio {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Folio
	for _, f := range s.folios {
		if f.BookingID != nil && *f.BookingID == bookingID {
			out = append(out, cloneFolio(*f))
		}
	}
	return out
}

func (s *Store) Staff(id string) domain.Staff {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.staff[id]
}

func (s *Store) Fee(id string) domain.PlatformFee {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.fees[id]
}

func (s *Store) Token(token string) (domain.ApprovalToken, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[token]
	if !ok {
		return domain.ApprovalToken{}, false
	}
	return *t, true
}

func (s *Store) ApprovalLogs() []domain.ApprovalLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ApprovalLog(nil), s.approvalLogs...)
}

func (s *Store) AuditEntries() []domain.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.AuditEntry(nil), s.audit...)
}

// FolioStore

func (s *Store) GetFolio(_ context.Context, tenantID, folioID string) (*domain.Folio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetFolio"); err != nil {
		return nil, err
	}
	f, ok := s.folios[folioID]
	if !ok || f.TenantID != tenantID {
		return nil, ports.ErrNotFound
	}
	out := cloneFolio(*f)
	return &out, nil
}

func (s *Store) OpenFolioForBooking(_ context.Context, tenantID, bookingID string) (*domain.Folio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("OpenFolioForBooking"); err != nil {
		return nil, err
	}
	if f := s.openRoomFolio(tenantID, bookingID); f != nil {
		out := cloneFolio(*f)
		return &out, nil
	}
	return nil, ports.ErrNotFound
}

func (s *Store) LatestRoomFolio(_ context.Context, tenantID, bookingID string) (*domain.Folio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("LatestRoomFolio"); err != nil {
		return nil, err
	}
	var latest *domain.Folio
	for _, f := range s.folios {
		if f.TenantID != tenantID || f.Kind != domain.FolioRoom || f.BookingID == nil || *f.BookingID != bookingID {
			continue
		}
		if latest == nil || f.CreatedAt.After(latest.CreatedAt) {
			latest = f
		}
	}
	if latest == nil {
		return nil, ports.ErrNotFound
	}
	out := cloneFolio(*latest)
	return &out, nil
}

func (s *Store) openRoomFolio(tenantID, bookingID string) *domain.Folio {
	for _, f := range s.folios {
		if f.TenantID == tenantID && f.Kind == domain.FolioRoom && f.Status == domain.FolioOpen &&
			f.BookingID != nil && *f.BookingID == bookingID {
			return f
		}
	}
	return nil
}

func (s *Store) NextFolioNumber(_ context.Context, tenantID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("NextFolioNumber"); err != nil {
		return "", err
	}
	s.folioSeq[tenantID]++
	return fmt.Sprintf("FOL-%s-%05d", s.now().Format("200601"), s.folioSeq[tenantID]), nil
}

func (s *Store) CreateFolio(_ context.Context, f domain.Folio) (*domain.Folio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateFolio"); err != nil {
		return nil, err
	}
	if f.Kind == domain.FolioRoom && f.BookingID != nil && s.openRoomFolio(f.TenantID, *f.BookingID) != nil {
		return nil, ports.ErrDuplicate
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.Status == "" {
		f.Status = domain.FolioOpen
	}
	if f.Metadata == nil {
		f.Metadata = map[string]any{}
	}
	f.Balance = f.TotalCharges - f.TotalPayments
	f.CreatedAt = s.now()
	f.UpdatedAt = f.CreatedAt
	cp := cloneFolio(f)
	s.folios[f.ID] = &cp
	return &f, nil
}

func (s *Store) DeleteFolio(_ context.Context, tenantID, folioID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("DeleteFolio"); err != nil {
		return err
	}
	f, ok := s.folios[folioID]
	if !ok || f.TenantID != tenantID {
		return ports.ErrNotFound
	}
	delete(s.folios, folioID)
	kept := s.entryOrder[:0]
	for _, id := range s.entryOrder {
		if s.entries[id].FolioID == folioID {
			delete(s.entries, id)
			continue
		}
		kept = append(kept, id)
	}
	s.entryOrder = kept
	for _, p := range s.payments {
		if p.FolioID != nil && *p.FolioID == folioID {
			p.FolioID = nil
			p.LedgerEntryID = nil
		}
	}
	return nil
}

func (s *Store) SetFolioStatus(_ context.Context, tenantID, folioID string, status domain.FolioStatus, metadata map[string]any) (*domain.Folio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("SetFolioStatus"); err != nil {
		return nil, err
	}
	f, ok := s.folios[folioID]
	if !ok || f.TenantID != tenantID {
		return nil, ports.ErrNotFound
	}
	if f.Status != domain.FolioOpen {
		return nil, ports.ErrFolioNotOpen
	}
	f.Status = status
	if f.Metadata == nil {
		f.Metadata = map[string]any{}
	}
	for k, v := range metadata {
		f.Metadata[k] = v
	}
	f.UpdatedAt = s.now()
	out := cloneFolio(*f)
	return &out, nil
}

func (s *Store) PostEntry(_ context.Context, in ports.PostEntry) (*ports.PostedEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("PostEntry"); err != nil {
		return nil, err
	}
	return s.postLocked(in)
}

func (s *Store) postLocked(in ports.PostEntry) (*ports.PostedEntry, error) {
	f, ok := s.folios[in.FolioID]
	if !ok {
		return nil, ports.ErrNotFound
	}
	if f.TenantID != in.TenantID {
		return nil, ports.ErrTenantMismatch
	}
	if f.Status != domain.FolioOpen {
		return nil, ports.ErrFolioNotOpen
	}
	if in.Amount == 0 {
		return nil, errZeroAmount
	}
	if in.Kind == domain.EntryPayment {
		f.TotalPayments += in.Amount
	} else {
		f.TotalCharges += in.Amount
	}
	f.Balance = f.TotalCharges - f.TotalPayments
	f.UpdatedAt = s.now()

	e := domain.LedgerEntry{
		ID:            uuid.NewString(),
		TenantID:      in.TenantID,
		FolioID:       in.FolioID,
		Kind:          in.Kind,
		Amount:        in.Amount,
		Description:   in.Description,
		ReferenceType: in.ReferenceType,
		ReferenceID:   in.ReferenceID,
		Department:    in.Department,
		CreatedBy:     in.CreatedBy,
		CreatedAt:     s.now(),
	}
	s.entries[e.ID] = &e
	s.entryOrder = append(s.entryOrder, e.ID)
	return &ports.PostedEntry{Entry: e, Folio: cloneFolio(*f)}, nil
}

func (s *Store) GetEntry(_ context.Context, tenantID, entryID string) (*domain.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[entryID]
	if !ok || e.TenantID != tenantID {
		return nil, ports.ErrNotFound
	}
	out := *e
	return &out, nil
}

func (s *Store) ListEntries(_ context.Context, tenantID, folioID string) ([]domain.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.LedgerEntry
	for _, id := range s.entryOrder {
		e := s.entries[id]
		if e.TenantID == tenantID && e.FolioID == folioID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (s *Store) AttachBookingPayments(_ context.Context, tenantID, bookingID, folioID string, createdBy *string) ([]domain.BookingPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("AttachBookingPayments"); err != nil {
		return nil, err
	}
	var pending []*domain.BookingPayment
	for _, p := range s.payments {
		if p.TenantID == tenantID && p.BookingID == bookingID && p.FolioID == nil {
			pending = append(pending, p)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.Before(pending[j].CreatedAt) })

	// Payments attach as one unit: a failed post restores the folio and drops the staged entries.
	var before *domain.Folio
	if f, ok := s.folios[folioID]; ok {
		cp := cloneFolio(*f)
		before = &cp
	}
	mark := len(s.entryOrder)
	entryIDs := make([]string, 0, len(pending))
	for _, p := range pending {
		ref := domain.RefBookingPayment
		posted, err := s.postLocked(ports.PostEntry{
			TenantID:      tenantID,
			FolioID:       folioID,
			Kind:          domain.EntryPayment,
			Amount:        p.Amount,
			Description:   "Pre-arrival payment (" + p.Method + ")",
			ReferenceType: &ref,
			ReferenceID:   &p.ID,
			CreatedBy:     createdBy,
		})
		if err != nil {
			for _, id := range s.entryOrder[mark:] {
				delete(s.entries, id)
			}
			s.entryOrder = s.entryOrder[:mark]
			if before != nil {
				*s.folios[folioID] = *before
			}
			return nil, err
		}
		entryIDs = append(entryIDs, posted.Entry.ID)
	}

	out := make([]domain.BookingPayment, 0, len(pending))
	for i, p := range pending {
		fid, eid := folioID, entryIDs[i]
		p.FolioID = &fid
		p.LedgerEntryID = &eid
		out = append(out, *p)
	}
	return out, nil
}

// GroupStore

func (s *Store) MasterFolioByGroup(_ context.Context, tenantID, groupID string) (*domain.Folio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("MasterFolioByGroup"); err != nil {
		return nil, err
	}
	if f := s.masterByGroup(tenantID, groupID); f != nil {
		out := cloneFolio(*f)
		return &out, nil
	}
	return nil, ports.ErrNotFound
}

func (s *Store) masterByGroup(tenantID, groupID string) *domain.Folio {
	for _, f := range s.folios {
		if f.TenantID == tenantID && f.Kind == domain.FolioMaster && f.GroupID != nil && *f.GroupID == groupID {
			return f
		}
	}
	return nil
}

func (s *Store) CreateMasterFolio(_ context.Context, in ports.NewMasterFolio) (*domain.Folio, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateMasterFolio"); err != nil {
		return nil, false, err
	}
	if f := s.masterByGroup(in.TenantID, in.GroupID); f != nil {
		out := cloneFolio(*f)
		return &out, false, nil
	}
	groupID := in.GroupID
	meta := map[string]any{"group_name": in.GroupName, "master_booking_id": in.MasterBookingID}
	if in.GuestID != nil {
		meta["guest_id"] = *in.GuestID
	}
	f := domain.Folio{
		ID:          uuid.NewString(),
		TenantID:    in.TenantID,
		FolioNumber: in.FolioNumber,
		Kind:        domain.FolioMaster,
		GroupID:     &groupID,
		Status:      domain.FolioOpen,
		Currency:    in.Currency,
		Metadata:    meta,
		CreatedAt:   s.now(),
	}
	f.UpdatedAt = f.CreatedAt
	cp := cloneFolio(f)
	s.folios[f.ID] = &cp
	return &f, true, nil
}

func (s *Store) LinkChild(_ context.Context, tenantID, childFolioID, masterFolioID string) (*domain.Folio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("LinkChild"); err != nil {
		return nil, err
	}
	child, ok := s.folios[childFolioID]
	if !ok || child.TenantID != tenantID {
		return nil, ports.ErrNotFound
	}
	master, ok := s.folios[masterFolioID]
	if !ok || master.TenantID != tenantID {
		return nil, ports.ErrNotFound
	}
	mid := master.ID
	child.ParentFolioID = &mid
	child.UpdatedAt = s.now()
	out := cloneFolio(*child)
	return &out, nil
}

func (s *Store) SyncMasterTotals(_ context.Context, tenantID, masterFolioID string) (*domain.Folio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("SyncMasterTotals"); err != nil {
		return nil, err
	}
	master, ok := s.folios[masterFolioID]
	if !ok || master.TenantID != tenantID {
		return nil, ports.ErrNotFound
	}
	var charges, payments int64
	for _, f := range s.folios {
		if f.ParentFolioID != nil && *f.ParentFolioID == masterFolioID {
			charges += f.TotalCharges
			payments += f.TotalPayments
		}
	}
	for _, id := range s.entryOrder {
		e := s.entries[id]
		if e.FolioID != masterFolioID {
			continue
		}
		if e.Kind == domain.EntryPayment {
			payments += e.Amount
		} else {
			charges += e.Amount
		}
	}
	master.TotalCharges = charges
	master.TotalPayments = payments
	master.Balance = charges - payments
	master.UpdatedAt = s.now()
	out := cloneFolio(*master)
	return &out, nil
}

// BookingStore

func (s *Store) GetBooking(_ context.Context, tenantID, bookingID string) (*domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetBooking"); err != nil {
		return nil, err
	}
	b, ok := s.bookings[bookingID]
	if !ok || b.TenantID != tenantID {
		return nil, ports.ErrNotFound
	}
	out := cloneBooking(*b)
	return &out, nil
}

func (s *Store) GetRoom(_ context.Context, tenantID, roomID string) (*domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok || r.TenantID != tenantID {
		return nil, ports.ErrNotFound
	}
	out := *r
	return &out, nil
}

func (s *Store) UpdateBooking(_ context.Context, b domain.Booking) (*domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpdateBooking"); err != nil {
		return nil, err
	}
	cur, ok := s.bookings[b.ID]
	if !ok || cur.TenantID != b.TenantID {
		return nil, ports.ErrNotFound
	}
	b.CreatedAt = cur.CreatedAt
	b.UpdatedAt = s.now()
	cp := cloneBooking(b)
	s.bookings[b.ID] = &cp
	return &b, nil
}

func (s *Store) SetBookingStatus(_ context.Context, tenantID, bookingID string, status domain.BookingStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("SetBookingStatus"); err != nil {
		return err
	}
	b, ok := s.bookings[bookingID]
	if !ok || b.TenantID != tenantID {
		return ports.ErrNotFound
	}
	b.Status = status
	b.UpdatedAt = s.now()
	return nil
}

func (s *Store) RoomConflicts(_ context.Context, tenantID, roomID, excludeBookingID string, checkIn, checkOut time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bookings {
		if b.TenantID != tenantID || b.RoomID != roomID || b.ID == excludeBookingID {
			continue
		}
		if b.Status != domain.BookingReserved && b.Status != domain.BookingCheckedIn {
			continue
		}
		if b.CheckIn.Before(checkOut) && checkIn.Before(b.CheckOut) {
			return true, nil
		}
	}
	return false, nil
}

// ApprovalStore

func (s *Store) StaffByUser(_ context.Context, tenantID, userID string) (*domain.Staff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.staff {
		if st.TenantID == tenantID && st.UserID == userID {
			out := *st
			return &out, nil
		}
	}
	return nil, ports.ErrNotFound
}

func (s *Store) StaffByEmail(_ context.Context, email string) (*domain.Staff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.staff {
		if strings.EqualFold(st.Email, email) {
			out := *st
			return &out, nil
		}
	}
	return nil, ports.ErrNotFound
}

func (s *Store) CompareAndSwapPinState(_ context.Context, staffID string, expected, next domain.PinState) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CompareAndSwapPinState"); err != nil {
		return false, err
	}
	st, ok := s.staff[staffID]
	if !ok {
		return false, ports.ErrNotFound
	}
	if !st.PinState().Equal(expected) {
		return false, nil
	}
	st.PinAttempts = next.Attempts
	st.PinLockedUntil = next.LockedUntil
	st.UpdatedAt = s.now()
	return true, nil
}

func (s *Store) SetManagerPin(_ context.Context, staffID, pinHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.staff[staffID]
	if !ok {
		return ports.ErrNotFound
	}
	st.ManagerPinHash = &pinHash
	st.PinAttempts = 0
	st.PinLockedUntil = nil
	return nil
}

func (s *Store) InsertToken(_ context.Context, t domain.ApprovalToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("InsertToken"); err != nil {
		return err
	}
	if _, exists := s.tokens[t.Token]; exists {
		return ports.ErrDuplicate
	}
	s.tokens[t.Token] = &t
	return nil
}

func (s *Store) ConsumeToken(_ context.Context, in ports.ConsumeToken) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ConsumeToken"); err != nil {
		return false, err
	}
	t, ok := s.tokens[in.Token]
	if !ok || t.ConsumedAt != nil || !t.ExpiresAt.After(in.Now) {
		return false, nil
	}
	if t.TenantID != in.TenantID || t.ActionType != in.ActionType ||
		!equalString(t.ActionReference, in.ActionReference) || !equalInt64(t.Amount, in.Amount) {
		return false, nil
	}
	at := in.Now
	t.ConsumedAt = &at
	return true, nil
}

func (s *Store) ClearTokens(_ context.Context, tenantID, approverID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, t := range s.tokens {
		if t.TenantID == tenantID && t.ApproverID == approverID && t.ConsumedAt == nil {
			delete(s.tokens, k)
			n++
		}
	}
	return n, nil
}

func (s *Store) InsertApprovalLog(_ context.Context, l domain.ApprovalLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("InsertApprovalLog"); err != nil {
		return err
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.now()
	}
	s.approvalLogs = append(s.approvalLogs, l)
	return nil
}

func (s *Store) ListApprovalLogs(_ context.Context, tenantID string, limit int) ([]domain.ApprovalLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ApprovalLog
	for i := len(s.approvalLogs) - 1; i >= 0; i-- {
		if s.approvalLogs[i].TenantID == tenantID {
			out = append(out, s.approvalLogs[i])
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// AuditStore

func (s *Store) AppendAudit(_ context.Context, e domain.AuditEntry) (*domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("AppendAudit"); err != nil {
		return nil, err
	}
	prev := ""
	for i := len(s.audit) - 1; i >= 0; i-- {
		if s.audit[i].TenantID == e.TenantID {
			prev = s.audit[i].Hash
			break
		}
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	e.CreatedAt = e.CreatedAt.UTC().Truncate(time.Microsecond)
	e.PrevHash = prev
	h, err := domain.AuditHash(prev, e)
	if err != nil {
		return nil, err
	}
	e.Hash = h
	e.ID = int64(len(s.audit) + 1)
	s.audit = append(s.audit, e)
	return &e, nil
}

func (s *Store) ListAudit(_ context.Context, tenantID string, f ports.AuditFilter) ([]domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AuditEntry
	for _, e := range s.audit {
		if e.TenantID != tenantID {
			continue
		}
		if f.TableName != "" && e.TableName != f.TableName {
			continue
		}
		if f.RecordID != "" && e.RecordID != f.RecordID {
			continue
		}
		out = append(out, e)
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out, nil
}

// PlatformFeeStore

func (s *Store) WaivableFees(_ context.Context, tenantID, bookingID string) ([]domain.PlatformFee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("WaivableFees"); err != nil {
		return nil, err
	}
	var out []domain.PlatformFee
	for _, f := range s.fees {
		if f.TenantID == tenantID && f.BookingID == bookingID && f.Waivable() {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) WaiveFee(_ context.Context, tenantID, feeID, reason, actorID string) (*domain.PlatformFee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("WaiveFee"); err != nil {
		return nil, err
	}
	f, ok := s.fees[feeID]
	if !ok || f.TenantID != tenantID || !f.Waivable() {
		return nil, ports.ErrNotFound
	}
	now := s.now()
	f.Status = domain.FeeWaived
	f.WaivedReason = &reason
	f.WaivedBy = &actorID
	f.WaivedAt = &now
	out := *f
	return &out, nil
}

func cloneFolio(f domain.Folio) domain.Folio {
	if f.Metadata != nil {
		m := make(map[string]any, len(f.Metadata))
		for k, v := range f.Metadata {
			m[k] = v
		}
		f.Metadata = m
	}
	return f
}

func cloneBooking(b domain.Booking) domain.Booking {
	b.Metadata.Amendments = append([]domain.Amendment(nil), b.Metadata.Amendments...)
	b.Metadata.ExtensionHistory = append([]domain.StayExtension(nil), b.Metadata.ExtensionHistory...)
	return b
}

func equalString(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalInt64(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
