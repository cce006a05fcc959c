package ports

import (
	"context"
	"errors"
	"time"

	"github.com/waspershola/hospitech-nexus-sub005/internal/domain"
)

// HealthChecker is used to probe dependencies.
type HealthChecker interface {
	Health(ctx context.Context) error
}

var (
	// ErrNotFound is returned when a record does not exist for the tenant.
	ErrNotFound = errors.New("not found")
	// ErrFolioNotOpen is returned by postings against a closed or cancelled folio.
	ErrFolioNotOpen = errors.New("folio not open")
	// ErrTenantMismatch is returned when the caller's tenant does not own the folio.
	ErrTenantMismatch = errors.New("tenant mismatch")
	// ErrDuplicate is returned on unique constraint violations.
	ErrDuplicate = errors.New("duplicate record")
)

type PostEntry struct {
	TenantID      string
	FolioID       string
	Kind          domain.EntryKind
	Amount        int64
	Description   string
	ReferenceType *string
	ReferenceID   *string
	Department    *string
	CreatedBy     *string
}

// PostedEntry is the entry written by a posting together with the folio totals after it.
type PostedEntry struct {
	Entry domain.LedgerEntry
	Folio domain.Folio
}

// FolioStore owns folios and their ledger entries. PostEntry must lock the folio row,
// check status and tenant, apply the delta and insert the entry as one atomic unit.
type FolioStore interface {
	GetFolio(ctx context.Context, tenantID, folioID string) (*domain.Folio, error)
	OpenFolioForBooking(ctx context.Context, tenantID, bookingID string) (*domain.Folio, error)
	// LatestRoomFolio returns the booking's most recent room folio in any status.
	LatestRoomFolio(ctx context.Context, tenantID, bookingID string) (*domain.Folio, error)
	NextFolioNumber(ctx context.Context, tenantID string) (string, error)
	CreateFolio(ctx context.Context, f domain.Folio) (*domain.Folio, error)
	DeleteFolio(ctx context.Context, tenantID, folioID string) error
	SetFolioStatus(ctx context.Context, tenantID, folioID string, status domain.FolioStatus, metadata map[string]any) (*domain.Folio, error)
	PostEntry(ctx context.Context, in PostEntry) (*PostedEntry, error)
	GetEntry(ctx context.Context, tenantID, entryID string) (*domain.LedgerEntry, error)
	ListEntries(ctx context.Context, tenantID, folioID string) ([]domain.LedgerEntry, error)
	AttachBookingPayments(ctx context.Context, tenantID, bookingID, folioID string, createdBy *string) ([]domain.BookingPayment, error)
}

type NewMasterFolio struct {
	TenantID        string
	GroupID         string
	MasterBookingID string
	GuestID         *string
	GroupName       string
	FolioNumber     string
	Currency        string
}

// GroupStore keeps master folio totals derived from their children.
type GroupStore interface {
	MasterFolioByGroup(ctx context.Context, tenantID, groupID string) (*domain.Folio, error)
	// CreateMasterFolio returns the existing master and false when one already exists for the group.
	CreateMasterFolio(ctx context.Context, in NewMasterFolio) (*domain.Folio, bool, error)
	LinkChild(ctx context.Context, tenantID, childFolioID, masterFolioID string) (*domain.Folio, error)
	SyncMasterTotals(ctx context.Context, tenantID, masterFolioID string) (*domain.Folio, error)
}

type BookingStore interface {
	GetBooking(ctx context.Context, tenantID, bookingID string) (*domain.Booking, error)
	GetRoom(ctx context.Context, tenantID, roomID string) (*domain.Room, error)
	UpdateBooking(ctx context.Context, b domain.Booking) (*domain.Booking, error)
	SetBookingStatus(ctx context.Context, tenantID, bookingID string, status domain.BookingStatus) error
	// RoomConflicts reports reserved or checked-in bookings on the room overlapping [checkIn, checkOut).
	RoomConflicts(ctx context.Context, tenantID, roomID, excludeBookingID string, checkIn, checkOut time.Time) (bool, error)
}

type ConsumeToken struct {
	Token           string
	UserID          string
	TenantID        string
	ActionType      domain.ActionType
	ActionReference *string
	Amount          *int64
	Now             time.Time
}

// ApprovalStore persists staff PIN state, approval tokens and the approval log.
type ApprovalStore interface {
	StaffByUser(ctx context.Context, tenantID, userID string) (*domain.Staff, error)
	// CompareAndSwapPinState applies next only if the stored state still equals expected.
	CompareAndSwapPinState(ctx context.Context, staffID string, expected, next domain.PinState) (bool, error)
	SetManagerPin(ctx context.Context, staffID, pinHash string) error
	InsertToken(ctx context.Context, t domain.ApprovalToken) error
	// ConsumeToken marks a matching, live, unconsumed token consumed. It reports false otherwise.
	ConsumeToken(ctx context.Context, in ConsumeToken) (bool, error)
	ClearTokens(ctx context.Context, tenantID, approverID string) (int64, error)
	InsertApprovalLog(ctx context.Context, l domain.ApprovalLog) error
	ListApprovalLogs(ctx context.Context, tenantID string, limit int) ([]domain.ApprovalLog, error)
}

// StaffDirectory resolves staff for sign-in.
type StaffDirectory interface {
	StaffByEmail(ctx context.Context, email string) (*domain.Staff, error)
	StaffByUser(ctx context.Context, tenantID, userID string) (*domain.Staff, error)
}

type AuditFilter struct {
	TableName string
	RecordID  string
	Limit     int
}

// AuditStore appends hash-chained audit entries; entries are never updated.
type AuditStore interface {
	AppendAudit(ctx context.Context, e domain.AuditEntry) (*domain.AuditEntry, error)
	ListAudit(ctx context.Context, tenantID string, f AuditFilter) ([]domain.AuditEntry, error)
}

type PlatformFeeStore interface {
	WaivableFees(ctx context.Context, tenantID, bookingID string) ([]domain.PlatformFee, error)
	WaiveFee(ctx context.Context, tenantID, feeID, reason, actorID string) (*domain.PlatformFee, error)
}
