package domain

import "time"

// Enumerations
const (
	RoleOwner          StaffRole = "owner"
	RoleManager        StaffRole = "manager"
	RoleFinanceManager StaffRole = "finance_manager"
	RoleAccounting     StaffRole = "accounting"
	RoleFrontDesk      StaffRole = "front_desk"
	RoleHousekeeping   StaffRole = "housekeeping"

	FolioRoom   FolioKind = "room"
	FolioMaster FolioKind = "master"

	FolioOpen      FolioStatus = "open"
	FolioClosed    FolioStatus = "closed"
	FolioCancelled FolioStatus = "cancelled"

	EntryCharge  EntryKind = "charge"
	EntryCredit  EntryKind = "credit"
	EntryPayment EntryKind = "payment"

	BookingReserved   BookingStatus = "reserved"
	BookingCheckedIn  BookingStatus = "checked_in"
	BookingCheckedOut BookingStatus = "checked_out"
	BookingCancelled  BookingStatus = "cancelled"

	FeePending PlatformFeeStatus = "pending"
	FeeBilled  PlatformFeeStatus = "billed"
	FeePaid    PlatformFeeStatus = "paid"
	FeeWaived  PlatformFeeStatus = "waived"
)

// Ledger reference types written by the orchestrator.
const (
	RefRoomCharge            = "room_charge"
	RefBookingPayment        = "booking_payment"
	RefBookingAmendment      = "booking_amendment"
	RefBookingAmendReversal  = "booking_amendment_reversal"
	RefStayExtension         = "stay_extension"
	RefStayExtensionReversal = "stay_extension_reversal"
	RefFolioAdjustment       = "folio_adjustment"
)

type StaffRole string
type FolioKind string
type FolioStatus string
type EntryKind string
type BookingStatus string
type PlatformFeeStatus string

// ApproverRoles may validate a manager PIN.
var ApproverRoles = []StaffRole{RoleOwner, RoleManager, RoleFinanceManager, RoleAccounting}

func (r StaffRole) CanApprove() bool {
	for _, a := range ApproverRoles {
		if r == a {
			return true
		}
	}
	return false
}

type Money struct {
	Amount   int64
	Currency string
}

type Folio struct {
	ID            string         `json:"id"`
	TenantID      string         `json:"tenant_id"`
	BookingID     *string        `json:"booking_id,omitempty"`
	FolioNumber   string         `json:"folio_number"`
	Kind          FolioKind      `json:"kind"`
	ParentFolioID *string        `json:"parent_folio_id,omitempty"`
	GroupID       *string        `json:"group_id,omitempty"`
	Status        FolioStatus    `json:"status"`
	TotalCharges  int64          `json:"total_charges"`
	TotalPayments int64          `json:"total_payments"`
	Balance       int64          `json:"balance"`
	Currency      string         `json:"currency"`
	Metadata      map[string]any `json:"metadata"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Consistent reports whether the stored balance matches charges minus payments.
func (f Folio) Consistent() bool {
	return f.Balance == f.TotalCharges-f.TotalPayments
}

type LedgerEntry struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenant_id"`
	FolioID       string    `json:"folio_id"`
	Kind          EntryKind `json:"kind"`
	Amount        int64     `json:"amount"`
	Description   string    `json:"description"`
	ReferenceType *string   `json:"reference_type,omitempty"`
	ReferenceID   *string   `json:"reference_id,omitempty"`
	Department    *string   `json:"department,omitempty"`
	CreatedBy     *string   `json:"created_by,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type Room struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Number   string `json:"number"`
	Rate     int64  `json:"rate"`
}

type Booking struct {
	ID          string          `json:"id"`
	TenantID    string          `json:"tenant_id"`
	RoomID      string          `json:"room_id"`
	GuestID     *string         `json:"guest_id,omitempty"`
	CheckIn     time.Time       `json:"check_in"`
	CheckOut    time.Time       `json:"check_out"`
	Status      BookingStatus   `json:"status"`
	TotalAmount int64           `json:"total_amount"`
	NightlyRate int64           `json:"nightly_rate"`
	Metadata    BookingMetadata `json:"metadata"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Nights counts whole nights between check-in and check-out dates.
func (b Booking) Nights() int {
	return NightsBetween(b.CheckIn, b.CheckOut)
}

type BookingMetadata struct {
	GroupID          *string           `json:"group_id,omitempty"`
	Amendments       []Amendment       `json:"amendments,omitempty"`
	ExtensionHistory []StayExtension   `json:"extension_history,omitempty"`
	Cancellation     *CancellationNote `json:"cancellation,omitempty"`
	Extra            map[string]any    `json:"extra,omitempty"`
}

type Amendment struct {
	AmendedAt        time.Time `json:"amended_at"`
	AmendedBy        string    `json:"amended_by"`
	Reason           string    `json:"reason"`
	PreviousCheckIn  time.Time `json:"previous_check_in"`
	PreviousCheckOut time.Time `json:"previous_check_out"`
	PreviousRoomID   string    `json:"previous_room_id"`
	PreviousTotal    int64     `json:"previous_total"`
	NewCheckIn       time.Time `json:"new_check_in"`
	NewCheckOut      time.Time `json:"new_check_out"`
	NewRoomID        string    `json:"new_room_id"`
	NewTotal         int64     `json:"new_total"`
	EffectiveRate    int64     `json:"effective_rate"`
	PriceDifference  int64     `json:"price_difference"`
}

type StayExtension struct {
	ExtendedAt        time.Time `json:"extended_at"`
	ExtendedBy        string    `json:"extended_by"`
	Reason            string    `json:"reason"`
	PreviousCheckOut  time.Time `json:"previous_check_out"`
	NewCheckOut       time.Time `json:"new_check_out"`
	AdditionalNights  int       `json:"additional_nights"`
	AdditionalCharges int64     `json:"additional_charges"`
	LedgerEntryID     string    `json:"ledger_entry_id"`
}

type CancellationNote struct {
	CancelledAt time.Time `json:"cancelled_at"`
	CancelledBy string    `json:"cancelled_by"`
	Reason      string    `json:"reason,omitempty"`
	Forced      bool      `json:"forced"`
}

type Staff struct {
	ID             string
	UserID         string
	TenantID       string
	Name           string
	Email          string
	Role           StaffRole
	PasswordHash   *string
	ManagerPinHash *string
	PinAttempts    int
	PinLockedUntil *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PinState returns the approval lockout part of the staff record.
func (s Staff) PinState() PinState {
	return PinState{Attempts: s.PinAttempts, LockedUntil: s.PinLockedUntil}
}

type ApprovalToken struct {
	Token           string
	ApproverID      string
	TenantID        string
	ActionType      ActionType
	ActionReference *string
	Amount          *int64
	IssuedAt        time.Time
	ExpiresAt       time.Time
	ConsumedAt      *time.Time
}

type ApprovalLog struct {
	ID                string
	TenantID          string
	StaffID           *string
	UserID            string
	ActionType        ActionType
	ActionReference   *string
	Amount            *int64
	Reason            string
	Success           bool
	ErrorCode         string
	AttemptsRemaining *int
	CreatedAt         time.Time
}

type AuditEntry struct {
	ID        int64
	TenantID  string
	TableName string
	RecordID  string
	Action    string
	UserID    string
	Before    any
	After     any
	PrevHash  string
	Hash      string
	CreatedAt time.Time
}

type PlatformFee struct {
	ID           string            `json:"id"`
	TenantID     string            `json:"tenant_id"`
	BookingID    string            `json:"booking_id"`
	Amount       int64             `json:"amount"`
	Status       PlatformFeeStatus `json:"status"`
	WaivedReason *string           `json:"waived_reason,omitempty"`
	WaivedBy     *string           `json:"waived_by,omitempty"`
	WaivedAt     *time.Time        `json:"waived_at,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// Waivable reports whether the fee can still be waived.
func (f PlatformFee) Waivable() bool {
	return f.Status == FeePending || f.Status == FeeBilled
}

type BookingPayment struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenant_id"`
	BookingID     string    `json:"booking_id"`
	Amount        int64     `json:"amount"`
	Method        string    `json:"method"`
	FolioID       *string   `json:"folio_id,omitempty"`
	LedgerEntryID *string   `json:"ledger_entry_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// NightsBetween counts calendar nights between two dates, ignoring time of day.
func NightsBetween(from, to time.Time) int {
	a := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}
