package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so the transport layer can pick a remediation path.
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindAuthorization ErrorKind = "authorization"
	KindState         ErrorKind = "state"
	KindConflict      ErrorKind = "conflict"
	KindRateLimit     ErrorKind = "rate_limit"
	KindExternal      ErrorKind = "external"
)

// Machine-readable error codes returned to clients.
const (
	CodeValidationFailed        = "VALIDATION_FAILED"
	CodeFolioNotFound           = "FOLIO_NOT_FOUND"
	CodeFolioNotOpen            = "FOLIO_NOT_OPEN"
	CodeTenantMismatch          = "TENANT_MISMATCH"
	CodeBookingNotFound         = "BOOKING_NOT_FOUND"
	CodeRoomNotFound            = "ROOM_NOT_FOUND"
	CodeInvalidBookingStatus    = "INVALID_BOOKING_STATUS"
	CodeNoOpenFolio             = "NO_OPEN_FOLIO"
	CodeRoomConflict            = "ROOM_CONFLICT"
	CodeDuplicateFolio          = "DUPLICATE_FOLIO"
	CodeFolioOutstandingBalance = "FOLIO_OUTSTANDING_BALANCE"
	CodeManagerApprovalRequired = "MANAGER_APPROVAL_REQUIRED"
	CodeInvalidPin              = "INVALID_PIN"
	CodeAccountLocked           = "ACCOUNT_LOCKED"
	CodePinNotSet               = "PIN_NOT_SET"
	CodeInsufficientPermissions = "INSUFFICIENT_PERMISSIONS"
	CodeStaffNotFound           = "STAFF_NOT_FOUND"
	CodeGroupNotFound           = "GROUP_NOT_FOUND"
	CodeEntryNotFound           = "ENTRY_NOT_FOUND"
	CodeInvalidActionType       = "INVALID_ACTION_TYPE"
	CodeExternal                = "EXTERNAL_ERROR"
)

// Error is the typed failure returned by services.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// With attaches a detail value and returns the same error.
func (e *Error) With(key string, value any) *Error {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details[key] = value
	return e
}

func NewError(kind ErrorKind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Validation(message string) *Error {
	return NewError(KindValidation, CodeValidationFailed, message)
}

func Authorization(code, message string) *Error {
	return NewError(KindAuthorization, code, message)
}

func State(code, message string) *Error {
	return NewError(KindState, code, message)
}

func Conflict(code, message string) *Error {
	return NewError(KindConflict, code, message)
}

func RateLimited(code, message string) *Error {
	return NewError(KindRateLimit, code, message)
}

// External wraps an unexpected backing-store or transport failure.
func External(op string, err error) *Error {
	return &Error{Kind: KindExternal, Code: CodeExternal, Message: op + " failed", Err: err}
}

// AsError extracts a *Error from err.
func AsError(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	de, ok := AsError(err)
	return ok && de.Code == code
}
