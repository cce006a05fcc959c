package domain

import (
	"strings"
	"time"
)

type ActionType string

const (
	ActionOverpayment        ActionType = "overpayment"
	ActionUnderpayment       ActionType = "underpayment"
	ActionRebate             ActionType = "rebate"
	ActionRoomRebate         ActionType = "room_rebate"
	ActionForceCancel        ActionType = "force_cancel"
	ActionWriteOff           ActionType = "write_off"
	ActionRefund             ActionType = "refund"
	ActionTransferCharge     ActionType = "transfer_charge"
	ActionSplitCharge        ActionType = "split_charge"
	ActionMergeFolio         ActionType = "merge_folio"
	ActionReverseTransaction ActionType = "reverse_transaction"
	ActionStockAdjustment    ActionType = "stock_adjustment"
	ActionCheckoutWithDebt   ActionType = "checkout_with_debt"
	ActionManualRateOverride ActionType = "manual_rate_override"
)

var actionTypes = map[ActionType]struct{}{
	ActionOverpayment:        {},
	ActionUnderpayment:       {},
	ActionRebate:             {},
	ActionRoomRebate:         {},
	ActionForceCancel:        {},
	ActionWriteOff:           {},
	ActionRefund:             {},
	ActionTransferCharge:     {},
	ActionSplitCharge:        {},
	ActionMergeFolio:         {},
	ActionReverseTransaction: {},
	ActionStockAdjustment:    {},
	ActionCheckoutWithDebt:   {},
	ActionManualRateOverride: {},
}

// ParseActionType validates and normalizes an action type. room_rebate is an alias of rebate.
func ParseActionType(s string) (ActionType, error) {
	a := ActionType(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := actionTypes[a]; !ok {
		return "", NewError(KindValidation, CodeInvalidActionType, "unsupported action type: "+s)
	}
	if a == ActionRoomRebate {
		return ActionRebate, nil
	}
	return a, nil
}

// PinPolicy holds the lockout parameters of manager PIN validation.
type PinPolicy struct {
	MaxAttempts  int
	LockDuration time.Duration
	TokenTTL     time.Duration
}

func DefaultPinPolicy() PinPolicy {
	return PinPolicy{MaxAttempts: 3, LockDuration: 15 * time.Minute, TokenTTL: 10 * time.Minute}
}

// PinState is the per-staff lockout state: UNLOCKED(attempts) or LOCKED(until).
type PinState struct {
	Attempts    int
	LockedUntil *time.Time
}

func (s PinState) Locked(now time.Time) bool {
	return s.LockedUntil != nil && s.LockedUntil.After(now)
}

// LockExpired reports a lock window that has elapsed but was not yet cleared.
func (s PinState) LockExpired(now time.Time) bool {
	return s.LockedUntil != nil && !s.LockedUntil.After(now)
}

// RemainingMinutes rounds the remaining lock time up to whole minutes.
func (s PinState) RemainingMinutes(now time.Time) int {
	if !s.Locked(now) {
		return 0
	}
	d := s.LockedUntil.Sub(now)
	mins := int(d / time.Minute)
	if d%time.Minute != 0 {
		mins++
	}
	return mins
}

// Reset returns the UNLOCKED(0) state.
func (s PinState) Reset() PinState {
	return PinState{}
}

// Fail applies one failed comparison. The returned bool is true when the failure locks the account.
func (s PinState) Fail(now time.Time, p PinPolicy) (PinState, bool) {
	next := PinState{Attempts: s.Attempts + 1}
	if next.Attempts >= p.MaxAttempts {
		until := now.Add(p.LockDuration)
		next.Attempts = p.MaxAttempts
		next.LockedUntil = &until
		return next, true
	}
	return next, false
}

// Equal compares two states, treating lock times at the same instant as equal.
func (s PinState) Equal(o PinState) bool {
	if s.Attempts != o.Attempts {
		return false
	}
	if s.LockedUntil == nil || o.LockedUntil == nil {
		return s.LockedUntil == nil && o.LockedUntil == nil
	}
	return s.LockedUntil.Equal(*o.LockedUntil)
}
