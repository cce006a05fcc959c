package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/waspershola/hospitech-nexus-sub005/internal/domain"
	"github.com/waspershola/hospitech-nexus-sub005/internal/events"
	"github.com/waspershola/hospitech-nexus-sub005/internal/metrics"
	"github.com/waspershola/hospitech-nexus-sub005/internal/ports"
)

const (
	minReasonLength = 10
	maxCASRetries   = 5
)

var errPinStateContention = errors.New("pin state changed concurrently too many times")

// ApprovalService verifies manager PINs and issues single-use approval tokens.
type ApprovalService struct {
	Store  ports.ApprovalStore
	Policy domain.PinPolicy
	Side   SideChannel
	Logger *slog.Logger
	Now    func() time.Time
	// NewToken overrides token generation in tests.
	NewToken func() (string, error)
}

type ValidatePinInput struct {
	Pin             string
	ActionType      string
	ActionReference *string
	Amount          *int64
	Reason          string
}

type Approval struct {
	Token        string
	ExpiresAt    time.Time
	ActionType   domain.ActionType
	ApproverID   string
	ApproverName string
	ApproverRole domain.StaffRole
}

type ConsumeInput struct {
	Token           string
	ActionType      domain.ActionType
	ActionReference *string
	Amount          *int64
}

func (s ApprovalService) policy() domain.PinPolicy {
	if s.Policy.MaxAttempts == 0 {
		return domain.DefaultPinPolicy()
	}
	return s.Policy
}

// Validate checks the caller's manager PIN for one action and mints an approval token on success.
// Failed comparisons advance the lockout state with compare-and-swap so concurrent attempts are all counted.
func (s ApprovalService) Validate(ctx context.Context, actor domain.Actor, in ValidatePinInput) (*Approval, error) {
	if len(strings.TrimSpace(in.Reason)) < minReasonLength {
		return nil, domain.Validation(fmt.Sprintf("reason must be at least %d characters", minReasonLength))
	}
	action, err := domain.ParseActionType(in.ActionType)
	if err != nil {
		return nil, err
	}
	if in.Pin == "" {
		return nil, domain.Validation("pin is required")
	}

	attempt := domain.ApprovalLog{
		TenantID:        actor.TenantID,
		UserID:          actor.UserID,
		ActionType:      action,
		ActionReference: in.ActionReference,
		Amount:          in.Amount,
		Reason:          in.Reason,
	}

	staff, err := s.Store.StaffByUser(ctx, actor.TenantID, actor.UserID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, s.reject(ctx, attempt, domain.Authorization(domain.CodeStaffNotFound, "staff record not found"))
		}
		return nil, domain.External("load staff", err)
	}
	attempt.StaffID = &staff.ID

	if !staff.Role.CanApprove() {
		return nil, s.reject(ctx, attempt, domain.Authorization(domain.CodeInsufficientPermissions, "role is not allowed to approve").
			With("role", string(staff.Role)))
	}
	if staff.ManagerPinHash == nil || *staff.ManagerPinHash == "" {
		return nil, s.reject(ctx, attempt, domain.Authorization(domain.CodePinNotSet, "manager PIN has not been set"))
	}

	p := s.policy()
	var matched *bool
	for try := 0; try < maxCASRetries; try++ {
		if try > 0 {
			staff, err = s.Store.StaffByUser(ctx, actor.TenantID, actor.UserID)
			if err != nil {
				return nil, domain.External("reload staff", err)
			}
		}
		now := nowOr(s.Now)
		state := staff.PinState()

		if state.Locked(now) {
			return nil, s.reject(ctx, attempt, lockedError(state, now))
		}
		if state.LockExpired(now) {
			ok, err := s.Store.CompareAndSwapPinState(ctx, staff.ID, state, state.Reset())
			if err != nil {
				return nil, domain.External("reset pin lock", err)
			}
			if !ok {
				continue
			}
			state = state.Reset()
		}

		if matched == nil {
			m := bcrypt.CompareHashAndPassword([]byte(*staff.ManagerPinHash), []byte(in.Pin)) == nil
			matched = &m
		}

		if !*matched {
			next, locked := state.Fail(now, p)
			ok, err := s.Store.CompareAndSwapPinState(ctx, staff.ID, state, next)
			if err != nil {
				return nil, domain.External("record pin failure", err)
			}
			if !ok {
				continue
			}
			if locked {
				metrics.PinLockouts.Inc()
				s.Side.Notify(ctx, events.Event{
					Type:      events.TypeApprovalLockout,
					TenantID:  actor.TenantID,
					EntityIDs: map[string]any{"staff_id": staff.ID, "user_id": actor.UserID},
					Payload:   map[string]any{"locked_until": next.LockedUntil.UTC(), "action_type": string(action)},
				})
				if s.Logger != nil {
					s.Logger.Warn("manager pin locked", "staff_id", staff.ID, "tenant_id", actor.TenantID, "locked_until", next.LockedUntil)
				}
				return nil, s.reject(ctx, attempt, lockedError(next, now))
			}
			remaining := p.MaxAttempts - next.Attempts
			attempt.AttemptsRemaining = &remaining
			return nil, s.reject(ctx, attempt, domain.Authorization(domain.CodeInvalidPin, "invalid PIN").
				With("attempts_remaining", remaining))
		}

		if !state.Equal(domain.PinState{}) {
			ok, err := s.Store.CompareAndSwapPinState(ctx, staff.ID, state, state.Reset())
			if err != nil {
				return nil, domain.External("reset pin attempts", err)
			}
			if !ok {
				continue
			}
		}
		return s.issue(ctx, actor, staff, action, in, attempt, now, p)
	}
	return nil, domain.External("validate manager pin", errPinStateContention)
}

func (s ApprovalService) issue(ctx context.Context, actor domain.Actor, staff *domain.Staff, action domain.ActionType, in ValidatePinInput, attempt domain.ApprovalLog, now time.Time, p domain.PinPolicy) (*Approval, error) {
	gen := s.NewToken
	if gen == nil {
		gen = randomToken
	}
	token, err := gen()
	if err != nil {
		return nil, domain.External("generate approval token", err)
	}
	t := domain.ApprovalToken{
		Token:           token,
		ApproverID:      staff.UserID,
		TenantID:        actor.TenantID,
		ActionType:      action,
		ActionReference: in.ActionReference,
		Amount:          in.Amount,
		IssuedAt:        now,
		ExpiresAt:       now.Add(p.TokenTTL),
	}
	if err := s.Store.InsertToken(ctx, t); err != nil {
		return nil, domain.External("store approval token", err)
	}

	attempt.Success = true
	s.log(ctx, attempt)
	metrics.PinValidations.WithLabelValues("success").Inc()

	return &Approval{
		Token:        t.Token,
		ExpiresAt:    t.ExpiresAt,
		ActionType:   action,
		ApproverID:   staff.UserID,
		ApproverName: staff.Name,
		ApproverRole: staff.Role,
	}, nil
}

func lockedError(state domain.PinState, now time.Time) *domain.Error {
	mins := state.RemainingMinutes(now)
	return domain.RateLimited(domain.CodeAccountLocked, fmt.Sprintf("too many failed attempts, try again in %d minute(s)", mins)).
		With("remaining_minutes", mins).
		With("locked_until", state.LockedUntil.UTC())
}

// reject writes the failed attempt to the approval log and returns the error.
func (s ApprovalService) reject(ctx context.Context, attempt domain.ApprovalLog, e *domain.Error) error {
	attempt.Success = false
	attempt.ErrorCode = e.Code
	s.log(ctx, attempt)
	metrics.PinValidations.WithLabelValues(e.Code).Inc()
	return e
}

func (s ApprovalService) log(ctx context.Context, l domain.ApprovalLog) {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = nowOr(s.Now)
	}
	if err := s.Store.InsertApprovalLog(ctx, l); err != nil && s.Logger != nil {
		s.Logger.Error("approval log write failed", "tenant_id", l.TenantID, "user_id", l.UserID, "code", l.ErrorCode, "err", err)
	}
}

// Consume spends a token for exactly the bound action. It returns false without side effects
// when the token is unknown, expired, already used, or bound to a different action.
func (s ApprovalService) Consume(ctx context.Context, actor domain.Actor, in ConsumeInput) (bool, error) {
	if strings.TrimSpace(in.Token) == "" {
		metrics.TokensConsumed.WithLabelValues("missing").Inc()
		return false, nil
	}
	ok, err := s.Store.ConsumeToken(ctx, ports.ConsumeToken{
		Token:           in.Token,
		UserID:          actor.UserID,
		TenantID:        actor.TenantID,
		ActionType:      in.ActionType,
		ActionReference: in.ActionReference,
		Amount:          in.Amount,
		Now:             nowOr(s.Now),
	})
	if err != nil {
		return false, domain.External("consume approval token", err)
	}
	if ok {
		metrics.TokensConsumed.WithLabelValues("consumed").Inc()
	} else {
		metrics.TokensConsumed.WithLabelValues("rejected").Inc()
	}
	return ok, nil
}

// Require consumes the token or fails with MANAGER_APPROVAL_REQUIRED.
func (s ApprovalService) Require(ctx context.Context, actor domain.Actor, in ConsumeInput) error {
	ok, err := s.Consume(ctx, actor, in)
	if err != nil {
		return err
	}
	if !ok {
		return domain.Authorization(domain.CodeManagerApprovalRequired, "a valid manager approval token is required").
			With("action_type", string(in.ActionType))
	}
	return nil
}

// Clear drops the caller's outstanding unconsumed tokens.
func (s ApprovalService) Clear(ctx context.Context, actor domain.Actor) (int64, error) {
	n, err := s.Store.ClearTokens(ctx, actor.TenantID, actor.UserID)
	if err != nil {
		return 0, domain.External("clear approval tokens", err)
	}
	return n, nil
}

// SetManagerPin stores a new PIN hash for the caller and unlocks the account.
func (s ApprovalService) SetManagerPin(ctx context.Context, actor domain.Actor, pin string) error {
	if len(pin) < 4 || len(pin) > 8 || strings.Trim(pin, "0123456789") != "" {
		return domain.Validation("pin must be 4 to 8 digits")
	}
	staff, err := s.Store.StaffByUser(ctx, actor.TenantID, actor.UserID)
	if err != nil {
		return storeErr("load staff", domain.CodeStaffNotFound, err)
	}
	if !staff.Role.CanApprove() {
		return domain.Authorization(domain.CodeInsufficientPermissions, "role is not allowed to approve")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash pin: %w", err)
	}
	if err := s.Store.SetManagerPin(ctx, staff.ID, string(hash)); err != nil {
		return domain.External("save manager pin", err)
	}
	return nil
}

func (s ApprovalService) Logs(ctx context.Context, actor domain.Actor, limit int) ([]domain.ApprovalLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	logs, err := s.Store.ListApprovalLogs(ctx, actor.TenantID, limit)
	if err != nil {
		return nil, domain.External("list approval logs", err)
	}
	return logs, nil
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
