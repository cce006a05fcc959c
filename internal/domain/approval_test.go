package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseActionType(t *testing.T) {
	a, err := ParseActionType("force_cancel")
	require.NoError(t, err)
	assert.Equal(t, ActionForceCancel, a)

	a, err = ParseActionType(" Room_Rebate ")
	require.NoError(t, err)
	assert.Equal(t, ActionRebate, a)

	_, err = ParseActionType("free_money")
	require.Error(t, err)
	assert.True(t, HasCode(err, CodeInvalidActionType))
}

func TestPinStateFailLocksOnThirdAttempt(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	p := DefaultPinPolicy()

	s := PinState{}
	s, locked := s.Fail(now, p)
	assert.False(t, locked)
	assert.Equal(t, 1, s.Attempts)

	s, locked = s.Fail(now, p)
	assert.False(t, locked)
	assert.Equal(t, 2, s.Attempts)

	s, locked = s.Fail(now, p)
	require.True(t, locked)
	require.NotNil(t, s.LockedUntil)
	assert.Equal(t, now.Add(15*time.Minute), *s.LockedUntil)
	assert.True(t, s.Locked(now.Add(14*time.Minute)))
	assert.False(t, s.Locked(now.Add(15*time.Minute)))
	assert.True(t, s.LockExpired(now.Add(16*time.Minute)))
}

func TestPinStateRemainingMinutesRoundsUp(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	until := now.Add(4*time.Minute + time.Second)
	s := PinState{Attempts: 3, LockedUntil: &until}
	assert.Equal(t, 5, s.RemainingMinutes(now))
	assert.Equal(t, 0, PinState{}.RemainingMinutes(now))
}

func TestPinStateEqual(t *testing.T) {
	a := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	b := a.In(time.FixedZone("WIB", 7*3600))
	assert.True(t, PinState{Attempts: 3, LockedUntil: &a}.Equal(PinState{Attempts: 3, LockedUntil: &b}))
	assert.False(t, PinState{Attempts: 3, LockedUntil: &a}.Equal(PinState{Attempts: 3}))
	assert.True(t, PinState{}.Equal(PinState{}))
}

func TestStaffRoleCanApprove(t *testing.T) {
	for _, r := range []StaffRole{RoleOwner, RoleManager, RoleFinanceManager, RoleAccounting} {
		assert.True(t, r.CanApprove(), r)
	}
	assert.False(t, RoleFrontDesk.CanApprove())
	assert.False(t, RoleHousekeeping.CanApprove())
}

func TestAuditChainVerifies(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	var entries []AuditEntry
	prev := ""
	for i, action := range []string{AuditCreate, AuditUpdate, AuditWaive} {
		e := AuditEntry{
			TenantID:  "t1",
			TableName: "folios",
			RecordID:  "f1",
			Action:    action,
			UserID:    "u1",
			After:     map[string]any{"step": i},
			CreatedAt: now.Add(time.Duration(i) * time.Second),
			PrevHash:  prev,
		}
		h, err := AuditHash(prev, e)
		require.NoError(t, err)
		e.Hash = h
		prev = h
		entries = append(entries, e)
	}
	assert.Equal(t, -1, VerifyAuditChain(entries))

	entries[1].After = map[string]any{"step": 99}
	assert.Equal(t, 1, VerifyAuditChain(entries))
}
