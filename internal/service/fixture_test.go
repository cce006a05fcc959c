package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/waspershola/hospitech-nexus-sub005/internal/domain"
	"github.com/waspershola/hospitech-nexus-sub005/internal/events"
	"github.com/waspershola/hospitech-nexus-sub005/internal/repository/memstore"
)

const (
	testTenant = "tenant-1"
	managerPin = "2468"
	roomRate   = int64(20000)
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store  *memstore.Store
	events *events.Recorder
	clock  *testClock

	ledger      LedgerService
	groups      GroupService
	approvals   ApprovalService
	bookings    BookingService
	adjustments AdjustmentService

	desk    domain.Actor
	manager domain.Actor
	staffID string
	room    domain.Room
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := &testClock{now: time.Date(2026, 5, 10, 14, 0, 0, 0, time.UTC)}
	store := memstore.New()
	store.SetClock(clock.Now)
	rec := &events.Recorder{}

	hash, err := bcrypt.GenerateFromPassword([]byte(managerPin), bcrypt.MinCost)
	require.NoError(t, err)
	pinHash := string(hash)

	mgr := store.AddStaff(domain.Staff{
		UserID: "user-manager", TenantID: testTenant, Name: "Ada Manager",
		Email: "ada@hotel.test", Role: domain.RoleManager, ManagerPinHash: &pinHash,
	})
	store.AddStaff(domain.Staff{
		UserID: "user-desk", TenantID: testTenant, Name: "Desk Clerk",
		Email: "desk@hotel.test", Role: domain.RoleFrontDesk,
	})
	room := store.AddRoom(domain.Room{TenantID: testTenant, Number: "101", Rate: roomRate})

	side := SideChannel{Events: rec, Logger: logger}
	audit := AuditRecorder{Store: store}
	ledger := LedgerService{Folios: store, Logger: logger}
	groups := GroupService{Folios: store, Groups: store, Audit: audit, Logger: logger, Currency: "NGN"}
	approvals := ApprovalService{Store: store, Policy: domain.DefaultPinPolicy(), Side: side, Logger: logger, Now: clock.Now}

	return &fixture{
		store:     store,
		events:    rec,
		clock:     clock,
		ledger:    ledger,
		groups:    groups,
		approvals: approvals,
		bookings: BookingService{
			Bookings: store, Folios: store, Fees: store,
			Ledger: ledger, Groups: groups, Approvals: approvals,
			Audit: audit, Side: side, Logger: logger, Currency: "NGN", Now: clock.Now,
		},
		adjustments: AdjustmentService{Ledger: ledger, Approvals: approvals, Audit: audit, Side: side, Logger: logger},
		desk:        domain.Actor{UserID: "user-desk", TenantID: testTenant, Role: domain.RoleFrontDesk},
		manager:     domain.Actor{UserID: "user-manager", TenantID: testTenant, Role: domain.RoleManager},
		staffID:     mgr.ID,
		room:        room,
	}
}

// reservation seeds a reserved booking in the fixture room.
func (f *fixture) reservation(nights int, rate int64) domain.Booking {
	in := f.clock.Now().Truncate(24 * time.Hour)
	return f.store.AddBooking(domain.Booking{
		TenantID:    testTenant,
		RoomID:      f.room.ID,
		CheckIn:     in,
		CheckOut:    in.AddDate(0, 0, nights),
		Status:      domain.BookingReserved,
		NightlyRate: rate,
		TotalAmount: int64(nights) * rate,
	})
}

func (f *fixture) checkedIn(t *testing.T, nights int, rate int64) (domain.Booking, domain.Folio) {
	t.Helper()
	b := f.reservation(nights, rate)
	res, err := f.bookings.CheckIn(context.Background(), f.desk, b.ID)
	require.NoError(t, err)
	return f.store.Booking(b.ID), res.Folio
}

func (f *fixture) approve(t *testing.T, action domain.ActionType, ref string, amount int64) string {
	t.Helper()
	a, err := f.approvals.Validate(context.Background(), f.manager, ValidatePinInput{
		Pin:             managerPin,
		ActionType:      string(action),
		ActionReference: &ref,
		Amount:          &amount,
		Reason:          "approved at the front desk",
	})
	require.NoError(t, err)
	return a.Token
}

func (f *fixture) folio(t *testing.T, id string) domain.Folio {
	t.Helper()
	fo, ok := f.store.Folio(id)
	require.True(t, ok, "folio %s missing", id)
	return fo
}

func requireCode(t *testing.T, err error, code string) *domain.Error {
	t.Helper()
	require.Error(t, err)
	de, ok := domain.AsError(err)
	require.True(t, ok, "expected domain error, got %v", err)
	require.Equal(t, code, de.Code, de.Message)
	return de
}
