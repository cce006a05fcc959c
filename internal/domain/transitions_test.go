package domain

import (
	"testing"
	"time"
)

func TestValidBookingTransition(t *testing.T) {
	cases := []struct {
		from BookingStatus
		to   BookingStatus
		ok   bool
	}{
		{BookingReserved, BookingCheckedIn, true},
		{BookingReserved, BookingCancelled, true},
		{BookingCheckedIn, BookingCheckedOut, true},
		{BookingCheckedIn, BookingCancelled, true},
		{BookingCheckedOut, BookingCheckedIn, false},
		{BookingCancelled, BookingReserved, false},
		{BookingReserved, BookingCheckedOut, false},
	}
	for _, c := range cases {
		if got := ValidBookingTransition(c.from, c.to); got != c.ok {
			t.Fatalf("%s -> %s: expected %v, got %v", c.from, c.to, c.ok, got)
		}
	}
}

func TestValidFolioTransition(t *testing.T) {
	if !ValidFolioTransition(FolioOpen, FolioCancelled) {
		t.Fatal("open folio should be cancellable")
	}
	if ValidFolioTransition(FolioClosed, FolioOpen) {
		t.Fatal("closed folio must not reopen")
	}
}

func TestNightsBetween(t *testing.T) {
	in := time.Date(2026, 5, 1, 14, 0, 0, 0, time.UTC)
	out := time.Date(2026, 5, 4, 11, 0, 0, 0, time.UTC)
	if n := NightsBetween(in, out); n != 3 {
		t.Fatalf("expected 3 nights, got %d", n)
	}
	if !(Folio{TotalCharges: 100, TotalPayments: 40, Balance: 60}).Consistent() {
		t.Fatal("expected consistent folio")
	}
}
