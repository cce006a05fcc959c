package domain

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingReserved:   {BookingCheckedIn, BookingCancelled},
	BookingCheckedIn:  {BookingCheckedOut, BookingCancelled},
	BookingCheckedOut: {},
	BookingCancelled:  {},
}

// ValidBookingTransition reports whether a booking may move from one status to another.
func ValidBookingTransition(from, to BookingStatus) bool {
	for _, s := range bookingTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

var folioTransitions = map[FolioStatus][]FolioStatus{
	FolioOpen:      {FolioClosed, FolioCancelled},
	FolioClosed:    {},
	FolioCancelled: {},
}

func ValidFolioTransition(from, to FolioStatus) bool {
	for _, s := range folioTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
