package domain

import "time"

const (
	// CancellationWindow is both the beneficiary's grace period after booking
	// an event and the freeze period before the event starts.
	CancellationWindow = 48 * time.Hour

	// MarkAsUsedFloor: a confirmed event booking can only be manually marked
	// used starting this long before the event.
	MarkAsUsedFloor = 72 * time.Hour

	// AutoUseDelay: the auto-validation job marks event bookings used once
	// the event began at least this long ago. Asymmetric with
	// MarkAsUsedFloor on purpose; both values are carried over as-is.
	AutoUseDelay = 48 * time.Hour

	// ArchiveAfter: auto-consumed digital bookings older than this are
	// flagged as ended for display purposes.
	ArchiveAfter = 30 * 24 * time.Hour
)

// CancellationLimitDate computes when a beneficiary loses the right to
// cancel. Nil for non-event offers (never time-limited). Events booked less
// than 48h before they begin are non-cancellable from the start.
func CancellationLimitDate(eventBeginning *time.Time, bookingCreation time.Time) *time.Time {
	if eventBeginning == nil {
		return nil
	}
	if eventBeginning.Sub(bookingCreation) < CancellationWindow {
		limit := bookingCreation
		return &limit
	}
	graceEnd := bookingCreation.Add(CancellationWindow)
	freezeStart := eventBeginning.Add(-CancellationWindow)
	limit := graceEnd
	if freezeStart.Before(graceEnd) {
		limit = freezeStart
	}
	return &limit
}
