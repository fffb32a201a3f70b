// Package finance emits the FinanceEvent records that feed the pricing
// engine. The engine itself is a separate system; the only contract here is
// inserting events with the right motive and status, and reversing them
// explicitly instead of deleting ledger history.
package finance

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/cultpass/bookings/internal/domain"
)

// Ledger is what the emitter needs from the storage transaction it runs in.
type Ledger interface {
	InsertFinanceEvent(ctx context.Context, event *domain.FinanceEvent) error
	LatestUseFinanceEvent(ctx context.Context, bookingID uuid.UUID) (*domain.FinanceEvent, error)
	SetFinanceEventStatus(ctx context.Context, eventID uuid.UUID, status domain.FinanceEventStatus) error
	CancelPricingsForBooking(ctx context.Context, bookingID uuid.UUID) error
}

type Emitter struct{}

// statusForMotive: use events are priced, reversal events are recorded but
// never priced.
func statusForMotive(motive domain.FinanceEventMotive) domain.FinanceEventStatus {
	switch motive {
	case domain.MotiveBookingUsed, domain.MotiveBookingUsedAfterCancellation:
		return domain.FinanceEventStatusPending
	default:
		return domain.FinanceEventStatusNotToBePriced
	}
}

// AddEvent records a billable fact for a booking transition within the
// caller's transaction.
func (Emitter) AddEvent(ctx context.Context, tx Ledger, booking *domain.Booking, motive domain.FinanceEventMotive, now time.Time) (*domain.FinanceEvent, error) {
	valueDate := now
	if booking.DateUsed != nil {
		valueDate = *booking.DateUsed
	}
	event := &domain.FinanceEvent{
		ID:        uuid.New(),
		BookingID: booking.ID,
		Motive:    motive,
		Status:    statusForMotive(motive),
		ValueDate: valueDate,
		CreatedAt: now,
	}
	if err := tx.InsertFinanceEvent(ctx, event); err != nil {
		return nil, errors.Wrap(err, "insert finance event")
	}
	return event, nil
}

// ReverseUseEvent unwinds a previously emitted USE event: the original event
// and any derived pricings become CANCELLED, and a reversal event with the
// given motive is recorded with status NOT_TO_BE_PRICED. Used when a used
// booking is un-used or fraud-cancelled.
func (e Emitter) ReverseUseEvent(ctx context.Context, tx Ledger, booking *domain.Booking, reversalMotive domain.FinanceEventMotive, now time.Time) error {
	useEvent, err := tx.LatestUseFinanceEvent(ctx, booking.ID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return errors.Wrap(err, "load use event")
	}
	if useEvent != nil {
		if err := tx.SetFinanceEventStatus(ctx, useEvent.ID, domain.FinanceEventStatusCancelled); err != nil {
			return errors.Wrap(err, "cancel use event")
		}
	}
	if err := tx.CancelPricingsForBooking(ctx, booking.ID); err != nil {
		return errors.Wrap(err, "cancel pricings")
	}
	_, err = e.AddEvent(ctx, tx, booking, reversalMotive, now)
	return err
}
