package bookings

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/cultpass/bookings/internal/domain"
	"github.com/cultpass/bookings/internal/notifications"
)

// MarkAsUsed validates a confirmed booking, typically when the beneficiary
// shows up with the token. Event bookings can only be marked used starting
// 3 days before the event.
func (s *Service) MarkAsUsed(ctx context.Context, bookingID uuid.UUID) error {
	now := s.now()

	var booking *domain.Booking
	err := s.store.InTransaction(ctx, func(tx Tx) error {
		b, err := tx.GetBooking(ctx, bookingID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrBookingDoesntExist
			}
			return err
		}
		switch b.Status {
		case domain.BookingStatusUsed:
			return domain.ErrBookingIsAlreadyUsed
		case domain.BookingStatusCancelled:
			return domain.ErrBookingIsAlreadyCancelled
		case domain.BookingStatusReimbursed:
			return domain.ErrBookingIsAlreadyRefunded
		}

		stock, err := tx.GetStock(ctx, b.StockID)
		if err != nil {
			return err
		}
		if stock.BeginningDatetime != nil && now.Before(stock.BeginningDatetime.Add(-domain.MarkAsUsedFloor)) {
			return domain.ErrBookingIsNotConfirmed
		}

		ok, err := tx.MarkBookingUsed(ctx, b.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrBookingIsAlreadyUsed
		}
		b.Status = domain.BookingStatusUsed
		used := now
		b.DateUsed = &used
		booking = b
		if _, err := s.finance.AddEvent(ctx, tx, b, domain.MotiveBookingUsed, now); err != nil {
			return err
		}
		return s.outbox(ctx, tx, "booking.used", b)
	})
	if err != nil {
		return err
	}

	s.push.UpdateBookingAttributes(ctx, booking)
	s.analytics.Track(ctx, notifications.EventBookingUsed, booking.UserID, map[string]interface{}{
		"booking_id": booking.ID,
	})
	s.audit.RecordTransition(ctx, booking, "booking.used")
	return nil
}

// MarkAsUsedWithUncancelling re-validates a previously cancelled booking, an
// administrative correction path. The cancellation is cleared, the inventory
// is re-reserved and a BOOKING_USED_AFTER_CANCELLATION finance event is
// emitted. A merely confirmed booking falls through to a plain use.
func (s *Service) MarkAsUsedWithUncancelling(ctx context.Context, bookingID uuid.UUID) error {
	now := s.now()

	var booking *domain.Booking
	err := s.store.InTransaction(ctx, func(tx Tx) error {
		b, err := tx.GetBooking(ctx, bookingID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrBookingDoesntExist
			}
			return err
		}
		if b.Status == domain.BookingStatusUsed || b.Status == domain.BookingStatusReimbursed {
			return domain.ErrBookingIsAlreadyUsed
		}

		motive := domain.MotiveBookingUsed
		if b.Status == domain.BookingStatusCancelled {
			ok, err := tx.UncancelBooking(ctx, b.ID)
			if err != nil {
				return err
			}
			if !ok {
				return domain.ErrBookingIsNotConfirmed
			}
			// The cancellation released the inventory; take it back.
			if err := tx.AdjustStockBookedQuantity(ctx, b.StockID, b.Quantity); err != nil {
				return err
			}
			b.CancellationDate = nil
			b.CancellationReason = nil
			motive = domain.MotiveBookingUsedAfterCancellation
		}

		ok, err := tx.MarkBookingUsed(ctx, b.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrBookingIsAlreadyUsed
		}
		b.Status = domain.BookingStatusUsed
		used := now
		b.DateUsed = &used
		booking = b
		if _, err := s.finance.AddEvent(ctx, tx, b, motive, now); err != nil {
			return err
		}
		return s.outbox(ctx, tx, "booking.used", b)
	})
	if err != nil {
		return err
	}

	s.push.UpdateBookingAttributes(ctx, booking)
	s.audit.RecordTransition(ctx, booking, "booking.used_with_uncancelling")
	return nil
}

// MarkAsUnused reverts a used booking to confirmed. Refused once finance
// processing made the booking immutable, and refused for bookings consumed
// through an activation code: the code was already delivered, there is
// nothing to revert.
func (s *Service) MarkAsUnused(ctx context.Context, bookingID uuid.UUID) error {
	now := s.now()

	var booking *domain.Booking
	err := s.store.InTransaction(ctx, func(tx Tx) error {
		b, err := tx.GetBooking(ctx, bookingID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrBookingDoesntExist
			}
			return err
		}
		switch b.Status {
		case domain.BookingStatusConfirmed:
			return domain.ErrBookingIsNotConfirmed
		case domain.BookingStatusCancelled:
			return domain.ErrBookingIsAlreadyCancelled
		case domain.BookingStatusReimbursed:
			return domain.ErrBookingIsAlreadyRefunded
		}
		processed, err := tx.HasProcessedPricing(ctx, b.ID)
		if err != nil {
			return err
		}
		if processed {
			return domain.ErrBookingIsAlreadyRefunded
		}
		if b.UsedByActivationCode {
			return domain.ErrActivationCodeIrreversible
		}

		ok, err := tx.MarkBookingUnused(ctx, b.ID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrBookingIsNotConfirmed
		}
		if err := s.finance.ReverseUseEvent(ctx, tx, b, domain.MotiveBookingUnused, now); err != nil {
			return err
		}
		b.Status = domain.BookingStatusConfirmed
		b.DateUsed = nil
		booking = b
		return s.outbox(ctx, tx, "booking.unused", b)
	})
	if err != nil {
		return err
	}

	s.push.UpdateBookingAttributes(ctx, booking)
	s.audit.RecordTransition(ctx, booking, "booking.unused")
	return nil
}
