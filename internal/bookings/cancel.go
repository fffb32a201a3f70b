package bookings

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/cultpass/bookings/internal/cancelqueue"
	"github.com/cultpass/bookings/internal/domain"
	"github.com/cultpass/bookings/internal/notifications"
	"github.com/cultpass/bookings/internal/observability"
)

// CancelByBeneficiary cancels the caller's own booking. A booking belonging
// to someone else reports ErrBookingDoesntExist, exactly like a missing one,
// so non-owners cannot probe for booking existence.
//
// The stock row is not locked up front: the status transition is a
// compare-and-set, and bookedQuantity is only touched when this transaction
// actually wins the transition. Two concurrent cancellations therefore
// produce exactly one decrement.
func (s *Service) CancelByBeneficiary(ctx context.Context, userID, bookingID uuid.UUID) error {
	now := s.now()

	var (
		booking *domain.Booking
		stock   *domain.Stock
	)
	err := s.store.InTransaction(ctx, func(tx Tx) error {
		b, err := tx.GetBooking(ctx, bookingID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrBookingDoesntExist
			}
			return err
		}
		if b.UserID != userID {
			return domain.ErrBookingDoesntExist
		}
		switch b.Status {
		case domain.BookingStatusUsed:
			return domain.ErrBookingIsAlreadyUsed
		case domain.BookingStatusReimbursed:
			return domain.ErrBookingIsAlreadyRefunded
		case domain.BookingStatusCancelled:
			return domain.ErrBookingIsCancelled
		}
		if !b.IsCancellable(now) {
			return domain.ErrCannotCancelConfirmedBooking
		}

		ok, err := tx.MarkBookingCancelled(ctx, b.ID, domain.CancellationReasonBeneficiary, now, false)
		if err != nil {
			return err
		}
		if !ok {
			// A concurrent transaction already cancelled it; leave
			// bookedQuantity alone.
			return domain.ErrBookingIsCancelled
		}
		if err := tx.AdjustStockBookedQuantity(ctx, b.StockID, -b.Quantity); err != nil {
			return err
		}

		stock, err = tx.GetStock(ctx, b.StockID)
		if err != nil {
			return err
		}
		reason := domain.CancellationReasonBeneficiary
		b.Status = domain.BookingStatusCancelled
		b.CancellationDate = &now
		b.CancellationReason = &reason
		booking = b
		return s.outbox(ctx, tx, "booking.cancelled", b)
	})
	if err != nil {
		return err
	}
	observability.CancellationsTotal.WithLabelValues(string(domain.CancellationReasonBeneficiary)).Inc()

	s.cancelExternally(ctx, booking, stock)
	s.notifier.SendBeneficiaryCancellation(ctx, booking)
	s.push.UpdateBookingAttributes(ctx, booking)
	s.analytics.Track(ctx, notifications.EventBookingCancelled, booking.UserID, map[string]interface{}{
		"booking_id": booking.ID,
		"reason":     domain.CancellationReasonBeneficiary,
	})
	s.audit.RecordTransition(ctx, booking, "booking.cancelled")
	return nil
}

// CancelByOfferer cancels a confirmed booking on the offerer's initiative.
// There is deliberately no time-limit check: an offerer may always cancel a
// non-terminal booking.
func (s *Service) CancelByOfferer(ctx context.Context, bookingID uuid.UUID) error {
	now := s.now()

	var (
		booking *domain.Booking
		stock   *domain.Stock
	)
	err := s.store.InTransaction(ctx, func(tx Tx) error {
		b, err := tx.GetBooking(ctx, bookingID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrBookingDoesntExist
			}
			return err
		}
		switch b.Status {
		case domain.BookingStatusCancelled:
			return domain.ErrBookingIsAlreadyCancelled
		case domain.BookingStatusReimbursed:
			return domain.ErrBookingIsAlreadyRefunded
		case domain.BookingStatusUsed:
			return domain.ErrBookingIsAlreadyUsed
		}

		ok, err := tx.MarkBookingCancelled(ctx, b.ID, domain.CancellationReasonOfferer, now, false)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrBookingIsAlreadyCancelled
		}
		if err := tx.AdjustStockBookedQuantity(ctx, b.StockID, -b.Quantity); err != nil {
			return err
		}

		stock, err = tx.GetStock(ctx, b.StockID)
		if err != nil {
			return err
		}
		reason := domain.CancellationReasonOfferer
		b.Status = domain.BookingStatusCancelled
		b.CancellationDate = &now
		b.CancellationReason = &reason
		booking = b
		return s.outbox(ctx, tx, "booking.cancelled", b)
	})
	if err != nil {
		return err
	}
	observability.CancellationsTotal.WithLabelValues(string(domain.CancellationReasonOfferer)).Inc()

	s.cancelExternally(ctx, booking, stock)
	s.notifier.SendOffererCancellationToBeneficiary(ctx, booking)
	s.push.UpdateBookingAttributes(ctx, booking)
	s.audit.RecordTransition(ctx, booking, "booking.cancelled")
	return nil
}

// CancelForFraud is the only path allowed to cancel a USED booking. When it
// does, the finance ledger shows the reversal explicitly: the original USE
// event and its pricings become CANCELLED and a BOOKING_CANCELLED_AFTER_USE
// event is recorded. No outbound emails on this path.
func (s *Service) CancelForFraud(ctx context.Context, bookingID uuid.UUID) error {
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
		wasUsed := b.Status == domain.BookingStatusUsed

		ok, err := tx.MarkBookingCancelled(ctx, b.ID, domain.CancellationReasonFraud, now, true)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrBookingIsAlreadyCancelled
		}
		if err := tx.AdjustStockBookedQuantity(ctx, b.StockID, -b.Quantity); err != nil {
			return err
		}
		if wasUsed {
			if err := s.finance.ReverseUseEvent(ctx, tx, b, domain.MotiveBookingCancelledAfterUse, now); err != nil {
				return err
			}
		}
		reason := domain.CancellationReasonFraud
		b.Status = domain.BookingStatusCancelled
		b.CancellationDate = &now
		b.CancellationReason = &reason
		booking = b
		return s.outbox(ctx, tx, "booking.cancelled", b)
	})
	if err != nil {
		return err
	}
	observability.CancellationsTotal.WithLabelValues(string(domain.CancellationReasonFraud)).Inc()

	s.audit.RecordTransition(ctx, booking, "booking.cancelled_for_fraud")
	return nil
}

// CancelBookingsFromStockByOfferer bulk-cancels every confirmed booking on a
// stock, under the stock row lock so the bulk cancellation serializes
// against concurrent BookOffer calls on the same stock. Used bookings are
// skipped silently. Returns the cancelled bookings.
func (s *Service) CancelBookingsFromStockByOfferer(ctx context.Context, stockID uuid.UUID) ([]*domain.Booking, error) {
	now := s.now()

	var (
		cancelled []*domain.Booking
		stock     *domain.Stock
	)
	err := s.store.InTransaction(ctx, func(tx Tx) error {
		lockedStock, err := tx.GetStockForUpdate(ctx, stockID)
		if err != nil {
			return err
		}
		stock = lockedStock

		candidates, err := tx.ListCancellableBookingsByStock(ctx, stockID)
		if err != nil {
			return err
		}
		reason := domain.CancellationReasonOfferer
		totalQuantity := 0
		for i := range candidates {
			b := candidates[i]
			ok, err := tx.MarkBookingCancelled(ctx, b.ID, reason, now, false)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			b.Status = domain.BookingStatusCancelled
			b.CancellationDate = &now
			b.CancellationReason = &reason
			totalQuantity += b.Quantity
			cancelled = append(cancelled, &b)
			if err := s.outbox(ctx, tx, "booking.cancelled", &b); err != nil {
				return err
			}
		}
		if totalQuantity > 0 {
			if err := tx.AdjustStockBookedQuantity(ctx, stockID, -totalQuantity); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, b := range cancelled {
		observability.CancellationsTotal.WithLabelValues(string(domain.CancellationReasonOfferer)).Inc()
		s.cancelExternally(ctx, b, stock)
		s.notifier.SendOffererCancellationToBeneficiary(ctx, b)
		s.audit.RecordTransition(ctx, b, "booking.cancelled")
	}
	return cancelled, nil
}

// cancelExternally tries to cancel the provider-side tickets after the local
// cancellation has committed. Local state is authoritative; on any failure
// the barcodes go to the deferred queue for later reconciliation instead of
// blocking or unwinding anything.
func (s *Service) cancelExternally(ctx context.Context, booking *domain.Booking, stock *domain.Stock) {
	if stock == nil || !stock.RequiresExternalFulfillment() {
		return
	}
	var barcodes []string
	err := s.store.InTransaction(ctx, func(tx Tx) error {
		rows, err := tx.ExternalBookingsFor(ctx, booking.ID)
		if err != nil {
			return err
		}
		for _, row := range rows {
			barcodes = append(barcodes, row.Barcode)
		}
		return nil
	})
	if err != nil {
		s.logger.WithError(err).WithField("booking_id", booking.ID).Error("load external bookings for cancellation")
		return
	}
	if len(barcodes) == 0 {
		return
	}

	if s.features.ProviderEnabled(stock.Provider) {
		gw, err := s.gateways.For(stock.Provider)
		if err == nil {
			if err := gw.Cancel(ctx, stock.VenueID, barcodes); err == nil {
				return
			}
			s.logger.WithField("booking_id", booking.ID).Warn("synchronous external cancellation failed, deferring")
		}
	}

	now := s.now()
	for _, barcode := range barcodes {
		entry := cancelqueue.Entry{
			Barcode:   barcode,
			VenueID:   stock.VenueID,
			Provider:  stock.Provider,
			Timestamp: now,
		}
		if err := s.cancelQ.Push(ctx, entry); err != nil {
			s.logger.WithError(err).WithField("barcode", barcode).Error("enqueue deferred cancellation")
		}
	}
}
