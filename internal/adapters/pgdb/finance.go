package pgdb

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/cultpass/bookings/internal/domain"
)

func (t *Tx) InsertFinanceEvent(ctx context.Context, event *domain.FinanceEvent) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO finance_events (id, booking_id, motive, status, value_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, event.ID, event.BookingID, event.Motive, event.Status, event.ValueDate, event.CreatedAt)
	return err
}

// LatestUseFinanceEvent returns the most recent non-cancelled USE-motive
// event of the booking, domain.ErrNotFound when there is none.
func (t *Tx) LatestUseFinanceEvent(ctx context.Context, bookingID uuid.UUID) (*domain.FinanceEvent, error) {
	var event domain.FinanceEvent
	err := t.tx.QueryRow(ctx, `
		SELECT id, booking_id, motive, status, value_date, created_at
		FROM finance_events
		WHERE booking_id = $1
		  AND motive IN ('BOOKING_USED', 'BOOKING_USED_AFTER_CANCELLATION')
		  AND status <> 'CANCELLED'
		ORDER BY created_at DESC
		LIMIT 1
	`, bookingID).Scan(&event.ID, &event.BookingID, &event.Motive, &event.Status, &event.ValueDate, &event.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (t *Tx) SetFinanceEventStatus(ctx context.Context, eventID uuid.UUID, status domain.FinanceEventStatus) error {
	result, err := t.tx.Exec(ctx, `
		UPDATE finance_events SET status = $2 WHERE id = $1
	`, eventID, status)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CancelPricingsForBooking cancels every non-processed pricing derived from
// the booking's events. Processed pricings are immutable; callers check
// HasProcessedPricing before unwinding.
func (t *Tx) CancelPricingsForBooking(ctx context.Context, bookingID uuid.UUID) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE pricings SET status = 'CANCELLED'
		WHERE booking_id = $1 AND status <> 'PROCESSED'
	`, bookingID)
	return err
}

func (t *Tx) HasProcessedPricing(ctx context.Context, bookingID uuid.UUID) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM pricings WHERE booking_id = $1 AND status = 'PROCESSED'
		)
	`, bookingID).Scan(&exists)
	return exists, err
}
