package pgdb

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/cultpass/bookings/internal/domain"
)

const bookingColumns = `
	id, user_id, stock_id, offer_id, venue_id, deposit_id, quantity, amount::text,
	status, token, date_created, date_used, cancellation_date, cancellation_reason,
	cancellation_limit_date, activation_code, used_by_activation_code, display_as_ended`

func scanBooking(row interface{ Scan(dest ...any) error }) (*domain.Booking, error) {
	var (
		b      domain.Booking
		amount string
	)
	err := row.Scan(
		&b.ID, &b.UserID, &b.StockID, &b.OfferID, &b.VenueID, &b.DepositID,
		&b.Quantity, &amount, &b.Status, &b.Token, &b.DateCreated, &b.DateUsed,
		&b.CancellationDate, &b.CancellationReason, &b.CancellationLimitDate,
		&b.ActivationCode, &b.UsedByActivationCode, &b.DisplayAsEnded,
	)
	if err != nil {
		return nil, scanRowErr(err)
	}
	b.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (t *Tx) GetBooking(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error) {
	row := t.tx.QueryRow(ctx, `SELECT`+bookingColumns+` FROM bookings WHERE id = $1`, bookingID)
	return scanBooking(row)
}

func (t *Tx) GetBookingByToken(ctx context.Context, token string) (*domain.Booking, error) {
	row := t.tx.QueryRow(ctx, `SELECT`+bookingColumns+` FROM bookings WHERE token = $1`, token)
	return scanBooking(row)
}

func (t *Tx) HasActiveBookingOnOffer(ctx context.Context, userID, offerID uuid.UUID) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM bookings
			WHERE user_id = $1 AND offer_id = $2 AND status <> 'CANCELLED'
		)
	`, userID, offerID).Scan(&exists)
	return exists, err
}

func (t *Tx) TokenExists(ctx context.Context, token string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM bookings WHERE token = $1)`, token).Scan(&exists)
	return exists, err
}

func (t *Tx) VenueHasNonFreeBookings(ctx context.Context, venueID uuid.UUID) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM bookings
			WHERE venue_id = $1 AND amount > 0 AND status <> 'CANCELLED'
		)
	`, venueID).Scan(&exists)
	return exists, err
}

func (t *Tx) InsertBooking(ctx context.Context, b *domain.Booking) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO bookings (
			id, user_id, stock_id, offer_id, venue_id, deposit_id, quantity, amount,
			status, token, date_created, date_used, cancellation_limit_date,
			activation_code, used_by_activation_code
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, b.ID, b.UserID, b.StockID, b.OfferID, b.VenueID, b.DepositID, b.Quantity,
		b.Amount.String(), b.Status, b.Token, b.DateCreated, b.DateUsed,
		b.CancellationLimitDate, b.ActivationCode, b.UsedByActivationCode)
	return err
}

func (t *Tx) InsertExternalBookings(ctx context.Context, tickets []domain.ExternalBooking) error {
	for _, ticket := range tickets {
		_, err := t.tx.Exec(ctx, `
			INSERT INTO external_bookings (id, booking_id, barcode, seat_number, additional_info)
			VALUES ($1, $2, $3, $4, $5)
		`, ticket.ID, ticket.BookingID, ticket.Barcode, ticket.SeatNumber, ticket.AdditionalInfo)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *Tx) ExternalBookingsFor(ctx context.Context, bookingID uuid.UUID) ([]domain.ExternalBooking, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, booking_id, barcode, seat_number, additional_info
		FROM external_bookings WHERE booking_id = $1
	`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ExternalBooking
	for rows.Next() {
		var eb domain.ExternalBooking
		if err := rows.Scan(&eb.ID, &eb.BookingID, &eb.Barcode, &eb.SeatNumber, &eb.AdditionalInfo); err != nil {
			return nil, err
		}
		result = append(result, eb)
	}
	return result, rows.Err()
}

// MarkBookingCancelled is a compare-and-set: it only cancels a CONFIRMED
// booking (plus USED when fromUsed is set, the fraud path). False means a
// concurrent transaction won and the caller must not decrement inventory.
func (t *Tx) MarkBookingCancelled(ctx context.Context, bookingID uuid.UUID, reason domain.CancellationReason, at time.Time, fromUsed bool) (bool, error) {
	allowed := []string{string(domain.BookingStatusConfirmed)}
	if fromUsed {
		allowed = append(allowed, string(domain.BookingStatusUsed))
	}
	result, err := t.tx.Exec(ctx, `
		UPDATE bookings
		SET status = 'CANCELLED', cancellation_reason = $2, cancellation_date = $3, date_used = NULL
		WHERE id = $1 AND status = ANY($4)
	`, bookingID, reason, at, allowed)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func (t *Tx) MarkBookingUsed(ctx context.Context, bookingID uuid.UUID, at time.Time) (bool, error) {
	result, err := t.tx.Exec(ctx, `
		UPDATE bookings SET status = 'USED', date_used = $2
		WHERE id = $1 AND status = 'CONFIRMED'
	`, bookingID, at)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func (t *Tx) MarkBookingUnused(ctx context.Context, bookingID uuid.UUID) (bool, error) {
	result, err := t.tx.Exec(ctx, `
		UPDATE bookings SET status = 'CONFIRMED', date_used = NULL
		WHERE id = $1 AND status = 'USED'
	`, bookingID)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func (t *Tx) UncancelBooking(ctx context.Context, bookingID uuid.UUID) (bool, error) {
	result, err := t.tx.Exec(ctx, `
		UPDATE bookings
		SET status = 'CONFIRMED', cancellation_reason = NULL, cancellation_date = NULL
		WHERE id = $1 AND status = 'CANCELLED'
	`, bookingID)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func (t *Tx) ListCancellableBookingsByStock(ctx context.Context, stockID uuid.UUID) ([]domain.Booking, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT`+bookingColumns+` FROM bookings
		WHERE stock_id = $1 AND status = 'CONFIRMED'
		ORDER BY date_created
	`, stockID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBookings(rows)
}

func (t *Tx) SelectBookingsToAutoValidate(ctx context.Context, beganBefore time.Time) ([]domain.Booking, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT`+prefixedBookingColumns("b")+` FROM bookings b
		JOIN stocks s ON s.id = b.stock_id
		WHERE b.status = 'CONFIRMED'
		  AND s.beginning_datetime IS NOT NULL
		  AND s.beginning_datetime <= $1
		ORDER BY b.date_created
	`, beganBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBookings(rows)
}

func (t *Tx) ArchiveEndedBookings(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := t.tx.Exec(ctx, `
		UPDATE bookings SET display_as_ended = TRUE
		WHERE used_by_activation_code
		  AND date_created < $1
		  AND NOT display_as_ended
	`, olderThan)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

func collectBookings(rows pgx.Rows) ([]domain.Booking, error) {
	var result []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}
	return result, rows.Err()
}

func prefixedBookingColumns(alias string) string {
	cols := ` ` + alias + `.id, ` + alias + `.user_id, ` + alias + `.stock_id, ` + alias + `.offer_id, ` +
		alias + `.venue_id, ` + alias + `.deposit_id, ` + alias + `.quantity, ` + alias + `.amount::text, ` +
		alias + `.status, ` + alias + `.token, ` + alias + `.date_created, ` + alias + `.date_used, ` +
		alias + `.cancellation_date, ` + alias + `.cancellation_reason, ` + alias + `.cancellation_limit_date, ` +
		alias + `.activation_code, ` + alias + `.used_by_activation_code, ` + alias + `.display_as_ended`
	return cols
}
