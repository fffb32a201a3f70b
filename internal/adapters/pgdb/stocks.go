package pgdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/cultpass/bookings/internal/domain"
)

const stockColumns = `
	s.id, s.offer_id, o.name, o.venue_id, v.offerer_id,
	s.price::text, s.quantity, s.booked_quantity,
	s.beginning_datetime, s.booking_limit_datetime, s.soft_deleted,
	o.is_active, ofr.is_active, o.is_duo, o.is_digital, o.has_activation_codes,
	o.expense_category, COALESCE(v.provider, ''), v.provider_active`

const stockFrom = `
	FROM stocks s
	JOIN offers o ON o.id = s.offer_id
	JOIN venues v ON v.id = o.venue_id
	JOIN offerers ofr ON ofr.id = v.offerer_id`

func (t *Tx) scanStock(row interface{ Scan(dest ...any) error }) (*domain.Stock, error) {
	var (
		stock    domain.Stock
		price    string
		provider string
	)
	err := row.Scan(
		&stock.ID, &stock.OfferID, &stock.OfferName, &stock.VenueID, &stock.OffererID,
		&price, &stock.Quantity, &stock.BookedQuantity,
		&stock.BeginningDatetime, &stock.BookingLimitDatetime, &stock.SoftDeleted,
		&stock.OfferActive, &stock.OffererActive, &stock.OfferIsDuo, &stock.OfferIsDigital,
		&stock.HasActivationCodes, &stock.ExpenseCategory, &provider, &stock.ProviderActive,
	)
	if err != nil {
		return nil, scanRowErr(err)
	}
	stock.Price, err = decimal.NewFromString(price)
	if err != nil {
		return nil, err
	}
	stock.Provider = domain.ProviderKind(provider)
	return &stock, nil
}

// GetStockForUpdate locks the stock row for the rest of the transaction.
// This is the first lock any booking transaction takes; the user row lock
// always comes after.
func (t *Tx) GetStockForUpdate(ctx context.Context, stockID uuid.UUID) (*domain.Stock, error) {
	row := t.tx.QueryRow(ctx, `SELECT`+stockColumns+stockFrom+` WHERE s.id = $1 FOR UPDATE OF s`, stockID)
	return t.scanStock(row)
}

func (t *Tx) GetStock(ctx context.Context, stockID uuid.UUID) (*domain.Stock, error) {
	row := t.tx.QueryRow(ctx, `SELECT`+stockColumns+stockFrom+` WHERE s.id = $1`, stockID)
	return t.scanStock(row)
}

// AdjustStockBookedQuantity moves the booked counter by delta. Increments
// re-check the capacity in the statement itself, so even a caller that
// skipped the under-lock validation cannot oversell.
func (t *Tx) AdjustStockBookedQuantity(ctx context.Context, stockID uuid.UUID, delta int) error {
	result, err := t.tx.Exec(ctx, `
		UPDATE stocks SET booked_quantity = booked_quantity + $2
		WHERE id = $1
		  AND booked_quantity + $2 >= 0
		  AND ($2 <= 0 OR quantity IS NULL OR booked_quantity + $2 <= quantity)
	`, stockID, delta)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrStockIsNotBookable
	}
	return nil
}

// ClaimActivationCode claims the oldest unclaimed, unexpired code of the
// stock. Creation order is the contract: first match wins, no reordering.
// The caller already holds the stock row lock, which serializes claims.
func (t *Tx) ClaimActivationCode(ctx context.Context, stockID, bookingID uuid.UUID, now time.Time) (*domain.ActivationCode, error) {
	row := t.tx.QueryRow(ctx, `
		UPDATE activation_codes SET booking_id = $2
		WHERE id = (
			SELECT id FROM activation_codes
			WHERE stock_id = $1
			  AND booking_id IS NULL
			  AND (expiration_date IS NULL OR expiration_date > $3)
			ORDER BY date_created, id
			LIMIT 1
		)
		RETURNING id, stock_id, code, expiration_date, booking_id, date_created
	`, stockID, bookingID, now)

	var code domain.ActivationCode
	err := row.Scan(&code.ID, &code.StockID, &code.Code, &code.ExpirationDate, &code.BookingID, &code.DateCreated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNoActivationCodeAvailable
	}
	if err != nil {
		return nil, err
	}
	return &code, nil
}
