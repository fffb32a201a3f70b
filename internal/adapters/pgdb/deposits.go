package pgdb

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cultpass/bookings/internal/domain"
)

// GetUserForUpdate locks the user row. Always called after the stock lock,
// never before; see the lock-ordering note on bookings.Tx.
func (t *Tx) GetUserForUpdate(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	var user domain.User
	err := t.tx.QueryRow(ctx, `
		SELECT id, email, role FROM users WHERE id = $1 FOR UPDATE
	`, userID).Scan(&user.ID, &user.Email, &user.Role)
	if err != nil {
		return nil, scanRowErr(err)
	}
	return &user, nil
}

func (t *Tx) ActiveDeposit(ctx context.Context, userID uuid.UUID) (*domain.Deposit, error) {
	var (
		deposit     domain.Deposit
		amount      string
		digitalCap  *string
		physicalCap *string
	)
	err := t.tx.QueryRow(ctx, `
		SELECT id, user_id, amount::text, expiration_date, digital_cap::text, physical_cap::text
		FROM deposits WHERE user_id = $1
		ORDER BY date_created DESC LIMIT 1
	`, userID).Scan(&deposit.ID, &deposit.UserID, &amount, &deposit.ExpirationDate, &digitalCap, &physicalCap)
	if err != nil {
		return nil, scanRowErr(err)
	}
	if deposit.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, err
	}
	if digitalCap != nil {
		cap, err := decimal.NewFromString(*digitalCap)
		if err != nil {
			return nil, err
		}
		deposit.DigitalCap = &cap
	}
	if physicalCap != nil {
		cap, err := decimal.NewFromString(*physicalCap)
		if err != nil {
			return nil, err
		}
		deposit.PhysicalCap = &cap
	}
	return &deposit, nil
}

// DepositExpenses sums what the deposit has already funded, overall and per
// capped category, across all its non-cancelled bookings.
func (t *Tx) DepositExpenses(ctx context.Context, depositID uuid.UUID) (domain.Expenses, error) {
	var total, digital, physical string
	err := t.tx.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(b.amount * b.quantity), 0)::text,
			COALESCE(SUM(b.amount * b.quantity) FILTER (WHERE o.expense_category = 'DIGITAL'), 0)::text,
			COALESCE(SUM(b.amount * b.quantity) FILTER (WHERE o.expense_category = 'PHYSICAL'), 0)::text
		FROM bookings b
		JOIN offers o ON o.id = b.offer_id
		WHERE b.deposit_id = $1 AND b.status <> 'CANCELLED'
	`, depositID).Scan(&total, &digital, &physical)
	if err != nil {
		return domain.Expenses{}, err
	}

	var expenses domain.Expenses
	if expenses.Total, err = decimal.NewFromString(total); err != nil {
		return domain.Expenses{}, err
	}
	if expenses.Digital, err = decimal.NewFromString(digital); err != nil {
		return domain.Expenses{}, err
	}
	if expenses.Physical, err = decimal.NewFromString(physical); err != nil {
		return domain.Expenses{}, err
	}
	return expenses, nil
}
