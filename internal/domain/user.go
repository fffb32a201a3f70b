package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type UserRole string

const (
	RoleBeneficiary UserRole = "BENEFICIARY"
	RolePro         UserRole = "PRO"
	RoleAdmin       UserRole = "ADMIN"
)

type User struct {
	ID    uuid.UUID
	Email string
	Role  UserRole
}

func (u *User) IsBeneficiary() bool {
	return u.Role == RoleBeneficiary
}

// Deposit is a beneficiary's spending credit envelope. DigitalCap and
// PhysicalCap bound cumulative spending per expense category over the
// deposit's lifetime; nil means the category is uncapped.
type Deposit struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	Amount         decimal.Decimal
	ExpirationDate *time.Time
	DigitalCap     *decimal.Decimal
	PhysicalCap    *decimal.Decimal
}

func (d *Deposit) IsExpired(now time.Time) bool {
	return d.ExpirationDate != nil && now.After(*d.ExpirationDate)
}

func (d *Deposit) capFor(category ExpenseCategory) *decimal.Decimal {
	switch category {
	case ExpenseCategoryDigital:
		return d.DigitalCap
	case ExpenseCategoryPhysical:
		return d.PhysicalCap
	default:
		return nil
	}
}

// Expenses aggregates what a deposit has already funded: totals over all
// non-cancelled bookings, cumulative since the deposit was granted.
type Expenses struct {
	Total    decimal.Decimal
	Digital  decimal.Decimal
	Physical decimal.Decimal
}

func (e Expenses) forCategory(category ExpenseCategory) decimal.Decimal {
	switch category {
	case ExpenseCategoryDigital:
		return e.Digital
	case ExpenseCategoryPhysical:
		return e.Physical
	default:
		return decimal.Zero
	}
}

// CheckCredit verifies that spending amount on the given category fits both
// the deposit envelope and the category cap. Both checks are cumulative over
// the deposit lifetime.
func (d *Deposit) CheckCredit(expenses Expenses, category ExpenseCategory, amount decimal.Decimal) error {
	if expenses.Total.Add(amount).GreaterThan(d.Amount) {
		return ErrUserHasInsufficientFunds
	}
	if cap := d.capFor(category); cap != nil {
		if expenses.forCategory(category).Add(amount).GreaterThan(*cap) {
			return ErrUserHasInsufficientFunds
		}
	}
	return nil
}
