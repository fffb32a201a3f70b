package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ExpenseCategory classifies an offer for deposit spending caps.
type ExpenseCategory string

const (
	ExpenseCategoryDigital  ExpenseCategory = "DIGITAL"
	ExpenseCategoryPhysical ExpenseCategory = "PHYSICAL"
	ExpenseCategoryOther    ExpenseCategory = "OTHER"
)

// ProviderKind identifies the external ticketing provider fulfilling an
// offer. Empty means the offer is fulfilled locally.
type ProviderKind string

const (
	ProviderNone  ProviderKind = ""
	ProviderCDS   ProviderKind = "CDS"
	ProviderBoost ProviderKind = "BOOST"
	ProviderCGR   ProviderKind = "CGR"
	ProviderEMS   ProviderKind = "EMS"
)

// Stock is one bookable inventory line of an offer: a date/price/quantity
// combination. Quantity nil means unlimited. BookedQuantity only counts
// non-cancelled bookings and is mutated exclusively under the stock row lock.
type Stock struct {
	ID                   uuid.UUID
	OfferID              uuid.UUID
	OfferName            string
	VenueID              uuid.UUID
	OffererID            uuid.UUID
	Price                decimal.Decimal
	Quantity             *int
	BookedQuantity       int
	BeginningDatetime    *time.Time
	BookingLimitDatetime *time.Time
	SoftDeleted          bool
	OfferActive          bool
	OffererActive        bool
	OfferIsDuo           bool
	OfferIsDigital       bool
	HasActivationCodes   bool
	ExpenseCategory      ExpenseCategory
	Provider             ProviderKind
	ProviderActive       bool
}

func (s *Stock) IsEvent() bool {
	return s.BeginningDatetime != nil
}

func (s *Stock) RequiresExternalFulfillment() bool {
	return s.Provider != ProviderNone
}

func (s *Stock) RemainingQuantity() *int {
	if s.Quantity == nil {
		return nil
	}
	remaining := *s.Quantity - s.BookedQuantity
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}

// IsBookable checks every static bookability condition except remaining
// quantity, which callers re-check under lock.
func (s *Stock) IsBookable(now time.Time) bool {
	if s.SoftDeleted || !s.OfferActive || !s.OffererActive {
		return false
	}
	if s.BookingLimitDatetime != nil && now.After(*s.BookingLimitDatetime) {
		return false
	}
	if s.BeginningDatetime != nil && now.After(*s.BeginningDatetime) {
		return false
	}
	return true
}

// ActivationCode is a one-time redemption code attached to a digital stock,
// claimed at booking time in creation order.
type ActivationCode struct {
	ID             uuid.UUID
	StockID        uuid.UUID
	Code           string
	ExpirationDate *time.Time
	BookingID      *uuid.UUID
	DateCreated    time.Time
}

func (c *ActivationCode) IsClaimable(now time.Time) bool {
	if c.BookingID != nil {
		return false
	}
	return c.ExpirationDate == nil || c.ExpirationDate.After(now)
}
