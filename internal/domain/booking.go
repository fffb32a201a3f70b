package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	BookingStatusConfirmed  BookingStatus = "CONFIRMED"
	BookingStatusUsed       BookingStatus = "USED"
	BookingStatusCancelled  BookingStatus = "CANCELLED"
	BookingStatusReimbursed BookingStatus = "REIMBURSED"
)

type CancellationReason string

const (
	CancellationReasonBeneficiary CancellationReason = "BENEFICIARY"
	CancellationReasonOfferer     CancellationReason = "OFFERER"
	CancellationReasonFraud       CancellationReason = "FRAUD"
	CancellationReasonExpired     CancellationReason = "EXPIRED"
)

// Booking is one beneficiary's reservation of Quantity units of a Stock.
// Amount is the unit price snapshotted at booking time; later stock price
// changes never affect it. All mutations go through the bookings service.
type Booking struct {
	ID                    uuid.UUID
	UserID                uuid.UUID
	StockID               uuid.UUID
	OfferID               uuid.UUID
	VenueID               uuid.UUID
	DepositID             *uuid.UUID
	Quantity              int
	Amount                decimal.Decimal
	Status                BookingStatus
	Token                 string
	DateCreated           time.Time
	DateUsed              *time.Time
	CancellationDate      *time.Time
	CancellationReason    *CancellationReason
	CancellationLimitDate *time.Time
	ActivationCode        *string
	UsedByActivationCode  bool
	DisplayAsEnded        bool
}

func (b *Booking) Total() decimal.Decimal {
	return b.Amount.Mul(decimal.NewFromInt(int64(b.Quantity)))
}

func (b *Booking) IsCancellable(now time.Time) bool {
	if b.Status != BookingStatusConfirmed {
		return false
	}
	if b.CancellationLimitDate == nil {
		return true
	}
	return !now.After(*b.CancellationLimitDate)
}

// ExternalBooking is one physical ticket issued by an external provider for
// a booking. A booking on an externally fulfilled offer always carries at
// least one of these.
type ExternalBooking struct {
	ID             uuid.UUID
	BookingID      uuid.UUID
	Barcode        string
	SeatNumber     string
	AdditionalInfo map[string]string
}
