package domain

import (
	"time"

	"github.com/google/uuid"
)

type FinanceEventMotive string

const (
	MotiveBookingUsed                  FinanceEventMotive = "BOOKING_USED"
	MotiveBookingUsedAfterCancellation FinanceEventMotive = "BOOKING_USED_AFTER_CANCELLATION"
	MotiveBookingUnused                FinanceEventMotive = "BOOKING_UNUSED"
	MotiveBookingCancelledAfterUse     FinanceEventMotive = "BOOKING_CANCELLED_AFTER_USE"
)

type FinanceEventStatus string

const (
	FinanceEventStatusPending       FinanceEventStatus = "PENDING"
	FinanceEventStatusNotToBePriced FinanceEventStatus = "NOT_TO_BE_PRICED"
	FinanceEventStatusCancelled     FinanceEventStatus = "CANCELLED"
)

// FinanceEvent is a billable fact derived from a booking transition,
// consumed asynchronously by the pricing engine. Events are never deleted,
// only status-transitioned, so the ledger always shows reversals explicitly.
type FinanceEvent struct {
	ID        uuid.UUID
	BookingID uuid.UUID
	Motive    FinanceEventMotive
	Status    FinanceEventStatus
	ValueDate time.Time
	CreatedAt time.Time
}

type PricingStatus string

const (
	PricingStatusValidated PricingStatus = "VALIDATED"
	PricingStatusProcessed PricingStatus = "PROCESSED"
	PricingStatusCancelled PricingStatus = "CANCELLED"
)

// Pricing is the pricing engine's output for a finance event. The bookings
// core never creates pricings; it only needs to cancel them when unwinding a
// USE event, and to refuse mutations once one is PROCESSED.
type Pricing struct {
	ID             uuid.UUID
	FinanceEventID uuid.UUID
	BookingID      uuid.UUID
	Status         PricingStatus
}
