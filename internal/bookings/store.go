package bookings

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cultpass/bookings/internal/domain"
	"github.com/cultpass/bookings/internal/finance"
)

// Store is the transactional boundary the state machine runs on.
type Store interface {
	InTransaction(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is one storage transaction. Lock ordering is a hard invariant: within
// any transaction, GetStockForUpdate comes before GetUserForUpdate, never
// the other way around. Concurrent bookings and stock-wide cancellations
// serialize on the stock row; credit checks serialize on the user row.
type Tx interface {
	finance.Ledger

	GetStockForUpdate(ctx context.Context, stockID uuid.UUID) (*domain.Stock, error)
	GetUserForUpdate(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	// GetStock is a plain read, no lock. Single-booking cancellation reads
	// the stock this way on purpose (optimistic path, no stock lock).
	GetStock(ctx context.Context, stockID uuid.UUID) (*domain.Stock, error)

	GetBooking(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error)
	GetBookingByToken(ctx context.Context, token string) (*domain.Booking, error)
	HasActiveBookingOnOffer(ctx context.Context, userID, offerID uuid.UUID) (bool, error)
	ActiveDeposit(ctx context.Context, userID uuid.UUID) (*domain.Deposit, error)
	DepositExpenses(ctx context.Context, depositID uuid.UUID) (domain.Expenses, error)
	TokenExists(ctx context.Context, token string) (bool, error)
	// ClaimActivationCode atomically claims the oldest unclaimed, unexpired
	// code of the stock; domain.ErrNoActivationCodeAvailable when none left.
	ClaimActivationCode(ctx context.Context, stockID, bookingID uuid.UUID, now time.Time) (*domain.ActivationCode, error)
	VenueHasNonFreeBookings(ctx context.Context, venueID uuid.UUID) (bool, error)

	InsertBooking(ctx context.Context, booking *domain.Booking) error
	InsertExternalBookings(ctx context.Context, tickets []domain.ExternalBooking) error
	ExternalBookingsFor(ctx context.Context, bookingID uuid.UUID) ([]domain.ExternalBooking, error)
	AdjustStockBookedQuantity(ctx context.Context, stockID uuid.UUID, delta int) error

	// Status transitions are compare-and-set on the current status; false
	// means a concurrent transaction already moved the booking and the
	// caller must not touch bookedQuantity.
	MarkBookingCancelled(ctx context.Context, bookingID uuid.UUID, reason domain.CancellationReason, at time.Time, fromUsed bool) (bool, error)
	MarkBookingUsed(ctx context.Context, bookingID uuid.UUID, at time.Time) (bool, error)
	MarkBookingUnused(ctx context.Context, bookingID uuid.UUID) (bool, error)
	UncancelBooking(ctx context.Context, bookingID uuid.UUID) (bool, error)

	HasProcessedPricing(ctx context.Context, bookingID uuid.UUID) (bool, error)
	ListCancellableBookingsByStock(ctx context.Context, stockID uuid.UUID) ([]domain.Booking, error)
	SelectBookingsToAutoValidate(ctx context.Context, beganBefore time.Time) ([]domain.Booking, error)
	ArchiveEndedBookings(ctx context.Context, olderThan time.Time) (int64, error)

	InsertOutboxEvent(ctx context.Context, eventType string, bookingID uuid.UUID, payload []byte) error
}
