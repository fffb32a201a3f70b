package bookings

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cultpass/bookings/internal/domain"
	"github.com/cultpass/bookings/internal/externalbookings"
)

func (f *fixture) mustBook(t *testing.T, userID uuid.UUID) *domain.Booking {
	t.Helper()
	booking, err := f.svc.BookOffer(context.Background(), userID, f.stockID, 1)
	require.NoError(t, err)
	return booking
}

func TestCancelByBeneficiary(t *testing.T) {
	f := newFixture()
	booking := f.mustBook(t, f.userID)

	require.NoError(t, f.svc.CancelByBeneficiary(context.Background(), f.userID, booking.ID))

	stored := f.booking(booking.ID)
	assert.Equal(t, domain.BookingStatusCancelled, stored.Status)
	require.NotNil(t, stored.CancellationReason)
	assert.Equal(t, domain.CancellationReasonBeneficiary, *stored.CancellationReason)
	assert.Equal(t, 0, f.stock().BookedQuantity)
	assert.Equal(t, []string{"booking.created", "booking.cancelled"}, f.store.state.outbox)
	assert.Equal(t, []uuid.UUID{booking.ID}, f.notifier.beneficiaryCancellations)
}

func TestCancelByBeneficiaryNotOwner(t *testing.T) {
	f := newFixture()
	booking := f.mustBook(t, f.userID)
	stranger := f.addUser()

	err := f.svc.CancelByBeneficiary(context.Background(), stranger, booking.ID)
	require.ErrorIs(t, err, domain.ErrBookingDoesntExist)
	assert.Equal(t, domain.BookingStatusConfirmed, f.booking(booking.ID).Status)
}

func TestCancelByBeneficiaryUnknownBooking(t *testing.T) {
	f := newFixture()
	err := f.svc.CancelByBeneficiary(context.Background(), f.userID, uuid.New())
	require.ErrorIs(t, err, domain.ErrBookingDoesntExist)
}

func TestCancelByBeneficiaryTwice(t *testing.T) {
	f := newFixture()
	booking := f.mustBook(t, f.userID)

	require.NoError(t, f.svc.CancelByBeneficiary(context.Background(), f.userID, booking.ID))
	err := f.svc.CancelByBeneficiary(context.Background(), f.userID, booking.ID)
	require.ErrorIs(t, err, domain.ErrBookingIsCancelled)

	// The second attempt must not decrement inventory again.
	assert.Equal(t, 0, f.stock().BookedQuantity)
}

func TestCancelByBeneficiaryTerminalStates(t *testing.T) {
	cases := []struct {
		status  domain.BookingStatus
		wantErr error
	}{
		{domain.BookingStatusUsed, domain.ErrBookingIsAlreadyUsed},
		{domain.BookingStatusReimbursed, domain.ErrBookingIsAlreadyRefunded},
	}
	for _, tc := range cases {
		t.Run(string(tc.status), func(t *testing.T) {
			f := newFixture()
			booking := f.mustBook(t, f.userID)
			stored := f.booking(booking.ID)
			stored.Status = tc.status
			f.store.state.bookings[booking.ID] = stored

			err := f.svc.CancelByBeneficiary(context.Background(), f.userID, booking.ID)
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestCancelByBeneficiaryPastLimitDate(t *testing.T) {
	f := newFixture()
	beginning := testNow.Add(10 * 24 * time.Hour)
	stock := f.stock()
	stock.BeginningDatetime = &beginning
	f.setStock(stock)
	booking := f.mustBook(t, f.userID)

	// Jump past the 48h window.
	f.svc.now = func() time.Time { return testNow.Add(72 * time.Hour) }

	err := f.svc.CancelByBeneficiary(context.Background(), f.userID, booking.ID)
	require.ErrorIs(t, err, domain.ErrCannotCancelConfirmedBooking)
	assert.Equal(t, 1, f.stock().BookedQuantity)
}

func TestCancelByBeneficiarySynchronousExternalCancellation(t *testing.T) {
	f := newFixture()
	stock := f.stock()
	stock.Provider = domain.ProviderCDS
	stock.ProviderActive = true
	f.setStock(stock)
	f.gateway.tickets = []externalbookings.Ticket{{Barcode: "CINE-10"}}
	booking := f.mustBook(t, f.userID)

	require.NoError(t, f.svc.CancelByBeneficiary(context.Background(), f.userID, booking.ID))

	assert.Equal(t, 1, f.gateway.cancelCalls)
	assert.Empty(t, f.queue.entries)
}

func TestCancelByBeneficiaryDefersFailedExternalCancellation(t *testing.T) {
	f := newFixture()
	stock := f.stock()
	stock.Provider = domain.ProviderCDS
	stock.ProviderActive = true
	f.setStock(stock)
	f.gateway.tickets = []externalbookings.Ticket{{Barcode: "CINE-11"}, {Barcode: "CINE-12"}}
	booking := f.mustBook(t, f.userID)
	f.gateway.cancelErr = &domain.ExternalBookingError{Provider: domain.ProviderCDS, Reason: "provider unreachable"}

	require.NoError(t, f.svc.CancelByBeneficiary(context.Background(), f.userID, booking.ID))

	// The local cancellation stands; each barcode waits in the queue.
	assert.Equal(t, domain.BookingStatusCancelled, f.booking(booking.ID).Status)
	require.Len(t, f.queue.entries, 2)
	assert.Equal(t, "CINE-11", f.queue.entries[0].Barcode)
	assert.Equal(t, f.venueID, f.queue.entries[0].VenueID)
	assert.Equal(t, domain.ProviderCDS, f.queue.entries[0].Provider)
}

func TestCancelByBeneficiaryDefersWhenProviderDisabled(t *testing.T) {
	f := newFixture()
	stock := f.stock()
	stock.Provider = domain.ProviderBoost
	stock.ProviderActive = true
	f.setStock(stock)
	f.gateway.tickets = []externalbookings.Ticket{{Barcode: "BOOST-1"}}
	booking := f.mustBook(t, f.userID)

	f.svc.features.EnableBoost = false
	require.NoError(t, f.svc.CancelByBeneficiary(context.Background(), f.userID, booking.ID))

	assert.Equal(t, 0, f.gateway.cancelCalls)
	require.Len(t, f.queue.entries, 1)
	assert.Equal(t, "BOOST-1", f.queue.entries[0].Barcode)
}

func TestCancelByOfferer(t *testing.T) {
	f := newFixture()
	booking := f.mustBook(t, f.userID)

	require.NoError(t, f.svc.CancelByOfferer(context.Background(), booking.ID))

	stored := f.booking(booking.ID)
	assert.Equal(t, domain.BookingStatusCancelled, stored.Status)
	require.NotNil(t, stored.CancellationReason)
	assert.Equal(t, domain.CancellationReasonOfferer, *stored.CancellationReason)
	assert.Equal(t, 0, f.stock().BookedQuantity)
	assert.Equal(t, []uuid.UUID{booking.ID}, f.notifier.offererCancellations)
}

func TestCancelByOffererIgnoresLimitDate(t *testing.T) {
	f := newFixture()
	beginning := testNow.Add(10 * 24 * time.Hour)
	stock := f.stock()
	stock.BeginningDatetime = &beginning
	f.setStock(stock)
	booking := f.mustBook(t, f.userID)

	f.svc.now = func() time.Time { return testNow.Add(5 * 24 * time.Hour) }
	require.NoError(t, f.svc.CancelByOfferer(context.Background(), booking.ID))
	assert.Equal(t, domain.BookingStatusCancelled, f.booking(booking.ID).Status)
}

func TestCancelByOffererUsedBooking(t *testing.T) {
	f := newFixture()
	booking := f.mustBook(t, f.userID)
	require.NoError(t, f.svc.MarkAsUsed(context.Background(), booking.ID))

	err := f.svc.CancelByOfferer(context.Background(), booking.ID)
	require.ErrorIs(t, err, domain.ErrBookingIsAlreadyUsed)
}

func TestCancelForFraudConfirmedBooking(t *testing.T) {
	f := newFixture()
	booking := f.mustBook(t, f.userID)

	require.NoError(t, f.svc.CancelForFraud(context.Background(), booking.ID))

	stored := f.booking(booking.ID)
	assert.Equal(t, domain.BookingStatusCancelled, stored.Status)
	assert.Equal(t, domain.CancellationReasonFraud, *stored.CancellationReason)
	assert.Equal(t, 0, f.stock().BookedQuantity)
	// No reversal needed: the booking was never used, the ledger stays empty.
	assert.Empty(t, f.store.state.events)
	assert.Empty(t, f.notifier.beneficiaryCancellations)
	assert.Empty(t, f.notifier.offererCancellations)
}

func TestCancelForFraudUsedBooking(t *testing.T) {
	f := newFixture()
	booking := f.mustBook(t, f.userID)
	require.NoError(t, f.svc.MarkAsUsed(context.Background(), booking.ID))
	useEventID := f.store.state.events[0].ID
	f.store.state.pricings = []domain.Pricing{
		{ID: uuid.New(), FinanceEventID: useEventID, BookingID: booking.ID, Status: domain.PricingStatusValidated},
	}

	require.NoError(t, f.svc.CancelForFraud(context.Background(), booking.ID))

	stored := f.booking(booking.ID)
	assert.Equal(t, domain.BookingStatusCancelled, stored.Status)
	assert.Nil(t, stored.DateUsed)

	// The ledger shows the reversal instead of losing history: the USE event
	// and its pricing become CANCELLED, a reversal event is appended.
	require.Len(t, f.store.state.events, 2)
	assert.Equal(t, domain.FinanceEventStatusCancelled, f.store.state.events[0].Status)
	reversal := f.store.state.events[1]
	assert.Equal(t, domain.MotiveBookingCancelledAfterUse, reversal.Motive)
	assert.Equal(t, domain.FinanceEventStatusNotToBePriced, reversal.Status)
	assert.Equal(t, domain.PricingStatusCancelled, f.store.state.pricings[0].Status)
}

func TestCancelForFraudProcessedPricing(t *testing.T) {
	f := newFixture()
	booking := f.mustBook(t, f.userID)
	require.NoError(t, f.svc.MarkAsUsed(context.Background(), booking.ID))
	f.store.state.pricings = []domain.Pricing{
		{ID: uuid.New(), BookingID: booking.ID, Status: domain.PricingStatusProcessed},
	}

	err := f.svc.CancelForFraud(context.Background(), booking.ID)
	require.ErrorIs(t, err, domain.ErrBookingIsAlreadyRefunded)
	assert.Equal(t, domain.BookingStatusUsed, f.booking(booking.ID).Status)
}

func TestCancelBookingsFromStockByOfferer(t *testing.T) {
	f := newFixture()
	first := f.mustBook(t, f.userID)

	secondUser := f.addUser()
	second, err := f.svc.BookOffer(context.Background(), secondUser, f.stockID, 1)
	require.NoError(t, err)

	usedUser := f.addUser()
	used, err := f.svc.BookOffer(context.Background(), usedUser, f.stockID, 1)
	require.NoError(t, err)
	require.NoError(t, f.svc.MarkAsUsed(context.Background(), used.ID))
	require.Equal(t, 3, f.stock().BookedQuantity)

	cancelled, err := f.svc.CancelBookingsFromStockByOfferer(context.Background(), f.stockID)
	require.NoError(t, err)

	require.Len(t, cancelled, 2)
	assert.Equal(t, domain.BookingStatusCancelled, f.booking(first.ID).Status)
	assert.Equal(t, domain.BookingStatusCancelled, f.booking(second.ID).Status)
	// Used bookings are skipped silently and keep their seat.
	assert.Equal(t, domain.BookingStatusUsed, f.booking(used.ID).Status)
	assert.Equal(t, 1, f.stock().BookedQuantity)
	assert.Len(t, f.notifier.offererCancellations, 2)
}

func TestCancelBookingsFromStockByOffererEmptyStock(t *testing.T) {
	f := newFixture()
	cancelled, err := f.svc.CancelBookingsFromStockByOfferer(context.Background(), f.stockID)
	require.NoError(t, err)
	assert.Empty(t, cancelled)
	assert.Equal(t, 0, f.stock().BookedQuantity)
}

func TestCancelReleasedSeatCanBeRebooked(t *testing.T) {
	f := newFixture()
	stock := f.stock()
	stock.Quantity = intPtr(1)
	f.setStock(stock)

	booking := f.mustBook(t, f.userID)
	otherUser := f.addUser()
	_, err := f.svc.BookOffer(context.Background(), otherUser, f.stockID, 1)
	require.ErrorIs(t, err, domain.ErrStockIsNotBookable)

	require.NoError(t, f.svc.CancelByBeneficiary(context.Background(), f.userID, booking.ID))

	rebooked, err := f.svc.BookOffer(context.Background(), otherUser, f.stockID, 1)
	require.NoError(t, err)
	assert.True(t, rebooked.Amount.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, 1, f.stock().BookedQuantity)
}
