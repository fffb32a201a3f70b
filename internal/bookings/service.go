// Package bookings implements the booking lifecycle: creating a booking
// against a stock under row locks, cancelling it, marking it used or unused,
// and the batch jobs that expire or archive bookings. Every state transition
// of a booking goes through this package.
package bookings

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cultpass/bookings/internal/cancelqueue"
	"github.com/cultpass/bookings/internal/config"
	"github.com/cultpass/bookings/internal/domain"
	"github.com/cultpass/bookings/internal/externalbookings"
	"github.com/cultpass/bookings/internal/finance"
	"github.com/cultpass/bookings/internal/notifications"
	"github.com/cultpass/bookings/internal/observability"
)

const maxTokenAttempts = 5

// autoUseOffset is added to the event beginning when the auto-validation job
// stamps dateUsed.
const autoUseOffset = time.Minute

type GatewayResolver interface {
	For(kind domain.ProviderKind) (externalbookings.Gateway, error)
}

type CancelQueue interface {
	Push(ctx context.Context, entry cancelqueue.Entry) error
}

// Auditor records lifecycle transitions to the audit trail, fire-and-forget.
type Auditor interface {
	RecordTransition(ctx context.Context, booking *domain.Booking, action string)
}

type Service struct {
	store     Store
	gateways  GatewayResolver
	finance   finance.Emitter
	notifier  notifications.Notifier
	analytics notifications.Analytics
	push      notifications.PushNotifier
	search    notifications.SearchIndexer
	audit     Auditor
	cancelQ   CancelQueue
	features  config.Features
	logger    observability.Logger
	now       func() time.Time
}

func NewService(
	store Store,
	gateways GatewayResolver,
	notifier notifications.Notifier,
	analytics notifications.Analytics,
	push notifications.PushNotifier,
	search notifications.SearchIndexer,
	audit Auditor,
	cancelQ CancelQueue,
	features config.Features,
	logger observability.Logger,
) *Service {
	return &Service{
		store:     store,
		gateways:  gateways,
		notifier:  notifier,
		analytics: analytics,
		push:      push,
		search:    search,
		audit:     audit,
		cancelQ:   cancelQ,
		features:  features,
		logger:    logger,
		now:       time.Now,
	}
}

// BookOffer books quantity units of a stock for a beneficiary. The whole
// operation is one transaction: stock row lock, then user row lock, credit
// validation, external provider call if the offer is externally fulfilled,
// then the local mutations. A provider failure aborts everything; no partial
// booking is ever persisted.
func (s *Service) BookOffer(ctx context.Context, userID, stockID uuid.UUID, quantity int) (*domain.Booking, error) {
	now := s.now()

	var (
		booking           *domain.Booking
		offerID           uuid.UUID
		firstVenueBooking bool
	)
	err := s.store.InTransaction(ctx, func(tx Tx) error {
		// Lock order: stock first, then user.
		stock, err := tx.GetStockForUpdate(ctx, stockID)
		if err != nil {
			return err
		}
		offerID = stock.OfferID

		if quantity != 1 && !(quantity == 2 && stock.OfferIsDuo) {
			return domain.ErrQuantityIsInvalid
		}

		user, err := tx.GetUserForUpdate(ctx, userID)
		if err != nil {
			return err
		}

		if !stock.IsBookable(now) {
			return domain.ErrStockIsNotBookable
		}
		if remaining := stock.RemainingQuantity(); remaining != nil && quantity > *remaining {
			return domain.ErrStockIsNotBookable
		}

		alreadyBooked, err := tx.HasActiveBookingOnOffer(ctx, userID, stock.OfferID)
		if err != nil {
			return err
		}
		if alreadyBooked {
			return domain.ErrOfferIsAlreadyBooked
		}

		total := stock.Price.Mul(decimalFromInt(quantity))
		var depositID *uuid.UUID
		if total.IsPositive() {
			deposit, err := s.checkCredit(ctx, tx, user, stock, total, now)
			if err != nil {
				return err
			}
			depositID = &deposit.ID
		}

		token, err := s.uniqueToken(ctx, tx)
		if err != nil {
			return err
		}

		booking = &domain.Booking{
			ID:                    uuid.New(),
			UserID:                userID,
			StockID:               stock.ID,
			OfferID:               stock.OfferID,
			VenueID:               stock.VenueID,
			DepositID:             depositID,
			Quantity:              quantity,
			Amount:                stock.Price,
			Status:                domain.BookingStatusConfirmed,
			Token:                 token,
			DateCreated:           now,
			CancellationLimitDate: domain.CancellationLimitDate(stock.BeginningDatetime, now),
		}

		autoUsed := false
		if stock.HasActivationCodes {
			code, err := tx.ClaimActivationCode(ctx, stock.ID, booking.ID, now)
			if err != nil {
				return err
			}
			booking.ActivationCode = &code.Code
			// Digital non-event goods are self-consuming: the code is
			// delivered immediately, so the booking is born used.
			if !stock.IsEvent() {
				booking.Status = domain.BookingStatusUsed
				used := now
				booking.DateUsed = &used
				booking.UsedByActivationCode = true
				autoUsed = true
			}
		}

		var tickets []externalbookings.Ticket
		if stock.RequiresExternalFulfillment() {
			// The provider call happens before any local write so that a
			// provider failure can still abort cleanly. The stock lock is
			// held for the call's full latency; the gateway timeout bounds
			// that window.
			tickets, err = s.bookExternally(ctx, stock, quantity, token)
			if err != nil {
				return err
			}
		}

		firstVenueBooking, err = s.isFirstVenueBooking(ctx, tx, stock, total)
		if err != nil {
			return err
		}

		if err := tx.AdjustStockBookedQuantity(ctx, stock.ID, quantity); err != nil {
			return err
		}
		if err := tx.InsertBooking(ctx, booking); err != nil {
			return err
		}
		if len(tickets) > 0 {
			rows := make([]domain.ExternalBooking, len(tickets))
			for i, ticket := range tickets {
				rows[i] = domain.ExternalBooking{
					ID:             uuid.New(),
					BookingID:      booking.ID,
					Barcode:        ticket.Barcode,
					SeatNumber:     ticket.SeatNumber,
					AdditionalInfo: ticket.AdditionalInfo,
				}
			}
			if err := tx.InsertExternalBookings(ctx, rows); err != nil {
				return err
			}
		}
		if autoUsed {
			if _, err := s.finance.AddEvent(ctx, tx, booking, domain.MotiveBookingUsed, now); err != nil {
				return err
			}
		}
		return s.outbox(ctx, tx, "booking.created", booking)
	})
	if err != nil {
		observability.BookingsTotal.WithLabelValues("failure").Inc()
		return nil, err
	}
	observability.BookingsTotal.WithLabelValues("success").Inc()

	s.afterBooking(ctx, booking, offerID, firstVenueBooking)
	return booking, nil
}

// GetBookingByToken resolves a booking from its counter-desk token. Unknown
// tokens report ErrBookingDoesntExist.
func (s *Service) GetBookingByToken(ctx context.Context, token string) (*domain.Booking, error) {
	var booking *domain.Booking
	err := s.store.InTransaction(ctx, func(tx Tx) error {
		b, err := tx.GetBookingByToken(ctx, token)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrBookingDoesntExist
			}
			return err
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

// checkCredit enforces both the deposit envelope and the category cap,
// cumulatively over the deposit lifetime. Non-beneficiaries (admin, pro)
// fail with the same insufficient-funds error as a drained deposit so the
// error surface stays uniform.
func (s *Service) checkCredit(ctx context.Context, tx Tx, user *domain.User, stock *domain.Stock, total decimal.Decimal, now time.Time) (*domain.Deposit, error) {
	if !user.IsBeneficiary() {
		return nil, domain.ErrUserHasInsufficientFunds
	}
	deposit, err := tx.ActiveDeposit(ctx, user.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUserHasInsufficientFunds
		}
		return nil, err
	}
	if deposit.IsExpired(now) {
		return nil, domain.ErrUserHasInsufficientFunds
	}
	expenses, err := tx.DepositExpenses(ctx, deposit.ID)
	if err != nil {
		return nil, err
	}
	if err := deposit.CheckCredit(expenses, stock.ExpenseCategory, total); err != nil {
		return nil, err
	}
	return deposit, nil
}

func (s *Service) uniqueToken(ctx context.Context, tx Tx) (string, error) {
	for i := 0; i < maxTokenAttempts; i++ {
		token, err := domain.GenerateToken()
		if err != nil {
			return "", err
		}
		exists, err := tx.TokenExists(ctx, token)
		if err != nil {
			return "", err
		}
		if !exists {
			return token, nil
		}
	}
	return "", errors.Newf("could not generate a unique token in %d attempts", maxTokenAttempts)
}

// bookExternally runs the provider killswitch check and the gateway call.
func (s *Service) bookExternally(ctx context.Context, stock *domain.Stock, quantity int, token string) ([]externalbookings.Ticket, error) {
	if !stock.ProviderActive {
		return nil, &domain.ExternalBookingError{Provider: stock.Provider, Reason: "venue provider is inactive"}
	}
	if !s.features.ProviderEnabled(stock.Provider) {
		return nil, errors.Wrapf(domain.ErrProviderDisabled, "provider %s", stock.Provider)
	}
	gw, err := s.gateways.For(stock.Provider)
	if err != nil {
		return nil, err
	}
	return gw.Book(ctx, *stock, quantity, token)
}

func (s *Service) isFirstVenueBooking(ctx context.Context, tx Tx, stock *domain.Stock, total decimal.Decimal) (bool, error) {
	if !total.IsPositive() {
		return false, nil
	}
	has, err := tx.VenueHasNonFreeBookings(ctx, stock.VenueID)
	if err != nil {
		return false, err
	}
	return !has, nil
}

func (s *Service) outbox(ctx context.Context, tx Tx, eventType string, booking *domain.Booking) error {
	payload, err := json.Marshal(map[string]interface{}{
		"booking_id": booking.ID,
		"offer_id":   booking.OfferID,
		"status":     booking.Status,
	})
	if err != nil {
		return err
	}
	return tx.InsertOutboxEvent(ctx, eventType, booking.ID, payload)
}

// afterBooking runs the post-commit side effects: emails, push attributes,
// analytics and search reindexing. None of them can fail the booking.
func (s *Service) afterBooking(ctx context.Context, booking *domain.Booking, offerID uuid.UUID, firstVenueBooking bool) {
	s.notifier.SendBookingConfirmationToBeneficiary(ctx, booking)
	s.notifier.SendBookingNotificationToOfferer(ctx, booking, firstVenueBooking)
	s.push.UpdateBookingAttributes(ctx, booking)
	s.analytics.Track(ctx, notifications.EventBookingCreated, booking.UserID, map[string]interface{}{
		"booking_id": booking.ID,
		"offer_id":   offerID,
		"quantity":   booking.Quantity,
	})
	s.search.ReindexOffer(ctx, offerID)
	s.audit.RecordTransition(ctx, booking, "booking.created")
}

func decimalFromInt(n int) decimal.Decimal {
	return decimal.NewFromInt(int64(n))
}
