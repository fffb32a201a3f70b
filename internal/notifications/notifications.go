// Package notifications holds the post-commit side-effect contracts: emails,
// push attributes, analytics and search reindexing. Every implementation is
// fire-and-forget; a delivery failure is logged and never fails or rolls
// back a booking operation.
package notifications

import (
	"context"

	"github.com/google/uuid"

	"github.com/cultpass/bookings/internal/domain"
)

type Notifier interface {
	SendBookingConfirmationToBeneficiary(ctx context.Context, booking *domain.Booking)
	// SendBookingNotificationToOfferer uses a distinct template on a venue's
	// first-ever non-free booking.
	SendBookingNotificationToOfferer(ctx context.Context, booking *domain.Booking, firstVenueBooking bool)
	SendBeneficiaryCancellation(ctx context.Context, booking *domain.Booking)
	SendOffererCancellationToBeneficiary(ctx context.Context, booking *domain.Booking)
}

type Analytics interface {
	Track(ctx context.Context, event string, userID uuid.UUID, properties map[string]interface{})
}

type PushNotifier interface {
	UpdateBookingAttributes(ctx context.Context, booking *domain.Booking)
}

type SearchIndexer interface {
	ReindexOffer(ctx context.Context, offerID uuid.UUID)
}

const (
	EventBookingCreated   = "BOOKING_CREATED"
	EventBookingCancelled = "BOOKING_CANCELLED"
	EventBookingUsed      = "BOOKING_USED"
)
