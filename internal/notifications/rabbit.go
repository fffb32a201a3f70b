package notifications

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cultpass/bookings/internal/adapters/rabbit"
	"github.com/cultpass/bookings/internal/domain"
	"github.com/cultpass/bookings/internal/observability"
)

// RabbitNotifier publishes notification, analytics and reindex messages to
// the booking.events topic exchange; the mailer, the push backend and the
// search indexer consume them downstream. Publishing failures are logged
// and swallowed.
type RabbitNotifier struct {
	pub    *rabbit.Publisher
	logger observability.Logger
}

func NewRabbitNotifier(pub *rabbit.Publisher, logger observability.Logger) *RabbitNotifier {
	return &RabbitNotifier{pub: pub, logger: logger}
}

func (n *RabbitNotifier) publish(ctx context.Context, key string, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.WithError(err).Error("marshal notification payload")
		return
	}
	msg := amqp.Publishing{
		MessageId:   uuid.New().String(),
		ContentType: "application/json",
		Body:        body,
	}
	if err := n.pub.Publish(ctx, key, msg); err != nil {
		n.logger.WithError(err).WithField("routing_key", key).Error("publish notification")
	}
}

type bookingMessage struct {
	BookingID         uuid.UUID `json:"booking_id"`
	UserID            uuid.UUID `json:"user_id"`
	OfferID           uuid.UUID `json:"offer_id"`
	VenueID           uuid.UUID `json:"venue_id"`
	Token             string    `json:"token"`
	Quantity          int       `json:"quantity"`
	Amount            string    `json:"amount"`
	FirstVenueBooking bool      `json:"first_venue_booking,omitempty"`
}

func messageFor(b *domain.Booking) bookingMessage {
	return bookingMessage{
		BookingID: b.ID,
		UserID:    b.UserID,
		OfferID:   b.OfferID,
		VenueID:   b.VenueID,
		Token:     b.Token,
		Quantity:  b.Quantity,
		Amount:    b.Amount.String(),
	}
}

func (n *RabbitNotifier) SendBookingConfirmationToBeneficiary(ctx context.Context, booking *domain.Booking) {
	n.publish(ctx, "email.booking.confirmation", messageFor(booking))
}

func (n *RabbitNotifier) SendBookingNotificationToOfferer(ctx context.Context, booking *domain.Booking, firstVenueBooking bool) {
	msg := messageFor(booking)
	msg.FirstVenueBooking = firstVenueBooking
	key := "email.booking.new_to_pro"
	if firstVenueBooking {
		key = "email.booking.first_venue_booking_to_pro"
	}
	n.publish(ctx, key, msg)
}

func (n *RabbitNotifier) SendBeneficiaryCancellation(ctx context.Context, booking *domain.Booking) {
	n.publish(ctx, "email.booking.cancellation_by_beneficiary", messageFor(booking))
	n.publish(ctx, "email.booking.cancellation_by_beneficiary_to_pro", messageFor(booking))
}

func (n *RabbitNotifier) SendOffererCancellationToBeneficiary(ctx context.Context, booking *domain.Booking) {
	n.publish(ctx, "email.booking.cancellation_by_pro_to_beneficiary", messageFor(booking))
}

func (n *RabbitNotifier) Track(ctx context.Context, event string, userID uuid.UUID, properties map[string]interface{}) {
	n.publish(ctx, "analytics."+event, map[string]interface{}{
		"event_name": event,
		"user_id":    userID,
		"properties": properties,
	})
}

func (n *RabbitNotifier) UpdateBookingAttributes(ctx context.Context, booking *domain.Booking) {
	n.publish(ctx, "push.booking_attributes", messageFor(booking))
}

func (n *RabbitNotifier) ReindexOffer(ctx context.Context, offerID uuid.UUID) {
	n.publish(ctx, "search.offer.reindex", map[string]interface{}{"offer_id": offerID})
}
