// Package mongo persists the booking audit trail. The trail is append-only
// and lives outside the transactional store: fraud review reads it, nothing
// in the booking path ever does.
package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/cultpass/bookings/internal/domain"
	"github.com/cultpass/bookings/internal/observability"
)

type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("booking_audit"),
		logger: logger,
	}
}

type auditEntry struct {
	ID        uuid.UUID `bson:"_id"`
	Action    string    `bson:"action"`
	BookingID uuid.UUID `bson:"booking_id"`
	UserID    uuid.UUID `bson:"user_id"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

// RecordTransition is fire-and-forget: an unreachable audit store must not
// fail a booking that already committed.
func (a *AuditLogger) RecordTransition(ctx context.Context, booking *domain.Booking, action string) {
	entry := auditEntry{
		ID:        uuid.New(),
		Action:    action,
		BookingID: booking.ID,
		UserID:    booking.UserID,
		Timestamp: time.Now(),
		Data: bson.M{
			"stock_id": booking.StockID.String(),
			"offer_id": booking.OfferID.String(),
			"status":   string(booking.Status),
			"quantity": booking.Quantity,
			"total":    booking.Total().String(),
			"token":    booking.Token,
		},
	}
	if _, err := a.coll.InsertOne(ctx, entry); err != nil {
		a.logger.WithError(err).WithField("booking_id", booking.ID).Error("audit insert failed")
	}
}
