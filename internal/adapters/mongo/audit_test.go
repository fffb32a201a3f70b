package mongo_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	mongoadapter "github.com/cultpass/bookings/internal/adapters/mongo"
	"github.com/cultpass/bookings/internal/domain"
	"github.com/cultpass/bookings/internal/observability"
)

type nopLogger struct{}

func (nopLogger) Info(args ...interface{})  {}
func (nopLogger) Error(args ...interface{}) {}
func (nopLogger) Debug(args ...interface{}) {}
func (nopLogger) Warn(args ...interface{})  {}
func (l nopLogger) WithField(key string, value interface{}) observability.Logger {
	return l
}
func (l nopLogger) WithError(err error) observability.Logger { return l }

func startMongo(t *testing.T) *mongodriver.Database {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForLog("Waiting for connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	port, err := container.MappedPort(ctx, "27017")
	if err != nil {
		t.Fatal(err)
	}
	client, err := mongodriver.Connect(ctx, options.Client().ApplyURI(fmt.Sprintf("mongodb://%s:%s", host, port.Port())))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = client.Disconnect(ctx)
	})
	return client.Database("cultpass_test")
}

func TestAuditTrailRecordsTransitions(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	db := startMongo(t)
	ctx := context.Background()
	audit := mongoadapter.NewAuditLogger(db, nopLogger{})

	booking := &domain.Booking{
		ID:       uuid.New(),
		UserID:   uuid.New(),
		StockID:  uuid.New(),
		OfferID:  uuid.New(),
		Quantity: 2,
		Amount:   decimal.RequireFromString("15.50"),
		Status:   domain.BookingStatusConfirmed,
		Token:    "ABC123",
	}

	audit.RecordTransition(ctx, booking, "booking.created")
	booking.Status = domain.BookingStatusUsed
	audit.RecordTransition(ctx, booking, "booking.used")

	coll := db.Collection("booking_audit")
	count, err := coll.CountDocuments(ctx, bson.M{"booking_id": booking.ID})
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Fatalf("audit entries = %d, want 2", count)
	}

	var entry struct {
		Action string `bson:"action"`
		Data   bson.M `bson:"data"`
	}
	if err := coll.FindOne(ctx, bson.M{"booking_id": booking.ID, "action": "booking.used"}).Decode(&entry); err != nil {
		t.Fatal(err)
	}
	if entry.Data["status"] != "USED" {
		t.Errorf("status = %v, want USED", entry.Data["status"])
	}
	if entry.Data["total"] != "31" {
		t.Errorf("total = %v, want 31", entry.Data["total"])
	}
	if entry.Data["token"] != "ABC123" {
		t.Errorf("token = %v, want ABC123", entry.Data["token"])
	}
}
