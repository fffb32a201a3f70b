// The validation worker runs the time-driven booking jobs: auto-validation
// of event bookings two days after the event, and archiving of old
// auto-consumed digital bookings.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	mongoadapter "github.com/cultpass/bookings/internal/adapters/mongo"
	"github.com/cultpass/bookings/internal/adapters/pgdb"
	"github.com/cultpass/bookings/internal/adapters/rabbit"
	"github.com/cultpass/bookings/internal/bookings"
	"github.com/cultpass/bookings/internal/cancelqueue"
	"github.com/cultpass/bookings/internal/config"
	"github.com/cultpass/bookings/internal/domain"
	"github.com/cultpass/bookings/internal/externalbookings"
	"github.com/cultpass/bookings/internal/notifications"
	"github.com/cultpass/bookings/internal/observability"
)

const runInterval = time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()
	repo := pgdb.NewRepository(pool)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	audit := mongoadapter.NewAuditLogger(mongoClient.Database("cultpass"), logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	cancelQ := cancelqueue.NewQueue(redisClient)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()
	rabbitPub, err := rabbit.NewPublisher(conn)
	if err != nil {
		log.Fatalf("failed to create rabbit publisher: %v", err)
	}
	notifier := notifications.NewRabbitNotifier(rabbitPub, logger)

	registry := externalbookings.NewRegistry()
	for kind, prov := range cfg.Providers {
		if prov.BaseURL == "" {
			continue
		}
		registry.Register(kind, externalbookings.NewHTTPGateway(kind, prov.BaseURL, prov.APIKey, cfg.GatewayTimeout))
	}

	svc := bookings.NewService(
		repo,
		registry,
		notifier,
		notifier,
		notifier,
		notifier,
		audit,
		cancelQ,
		cfg.Features,
		logger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go run(ctx, svc, logger)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down validation worker")
}

func run(ctx context.Context, svc *bookings.Service, logger observability.Logger) {
	ticker := time.NewTicker(runInterval)
	defer ticker.Stop()

	for {
		runOnce(ctx, svc, logger)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func runOnce(ctx context.Context, svc *bookings.Service, logger observability.Logger) {
	if _, err := svc.AutoMarkAsUsedAfterEvent(ctx); err != nil {
		if errors.Is(err, domain.ErrFeatureDisabled) {
			// The gate being off is an operator decision, not a crash. Loud
			// log instead, so a forgotten gate is visible.
			logger.Warn("auto validation is gated off, skipping")
		} else {
			logger.WithError(err).Error("auto validation run failed")
		}
	}
	if _, err := svc.ArchiveOldBookings(ctx); err != nil {
		logger.WithError(err).Error("archive run failed")
	}
}
