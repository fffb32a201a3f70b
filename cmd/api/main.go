package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	mongoadapter "github.com/cultpass/bookings/internal/adapters/mongo"
	"github.com/cultpass/bookings/internal/adapters/pgdb"
	"github.com/cultpass/bookings/internal/adapters/rabbit"
	redisadapter "github.com/cultpass/bookings/internal/adapters/redis"
	"github.com/cultpass/bookings/internal/bookings"
	"github.com/cultpass/bookings/internal/cancelqueue"
	"github.com/cultpass/bookings/internal/config"
	"github.com/cultpass/bookings/internal/externalbookings"
	httphandler "github.com/cultpass/bookings/internal/http"
	"github.com/cultpass/bookings/internal/idempotency"
	"github.com/cultpass/bookings/internal/notifications"
	"github.com/cultpass/bookings/internal/observability"
	"github.com/cultpass/bookings/internal/rateLimit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

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
	redisCache := redisadapter.NewCache(redisClient)
	idemp := idempotency.NewIdempotency(redisadapter.NewIdempotency(redisClient), 24*time.Hour)
	rl := rateLimit.NewRateLimiter(redisCache)
	cancelQ := cancelqueue.NewQueue(redisClient)

	rabbitConn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer rabbitConn.Close()
	rabbitPub, err := rabbit.NewPublisher(rabbitConn)
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

	handlers := httphandler.NewHandlers(svc, logger)
	router := httphandler.SetupRouter(handlers, logger, rl, idemp)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	go func() {
		logger.WithField("addr", cfg.ListenAddr).Info("api listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("server shutdown: %v", err)
	}
	logger.Info("server exited")
}
