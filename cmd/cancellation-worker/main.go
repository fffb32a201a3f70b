// The cancellation worker replays deferred external cancellations: entries
// the API pushed to redis when a provider call failed or the provider was
// gated off at cancellation time.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	redisclient "github.com/redis/go-redis/v9"

	"github.com/cultpass/bookings/internal/cancelqueue"
	"github.com/cultpass/bookings/internal/config"
	"github.com/cultpass/bookings/internal/externalbookings"
	"github.com/cultpass/bookings/internal/observability"
)

const runInterval = time.Minute

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

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	queue := cancelqueue.NewQueue(redisClient)

	registry := externalbookings.NewRegistry()
	for kind, prov := range cfg.Providers {
		if prov.BaseURL == "" {
			continue
		}
		registry.Register(kind, externalbookings.NewHTTPGateway(kind, prov.BaseURL, prov.APIKey, cfg.GatewayTimeout))
	}

	worker := cancelqueue.NewWorker(queue, registry, logger, cfg.CancelQueueMinAge)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go worker.Run(ctx, runInterval)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down cancellation worker")
}
