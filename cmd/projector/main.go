package main

import (
	"context"
	"github.com/ariefcatur/go-storefront-orders/internal/config"
	kafkax "github.com/ariefcatur/go-storefront-orders/internal/kafka"
	"github.com/ariefcatur/go-storefront-orders/internal/logging"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/projector"
	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
	"github.com/ariefcatur/go-storefront-orders/internal/shutdown"
	"github.com/ariefcatur/go-storefront-orders/internal/tracing"
	"github.com/joho/godotenv"
	"os"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logging.New(cfg.LogLevel).With("service", cfg.ServiceName+"-projector")
	tracing.Setup()

	ctx, stop := shutdown.WithSignals(context.Background())
	defer stop()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := redisx.Ping(ctx, rdb); err != nil {
		log.Error("redis", "err", err)
		os.Exit(1)
	}

	proj := projector.NewStatusProjector(log, redisx.NewStatusCache(rdb))

	// Consumer
	cons := kafkax.NewConsumer(log, cfg.KafkaBrokers, cfg.ProjectorGroup, orders.TopicOrderLifecycle, cfg.ProjectorWorkers)
	log.Info("projector consumer started", "group", cfg.ProjectorGroup, "topic", orders.TopicOrderLifecycle, "workers", cfg.ProjectorWorkers)
	if err := cons.Start(ctx, proj.Handle); err != nil {
		log.Error("consumer exit", "err", err)
		os.Exit(1)
	}
	log.Info("projector stopped")
}
