package main

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-storefront-orders/internal/amqp"
	"github.com/ariefcatur/go-storefront-orders/internal/cart"
	"github.com/ariefcatur/go-storefront-orders/internal/checkout"
	"github.com/ariefcatur/go-storefront-orders/internal/config"
	"github.com/ariefcatur/go-storefront-orders/internal/gateway"
	"github.com/ariefcatur/go-storefront-orders/internal/httpx"
	"github.com/ariefcatur/go-storefront-orders/internal/inventory"
	kafkax "github.com/ariefcatur/go-storefront-orders/internal/kafka"
	"github.com/ariefcatur/go-storefront-orders/internal/logging"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/outbox"
	"github.com/ariefcatur/go-storefront-orders/internal/postgres"
	"github.com/ariefcatur/go-storefront-orders/internal/reconcile"
	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
	"github.com/ariefcatur/go-storefront-orders/internal/shutdown"
	"github.com/ariefcatur/go-storefront-orders/internal/sweep"
	"github.com/ariefcatur/go-storefront-orders/internal/tracing"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)
	slog.SetDefault(log)
	tracing.Setup()

	ctx, stop := shutdown.WithSignals(context.Background())
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("api exited", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	// gateway config is checked before anything connects
	gc := cfg.Gateway
	gw, err := gateway.Open(log, gateway.Settings{
		Provider:      gc.Provider,
		KeyID:         gc.KeyID,
		KeySecret:     gc.KeySecret,
		WebhookSecret: gc.WebhookSecret,
		Timeout:       gc.Timeout,
	})
	if err != nil {
		return err
	}

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		return err
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := redisx.Ping(ctx, rdb); err != nil {
		// dedup and the sweep lock degrade; the state machine stays correct
		log.Warn("redis unavailable at startup", "err", err)
	}

	publisher, closeBus, err := eventBus(cfg, log)
	if err != nil {
		return err
	}
	defer closeBus.Close()

	store := postgres.NewStore(log, db)
	ledger := inventory.NewLedger(log)
	engine := reconcile.NewEngine(log, store, ledger, gw, redisx.NewDeduper(rdb, cfg.ServiceName), cfg.ServiceName)

	router := httpx.NewRouter()
	h := &httpx.Handler{
		Log:        log,
		Store:      store,
		Cart:       cart.NewService(log, store),
		Checkout:   checkout.NewService(log, store, ledger, gw, cfg.Gateway.Currency, cfg.ServiceName),
		Engine:     engine,
		Admin:      reconcile.NewAdmin(engine, cfg.AdminCleanupThreshold),
		Status:     redisx.NewStatusCache(rdb),
		AdminToken: cfg.AdminToken,
	}
	h.Register(router)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	relay := outbox.NewRelay(log, postgres.NewOutboxStore(log, db), publisher, cfg.ServiceName+"-"+uuid.NewString()[:8])
	scheduler := sweep.New(log, engine, redisx.NewLocker(rdb), cfg.SweepThreshold)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return relay.Run(gctx) })
	g.Go(func() error { return scheduler.Run(gctx, cfg.SweepSchedule) })
	g.Go(func() error {
		log.Info("HTTP listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down...")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

func eventBus(cfg config.Config, log *slog.Logger) (outbox.Publisher, io.Closer, error) {
	switch cfg.EventBus {
	case "amqp":
		p, err := amqp.Dial(log, cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, nil, err
		}
		log.Info("event bus", "kind", "amqp", "exchange", cfg.AMQPExchange)
		return p, p, nil
	case "kafka", "":
		prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderLifecycle)
		log.Info("event bus", "kind", "kafka", "topic", orders.TopicOrderLifecycle)
		return outbox.NewKafkaDispatcher(log, prod, orders.TopicOrderLifecycle), prod, nil
	}
	return nil, nil, fmt.Errorf("unknown EVENT_BUS %q", cfg.EventBus)
}
