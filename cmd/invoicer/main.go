package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/orderstream/internal/config"
	"github.com/ariefcatur/orderstream/internal/invoice"
	kafkax "github.com/ariefcatur/orderstream/internal/kafka"
	"github.com/ariefcatur/orderstream/internal/observability"
	"github.com/ariefcatur/orderstream/internal/orders"
	"github.com/ariefcatur/orderstream/internal/postgres"
	"github.com/ariefcatur/orderstream/internal/redisx"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	service := cfg.ServiceName + "-invoicer"
	log, err := observability.NewLogger(service, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, service, cfg.OTelEndpoint)
	if err != nil {
		log.Warn("tracing disabled", zap.Error(err))
	} else {
		defer func() { _ = shutdownTracing(context.Background()) }()
	}

	db, err := postgres.Connect(ctx, cfg.PostgresDSN, 4)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	rdb, err := redisx.Connect(ctx, cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	w := &invoice.Worker{
		Orders: postgres.NewStore(db),
		Dedup:  invoice.RedisDedup{RDB: rdb, Service: "invoicer"},
		Log:    log,
	}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.InvoicerGroup, orders.TopicOrderCompleted, cfg.InvoicerWorker, log)

	log.Info("invoice consumer started",
		zap.String("group", cfg.InvoicerGroup),
		zap.String("topic", orders.TopicOrderCompleted),
		zap.Int("workers", cfg.InvoicerWorker))
	if err := cons.Start(ctx, w.HandleOrderCompleted); err != nil {
		log.Error("consumer exit", zap.Error(err))
		os.Exit(1)
	}
	log.Info("invoice consumer stopped")
}
