package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/orderstream/internal/amqpx"
	"github.com/ariefcatur/orderstream/internal/catalog"
	"github.com/ariefcatur/orderstream/internal/config"
	"github.com/ariefcatur/orderstream/internal/httpx"
	kafkax "github.com/ariefcatur/orderstream/internal/kafka"
	"github.com/ariefcatur/orderstream/internal/memstore"
	"github.com/ariefcatur/orderstream/internal/notify"
	"github.com/ariefcatur/orderstream/internal/observability"
	"github.com/ariefcatur/orderstream/internal/orders"
	"github.com/ariefcatur/orderstream/internal/postgres"
	"github.com/ariefcatur/orderstream/internal/redisx"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := observability.NewLogger(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.ServiceName, cfg.OTelEndpoint)
	if err != nil {
		log.Warn("tracing disabled", zap.Error(err))
		shutdownTracing = func(context.Context) error { return nil }
	}

	// Storage
	var (
		store    orders.Store
		products catalog.Repository
		users    catalog.UserLookup
	)
	switch cfg.StoreDriver {
	case config.StoreMemory:
		mem := memstore.New()
		if err := mem.SeedDemo(ctx); err != nil {
			log.Fatal("seed memstore", zap.Error(err))
		}
		store, products, users = mem, mem, mem
		log.Info("using in-memory store")
	default:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN, 16)
		if err != nil {
			log.Fatal("db connect", zap.Error(err))
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			log.Fatal("db migrate", zap.Error(err))
		}
		pg := postgres.NewStore(db)
		store, products, users = pg, postgres.NewProductRepo(db), pg
	}

	// Redis product cache, also the invalidation target after placement
	var (
		rdb   *redis.Client
		cache orders.CacheInvalidator
	)
	if cfg.RedisAddr != "" {
		c, err := redisx.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			log.Warn("redis unavailable, product cache disabled", zap.Error(err))
		} else {
			rdb = c
			defer rdb.Close()
			cached := redisx.NewCachedProducts(products, rdb, cfg.ProductTTL, log)
			products, cache = cached, cached
		}
	}

	// Completion notifiers
	var (
		targets notify.Multi
		prod    *kafkax.Producer
	)
	if cfg.Has("kafka") && len(cfg.KafkaBrokers) > 0 {
		prod = kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCompleted, 1024, log)
		prod.Start(context.WithoutCancel(ctx))
		targets = append(targets, kafkax.NewNotifier(prod, cfg.ServiceName))
	}
	if cfg.Has("redis") && rdb != nil {
		targets = append(targets, redisx.NewQueueNotifier(rdb))
	}
	if cfg.Has("amqp") && cfg.AMQPURL != "" {
		mq, err := amqpx.Dial(cfg.AMQPURL)
		if err != nil {
			log.Warn("rabbitmq unavailable", zap.Error(err))
		} else {
			defer mq.Close()
			n, err := amqpx.NewNotifier(mq, cfg.ServiceName)
			if err != nil {
				log.Warn("rabbitmq notifier disabled", zap.Error(err))
			} else {
				targets = append(targets, n)
			}
		}
	}
	if cfg.Has("log") || len(targets) == 0 {
		targets = append(targets, notify.Log{L: log})
	}

	orderSvc := &orders.Service{
		Store:         store,
		Notifier:      targets,
		Cache:         cache,
		Logger:        log,
		NotifyTimeout: cfg.NotifyTimeout,
	}
	catalogSvc := catalog.NewService(products, users, log)

	router := httpx.NewRouter(log, cfg.CORSOrigins)
	validate := validator.New()
	(&httpx.OrdersHandler{Svc: orderSvc, Validate: validate, Log: log}).Register(router)
	(&httpx.ProductsHandler{Svc: catalogSvc, Log: log}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("listen", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	if prod != nil {
		prod.Close() // flush queued events, then close the writer
		prod.WaitClosed()
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn("tracing shutdown", zap.Error(err))
	}
}
