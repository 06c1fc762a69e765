package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/zakkycrypt01/voile/libs/health"
	"github.com/zakkycrypt01/voile/libs/httpmiddleware"
	"github.com/zakkycrypt01/voile/libs/kafka"
	"github.com/zakkycrypt01/voile/libs/logging"
	"github.com/zakkycrypt01/voile/libs/metrics"
	"github.com/zakkycrypt01/voile/libs/trace"
	"github.com/zakkycrypt01/voile/protocol/commit"
	"github.com/zakkycrypt01/voile/protocol/faucet"
	"github.com/zakkycrypt01/voile/protocol/ledgerstore"
	"github.com/zakkycrypt01/voile/protocol/pricing"
	"github.com/zakkycrypt01/voile/services/lppool/internal/config"
	"github.com/zakkycrypt01/voile/services/lppool/internal/consumer"
	"github.com/zakkycrypt01/voile/services/lppool/internal/handlers"
	"github.com/zakkycrypt01/voile/services/lppool/internal/service"
	"github.com/zakkycrypt01/voile/services/lppool/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.App.LogLevel, cfg.App.ServiceName, cfg.App.Env)
	shutdownTracer, err := trace.InitTracer(cfg.App.ServiceName, cfg.App.Env)
	if err != nil {
		logger.Error("tracer init failed", "error", err)
	} else {
		defer func() {
			_ = shutdownTracer(context.Background())
		}()
	}

	if cfg.App.Env == "dev" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(registry)

	svcMetrics := service.NewMetrics(registry)
	kafkaMetrics := kafka.NewProducerMetrics(registry)

	ready := health.NewManager(false)

	pool, err := connectDB(cfg)
	if err != nil {
		logger.Error("db connection failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := applySchema(pool); err != nil {
		logger.Error("schema apply failed", "error", err)
		os.Exit(1)
	}

	producer, err := kafka.NewSyncProducer(cfg.Kafka.Brokers, logger, kafkaMetrics)
	if err != nil {
		logger.Error("kafka producer init failed", "error", err)
		os.Exit(1)
	}
	defer producer.Close()
	publisher := kafka.Publisher(producer)
	if strings.TrimSpace(cfg.Kafka.Topics.DeadLetter) != "" {
		publisher = kafka.NewDLQPublisher(producer, producer, cfg.Kafka.Topics.DeadLetter, logger)
	}

	calc, err := pricing.NewCalculator(pricing.DefaultParams())
	if err != nil {
		logger.Error("pricing params invalid", "error", err)
		os.Exit(1)
	}

	stores := ledgerstore.NewPostgresFactory(pool)
	svc := service.New(
		stores,
		cfg.PoolID,
		storage.NewOfferIndex(pool),
		commit.NewBlake3Hasher(),
		calc,
		faucet.New(stores.Namespace("faucet"), cfg.FaucetCap),
		publisher,
		service.Topics{
			OffersCreated:   cfg.Kafka.Topics.OffersCreated,
			OffersCancelled: cfg.Kafka.Topics.OffersCancelled,
			DealsAccepted:   cfg.Kafka.Topics.DealsAccepted,
			DealsSettled:    cfg.Kafka.Topics.DealsSettled,
		},
		svcMetrics,
		logger,
	)

	router := gin.New()
	router.Use(httpmiddleware.RequestID())
	router.Use(httpmiddleware.Logger(logger))
	router.Use(httpmiddleware.Recovery(logger))
	router.Use(trace.Middleware(cfg.App.ServiceName))

	router.GET("/healthz", health.LivenessHandler)
	router.GET("/readyz", health.ReadinessHandler(ready))
	router.GET(cfg.App.MetricsPath, gin.WrapH(metrics.Handler(registry)))
	handlers.New(svc, logger).Register(router, []byte(cfg.JWTSecret))

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.App.HTTP.Host, cfg.App.HTTP.Port),
		Handler:      router,
		ReadTimeout:  cfg.App.HTTP.ReadTimeout,
		WriteTimeout: cfg.App.HTTP.WriteTimeout,
		IdleTimeout:  cfg.App.HTTP.IdleTimeout,
	}

	consumerGroup, err := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, logger)
	if err != nil {
		logger.Error("kafka consumer init failed", "error", err)
		os.Exit(1)
	}
	consumerGroup.WithDLQ(producer, cfg.Kafka.Topics.DeadLetter)
	defer consumerGroup.Close()

	eventRouter := kafka.NewRouter().
		Route(cfg.Kafka.Topics.DealsMatched, consumer.NewMatchConsumer(svc, logger)).
		Route(cfg.Kafka.Topics.SettlementsAuthorized, consumer.NewSettlementConsumer(svc, logger))

	ready.SetReady(true)

	consumerCtx, consumerCancel := context.WithCancel(context.Background())
	defer consumerCancel()

	go func() {
		logger.Info("lppool http starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		logger.Info("lppool consumer starting", "topics", eventRouter.Topics())
		if err := consumerGroup.Consume(consumerCtx, eventRouter.Topics(), eventRouter); err != nil {
			logger.Error("kafka consumer error", "error", err)
		}
	}()

	waitForShutdown(httpServer, ready, consumerCancel, logger)
}

func connectDB(cfg *config.Config) (*pgxpool.Pool, error) {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.DB.User,
		cfg.DB.Password,
		cfg.DB.Host,
		cfg.DB.Port,
		cfg.DB.Name,
		cfg.DB.SSLMode,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func applySchema(pool *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, ddl := range []string{ledgerstore.Schema, storage.Schema} {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}

func waitForShutdown(httpServer *http.Server, ready *health.Manager, cancel context.CancelFunc, logger *slog.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutdown started")
	ready.SetReady(false)
	cancel()

	ctx, cancelTimeout := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelTimeout()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
}
