package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"grocery-service/config"
	"grocery-service/internal/api"
	"grocery-service/internal/auth"
	"grocery-service/internal/broker"
	"grocery-service/internal/port"
	"grocery-service/internal/redisclient"
	"grocery-service/internal/service"
	"grocery-service/internal/store"
	"grocery-service/internal/util"
	"grocery-service/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type dataStore interface {
	port.CatalogStore
	port.OrderStore
	port.UserStore
}

type keyValueStore interface {
	port.CartStore
	port.IdempotencyStore
}

func main() {

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := util.InitLogger(cfg.Server.Env, cfg.Log.File, cfg.Log.MaxSizeMB); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting grocery service")

	if cfg.Observ.JaegerEndpoint != "" {
		tp, err := util.InitTracer("grocery-service", cfg.Observ.JaegerEndpoint)
		if err != nil {
			logger.Fatal("Failed to initialize tracer", zap.Error(err))
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				logger.Warn("Error shutting down tracer", zap.Error(err))
			}
		}()
	}

	checks := map[string]api.Pinger{}

	var db dataStore
	if cfg.Database.InMemory() {
		db = store.NewMemoryStore()
		logger.Warn("Using in-memory database; data is lost on restart")
	} else {
		pg, err := store.NewStore(cfg.Database.URL)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer pg.Close()

		if cfg.Database.Migrate {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			err := pg.Migrate(ctx)
			cancel()
			if err != nil {
				logger.Fatal("Failed to migrate database", zap.Error(err))
			}
		}
		db = pg
		checks["database"] = pg
		logger.Info("Database connected")
	}

	var kv keyValueStore
	if cfg.Redis.InMemory() {
		kv = redisclient.NewMemoryClient()
		logger.Warn("Using in-memory cart and idempotency store")
	} else {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Business.CartTTL)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		kv = redisClient
		checks["redis"] = redisClient
		logger.Info("Redis connected")
	}

	var publisher port.EventPublisher = broker.NopPublisher{}
	if cfg.Kafka.Enabled() {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
		defer producer.Close()
		publisher = broker.NewEventPublisher(producer)
		logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	}

	orderService := service.NewOrderService(db, db, db, kv, publisher, service.Options{
		StoreTimeout:   cfg.Business.StoreTimeout,
		IdempotencyTTL: cfg.Business.IdempotencyTTL,
		Currency:       cfg.Business.Currency,
	})
	catalogService := service.NewCatalogService(db, cfg.Business.StoreTimeout)
	cartService := service.NewCartService(kv, db, orderService, cfg.Business.StoreTimeout)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var cartWorker *worker.CartWorker
	if cfg.Kafka.Enabled() {
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
		cartWorker = worker.NewCartWorker(consumer, db, kv)
		go func() {
			if err := cartWorker.Start(workerCtx); err != nil && workerCtx.Err() == nil {
				logger.Error("Cart worker error", zap.Error(err))
			}
		}()
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(orderService, catalogService, cartService,
		auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer), checks)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	var metricsSrv *http.Server
	if cfg.Observ.PrometheusPort != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:              fmt.Sprintf(":%s", cfg.Observ.PrometheusPort),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("Starting metrics server", zap.String("port", cfg.Observ.PrometheusPort))
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server error", zap.Error(err))
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", zap.Error(err))
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Metrics server forced to shutdown", zap.Error(err))
		}
	}

	workerCancel()
	if cartWorker != nil {
		if err := cartWorker.Stop(); err != nil {
			logger.Warn("Error stopping cart worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}
