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

	"storefront-client/config"
	"storefront-client/internal/api"
	"storefront-client/internal/broker"
	"storefront-client/internal/cache"
	"storefront-client/internal/gateway"
	"storefront-client/internal/redisclient"
	"storefront-client/internal/service"
	"storefront-client/internal/store"
	"storefront-client/internal/util"
	"storefront-client/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting storefront client")

	tp, err := util.InitTracer("storefront-client", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	instanceID := uuid.New().String()

	gw := gateway.NewClient(cfg.Gateway.BaseURL, time.Duration(cfg.Gateway.TimeoutSeconds)*time.Second)
	log.Printf("Gateway client pointed at %s", cfg.Gateway.BaseURL)

	queryCache := cache.New()
	defer queryCache.Close()

	// Serialization of mutations stays in-process unless Redis is
	// configured, in which case sibling instances share the locks.
	var locker service.Locker = service.NewLocalLocker()
	var redisClient *redisclient.Client
	if cfg.Redis.Addr != "" {
		redisClient, err = redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		locker = redisclient.NewItemLocker(redisClient, time.Duration(cfg.Business.LockTTLSeconds)*time.Second)
		log.Println("Redis connected, using distributed mutation locks")
	}

	var journal service.Journal
	var journalStore *store.Store
	var eventStore worker.EventStore
	if cfg.Journal.DatabaseURL != "" {
		db, err := store.NewStore(cfg.Journal.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		journal = db
		journalStore = db
		eventStore = db
		log.Println("Database connected, mutation journal enabled")
	}
	if eventStore == nil && redisClient != nil {
		eventStore = redisclient.NewEventDedup(redisClient, 24*time.Hour)
	}

	var events service.EventSink
	var orderEvents service.OrderEventSink
	var invalidationWorker *worker.InvalidationWorker
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	if len(cfg.Kafka.Brokers) > 0 {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
		defer producer.Close()

		publisher := broker.NewEventPublisher(producer, instanceID)
		events = publisher
		orderEvents = publisher
		log.Println("Kafka producer initialized")

		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents, cfg.Kafka.ConsumerGroup)
		invalidationWorker = worker.NewInvalidationWorker(consumer, queryCache, eventStore, instanceID)
		go func() {
			if err := invalidationWorker.Start(workerCtx); err != nil {
				log.Printf("Invalidation worker error: %v", err)
			}
		}()
	}

	executor := service.NewExecutor(locker, queryCache, journal, events, time.Duration(cfg.Gateway.TimeoutSeconds)*time.Second)

	registry := service.NewRegistry(service.Deps{
		Gateway:     gw,
		Cache:       queryCache,
		Executor:    executor,
		OrderEvents: orderEvents,
		Totals: service.TotalsConfig{
			TaxRate:               cfg.Business.TaxRate,
			FreeShippingThreshold: cfg.Business.FreeShippingThreshold,
			FlatShippingFee:       cfg.Business.FlatShippingFee,
		},
		Rules: service.ReviewRules{
			MaxCommentLength: cfg.Business.MaxCommentLength,
			MaxRating:        cfg.Business.MaxRating,
		},
		Windows: service.CatalogWindows{
			ProductStale:  time.Duration(cfg.Cache.ProductStaleMinutes) * time.Minute,
			ProductRetain: time.Duration(cfg.Cache.ProductRetainMinutes) * time.Minute,
			PopularStale:  time.Duration(cfg.Cache.PopularStaleMinutes) * time.Minute,
			PopularRetain: time.Duration(cfg.Cache.PopularRetainMinutes) * time.Minute,
		},
		CartRetain:    time.Duration(cfg.Cache.CartRetainMinutes) * time.Minute,
		AlertDuration: time.Duration(cfg.Business.AlertDurationSeconds) * time.Second,
		SessionIdle:   time.Duration(cfg.Cache.SessionIdleMinutes) * time.Minute,
	})
	defer registry.Close()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(registry, journalStore)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	if invalidationWorker != nil {
		invalidationWorker.Stop()
	}

	log.Println("Server exited")
}
