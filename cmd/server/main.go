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

	"rental-service/config"
	"rental-service/internal/api"
	"rental-service/internal/broker"
	"rental-service/internal/catalog"
	"rental-service/internal/engine"
	"rental-service/internal/ledger"
	"rental-service/internal/payments"
	"rental-service/internal/redisclient"
	"rental-service/internal/util"
	"rental-service/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting rental service")

	tp, err := util.InitTracer("rental-service", cfg.Observ.JaegerEndpoint)
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

	driver, closeDriver, err := newLedgerDriver(cfg)
	if err != nil {
		log.Fatalf("Failed to open ledger: %v", err)
	}
	defer closeDriver()
	store := ledger.NewStore(driver)
	log.Printf("Ledger opened (driver=%s)", cfg.Ledger.Driver)

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicBooking)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	gateway := payments.NewSimulatedGateway(cfg.Business.PaymentSuccessRate, cfg.Business.PaymentSettleAfter)

	eng := engine.NewEngine(store, eventPublisher, gateway, engine.Options{
		ServiceFee:   cfg.Business.ServiceFee,
		MaxRetries:   cfg.Business.CommitRetryLimit,
		RetryBackoff: cfg.Business.CommitRetryBackoff,
	})
	cat := catalog.NewCatalog(store, redisClient, catalog.Options{
		MaxRetries:   cfg.Business.CommitRetryLimit,
		RetryBackoff: cfg.Business.CommitRetryBackoff,
	})

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	paymentConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicBooking, cfg.Kafka.ConsumerGroup)
	paymentWorker := worker.NewPaymentWorker(paymentConsumer, eng, gateway)
	go func() {
		if err := paymentWorker.Start(workerCtx); err != nil {
			log.Printf("Payment worker error: %v", err)
		}
	}()

	notifyConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicBooking, "notification-service-group")
	notifyWorker := worker.NewNotificationWorker(notifyConsumer, worker.NewLogNotifier())
	go func() {
		if err := notifyWorker.Start(workerCtx); err != nil {
			log.Printf("Notification worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(eng, cat)
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
	paymentWorker.Stop()
	notifyWorker.Stop()

	log.Println("Server exited")
}

func newLedgerDriver(cfg *config.Config) (ledger.Driver, func(), error) {
	switch cfg.Ledger.Driver {
	case "postgres":
		d, err := ledger.NewPostgresDriver(cfg.Ledger.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return d, func() { d.Close() }, nil
	case "memory":
		return ledger.NewMemoryDriver(), func() {}, nil
	case "file":
		d, err := ledger.NewFileDriver(cfg.Ledger.FilePath)
		if err != nil {
			return nil, nil, err
		}
		return d, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown ledger driver: %s", cfg.Ledger.Driver)
	}
}
