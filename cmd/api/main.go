package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/events"
	"storefront/internal/images"
	"storefront/internal/logger"
	"storefront/internal/mailer"
	"storefront/internal/notify"
	"storefront/internal/payment"
	"storefront/internal/repository"
	"storefront/internal/server"
	"storefront/internal/worker"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *server.Server, logger *zap.Logger, stopWorkers context.CancelFunc, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	logger.Info("Shutting down gracefully, press Ctrl+C again to force")
	stop() // Allow Ctrl+C to force shutdown

	// The context is used to inform the server it has 30 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := apiServer.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	// In-flight requests have drained; now the event producer and the other
	// background workers can stop without losing their events.
	stopWorkers()

	// Close server resources
	if err := apiServer.Close(); err != nil {
		logger.Error("Error closing server resources", zap.Error(err))
	}

	logger.Info("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.Server.Env)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	log.Info("Starting storefront API",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port),
	)

	// Initialize database
	dbService := database.New(cfg.Database)
	db := dbService.DB()

	// Check database health
	health := dbService.Health()
	log.Info("Database health check", zap.Any("health", health))

	// Run migrations
	if err := database.RunMigrations(db, "migrations", log); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}
	log.Info("Database migrations completed successfully")

	// Redis backs the rate limiter and the notification broadcaster
	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// workerCtx governs background goroutines: the event producer's delivery
	// loop and the coupon sweeper
	workerCtx, stopWorkers := context.WithCancel(context.Background())

	var publisher events.Publisher = events.NopPublisher{}
	var producer *events.Producer
	if cfg.Kafka.Enabled {
		producer = events.NewProducer(cfg.Kafka.Brokers, 256, log)
		producer.Start(workerCtx)
		publisher = producer
		log.Info("Kafka producer started", zap.Strings("brokers", cfg.Kafka.Brokers))
	} else {
		log.Info("Kafka disabled, events will be dropped")
	}

	var broadcaster notify.Broadcaster = notify.NewRedisBroadcaster(redisClient, log)

	imageStore, err := images.NewCloudinaryStore(cfg.Cloudinary, log)
	if err != nil {
		log.Fatal("Failed to initialize image store", zap.Error(err))
	}

	mail := mailer.NewSMTPMailer(cfg.SMTP, log)
	gateway := payment.NewStripeGateway(cfg.Stripe, log)

	// Create server
	srv := server.NewServer(cfg, log, server.Deps{
		DB:          db,
		Redis:       redisClient,
		Publisher:   publisher,
		Broadcaster: broadcaster,
		ImageStore:  imageStore,
		Mailer:      mail,
		Gateway:     gateway,
	})

	// Disable coupons whose window has passed once a day
	sweeper := worker.NewCouponSweeper(repository.NewCouponRepository(db), 24*time.Hour, log)
	go sweeper.Run(workerCtx)

	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(srv, log, stopWorkers, done)

	log.Info("Server listening", zap.String("addr", srv.Addr))

	err = srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		log.Fatal("HTTP server error", zap.Error(err))
	}

	// Wait for the graceful shutdown to complete
	<-done

	if producer != nil {
		producer.WaitClosed()
	}
	log.Info("Graceful shutdown complete")
}
