package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/aakar745/stallpay-recon/internal/api"
	"github.com/aakar745/stallpay-recon/internal/config"
	"github.com/aakar745/stallpay-recon/internal/gateway"
	"github.com/aakar745/stallpay-recon/internal/handlers"
	"github.com/aakar745/stallpay-recon/internal/interfaces"
	"github.com/aakar745/stallpay-recon/internal/jobs"
	"github.com/aakar745/stallpay-recon/internal/repository"
	"github.com/aakar745/stallpay-recon/internal/service"
	"github.com/aakar745/stallpay-recon/internal/telemetry"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize telemetry
	if err := telemetry.InitTelemetry("stallpay-recon", cfg.JaegerEndpoint); err != nil {
		panic(fmt.Sprintf("Failed to initialize telemetry: %v", err))
	}
	defer telemetry.Shutdown(context.Background())

	telemetry.Logger.Info("Starting reconciliation service")

	// Connect to PostgreSQL
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		telemetry.Logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Initialize repositories
	ledger := repository.NewLedgerRepository(db)
	if err := ledger.InitDB(); err != nil {
		telemetry.Logger.Fatal("Failed to initialize ledger tables", zap.Error(err))
	}
	audit := repository.NewAuditRepository(db)
	if err := audit.InitDB(); err != nil {
		telemetry.Logger.Fatal("Failed to initialize audit tables", zap.Error(err))
	}

	// Connect to Redis (rate limiter + per-reference locks)
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisURL,
	})

	// Kafka writer for applied reconciliation actions
	var events interfaces.ActionPublisher
	if cfg.KafkaBrokers != "" {
		kafkaWriter := &kafka.Writer{
			Addr:     kafka.TCP(cfg.KafkaBrokers),
			Topic:    "recon.action.applied",
			Balancer: &kafka.LeastBytes{},
		}
		defer kafkaWriter.Close()
		events = service.NewKafkaActionPublisher(kafkaWriter)
	}

	// NATS for receipt-generation triggers
	var receipts interfaces.ReceiptRequester
	if cfg.NatsURL != "" {
		nc, err := nats.Connect(cfg.NatsURL)
		if err != nil {
			telemetry.Logger.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		defer nc.Close()
		receipts = service.NewNatsReceiptRequester(nc)
	}

	// Gateway client behind the shared rate limiter
	limiter := gateway.NewRedisLimiter(redisClient, cfg.GatewayRateInterval)
	gwClient := gateway.NewClient(cfg.GatewayBaseURL, cfg.GatewayMerchantID, cfg.GatewaySaltKey, cfg.GatewaySaltIndex, limiter)

	// Wire the reconciliation core
	verifier := service.NewVerifier(gwClient, service.RetryPolicy{
		MaxAttempts: cfg.VerifyMaxAttempts,
		BaseDelay:   cfg.VerifyBaseDelay,
	})
	reconciler := service.NewReconciler(ledger, audit, events, receipts)
	orchestrator := service.NewSyncOrchestrator(
		ledger, verifier, reconciler,
		service.NewGapScanner(ledger), service.NewOrphanScanner(ledger),
		service.NewReporter(), service.NewRedisRefLocker(redisClient),
		cfg.BulkSyncCap,
	)
	jobManager := jobs.NewManager()

	// Setup router
	detectorHandler := handlers.NewDetectorHandler(orchestrator, jobManager, cfg)
	syncHandler := handlers.NewSyncHandler(orchestrator, audit, cfg)
	jobsHandler := handlers.NewJobsHandler(jobManager)
	r := api.NewRouter(detectorHandler, syncHandler, jobsHandler)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	// Start server in goroutine
	go func() {
		telemetry.Logger.Info("Reconciliation service starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			telemetry.Logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	telemetry.Logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		telemetry.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	telemetry.Logger.Info("Server exited")
}
