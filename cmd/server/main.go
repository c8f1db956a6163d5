package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"openfinance/internal/bulk"
	"openfinance/internal/cache"
	"openfinance/internal/catalog"
	"openfinance/internal/clock"
	"openfinance/internal/config"
	"openfinance/internal/consent"
	"openfinance/internal/database"
	"openfinance/internal/gateways"
	"openfinance/internal/handlers"
	"openfinance/internal/idempotency"
	"openfinance/internal/insurance"
	kafkaproducer "openfinance/internal/kafka"
	"openfinance/internal/metrics"
	"openfinance/internal/payments"
	"openfinance/internal/payrequest"
	"openfinance/internal/treasury"
)

const (
	serviceName = "openfinance"
	version     = "1.0.0"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogging(cfg)
	logger.Info("Starting Open Finance Service",
		"service", serviceName,
		"version", version,
		"environment", cfg.Environment)

	db, err := database.Connect(cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database connection", "error", err)
		}
	}()

	if err := database.RunMigrations(cfg.Database); err != nil {
		logger.Error("Failed to run database migrations", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Error("Failed to ping redis", "error", err)
		os.Exit(1)
	}

	producer := kafkaproducer.NewProducer(cfg.Kafka, logger)
	defer producer.Close()

	systemClock := clock.System()
	collector := metrics.NewCollector(prometheus.DefaultRegisterer)

	// Repositories
	consentRepo := database.NewConsentRepository(db, logger)
	paymentConsentRepo := database.NewPaymentConsentRepository(db, logger)
	paymentTxnRepo := database.NewPaymentTransactionRepository(db, logger)
	bulkFileRepo := database.NewBulkFileRepository(db, logger)
	bulkReportRepo := database.NewBulkReportRepository(db, logger)
	vrpConsentRepo := database.NewVRPConsentRepository(db, logger)
	vrpPaymentRepo := database.NewVRPPaymentRepository(db, logger)
	vrpUsageRepo := database.NewVRPUsageRepository(db, logger)
	quoteRepo := database.NewQuoteRepository(db, logger)
	treasuryRepo := database.NewTreasuryRepository(db, logger)
	productRepo := database.NewProductRepository(db, logger)
	fundsRepo := database.NewFundsRepository(db, logger)

	// Shared building blocks
	authorizer := consent.NewAuthorizer(consentRepo, systemClock, logger)
	idempotencyStore := idempotency.NewRedisStore(redisClient, systemClock)
	coordinator := idempotency.NewCoordinator(idempotencyStore, systemClock, logger)
	cacheStore := cache.NewRedisStore(redisClient)

	// Outbound gateways
	signatureValidator := gateways.NewHMACSignatureValidator(cfg.Security.SignatureSecret)
	maxRiskAmount, err := decimal.NewFromString(cfg.Risk.MaxSingleAmount)
	if err != nil {
		logger.Error("Invalid risk.max_single_amount", "value", cfg.Risk.MaxSingleAmount, "error", err)
		os.Exit(1)
	}
	riskAssessor := gateways.NewThresholdRiskAssessor(maxRiskAmount, cfg.Risk.BlockedPayees, logger)
	pricing := gateways.NewRateTablePricing(map[string]decimal.Decimal{}, decimal.NewFromFloat(0.007))

	// Services
	paymentPipeline := payments.NewPipeline(
		paymentConsentRepo,
		coordinator,
		paymentTxnRepo,
		fundsRepo,
		riskAssessor,
		signatureValidator,
		producer,
		payments.Settings{IdempotencyTTL: cfg.Payments.IdempotencyTTL},
		systemClock,
		collector,
		logger,
	)

	bulkProcessor := bulk.NewProcessor(
		authorizer,
		coordinator,
		bulkFileRepo,
		bulkReportRepo,
		cache.New[bulk.Report](cacheStore, systemClock, cfg.Cache.TTL),
		producer,
		bulk.Settings{
			MaxFileSizeBytes:      cfg.Bulk.MaxFileSizeBytes,
			StatusPollsToComplete: cfg.Bulk.StatusPollsToComplete,
			IdempotencyTTL:        cfg.Bulk.IdempotencyTTL,
		},
		systemClock,
		collector,
		logger,
	)

	treasuryService := treasury.NewService(
		authorizer,
		treasuryRepo,
		treasuryRepo,
		treasuryRepo,
		cache.New[[]treasury.Account](cacheStore, systemClock, cfg.Cache.TTL),
		cache.New[[]treasury.BalanceSnapshot](cacheStore, systemClock, cfg.Cache.TTL),
		cache.New[treasury.TransactionPage](cacheStore, systemClock, cfg.Cache.TTL),
		treasury.Settings{
			DefaultPageSize: cfg.Treasury.DefaultPageSize,
			MaxPageSize:     cfg.Treasury.MaxPageSize,
		},
		systemClock,
		collector,
		logger,
	)

	vrpService := payrequest.NewService(
		vrpConsentRepo,
		vrpPaymentRepo,
		vrpUsageRepo,
		coordinator,
		cache.New[payrequest.Consent](cacheStore, systemClock, cfg.Cache.TTL),
		producer,
		payrequest.Settings{IdempotencyTTL: cfg.Payments.IdempotencyTTL},
		systemClock,
		collector,
		logger,
	)

	insuranceService := insurance.NewService(
		authorizer,
		coordinator,
		pricing,
		quoteRepo,
		producer,
		insurance.Settings{
			QuoteValidity:  cfg.Insurance.QuoteValidity,
			IdempotencyTTL: cfg.Insurance.IdempotencyTTL,
		},
		systemClock,
		collector,
		logger,
	)

	catalogService := catalog.NewService(
		productRepo,
		cache.New[[]catalog.Product](cacheStore, systemClock, cfg.Cache.TTL),
		systemClock,
		collector,
		logger,
	)

	httpHandlers := handlers.NewHTTPHandler(
		logger,
		paymentPipeline,
		bulkProcessor,
		treasuryService,
		vrpService,
		insuranceService,
		catalogService,
	)

	router := mux.NewRouter()
	httpHandlers.RegisterRoutes(router)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "port", cfg.Server.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErr:
		logger.Error("HTTP server failed", "error", err)
	}

	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown HTTP server gracefully", "error", err)
	}

	logger.Info("Service shutdown complete")
}

// setupLogging configures structured logging
func setupLogging(cfg config.Config) *slog.Logger {
	logLevel := slog.LevelInfo
	if cfg.Debug {
		logLevel = slog.LevelDebug
	}

	handlerOptions := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: cfg.Debug,
	}

	var handler slog.Handler
	if cfg.Environment == "production" {
		handler = slog.NewJSONHandler(os.Stdout, handlerOptions)
	} else {
		handler = slog.NewTextHandler(os.Stdout, handlerOptions)
	}

	logger := slog.New(handler)
	logger = logger.With(
		"service", serviceName,
		"version", version,
		"environment", cfg.Environment,
	)

	slog.SetDefault(logger)
	return logger
}
