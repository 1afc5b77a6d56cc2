// Package main is the entry point for the listino pricing API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"listino/internal/domain/auth"
	"listino/internal/domain/pricing"
	v1 "listino/internal/infrastructure/http/v1"
	"listino/internal/infrastructure/numerator"
	"listino/internal/infrastructure/storage/postgres"
	"listino/internal/infrastructure/storage/postgres/pricing_repo"
	"listino/pkg/logger"
)

func main() {
	// Initialize logger
	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	log.Info("starting listino server")

	// --- Database ---
	poolCfg := postgres.DefaultPoolConfig(mustEnv("DATABASE_URL"))
	if maxConns := getEnvInt("DB_MAX_CONNS", 0); maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("database connection established")

	txManager := postgres.NewTxManager(pool)

	// --- Stores ---
	priceListRepo := pricing_repo.NewPriceListRepo(txManager)
	catalogRepo := pricing_repo.NewCatalogRepo(txManager)
	historyRepo := pricing_repo.NewDocumentHistoryRepo(txManager)

	backupService, err := postgres.NewPriceBackupService(txManager)
	if err != nil {
		log.Fatalw("failed to initialize price backup service", "error", err)
	}

	// Sequence allocation runs on the pool directly, outside of business
	// transactions, so aborted writes never rewind a range.
	numbers := numerator.New(pool)

	// --- Domain services ---
	cache := pricing.NewResolutionCache(getEnvDuration("RESOLUTION_CACHE_TTL", time.Minute))

	pricingService := pricing.NewService(priceListRepo, txManager, cache, numbers)
	resolver := pricing.NewResolver(priceListRepo, catalogRepo, cache)
	validator := pricing.NewValidator(priceListRepo)
	bulkEngine := pricing.NewEngine(catalogRepo, catalogRepo, backupService, txManager, cache)
	generator := pricing.NewGenerator(priceListRepo, catalogRepo, historyRepo, txManager)
	duplicator := pricing.NewDuplicator(priceListRepo, catalogRepo, catalogRepo, backupService, txManager, cache)

	// --- JWT Service ---
	jwtSecret := getEnv("JWT_SECRET", "your-secret-key-change-in-production")
	jwtService := auth.NewJWTService(auth.DefaultJWTConfig(jwtSecret))

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Pool:               pool,
		TxManager:          txManager,
		Logger:             log,
		JWTValidator:       jwtService,
		PricingService:     pricingService,
		Resolver:           resolver,
		Validator:          validator,
		BulkEngine:         bulkEngine,
		Generator:          generator,
		Duplicator:         duplicator,
		Backup:             backupService,
		IdempotencyEnabled: getEnv("IDEMPOTENCY_ENABLED", "false") == "true",
		IdempotencyTTL:     getEnvDuration("IDEMPOTENCY_TTL", 10*time.Minute),
	})

	// --- HTTP Server ---
	port := getEnv("APP_PORT", "8080")
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Infow("server starting", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		fmt.Printf("required environment variable %s not set\n", key)
		os.Exit(1)
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
