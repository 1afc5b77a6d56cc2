// Package v1 provides HTTP API version 1.
package v1

import (
	"time"

	"github.com/gin-gonic/gin"

	"listino/internal/domain/pricing"
	"listino/internal/infrastructure/http/v1/handlers"
	"listino/internal/infrastructure/http/v1/middleware"
	"listino/internal/infrastructure/storage/postgres"
	"listino/pkg/logger"
)

// RouterConfig holds router configuration.
type RouterConfig struct {
	// Pool is the database connection pool (health checks).
	Pool *postgres.Pool

	// TxManager drives transactions for the stores built per request group.
	TxManager *postgres.TxManager

	// Logger for request logging.
	Logger *logger.Logger

	// JWTValidator for token validation.
	JWTValidator middleware.JWTValidator

	// Domain services.
	PricingService *pricing.Service
	Resolver       *pricing.Resolver
	Validator      *pricing.Validator
	BulkEngine     *pricing.Engine
	Generator      *pricing.Generator
	Duplicator     *pricing.Duplicator

	// Backup is the price backup log, also served read-only over HTTP.
	Backup *postgres.PriceBackupService

	// IdempotencyEnabled enables idempotency middleware on mutating routes.
	IdempotencyEnabled bool
	IdempotencyTTL     time.Duration
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	// Health endpoints (no auth required)
	healthHandler := handlers.NewHealthHandler(cfg.Pool)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	// API v1
	api := router.Group("/api/v1")
	{
		protected := api.Group("")
		protected.Use(middleware.Auth(cfg.JWTValidator))
		protected.Use(middleware.UserContext())

		if cfg.IdempotencyEnabled {
			ttl := cfg.IdempotencyTTL
			if ttl == 0 {
				ttl = 10 * time.Minute
			}
			store := postgres.NewIdempotencyStore(cfg.TxManager, ttl)
			protected.Use(middleware.Idempotency(store))
		}

		registerPricingRoutes(protected, cfg)
	}

	return router
}

// registerPricingRoutes registers price list and resolution endpoints.
func registerPricingRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	base := handlers.NewBaseHandler()
	handler := handlers.NewPricingHandler(
		base,
		cfg.PricingService,
		cfg.Resolver,
		cfg.Validator,
		cfg.BulkEngine,
		cfg.Generator,
		cfg.Duplicator,
		cfg.Backup,
	)

	lists := rg.Group("/price-lists")
	{
		lists.POST("", handler.Create)
		lists.GET("", handler.List)

		// Generation routes come before :id so "generate" is not taken as an ID.
		lists.POST("/generate", handler.Generate)
		lists.POST("/generate/preview", handler.GeneratePreview)

		lists.GET("/:id", handler.Get)
		lists.PUT("/:id", handler.Update)
		lists.POST("/:id/status", handler.ChangeStatus)

		lists.POST("/:id/entries", handler.AddEntries)
		lists.GET("/:id/entries", handler.Entries)
		lists.PUT("/:id/entries/:entryId", handler.UpdateEntry)

		lists.POST("/:id/assignments", handler.AssignParty)
		lists.GET("/:id/assignments", handler.Assignments)
		lists.DELETE("/:id/assignments/:assignmentId", handler.RemoveAssignment)

		lists.POST("/:id/duplicate", handler.Duplicate)
		lists.POST("/:id/apply", handler.ApplyToProducts)
	}

	prices := rg.Group("/prices")
	{
		prices.POST("/resolve", handler.Resolve)
		prices.GET("/validate", handler.ValidatePrecedence)
		prices.POST("/bulk-update", handler.BulkApply)
		prices.POST("/bulk-update/preview", handler.BulkPreview)
		prices.GET("/backup-history", handler.BackupHistory)
	}
}
