package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cart-service/internal/cart"
	"cart-service/internal/clients"
	"cart-service/internal/config"
	"cart-service/internal/events"
	"cart-service/internal/handlers"
	"cart-service/internal/middleware"
	"cart-service/internal/repository"
	"cart-service/internal/services"
	"cart-service/internal/workers"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	gosharedmw "github.com/Tesseract-Nexus/go-shared/middleware"
	"github.com/Tesseract-Nexus/go-shared/tracing"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := config.New()

	logger := logrus.New()
	if cfg.Environment == "production" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	// Redis is optional unless it backs the cart store
	redisClient := initRedis(cfg.RedisURL, logger)
	if cfg.CartStore == config.StoreRedis && redisClient == nil {
		logger.Fatal("CART_STORE=redis but Redis is unavailable")
	}

	store, pinger, err := initStore(cfg, redisClient, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize cart store")
	}
	logger.WithField("store", cfg.CartStore).Info("✓ Cart store initialized")

	// Products client with optional shared cache
	productsClient := clients.NewProductsClient(cfg.ProductsServiceURL)
	if redisClient != nil && cfg.ProductCacheEnabled {
		productsClient.WithSharedCache(redisClient)
		logger.Info("✓ Shared product cache enabled")
	}

	// Cart change events (optional - carts keep working without NATS)
	var observers []cart.Observer
	publisher, err := events.NewPublisher(cfg.NatsURL, cfg.CartKeyPrefix, logger)
	if err != nil {
		logger.WithError(err).Warn("Failed to initialize cart event publisher (cart events disabled)")
	} else {
		observers = append(observers, publisher)
		logger.Info("✓ Cart event publisher initialized")
	}

	cartService := services.NewCartService(store, productsClient, logger, observers...)
	cartService.SetKeyPrefix(cfg.CartKeyPrefix)

	// Product and inventory events invalidate cached snapshots
	productSubscriber, err := events.NewProductEventSubscriber(cfg.NatsURL, productsClient, logger)
	if err != nil {
		logger.WithError(err).Warn("Failed to initialize product event subscriber (cache invalidation via events disabled)")
	}

	// Background cleanup of expired carts and idle ledgers
	expiring, _ := store.(repository.ExpiringStore)
	expirationWorker := workers.NewCartExpirationWorker(expiring, cartService, cfg.ExpirationInterval, logger)
	expirationWorker.SetIdleAge(cfg.IdleLedgerAge)

	// Initialize OpenTelemetry tracing
	var tracerProvider *tracing.TracerProvider
	var tracerErr error
	if cfg.Environment == "production" {
		tracerProvider, tracerErr = tracing.InitTracer(tracing.ProductionConfig("cart-service"))
	} else {
		tracerProvider, tracerErr = tracing.InitTracer(tracing.DefaultConfig("cart-service"))
	}
	if tracerErr != nil {
		logger.WithError(tracerErr).Warn("Failed to initialize tracing (continuing without tracing)")
	} else {
		logger.Info("✓ OpenTelemetry tracing initialized")
	}

	metrics := gosharedmw.InitGlobalMetrics("tesseract", "cart_service")

	// Handlers
	var natsStatus func() bool
	if publisher != nil {
		natsStatus = publisher.IsConnected
	}
	healthHandler := handlers.NewHealthHandler(cfg.CartStore, pinger, natsStatus)
	cartHandler := handlers.NewCartHandler(cartService, logger)
	optionsHandler := handlers.NewProductOptionsHandler(productsClient, logger)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gosharedmw.SecurityHeaders())

	// Rate limiting middleware (uses Redis for distributed rate limiting)
	if redisClient != nil {
		router.Use(gosharedmw.RedisRateLimitMiddlewareWithProfile(redisClient, "standard"))
	} else {
		router.Use(gosharedmw.RateLimit())
	}

	router.Use(metrics.Middleware())
	router.Use(tracing.GinMiddleware("cart-service"))

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Tenant-ID", middleware.SessionHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.SessionHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	if cfg.Environment == "production" {
		// Guests have no JWT, so Istio only enriches requests that carry one
		router.Use(gosharedmw.IstioAuth(gosharedmw.IstioAuthConfig{
			RequireAuth:        false,
			AllowLegacyHeaders: false,
			SkipPaths:          []string{"/health", "/ready", "/metrics"},
		}))
	}
	router.Use(middleware.TenantMiddleware())

	router.GET("/health", healthHandler.HealthCheck)
	router.GET("/ready", healthHandler.ReadinessCheck)
	router.GET("/metrics", gosharedmw.Handler())

	storefront := router.Group("/api/v1/storefront")
	storefront.Use(middleware.RequireTenant())
	{
		storefront.GET("/products/:productId/options", optionsHandler.GetOptions)

		carts := storefront.Group("/carts/:owner")
		carts.Use(middleware.CartOwnerMiddleware(cfg.AllowGuestCarts))
		carts.Use(middleware.RequireSameOwner())
		{
			carts.GET("", cartHandler.GetCart)
			carts.DELETE("", cartHandler.ClearCart)
			carts.POST("/items", cartHandler.AddItem)
			carts.PATCH("/items", cartHandler.UpdateItemQty)
			carts.PUT("/items", cartHandler.EditItem)
			carts.DELETE("/items", cartHandler.RemoveItem)
			carts.POST("/selection", cartHandler.SelectAll)
			carts.POST("/selection/toggle", cartHandler.ToggleSelection)
			carts.PUT("/shipping-address", cartHandler.SaveShippingAddress)
			carts.PUT("/payment-method", cartHandler.SavePaymentMethod)
		}
	}

	expirationWorker.Start()

	if productSubscriber != nil {
		if err := productSubscriber.Start(context.Background()); err != nil {
			logger.WithError(err).Warn("Failed to start product event subscriber")
		} else {
			logger.Info("✓ Product event subscriber started")
		}
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.WithField("port", cfg.Port).Info("Starting cart-service")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down cart-service...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	expirationWorker.Stop()

	if productSubscriber != nil {
		productSubscriber.Close()
	}
	if publisher != nil {
		publisher.Close()
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}

	if tracerProvider != nil {
		if err := tracerProvider.Shutdown(ctx); err != nil {
			logger.WithError(err).Warn("Error shutting down tracer provider")
		}
	}

	logger.Info("Cart service stopped")
}

// initRedis connects to Redis, returning nil when it is not configured or
// unreachable
func initRedis(redisURL string, logger *logrus.Logger) *redis.Client {
	if redisURL == "" {
		logger.Info("REDIS_URL not configured, Redis features disabled")
		return nil
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.WithError(err).Warn("Failed to parse Redis URL")
		return nil
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Warn("Failed to connect to Redis")
		_ = client.Close()
		return nil
	}

	logger.Info("✓ Connected to Redis")
	return client
}

// initStore builds the configured cart store. The returned pinger is nil for
// stores without a remote dependency.
func initStore(cfg *config.Config, redisClient *redis.Client, logger *logrus.Logger) (repository.Store, handlers.Pinger, error) {
	switch cfg.CartStore {
	case config.StoreFile:
		store, err := repository.NewFileStore(cfg.CartFileDir, cfg.CartTTL)
		return store, nil, err

	case config.StorePostgres:
		db, err := initDatabase(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		store := repository.NewPostgresStore(db, cfg.CartTTL)
		if err := store.AutoMigrate(); err != nil {
			return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		return store, store, nil

	case config.StoreRedis:
		store := repository.NewRedisStore(redisClient, repository.DefaultRedisKeyPrefix, cfg.CartTTL)
		return store, store, nil

	default:
		logger.Warn("Using in-memory cart store; carts are lost on restart")
		return repository.NewMemoryStore(cfg.CartTTL), nil, nil
	}
}

func initDatabase(databaseURL string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}
