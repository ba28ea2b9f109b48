package main

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"shopify2xero/internal/clients/shopify"
	"shopify2xero/internal/clients/xero"
	"shopify2xero/internal/config"
	"shopify2xero/internal/credentials"
	"shopify2xero/internal/handlers"
	"shopify2xero/internal/middleware"
	"shopify2xero/internal/secrets"
	"shopify2xero/internal/services"
)

func main() {
	log := logrus.New()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	if cfg.Environment == "production" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	ctx := context.Background()

	// Secret store holding the Xero client secret and token set
	secretStore, err := secrets.NewGCPSecretManager(ctx, cfg.GCPProjectID)
	if err != nil {
		log.Fatalf("Failed to initialize secret store: %v", err)
	}
	defer secretStore.Close()

	// Xero credentials: connection file + secret store
	configPath := cfg.XeroConfigPath
	if configPath == "" {
		configPath, err = credentials.DefaultConfigPath()
		if err != nil {
			log.Fatalf("Failed to resolve Xero config path: %v", err)
		}
	}
	provider, err := credentials.NewProvider(configPath, cfg.XeroConnectionName, secretStore)
	if err != nil {
		log.Fatalf("Failed to load Xero connection: %v", err)
	}

	clientSecret, err := provider.ClientSecret(ctx)
	if err != nil {
		log.Fatalf("Failed to read Xero client secret: %v", err)
	}
	storedToken, err := provider.GetToken(ctx)
	if err != nil {
		log.Fatalf("Failed to read Xero token set: %v", err)
	}

	oauthConfig := &oauth2.Config{
		ClientID:     provider.ClientID(),
		ClientSecret: clientSecret,
		Endpoint:     xero.Endpoint,
		Scopes:       provider.Scopes(),
	}
	tokenSource := xero.NewTokenSource(ctx, oauthConfig, storedToken, func(token *oauth2.Token) error {
		return provider.SetToken(ctx, token)
	})

	// Clients
	storefront := shopify.NewClient(cfg.ShopifyShopDomain, cfg.ShopifyAccessToken)
	accounting, err := xero.NewClient(ctx, tokenSource)
	if err != nil {
		log.Fatalf("Failed to initialize Xero client: %v", err)
	}
	log.WithField("tenant_id", accounting.TenantID()).Info("Connected to Xero tenant")

	// Sync engine
	syncService := services.NewSyncService(storefront, accounting, cfg.ShippingAccountCode, log)

	// Handlers
	healthHandler := handlers.NewHealthHandler()
	syncHandler := handlers.NewSyncHandler(syncService)

	// Setup router
	router := setupRouter(cfg, log, healthHandler, syncHandler)

	// Start server
	log.Infof("shopify2xero sync service starting on port %s (env: %s)", cfg.Port, cfg.Environment)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// setupRouter configures the HTTP router
func setupRouter(
	cfg *config.Config,
	log *logrus.Logger,
	healthHandler *handlers.HealthHandler,
	syncHandler *handlers.SyncHandler,
) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(log))

	// Health check
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	v1 := router.Group("/api/v1")
	{
		sync := v1.Group("/sync")
		{
			sync.POST("/customers/:id", syncHandler.SyncCustomer)
			sync.POST("/orders/:id", syncHandler.SyncOrder)
			sync.POST("/payouts", syncHandler.SyncPayout)
		}
	}

	return router
}
