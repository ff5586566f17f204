package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gamekey-store/config"
	"gamekey-store/internal/api"
	"gamekey-store/internal/auth"
	"gamekey-store/internal/cache"
	"gamekey-store/internal/catalog"
	"gamekey-store/internal/checkout"
	"gamekey-store/internal/coupon"
	"gamekey-store/internal/database"
	"gamekey-store/internal/dispatch"
	"gamekey-store/internal/email"
	"gamekey-store/internal/events"
	"gamekey-store/internal/fulfillment"
	"gamekey-store/internal/logging"
	"gamekey-store/internal/payment"
	"gamekey-store/internal/vault"
)

func main() {
	logger := logging.For("main")
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	logging.Setup(cfg.LoggingConfig)
	logger = logging.For("main")

	db, err := database.NewDB(database.Config{
		Host:     cfg.DatabaseConfig.Host,
		Port:     cfg.DatabaseConfig.Port,
		User:     cfg.DatabaseConfig.User,
		Password: cfg.DatabaseConfig.Password,
		Database: cfg.DatabaseConfig.Database,
		SSLMode:  cfg.DatabaseConfig.SSLMode,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.RunMigrations(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}
	repo := database.NewRepository(db)

	redisCache := cache.New(cfg.RedisConfig)
	defer redisCache.Close()

	// payment provider credentials come from Vault when enabled, the
	// plain config otherwise
	vaultClient, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create vault client")
	}
	if err := vaultClient.Health(ctx); err != nil {
		logger.Fatal().Err(err).Msg("vault health check failed")
	}
	if secrets, err := vaultClient.GetProviderSecrets(ctx, "stripe"); err != nil {
		logger.Fatal().Err(err).Msg("failed to load stripe secrets from vault")
	} else if secrets != nil {
		cfg.StripeConfig.SecretKey = secrets.SecretKey
		cfg.StripeConfig.WebhookSecret = secrets.WebhookSecret
	}
	if secrets, err := vaultClient.GetProviderSecrets(ctx, "moneymotion"); err != nil {
		logger.Fatal().Err(err).Msg("failed to load moneymotion secrets from vault")
	} else if secrets != nil {
		cfg.MoneyMotionConfig.APIKey = secrets.APIKey
		cfg.MoneyMotionConfig.StoreID = secrets.StoreID
		cfg.MoneyMotionConfig.WebhookSecret = secrets.WebhookSecret
	}

	stripeClient := payment.NewStripeClient(payment.StripeConfig{
		SecretKey:     cfg.StripeConfig.SecretKey,
		WebhookSecret: cfg.StripeConfig.WebhookSecret,
	})
	if !stripeClient.IsConfigured() {
		logger.Warn().Msg("stripe is not configured, checkout will fail")
	}
	mmClient := payment.NewMoneyMotionClient(payment.MoneyMotionConfig{
		APIKey:        cfg.MoneyMotionConfig.APIKey,
		StoreID:       cfg.MoneyMotionConfig.StoreID,
		WebhookSecret: cfg.MoneyMotionConfig.WebhookSecret,
		BaseURL:       cfg.MoneyMotionConfig.BaseURL,
	})

	eventBus := events.NewEventBus()

	authService := auth.NewService(repo, cfg.AuthConfig)
	if err := authService.EnsureOwner(ctx, os.Getenv("OWNER_EMAIL"), os.Getenv("OWNER_PASSWORD")); err != nil {
		logger.Fatal().Err(err).Msg("failed to provision owner account")
	}

	catalogService := catalog.NewService(repo, redisCache)
	checkoutService := checkout.NewService(repo, stripeClient, eventBus, cfg.StoreConfig.Currency, cfg.ServerConfig.PublicBaseURL)
	mailer := email.NewMailer(repo, cfg.StoreConfig.Name)
	fulfillmentService := fulfillment.NewService(repo, stripeClient, mailer, eventBus, cfg.StoreConfig.LowStockAlertAt)
	couponEngine := coupon.NewEngine(repo)

	var fallbackURL string
	if cfg.NotificationConfig.Enabled {
		fallbackURL = cfg.NotificationConfig.DiscordWebhookURL
	}
	dispatcher := dispatch.NewDispatcher(repo, fallbackURL)
	dispatcher.Start(eventBus)
	defer dispatcher.Stop()

	server := api.NewServer(cfg.ServerConfig, api.Deps{
		Repo:        repo,
		EventBus:    eventBus,
		Catalog:     catalogService,
		Checkout:    checkoutService,
		Fulfillment: fulfillmentService,
		Coupons:     couponEngine,
		Auth:        authService,
		Stripe:      stripeClient,
		MoneyMotion: mmClient,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
