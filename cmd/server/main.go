package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/ruralpay/marketplace/internal/config"
	"github.com/ruralpay/marketplace/internal/database"
	"github.com/ruralpay/marketplace/internal/handlers"
	"github.com/ruralpay/marketplace/internal/logger"
	mW "github.com/ruralpay/marketplace/internal/middleware"
	"github.com/ruralpay/marketplace/internal/services"
)

// @title Marketplace Ledger API
// @version 1.0
// @description Checkout, escrow settlement and wallet ledger for the marketplace
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.NewWithConfig(cfg.Log)

	if err := cfg.Ledger.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid ledger configuration")
	}
	if cfg.JWT.SecretKey == "" {
		log.Fatal().Msg("JWT_SECRET_KEY is required")
	}

	ctx := context.Background()

	store, err := database.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger store")
	}
	defer store.Close()

	if err := checkPlatformAccount(ctx, store, cfg.Ledger.PlatformAccountID); err != nil {
		log.Fatal().Err(err).Str("platform_account_id", cfg.Ledger.PlatformAccountID).Msg("Commission account unusable")
	}

	notifier, closeNotifier := buildNotifier(ctx, cfg, log)
	defer closeNotifier()

	deps := services.Deps{
		Store:         store,
		Ledger:        services.NewLedger(cfg.Ledger.CommissionRate, cfg.Ledger.PlatformAccountID),
		Notifier:      notifier,
		NotifyTimeout: cfg.Notifier.Timeout,
		Log:           log,
	}

	router := handlers.NewRouter(handlers.RouterConfig{
		Checkout:    services.NewCheckoutService(deps),
		Settlement:  services.NewSettlementService(deps),
		Wallet:      services.NewWalletService(deps),
		Accounts:    services.NewAccountService(deps),
		Auth:        mW.NewAuthenticator(cfg.JWT.SecretKey, log),
		Log:         log,
		OpenAPIPath: cfg.Server.OpenAPIPath,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Info().Str("addr", server.Addr).
			Str("commission_rate", cfg.Ledger.CommissionRate.String()).
			Str("notifier", cfg.Notifier.Driver).
			Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

// buildNotifier returns the configured event sink and its cleanup func.
// An unreachable Redis degrades to the log notifier.
func buildNotifier(ctx context.Context, cfg *config.Config, log zerolog.Logger) (services.Notifier, func()) {
	switch cfg.Notifier.Driver {
	case "redis":
		client := database.InitRedis(ctx, cfg.Redis, log)
		if client == nil {
			log.Warn().Msg("Redis unavailable, publishing events to the log")
			return services.NewLogNotifier(log), func() {}
		}
		return services.NewRedisNotifier(client, cfg.Notifier.RedisList), func() { client.Close() }
	case "kafka":
		n := services.NewKafkaNotifier(cfg.Notifier.KafkaBrokers, cfg.Notifier.KafkaTopic)
		return n, func() {
			if err := n.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close kafka writer")
			}
		}
	case "none":
		return services.NopNotifier{}, func() {}
	default:
		return services.NewLogNotifier(log), func() {}
	}
}

func checkPlatformAccount(ctx context.Context, store database.Store, accountID string) error {
	if accountID == "" {
		return nil
	}
	return store.View(ctx, func(tx database.Tx) error {
		_, err := tx.GetAccount(ctx, accountID)
		return err
	})
}
