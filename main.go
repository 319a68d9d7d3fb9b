package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"whytrade-api/config"
	"whytrade-api/internal/api"
	"whytrade-api/internal/auth"
	"whytrade-api/internal/database"
	"whytrade-api/internal/events"
	"whytrade-api/internal/logging"
	"whytrade-api/internal/market"
	"whytrade-api/internal/position"
	"whytrade-api/internal/vault"
)

func main() {
	configPath := flag.String("config", "", "path to JSON config file")
	flag.Parse()

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(&logging.Config{
		Level:       cfg.LoggingConfig.Level,
		Output:      cfg.LoggingConfig.Output,
		JSONFormat:  cfg.LoggingConfig.JSONFormat,
		IncludeFile: cfg.LoggingConfig.IncludeFile,
		Component:   "main",
	})
	logging.SetDefault(logger)
	logger.Info("structured logging initialized")

	// Vault is an optional secret source; when enabled it overrides the
	// config-file secrets before anything connects.
	vaultClient, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		log.Fatalf("Failed to create vault client: %v", err)
	}
	if vaultClient.IsEnabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		secrets, err := vaultClient.AppSecrets(ctx)
		cancel()
		if err != nil {
			log.Fatalf("Failed to read secrets from vault: %v", err)
		}
		if secrets.JWTSecret != "" {
			cfg.AuthConfig.JWTSecret = secrets.JWTSecret
		}
		if secrets.DatabasePassword != "" {
			cfg.DatabaseConfig.Password = secrets.DatabasePassword
		}
		if secrets.RedisPassword != "" {
			cfg.RedisConfig.Password = secrets.RedisPassword
		}
		logger.Info("secrets loaded from vault")
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if cfg.AuthConfig.JWTSecret == "" {
		log.Fatal("No JWT secret configured: set SECRET_KEY or provide one via vault")
	}

	db, err := database.NewDB(cfg.DatabaseConfig)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.RunMigrations(ctx); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	repo := database.NewRepository(db)
	logger.Info("database ready")

	eventBus := events.NewEventBus()

	authSvc := auth.NewService(repo, auth.Config{
		JWTSecret:           cfg.AuthConfig.JWTSecret,
		AccessTokenDuration: cfg.AuthConfig.AccessTokenDuration(),
		BcryptCost:          cfg.AuthConfig.BcryptCost,
	})
	positionSvc := position.NewService(repo, eventBus)

	zlog := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var marketCache *market.Cache
	if cfg.RedisConfig.Enabled {
		marketCache, err = market.NewCache(cfg.RedisConfig)
		if err != nil {
			logger.Warn("market cache disabled: %v", err)
			marketCache = nil
		}
	}
	marketClient := market.NewClient(cfg.MarketConfig, zlog)
	marketSvc := market.NewService(cfg.MarketConfig, marketClient, marketCache, zlog)

	server := api.NewServer(api.ServerConfig{
		Host:           cfg.ServerConfig.Host,
		Port:           cfg.ServerConfig.Port,
		ProductionMode: cfg.ServerConfig.ProductionMode,
		AllowedOrigins: cfg.ServerConfig.CORSOrigins,
	}, repo, eventBus, authSvc, positionSvc, marketSvc)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("Failed to start web server: %v", err)
		}
	}()
	logger.Info("API listening on %s:%d", cfg.ServerConfig.Host, cfg.ServerConfig.Port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("server shutdown failed")
	}
	if marketCache != nil {
		if err := marketCache.Close(); err != nil {
			logger.WithError(err).Warn("market cache close failed")
		}
	}
	logger.Info("shutdown complete")
}
