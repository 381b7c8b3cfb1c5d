package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"

	apihttp "scooter-share-pro/internal/api/http"
	"scooter-share-pro/internal/config"
	"scooter-share-pro/internal/logger"
	"scooter-share-pro/internal/repository/postgres"
	"scooter-share-pro/internal/security"
	"scooter-share-pro/internal/service"
	"scooter-share-pro/internal/web"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting Scooter Share Pro...", "log_level", cfg.Log.Level, "log_format", cfg.Log.Format)
	logger.Info("Server configuration", "address", cfg.GetServerAddress(), "base_url", cfg.Server.BaseURL)
	logger.Info("Database configuration", "host", cfg.Database.Host, "port", cfg.Database.Port, "database", cfg.Database.Database, "user", cfg.Database.User)
	logger.Info("Email configuration", "provider", cfg.Email.Provider, "from", cfg.Email.From)

	pricing, err := cfg.GetPricing()
	if err != nil {
		log.Fatalf("Invalid pricing configuration: %v", err)
	}

	// Initialize Database
	logger.Debug("Connecting to database...", "connection_string", fmt.Sprintf("%s@%s:%d/%s", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database))
	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Error("Failed to ping database", "error", err)
		log.Fatalf("Failed to ping database: %v", err)
	}
	logger.Info("Database connection established")

	if cfg.Database.Migrate {
		if err := postgres.Migrate(context.Background(), db); err != nil {
			logger.Error("Failed to migrate database", "error", err)
			log.Fatalf("Failed to migrate database: %v", err)
		}
	}

	// Initialize Repositories
	store := postgres.NewStore(db)

	// Initialize Security
	var denylist security.Denylist
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		if err := client.Ping(context.Background()).Err(); err != nil {
			logger.Error("Failed to ping redis", "error", err, "addr", cfg.Redis.Addr)
			log.Fatalf("Failed to ping redis: %v", err)
		}
		logger.Info("Token denylist backed by redis", "addr", cfg.Redis.Addr)
		denylist = security.NewRedisDenylist(client)
	} else {
		logger.Warn("Redis not configured, token denylist is process-local")
		denylist = security.NewMemoryDenylist()
	}
	tokenManager := security.NewTokenManager(cfg.JWT.Secret, cfg.AccessTokenTTL(), cfg.RefreshTokenTTL())

	// Initialize Services
	notifier := service.NewNotifier(cfg.Email)
	svcs := apihttp.Services{
		Auth:    service.NewAuthService(store.UserRepository, tokenManager, denylist),
		User:    service.NewUserService(store.UserRepository, store.ScooterRepository),
		Scooter: service.NewScooterService(store.ScooterRepository, store.UserRepository),
		Rental: service.NewRentalService(
			store.RentalRepository,
			store.ScooterRepository,
			store.UserRepository,
			store.PaymentRepository,
			pricing,
			notifier,
		),
		Payment: service.NewPaymentService(
			store.PaymentRepository,
			store.RentalRepository,
			store.ScooterRepository,
			store.UserRepository,
			pricing.Currency,
		),
	}

	// Routes
	router := mux.NewRouter()
	apihttp.RegisterRoutes(router, svcs)
	site, err := web.NewHandler(svcs, cfg.Server.CookieSecure, cfg.AccessTokenTTL())
	if err != nil {
		log.Fatalf("Failed to load web templates: %v", err)
	}
	site.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.GetServerAddress(),
		Handler:           apihttp.Recover(apihttp.LogRequests(router)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			log.Fatalf("Failed to serve: %v", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down HTTP server...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Graceful shutdown failed", "error", err)
	}
	logger.Info("Server stopped. Goodbye!")
}
