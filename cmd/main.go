/**
 * @description
 * This is the main entry point for the withdrawal-account-service. It wires the
 * HTTP API, the recipient cleanup consumer and the pending-row reconciler, and
 * shuts them down gracefully.
 *
 * Key features:
 * - Loads application configuration from environment variables.
 * - Establishes and manages a connection pool to the PostgreSQL database and
 *   applies the embedded schema.
 * - Initializes the Flutterwave client with an OAuth2 client-credentials token source.
 * - Uses Redis for create rate limiting when configured, with an in-memory fallback.
 * - Publishes events to RabbitMQ, falling back to a no-op producer when the broker is down.
 *
 * @dependencies
 * - The service's internal packages for config, app logic, storage, and external clients.
 * - pgxpool for database connection, godotenv for local config, go-redis for rate limiting.
 */
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/transfa/withdrawal-account-service/internal/api"
	"github.com/transfa/withdrawal-account-service/internal/app"
	"github.com/transfa/withdrawal-account-service/internal/config"
	"github.com/transfa/withdrawal-account-service/internal/domain"
	"github.com/transfa/withdrawal-account-service/internal/store"
	"github.com/transfa/withdrawal-account-service/migrations"
	"github.com/transfa/withdrawal-account-service/pkg/flutterwave"
	"github.com/transfa/withdrawal-account-service/pkg/middleware"
	"github.com/transfa/withdrawal-account-service/pkg/rabbitmq"
)

func main() {
	// Load .env file for local development.
	if err := godotenv.Load(); err != nil {
		log.Println("level=info component=bootstrap msg=\"no .env file found; using environment variables\"")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}
	poolConfig.MaxConns = 20
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts behind poolers.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Ensure required tables exist (idempotent)
	if err := migrations.Apply(context.Background(), dbpool); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"schema apply failed\" err=%v", err)
	}

	var publisher rabbitmq.Publisher = &rabbitmq.EventProducerFallback{}
	if producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL); err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
	} else {
		publisher = producer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}
	defer publisher.Close()

	baseURL := cfg.FlutterwaveBaseURL
	if baseURL == "" {
		baseURL, err = flutterwave.ResolveBaseURL(cfg.FlutterwaveEnv)
		if err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"flutterwave environment invalid\" env=%s err=%v", cfg.FlutterwaveEnv, err)
		}
	}
	if cfg.FlutterwaveClientID == "" || cfg.FlutterwaveClientSecret == "" {
		log.Println("level=warn component=bootstrap msg=\"flutterwave credentials missing; registrations will fail\"")
	}
	tokens := flutterwave.NewClientCredentialsTokenSource(cfg.FlutterwaveTokenURL, cfg.FlutterwaveClientID, cfg.FlutterwaveClientSecret)
	flutterwaveClient := flutterwave.NewClient(baseURL, tokens)
	log.Printf("level=info component=bootstrap msg=\"flutterwave client configured\" env=%s base_url=%s", cfg.FlutterwaveEnv, flutterwaveClient.BaseURL())

	createLimiter, stopLimiter := newCreateLimiter(cfg)
	defer stopLimiter()

	accountRepo := store.NewPostgresWithdrawalAccountRepository(dbpool)
	userRepo := store.NewPostgresUserRepository(dbpool)

	service := app.NewWithdrawalAccountService(accountRepo, flutterwaveClient, publisher, cfg.WithdrawalEventsExchange)

	var verifier *middleware.JWKSVerifier
	if cfg.ClerkJWKSURL != "" {
		verifier = middleware.NewJWKSVerifier(cfg.ClerkJWKSURL, cfg.ClerkIssuer, cfg.ClerkAudience)
	} else if !cfg.TrustGatewayUserHeader {
		log.Println("level=warn component=bootstrap msg=\"no CLERK_JWKS_URL and gateway header not trusted; all requests will be unauthenticated\"")
	}
	authenticator := middleware.NewSessionAuthenticator(verifier, userRepo, cfg.TrustGatewayUserHeader)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cleanupHandler := app.NewRecipientCleanupHandler(flutterwaveClient)
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		connect := func() (rabbitmq.Subscriber, error) {
			return rabbitmq.NewConsumer(cfg.RabbitMQURL)
		}
		rabbitmq.RunWithReconnect(ctx, connect, cfg.WithdrawalEventsExchange, cfg.RecipientCleanupQueue, domain.RoutingKeyRecipientOrphaned, cleanupHandler.HandleRecipientOrphaned, time.Second)
	}()

	reconciler := app.NewPendingReconciler(accountRepo, flutterwaveClient, publisher, cfg.WithdrawalEventsExchange, time.Duration(cfg.PendingStaleAfterMinutes)*time.Minute)
	scheduler := app.NewScheduler(reconciler, cfg.PendingReconcileSchedule)
	if err := scheduler.Start(); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"reconcile scheduler start failed\" schedule=%q err=%v", cfg.PendingReconcileSchedule, err)
	}

	router := api.NewRouter(api.RouterConfig{
		Service:            service,
		Auth:               authenticator,
		CreateLimiter:      createLimiter,
		CreateLimitPerMin:  cfg.CreateRateLimitPerMinute,
		CORSAllowedOrigins: cfg.AllowedOrigins(),
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("level=info component=http msg=\"server listening\" addr=%s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("level=fatal component=http msg=\"server failed\" err=%v", err)
		}
	}()

	<-ctx.Done()
	log.Println("level=info component=bootstrap msg=\"shutting down withdrawal-account-service\"")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("level=error component=http msg=\"server shutdown failed\" err=%v", err)
	}

	select {
	case <-scheduler.Stop().Done():
	case <-shutdownCtx.Done():
		log.Println("level=warn component=scheduler msg=\"reconcile job still running at shutdown\"")
	}

	select {
	case <-consumerDone:
	case <-shutdownCtx.Done():
	}

	log.Println("level=info component=bootstrap msg=\"server gracefully stopped\"")
}

// newCreateLimiter builds the limiter for POST /withdrawal-accounts: Redis
// backed when REDIS_URL is reachable, in-memory otherwise.
func newCreateLimiter(cfg config.Config) (middleware.Limiter, func()) {
	window := time.Minute
	memory := middleware.NewMemoryRateLimiter(cfg.CreateRateLimitPerMinute, window)

	if strings.TrimSpace(cfg.RedisURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing; using in-memory rate limiting\" env=REDIS_URL")
		return memory, memory.Stop
	}

	redisOptions, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; using in-memory rate limiting\" err=%v", err)
		return memory, memory.Stop
	}

	redisClient := redis.NewClient(redisOptions)
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		log.Printf("level=warn component=bootstrap msg=\"redis ping failed; using in-memory rate limiting\" err=%v", err)
		redisClient.Close()
		return memory, memory.Stop
	}
	log.Println("level=info component=bootstrap msg=\"redis connected\"")

	limiter := middleware.NewFallbackLimiter(
		middleware.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix, cfg.CreateRateLimitPerMinute, window),
		memory,
	)
	return limiter, func() {
		memory.Stop()
		redisClient.Close()
	}
}
