/**
 * @description
 * Entry point for the back-office service. It loads configuration, connects the
 * document store and the optional Redis, event bus and object storage backends,
 * starts the branch refresh scheduler and serves the HTTP API until SIGINT/SIGTERM.
 *
 * @notes
 * - Missing Firebase credentials are not fatal. The service starts, /health answers
 *   and every store-backed route reports the credentials error.
 */
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"google.golang.org/api/option"

	"github.com/goizzi/backoffice-service/internal/api"
	"github.com/goizzi/backoffice-service/internal/app"
	"github.com/goizzi/backoffice-service/internal/config"
	"github.com/goizzi/backoffice-service/internal/logging"
	"github.com/goizzi/backoffice-service/internal/store"
	"github.com/goizzi/backoffice-service/pkg/firebaseauth"
	"github.com/goizzi/backoffice-service/pkg/gcs"
	"github.com/goizzi/backoffice-service/pkg/pubsub"
	"github.com/goizzi/backoffice-service/pkg/rabbitmq"
)

func main() {
	// Load .env file for local development.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("cannot load config: %v", err)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	ctx := context.Background()

	docs, closeStore := openStore(ctx, cfg, logger)
	defer closeStore()

	var redisClient redis.UniversalClient
	if client := openRedis(ctx, cfg, logger); client != nil {
		redisClient = client
		defer client.Close()
	}

	var sessionCache app.SessionCache = app.NewMemorySessionCache()
	var limiter app.RateLimiter = app.NewMemoryRateLimiter()
	if redisClient != nil {
		sessionCache = app.NewRedisSessionCache(redisClient, cfg.RedisKeyPrefix)
		limiter = app.NewRedisRateLimiter(redisClient, cfg.RedisKeyPrefix)
	}

	events, closeEvents := openEvents(ctx, cfg, logger)
	defer closeEvents()

	var signer app.URLSigner
	if cfg.KycBucket != "" {
		s, err := openSigner(ctx, cfg)
		if err != nil {
			logger.WithError(err).Warn("KYC image signing disabled")
		} else {
			signer = s
			defer s.Close()
		}
	}

	service := app.NewService(app.Options{
		Store:        docs,
		Events:       events,
		Signer:       signer,
		Logger:       logger,
		SignedURLTTL: time.Duration(cfg.KycSignedURLTTLMinutes) * time.Minute,
	})

	var verifier app.IDTokenVerifier
	if cfg.FirebaseProjectID != "" {
		verifier = firebaseauth.NewVerifier(cfg.FirebaseProjectID, cfg.FirebaseCertsURL)
	}
	if cfg.SessionSecret == "" {
		logger.Warn("SESSION_SECRET is not set; staff sign-in is disabled")
	}
	sessions := app.NewSessionService(service.Users(), verifier, sessionCache, app.SessionConfig{
		Secret:   cfg.SessionSecret,
		MaxAge:   time.Duration(cfg.SessionMaxAgeHours) * time.Hour,
		CacheTTL: time.Duration(cfg.SessionCacheTTLSeconds) * time.Second,
	}, logger)

	branches := app.NewBranchDirectory(docs, redisClient, cfg.RedisKeyPrefix, logger)
	scheduler := app.NewScheduler(branches, logger, cfg.BranchRefreshSchedule)
	if docs != nil {
		scheduler.Start()
	}

	handler := api.NewHandler(api.HandlerOptions{
		Service:          service,
		Sessions:         sessions,
		Limiter:          limiter,
		Branches:         branches,
		Logger:           logger,
		SecureCookies:    cfg.IsProduction(),
		SessionRateLimit: cfg.SessionRateLimitPerMinute,
	})
	proxies, err := api.ParseTrustedProxies(cfg.Proxies())
	if err != nil {
		logger.WithError(err).Warn("ignoring TRUSTED_PROXIES; forwarding headers will not be trusted")
		proxies = nil
	}
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.Origins(),
		Logger:         logger,
		Users:          service.Users(),
		TrustedProxies: proxies,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("Starting HTTP server on port %s", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Could not start server: %s", err)
		}
	}()

	// Wait for termination signal for graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down backoffice-service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if docs != nil {
		<-scheduler.Stop().Done()
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server shutdown failed")
	}

	logger.Info("Server gracefully stopped")
}

// openStore connects the configured document store. A nil store is returned when
// the backend cannot be reached with the configured credentials.
func openStore(ctx context.Context, cfg config.Config, logger *logrus.Logger) (store.DocumentStore, func()) {
	noop := func() {}
	log := logger.WithFields(logrus.Fields{"component": "store", "driver": cfg.StoreDriver})

	var docs store.DocumentStore
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		log.Warn("using in-memory document store; data is not persisted")
		docs = store.NewMemoryStore()

	case config.StoreDriverPostgres:
		if cfg.DatabaseURL == "" {
			log.Warn("DATABASE_URL is not set; store-backed routes are disabled")
			return nil, noop
		}
		dbConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
		if err != nil {
			log.WithError(err).Warn("unable to parse database URL")
			return nil, noop
		}
		dbConfig.MaxConns = 20
		dbConfig.MaxConnLifetime = 30 * time.Minute
		dbConfig.MaxConnIdleTime = 5 * time.Minute
		// Disable prepared statement caching to prevent conflicts
		dbConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

		dbpool, err := pgxpool.NewWithConfig(ctx, dbConfig)
		if err != nil {
			log.WithError(err).Warn("unable to connect to database")
			return nil, noop
		}
		pg := store.NewPostgresStore(dbpool)
		if err := pg.EnsureSchema(ctx); err != nil {
			log.WithError(err).Warn("unable to prepare documents table")
			dbpool.Close()
			return nil, noop
		}
		log.Info("Database connection established")
		docs = pg

	default:
		if cfg.FirebaseProjectID == "" {
			log.Warn("Firebase project id is not configured; store-backed routes are disabled")
			return nil, noop
		}
		fs, err := store.NewFirestoreStore(ctx, cfg.FirebaseProjectID, googleCredentials(cfg)...)
		if err != nil {
			log.WithError(err).Warn("Firebase Admin credentials are not configured")
			return nil, noop
		}
		docs = fs
	}

	traced := store.NewTracedStore(docs, otel.Tracer("backoffice-service"))
	return traced, func() {
		if err := traced.Close(); err != nil {
			log.WithError(err).Warn("store close failed")
		}
	}
}

func openRedis(ctx context.Context, cfg config.Config, logger *logrus.Logger) *redis.Client {
	if cfg.RedisURL == "" {
		return nil
	}
	log := logger.WithField("component", "redis")
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.WithError(err).Warn("invalid REDIS_URL; using in-process caches")
		return nil
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.WithError(err).Warn("redis unavailable; using in-process caches")
		_ = client.Close()
		return nil
	}
	log.Info("Redis connection established")
	return client
}

func openEvents(ctx context.Context, cfg config.Config, logger *logrus.Logger) (app.EventPublisher, func()) {
	log := logger.WithFields(logrus.Fields{"component": "events", "driver": cfg.EventsDriver})

	switch cfg.EventsDriver {
	case config.EventsDriverRabbitMQ:
		var producer rabbitmq.Publisher
		p, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, logger)
		if err != nil {
			log.WithError(err).Warn("Failed to connect to RabbitMQ; events will only be logged")
			producer = &rabbitmq.EventProducerFallback{Logger: logger}
		} else {
			producer = p
		}
		bus := rabbitmq.NewEventBus(producer, cfg.EventsExchange)
		return bus, bus.Close

	case config.EventsDriverPubSub:
		if cfg.PubSubTopic == "" || cfg.FirebaseProjectID == "" {
			log.Warn("PUBSUB_TOPIC or project id missing; events disabled")
			return nil, func() {}
		}
		p, err := pubsub.NewPublisher(ctx, cfg.FirebaseProjectID, cfg.PubSubTopic, googleCredentials(cfg)...)
		if err != nil {
			log.WithError(err).Warn("Failed to create Pub/Sub publisher; events disabled")
			return nil, func() {}
		}
		return p, p.Close
	}
	return nil, func() {}
}

func openSigner(ctx context.Context, cfg config.Config) (*gcs.Signer, error) {
	var credentials []byte
	switch {
	case cfg.FirebaseCredentialsJSON != "":
		credentials = []byte(cfg.FirebaseCredentialsJSON)
	case cfg.FirebaseCredentialsFile != "":
		raw, err := os.ReadFile(cfg.FirebaseCredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read credentials file: %w", err)
		}
		credentials = raw
	}
	return gcs.NewSigner(ctx, cfg.KycBucket, credentials)
}

func googleCredentials(cfg config.Config) []option.ClientOption {
	switch {
	case cfg.FirebaseCredentialsJSON != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(cfg.FirebaseCredentialsJSON))}
	case cfg.FirebaseCredentialsFile != "":
		return []option.ClientOption{option.WithCredentialsFile(cfg.FirebaseCredentialsFile)}
	}
	return nil
}
