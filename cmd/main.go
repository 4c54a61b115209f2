package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fjod/go_marketplace/internal/catalog"
	"github.com/fjod/go_marketplace/internal/gateway"
	h "github.com/fjod/go_marketplace/internal/http"
	"github.com/fjod/go_marketplace/internal/notify"
	"github.com/fjod/go_marketplace/internal/order"
	"github.com/fjod/go_marketplace/internal/refund"
	"github.com/fjod/go_marketplace/internal/session"
	"github.com/fjod/go_marketplace/internal/store"
	"github.com/fjod/go_marketplace/internal/webhook"
)

type Config struct {
	HTTPPort        string
	RedisAddr       string
	MongoURI        string
	MongoDB         string
	KafkaBrokers    []string
	WebhookSecret   string
	Postgres        order.Credentials
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

func loadConfig() *Config {
	return &Config{
		HTTPPort:     getEnv("HTTP_PORT", "8080"),
		RedisAddr:    getEnv("REDIS_ADDR", "localhost:6379"),
		MongoURI:     getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:      getEnv("MONGO_DB", "marketplace"),
		KafkaBrokers: strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
		// The shared secret the gateway signs callbacks with.
		WebhookSecret: getEnv("GATEWAY_WEBHOOK_SECRET", "whsec_dev_only"),
		Postgres: order.Credentials{
			Host:              getEnv("POSTGRES_HOST", "localhost"),
			Port:              getEnvInt("POSTGRES_PORT", 5432),
			User:              getEnv("POSTGRES_USER", "postgres"),
			Password:          getEnv("POSTGRES_PASSWORD", "postgres"),
			DBName:            getEnv("POSTGRES_DB", "payments"),
			MigrationsDirPath: getEnv("MIGRATIONS_DIR", "migrations"),
		},
		RequestTimeout:  30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func main() {
	cfg := loadConfig()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis: sessions + webhook idempotency log.
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	kv := store.NewRedisStore(redisClient)

	// Mongo: product stock, analytics, shop/coupon directory.
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			log.Printf("mongo disconnect error: %v", err)
		}
	}()
	mongoDB := mongoClient.Database(cfg.MongoDB)
	stockStore := catalog.NewMongoStore(mongoDB)
	directory := catalog.NewMongoDirectory(mongoDB)

	// Postgres: orders, refund ledger, notification outbox.
	orderRepo, err := order.NewPostgresRepository(&cfg.Postgres)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer orderRepo.Close()
	if err := orderRepo.RunMigrations(&cfg.Postgres); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	outboxRepo := notify.NewPostgresOutbox(orderRepo.DB())
	notifier := notify.NewOutboxNotifier(outboxRepo)
	poller := notify.NewPoller(outboxRepo, cfg.KafkaBrokers...)
	go poller.Run(ctx)
	defer poller.Close()

	gw := gateway.NewBreakerGateway(gateway.NewSimGateway([]byte(cfg.WebhookSecret)))

	sessions := session.NewService(kv, directory, directory)
	refunds := refund.NewService(refund.NewPostgresRepository(orderRepo.DB()), gw)
	materializer := order.NewMaterializer(orderRepo, stockStore, notifier, sessions)
	dispatcher := webhook.NewDispatcher(gw, kv, sessions, materializer, refunds, notifier)

	router := h.NewRouter(
		h.NewSessionHandler(sessions, gw, cfg.RequestTimeout),
		h.NewWebhookHandler(dispatcher),
		h.NewOrderHandler(orderRepo, cfg.RequestTimeout),
		h.NewRefundHandler(refunds, cfg.RequestTimeout),
		cfg.RequestTimeout,
	)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("payment service starting on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()

	log.Println("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	log.Println("server exited")
}
