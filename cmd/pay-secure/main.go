package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"log/slog"

	"github.com/mgurusai/pay-secure/internal/config"
	"github.com/mgurusai/pay-secure/internal/events"
	"github.com/mgurusai/pay-secure/internal/handlers"
	"github.com/mgurusai/pay-secure/internal/health"
	"github.com/mgurusai/pay-secure/internal/httpmiddleware"
	"github.com/mgurusai/pay-secure/internal/logging"
	"github.com/mgurusai/pay-secure/internal/metrics"
	"github.com/mgurusai/pay-secure/internal/risk"
	"github.com/mgurusai/pay-secure/internal/security"
	"github.com/mgurusai/pay-secure/internal/session"
	"github.com/mgurusai/pay-secure/internal/storage"
	"github.com/mgurusai/pay-secure/internal/trace"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.App.LogLevel, cfg.App.ServiceName, cfg.App.Env)

	shutdownTracer, err := trace.InitTracer(cfg.App.ServiceName, cfg.App.Env)
	if err != nil {
		logger.Error("tracer init failed", "error", err)
	} else {
		defer func() {
			_ = shutdownTracer(context.Background())
		}()
	}

	if cfg.App.Env == "dev" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(registry)
	flowMetrics := handlers.NewMetrics(registry)

	ready := health.NewManager(true)

	pool, err := connectDB(cfg)
	if err != nil {
		logger.Error("db connection failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := connectRedis(cfg)
	if err != nil {
		logger.Error("session redis connection failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = redisClient.Close()
	}()

	ready.AddCheck("postgres", func(ctx context.Context) error { return pool.Ping(ctx) })
	ready.AddCheck("session_redis", func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })

	cipher, err := security.NewCipher(cfg.EncryptionKey)
	if err != nil {
		logger.Error("cipher init failed", "error", err)
		os.Exit(1)
	}

	publisher, err := buildPublisher(cfg, logger, registry)
	if err != nil {
		logger.Error("event publisher init failed", "error", err)
		os.Exit(1)
	}
	if publisher != nil {
		defer func() {
			_ = publisher.Close()
		}()
	}

	store := storage.New(pool)
	sessions := session.NewStore(redisClient, cfg.SessionTTL, "")
	cookies := session.NewCodec(cfg.SessionSecret, cfg.SessionTTL)
	scanner := risk.NewScanner(logger)

	flow := handlers.NewFlowHandler(store, sessions, cookies, cipher, scanner, logger, flowMetrics, security.Argon2Params{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})
	flow.Publisher = publisher
	flow.DebugCodes = cfg.DebugCodes
	if cfg.DebugCodes && cfg.App.Env != "dev" && cfg.App.Env != "test" {
		logger.Warn("debug code logging enabled outside dev; OTP values will appear in logs")
	}

	router := gin.New()
	router.Use(httpmiddleware.RequestID())
	router.Use(httpmiddleware.Logger(logger, "/healthz", "/readyz", cfg.App.MetricsPath))
	router.Use(httpmiddleware.Recovery(logger))
	router.Use(trace.Middleware(cfg.App.ServiceName))

	router.GET("/healthz", health.LivenessHandler)
	router.GET("/readyz", health.ReadinessHandler(ready))
	router.GET(cfg.App.MetricsPath, gin.WrapH(metrics.Handler(registry)))

	flow.RegisterRoutes(router)

	addr := fmt.Sprintf("%s:%d", cfg.App.HTTP.Host, cfg.App.HTTP.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.App.HTTP.ReadTimeout,
		WriteTimeout: cfg.App.HTTP.WriteTimeout,
		IdleTimeout:  cfg.App.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info("pay-secure starting", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
		}
	}()

	waitForShutdown(server, logger)
}

func connectDB(cfg *config.Config) (*pgxpool.Pool, error) {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.DB.User,
		cfg.DB.Password,
		cfg.DB.Host,
		cfg.DB.Port,
		cfg.DB.Name,
		cfg.DB.SSLMode,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

func connectRedis(cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.SessionRedis.Addr,
		Password: cfg.SessionRedis.Password,
		DB:       cfg.SessionRedis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func buildPublisher(cfg *config.Config, logger *slog.Logger, registry *prometheus.Registry) (events.Publisher, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		logger.Info("kafka brokers not configured; payment events disabled")
		return nil, nil
	}
	return events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger, events.NewMetrics(registry))
}

func waitForShutdown(server *http.Server, logger *slog.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutdown started")
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		return
	}
	logger.Info("shutdown complete")
}
