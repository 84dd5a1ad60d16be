package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/eduzayn/messaging-gateway/internal/api/router"
	"github.com/eduzayn/messaging-gateway/internal/channelconfig"
	"github.com/eduzayn/messaging-gateway/internal/channels/whatsapp"
	appconfig "github.com/eduzayn/messaging-gateway/internal/config"
	"github.com/eduzayn/messaging-gateway/internal/contacts"
	"github.com/eduzayn/messaging-gateway/internal/conversations"
	"github.com/eduzayn/messaging-gateway/internal/events"
	"github.com/eduzayn/messaging-gateway/internal/http/handlers"
	"github.com/eduzayn/messaging-gateway/internal/messaging"
	"github.com/eduzayn/messaging-gateway/internal/observability/metrics"
	"github.com/eduzayn/messaging-gateway/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting messaging-gateway API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create pgx pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("database unreachable", "error", err)
		os.Exit(1)
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		opts := &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			// The dedup cache is an optimization; Postgres stays authoritative.
			logger.Warn("redis unreachable, continuing without dedup cache", "error", err)
			redisClient = nil
		}
	}

	registry := prometheus.NewRegistry()
	gatewayMetrics := metrics.NewGatewayMetrics(registry)

	configRepo := channelconfig.NewRepository(pool)
	contactRepo := contacts.NewRepository(pool)
	conversationRepo := conversations.NewRepository(pool)
	messageStore := messaging.NewStore(pool)
	processedStore := events.NewProcessedStore(pool)
	tracker := events.NewCachedTracker(processedStore, redisClient, cfg.ProcessedLocalTTL, logger)
	auditStore := events.NewAuditStore(pool)

	waClient := whatsapp.New(whatsapp.Config{
		BaseURL:    cfg.GraphAPIBaseURL,
		APIVersion: cfg.GraphAPIVersion,
		Timeout:    cfg.SendTimeout,
		Logger:     logger.Logger,
	})
	dispatcher := messaging.NewDispatcher(messaging.DispatcherConfig{
		Store:       messageStore,
		Client:      waClient,
		Configs:     configRepo,
		Logger:      logger,
		Metrics:     gatewayMetrics,
		SendTimeout: cfg.SendTimeout,
	})
	sendHandler := handlers.NewSendMessageHandler(dispatcher, logger)

	webhookHandler := handlers.NewWhatsAppWebhookHandler(handlers.WhatsAppWebhookConfig{
		Configs:       configRepo,
		Processed:     tracker,
		Audit:         auditStore,
		Contacts:      contactRepo,
		Conversations: conversationRepo,
		Store:         messageStore,
		Logger:        logger,
		Metrics:       gatewayMetrics,
	})

	r := router.New(&router.Config{
		Logger:             logger,
		WhatsAppWebhooks:   webhookHandler,
		SendMessage:        sendHandler,
		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: splitOrigins(cfg.CORSAllowedOrigins),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func splitOrigins(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}
