// Package router wires the gateway's HTTP surface: the WhatsApp webhook
// endpoints plus health and metrics.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/eduzayn/messaging-gateway/internal/http/handlers"
	httpmiddleware "github.com/eduzayn/messaging-gateway/internal/http/middleware"
	"github.com/eduzayn/messaging-gateway/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	WhatsAppWebhooks   *handlers.WhatsAppWebhookHandler
	SendMessage        *handlers.SendMessageHandler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
}

// New creates a Chi router with all routes configured. Unsupported methods on
// the webhook path get chi's default 405.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	if cfg.WhatsAppWebhooks != nil {
		r.Get("/webhooks/whatsapp", cfg.WhatsAppWebhooks.HandleVerification)
		r.Post("/webhooks/whatsapp", cfg.WhatsAppWebhooks.HandleEvents)
	}
	if cfg.SendMessage != nil {
		r.Post("/api/messages/send", cfg.SendMessage.Handle)
	}
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	return r
}
