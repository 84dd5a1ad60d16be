package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/eduzayn/messaging-gateway/internal/channelconfig"
	"github.com/eduzayn/messaging-gateway/internal/channels/whatsapp"
	"github.com/eduzayn/messaging-gateway/internal/contacts"
	"github.com/eduzayn/messaging-gateway/internal/conversations"
	"github.com/eduzayn/messaging-gateway/internal/events"
	"github.com/eduzayn/messaging-gateway/internal/messaging"
	observemetrics "github.com/eduzayn/messaging-gateway/internal/observability/metrics"
	"github.com/eduzayn/messaging-gateway/pkg/logging"
)

var webhookTracer = otel.Tracer("internal/http/handlers")

type channelConfigSource interface {
	GetActive(ctx context.Context, channelType string) (channelconfig.Config, error)
}

type processedTracker interface {
	AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

type auditLog interface {
	Append(ctx context.Context, provider string, payload []byte, outcome string) error
}

type contactResolver interface {
	Resolve(ctx context.Context, channel, phoneE164, displayNameHint string) (*contacts.Contact, error)
}

type conversationRouter interface {
	ResolveActive(ctx context.Context, contactID uuid.UUID, channel string) (*conversations.Conversation, error)
	Touch(ctx context.Context, id uuid.UUID, at time.Time) error
}

type inboundStore interface {
	InsertInbound(ctx context.Context, conversationID uuid.UUID, msg messaging.InboundMessage) (uuid.UUID, bool, error)
	ApplyStatus(ctx context.Context, update messaging.StatusUpdate) (bool, error)
	HasExternalMessage(ctx context.Context, externalMessageID string) (bool, error)
}

// WhatsAppWebhookHandler handles Cloud API webhook verification and event
// delivery. Event processing is partial-failure tolerant: once the payload is
// signed and well-formed the response is 200 even when individual entries
// fail, because the provider retries the whole batch on anything else.
type WhatsAppWebhookHandler struct {
	configs       channelConfigSource
	processed     processedTracker
	audit         auditLog
	contacts      contactResolver
	conversations conversationRouter
	store         inboundStore
	logger        *logging.Logger
	metrics       *observemetrics.GatewayMetrics
}

type WhatsAppWebhookConfig struct {
	Configs       channelConfigSource
	Processed     processedTracker
	Audit         auditLog
	Contacts      contactResolver
	Conversations conversationRouter
	Store         inboundStore
	Logger        *logging.Logger
	Metrics       *observemetrics.GatewayMetrics
}

func NewWhatsAppWebhookHandler(cfg WhatsAppWebhookConfig) *WhatsAppWebhookHandler {
	if cfg.Configs == nil {
		panic("handlers: channel config source required")
	}
	if cfg.Contacts == nil || cfg.Conversations == nil || cfg.Store == nil {
		panic("handlers: contact, conversation and message stores required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &WhatsAppWebhookHandler{
		configs:       cfg.Configs,
		processed:     cfg.Processed,
		audit:         cfg.Audit,
		contacts:      cfg.Contacts,
		conversations: cfg.Conversations,
		store:         cfg.Store,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
	}
}

// HandleVerification answers the GET subscription handshake from Meta.
func (h *WhatsAppWebhookHandler) HandleVerification(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	cfg, err := h.configs.GetActive(r.Context(), messaging.ChannelWhatsApp)
	if err != nil {
		h.logger.Warn("handshake refused, channel config unavailable", "error", err)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	if mode == "subscribe" && token != "" && token == cfg.VerifyToken {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, challenge)
		return
	}
	h.logger.Warn("handshake refused", "mode", mode)
	http.Error(w, "Forbidden", http.StatusForbidden)
}

// HandleEvents processes webhook POSTs: inbound messages and delivery statuses.
func (h *WhatsAppWebhookHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	ctx, span := webhookTracer.Start(r.Context(), "webhook.whatsapp")
	defer span.End()
	start := time.Now()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	cfg, err := h.configs.GetActive(ctx, messaging.ChannelWhatsApp)
	if err != nil {
		if errors.Is(err, channelconfig.ErrNotConfigured) {
			http.Error(w, "channel not configured", http.StatusServiceUnavailable)
			return
		}
		h.logger.Error("channel config lookup failed", "error", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	if !whatsapp.VerifySignature(cfg.WebhookSecret, body, r.Header.Get(whatsapp.SignatureHeader)) {
		h.logger.Warn("invalid webhook signature")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	payload, err := whatsapp.ParsePayload(body)
	if err != nil {
		h.logger.Warn("rejected webhook payload", "error", err)
		h.appendAudit(ctx, body, events.OutcomeRejected)
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	// Cloud API deliveries carry no event id, so exact redeliveries are
	// keyed on a digest of the signed body.
	eventID := bodyDigest(body)
	span.SetAttributes(attribute.String("event_id", eventID))
	if h.processed != nil {
		seen, err := h.processed.AlreadyProcessed(ctx, messaging.ChannelWhatsApp, eventID)
		if err != nil {
			h.logger.Error("processed lookup failed", "error", err)
		} else if seen {
			h.appendAudit(ctx, body, events.OutcomeDuplicate)
			w.WriteHeader(http.StatusOK)
			return
		}
	}

	inbound, statuses := whatsapp.Normalize(payload, h.logger)
	failures := 0
	for _, msg := range inbound {
		if err := h.processInbound(ctx, msg); err != nil {
			failures++
			h.logger.Error("inbound message failed", "error", err, "external_id", msg.ExternalID)
			h.metrics.ObserveInbound("message", "error")
			continue
		}
		h.metrics.ObserveInbound("message", "ok")
	}
	for _, update := range statuses {
		if err := h.processStatus(ctx, update); err != nil {
			failures++
			h.logger.Error("status update failed", "error", err, "external_message_id", update.ExternalMessageID)
			h.metrics.ObserveInbound("status", "error")
			continue
		}
		h.metrics.ObserveInbound("status", "ok")
	}

	outcome := events.OutcomeProcessed
	if failures > 0 {
		outcome = events.OutcomePartial
	}
	if h.processed != nil {
		if _, err := h.processed.MarkProcessed(ctx, messaging.ChannelWhatsApp, eventID); err != nil {
			h.logger.Error("failed to mark event processed", "error", err, "event_id", eventID)
		}
	}
	h.appendAudit(ctx, body, outcome)
	h.metrics.ObserveWebhookLatency("whatsapp", time.Since(start).Seconds())
	w.WriteHeader(http.StatusOK)
}

func (h *WhatsAppWebhookHandler) processInbound(ctx context.Context, msg messaging.InboundMessage) error {
	phone := messaging.NormalizeE164(msg.SenderPhone)
	if phone == "" {
		return fmt.Errorf("handlers: unusable sender phone %q", msg.SenderPhone)
	}
	contact, err := h.contacts.Resolve(ctx, messaging.ChannelWhatsApp, phone, msg.SenderName)
	if err != nil {
		return fmt.Errorf("handlers: resolve contact: %w", err)
	}
	conv, err := h.conversations.ResolveActive(ctx, contact.ID, messaging.ChannelWhatsApp)
	if err != nil {
		return fmt.Errorf("handlers: resolve conversation: %w", err)
	}
	_, created, err := h.store.InsertInbound(ctx, conv.ID, msg)
	if err != nil {
		return fmt.Errorf("handlers: insert inbound: %w", err)
	}
	if !created {
		h.logger.Info("duplicate inbound delivery skipped", "external_id", msg.ExternalID)
		return nil
	}
	if err := h.conversations.Touch(ctx, conv.ID, msg.Timestamp); err != nil {
		return fmt.Errorf("handlers: touch conversation: %w", err)
	}
	return nil
}

func (h *WhatsAppWebhookHandler) processStatus(ctx context.Context, update messaging.StatusUpdate) error {
	applied, err := h.store.ApplyStatus(ctx, update)
	if err != nil {
		return fmt.Errorf("handlers: apply status: %w", err)
	}
	if applied {
		return nil
	}
	known, err := h.store.HasExternalMessage(ctx, update.ExternalMessageID)
	if err != nil {
		return fmt.Errorf("handlers: check external message: %w", err)
	}
	if !known {
		// Statuses routinely arrive for messages sent outside this system.
		h.logger.Info("status for unknown message dropped",
			"external_message_id", update.ExternalMessageID,
			"status", string(update.NewStatus))
	}
	return nil
}

func (h *WhatsAppWebhookHandler) appendAudit(ctx context.Context, body []byte, outcome string) {
	if h.audit == nil {
		return
	}
	if err := h.audit.Append(ctx, messaging.ChannelWhatsApp, body, outcome); err != nil {
		h.logger.Error("webhook audit append failed", "error", err, "outcome", outcome)
	}
}

func bodyDigest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
