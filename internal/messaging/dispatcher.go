package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/eduzayn/messaging-gateway/internal/channelconfig"
	"github.com/eduzayn/messaging-gateway/internal/observability/metrics"
	"github.com/eduzayn/messaging-gateway/pkg/logging"
)

var dispatchTracer = otel.Tracer("gateway.internal.messaging.dispatcher")

// ProviderClient sends one message through a channel provider and returns the
// provider-assigned message id.
type ProviderClient interface {
	Send(ctx context.Context, accessToken, phoneNumberID, to string, payload OutboundPayload) (string, error)
}

// ProviderError exposes the raw provider error body for persistence.
type ProviderError interface {
	error
	ErrorBody() string
}

type configResolver interface {
	GetActive(ctx context.Context, channelType string) (channelconfig.Config, error)
}

// Dispatcher sends outbound messages and reconciles the local record with the
// provider response. It never retries: a FAILED result carries everything the
// caller needs to decide on a retry.
type Dispatcher struct {
	store       *Store
	client      ProviderClient
	configs     configResolver
	logger      *logging.Logger
	metrics     *metrics.GatewayMetrics
	sendTimeout time.Duration
}

type DispatcherConfig struct {
	Store       *Store
	Client      ProviderClient
	Configs     configResolver
	Logger      *logging.Logger
	Metrics     *metrics.GatewayMetrics
	SendTimeout time.Duration
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Store == nil {
		panic("messaging: store cannot be nil")
	}
	if cfg.Client == nil {
		panic("messaging: provider client cannot be nil")
	}
	if cfg.Configs == nil {
		panic("messaging: config resolver cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Dispatcher{
		store:       cfg.Store,
		client:      cfg.Client,
		configs:     cfg.Configs,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		sendTimeout: timeout,
	}
}

// Send persists a PENDING record, calls the provider, and reconciles the row.
// The PENDING insert happens before the network call so a crash mid-send still
// leaves a durable record. Failures come back as a typed SendResult alongside
// the error.
func (d *Dispatcher) Send(ctx context.Context, conversationID uuid.UUID, contactPhone string, payload OutboundPayload) (SendResult, error) {
	ctx, span := dispatchTracer.Start(ctx, "messaging.dispatch.send")
	defer span.End()

	to := NormalizeE164(contactPhone)
	if to == "" {
		return SendResult{}, errors.New("messaging: contact phone required")
	}
	span.SetAttributes(
		attribute.String("gateway.conversation_id", conversationID.String()),
		attribute.String("gateway.payload_kind", string(payload.Kind)),
	)

	cfg, err := d.configs.GetActive(ctx, ChannelWhatsApp)
	if err != nil {
		span.RecordError(err)
		return SendResult{}, fmt.Errorf("messaging: resolve channel config: %w", err)
	}

	rec := MessageRecord{
		ConversationID: conversationID,
		Type:           payloadMessageType(payload),
		Content:        payloadContent(payload),
		AttachmentRef:  payload.MediaURL,
		PhoneNumberID:  cfg.PhoneNumberID,
	}
	msgID, err := d.store.InsertOutboundPending(ctx, rec)
	if err != nil {
		span.RecordError(err)
		return SendResult{}, err
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()
	externalID, sendErr := d.client.Send(sendCtx, cfg.AccessToken, cfg.PhoneNumberID, to, payload)
	if sendErr != nil {
		detail := errorDetail(sendErr)
		if err := d.store.MarkFailed(ctx, msgID, detail); err != nil {
			d.logger.Error("failed to record send failure", "error", err, "message_id", msgID)
		}
		d.observe(StatusFailed)
		span.RecordError(sendErr)
		d.logger.Error("outbound send failed", "error", sendErr, "conversation_id", conversationID, "message_id", msgID)
		return SendResult{
			MessageID:   msgID,
			Status:      StatusFailed,
			ErrorDetail: detail,
		}, fmt.Errorf("messaging: provider send: %w", sendErr)
	}

	if err := d.store.MarkSent(ctx, msgID, externalID); err != nil {
		// The provider accepted the message; surface the reconciliation
		// failure but keep the external id in the result.
		span.RecordError(err)
		return SendResult{
			MessageID:         msgID,
			ExternalMessageID: externalID,
			Status:            StatusPending,
		}, err
	}

	d.observe(StatusSent)
	d.logger.Info("outbound message sent", "conversation_id", conversationID, "message_id", msgID, "external_message_id", externalID)
	return SendResult{
		MessageID:         msgID,
		ExternalMessageID: externalID,
		Status:            StatusSent,
	}, nil
}

func (d *Dispatcher) observe(status Status) {
	if d.metrics != nil {
		d.metrics.ObserveOutbound(string(status))
	}
}

func payloadMessageType(payload OutboundPayload) MessageType {
	switch payload.Kind {
	case OutboundTemplate:
		return TypeTemplate
	case OutboundMedia:
		return MediaTypeFromURL(payload.MediaURL)
	default:
		return TypeText
	}
}

func payloadContent(payload OutboundPayload) string {
	switch payload.Kind {
	case OutboundTemplate:
		name := payload.TemplateName
		if len(payload.TemplateParams) > 0 {
			name = name + ": " + strings.Join(payload.TemplateParams, ", ")
		}
		return name
	case OutboundMedia:
		return payload.Caption
	default:
		return payload.Body
	}
}

func errorDetail(err error) string {
	var pe ProviderError
	if errors.As(err, &pe) && strings.TrimSpace(pe.ErrorBody()) != "" {
		return pe.ErrorBody()
	}
	return err.Error()
}
