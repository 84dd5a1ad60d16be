package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/eduzayn/messaging-gateway/internal/messaging"
	"github.com/eduzayn/messaging-gateway/pkg/logging"
)

type messageDispatcher interface {
	Send(ctx context.Context, conversationID uuid.UUID, contactPhone string, payload messaging.OutboundPayload) (messaging.SendResult, error)
}

// SendMessageHandler exposes outbound dispatch to the rest of the platform.
// It is an internal surface: the dashboard and automation workers call it,
// never end users.
type SendMessageHandler struct {
	dispatcher messageDispatcher
	logger     *logging.Logger
}

func NewSendMessageHandler(dispatcher messageDispatcher, logger *logging.Logger) *SendMessageHandler {
	if dispatcher == nil {
		panic("handlers: dispatcher required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SendMessageHandler{dispatcher: dispatcher, logger: logger}
}

type sendMessageRequest struct {
	ConversationID string `json:"conversation_id"`
	Phone          string `json:"phone"`
	Kind           string `json:"kind"`

	Body string `json:"body,omitempty"`

	TemplateName     string   `json:"template_name,omitempty"`
	TemplateLanguage string   `json:"template_language,omitempty"`
	TemplateParams   []string `json:"template_params,omitempty"`

	MediaURL string `json:"media_url,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

type sendMessageResponse struct {
	MessageID         string `json:"message_id"`
	ExternalMessageID string `json:"external_message_id,omitempty"`
	Status            string `json:"status"`
	ErrorDetail       string `json:"error_detail,omitempty"`
}

func (h *SendMessageHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	conversationID, err := uuid.Parse(req.ConversationID)
	if err != nil {
		http.Error(w, "invalid conversation_id", http.StatusBadRequest)
		return
	}
	payload, err := buildPayload(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, sendErr := h.dispatcher.Send(r.Context(), conversationID, req.Phone, payload)
	resp := sendMessageResponse{
		MessageID:         result.MessageID.String(),
		ExternalMessageID: result.ExternalMessageID,
		Status:            string(result.Status),
		ErrorDetail:       result.ErrorDetail,
	}
	w.Header().Set("Content-Type", "application/json")
	if sendErr != nil {
		if result.MessageID == uuid.Nil {
			// Nothing was persisted; the request itself was unusable.
			h.logger.Warn("send rejected", "error", sendErr)
			http.Error(w, sendErr.Error(), http.StatusBadRequest)
			return
		}
		// Persisted as FAILED; report the typed result with a gateway error code.
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(resp)
		return
	}
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

func buildPayload(req sendMessageRequest) (messaging.OutboundPayload, error) {
	switch strings.ToLower(strings.TrimSpace(req.Kind)) {
	case "text", "":
		if strings.TrimSpace(req.Body) == "" {
			return messaging.OutboundPayload{}, errBadSend("body required for text message")
		}
		return messaging.OutboundPayload{Kind: messaging.OutboundText, Body: req.Body}, nil
	case "template":
		if strings.TrimSpace(req.TemplateName) == "" {
			return messaging.OutboundPayload{}, errBadSend("template_name required for template message")
		}
		return messaging.OutboundPayload{
			Kind:             messaging.OutboundTemplate,
			TemplateName:     req.TemplateName,
			TemplateLanguage: req.TemplateLanguage,
			TemplateParams:   req.TemplateParams,
		}, nil
	case "media":
		if strings.TrimSpace(req.MediaURL) == "" {
			return messaging.OutboundPayload{}, errBadSend("media_url required for media message")
		}
		return messaging.OutboundPayload{
			Kind:     messaging.OutboundMedia,
			MediaURL: req.MediaURL,
			Caption:  req.Caption,
		}, nil
	default:
		return messaging.OutboundPayload{}, errBadSend("unsupported kind " + req.Kind)
	}
}

type errBadSend string

func (e errBadSend) Error() string { return string(e) }
