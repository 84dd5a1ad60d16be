package whatsapp

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/eduzayn/messaging-gateway/internal/messaging"
	"github.com/eduzayn/messaging-gateway/pkg/logging"
)

// ErrUnexpectedObject marks payloads that are not Cloud API business-account
// events. Not retryable: the provider will never usefully redeliver these.
var ErrUnexpectedObject = errors.New("whatsapp: unexpected webhook object")

// statusMap is the single source of truth for provider status strings.
var statusMap = map[string]messaging.Status{
	"sent":      messaging.StatusSent,
	"delivered": messaging.StatusDelivered,
	"read":      messaging.StatusRead,
	"failed":    messaging.StatusFailed,
}

// MapStatus translates a provider status string into the canonical Status.
// Unknown values map to StatusUnknown rather than being dropped.
func MapStatus(provider string) messaging.Status {
	if s, ok := statusMap[strings.ToLower(strings.TrimSpace(provider))]; ok {
		return s
	}
	return messaging.StatusUnknown
}

// ParsePayload decodes and validates the top level of a webhook body.
func ParsePayload(body []byte) (*WebhookPayload, error) {
	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("whatsapp: decode webhook payload: %w", err)
	}
	if payload.Object != WebhookObject {
		return nil, fmt.Errorf("%w: %q", ErrUnexpectedObject, payload.Object)
	}
	return &payload, nil
}

// Normalize flattens entry[].changes[].value into channel-agnostic events.
// Each message and status is an independent unit of work: an unsupported or
// malformed entry is logged and skipped without touching its siblings.
func Normalize(payload *WebhookPayload, logger *logging.Logger) ([]messaging.InboundMessage, []messaging.StatusUpdate) {
	if logger == nil {
		logger = logging.Default()
	}
	var inbound []messaging.InboundMessage
	var statuses []messaging.StatusUpdate

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			value := change.Value
			names := contactNames(value.Contacts)
			for _, msg := range value.Messages {
				normalized, err := normalizeMessage(msg, value.Metadata.PhoneNumberID, names)
				if err != nil {
					logger.Warn("skipping inbound message", "error", err, "message_id", msg.ID, "type", msg.Type)
					continue
				}
				inbound = append(inbound, normalized)
			}
			for _, st := range value.Statuses {
				if strings.TrimSpace(st.ID) == "" {
					logger.Warn("skipping status without message id", "status", st.Status)
					continue
				}
				statuses = append(statuses, messaging.StatusUpdate{
					ExternalMessageID: st.ID,
					NewStatus:         MapStatus(st.Status),
					Timestamp:         parseUnixSeconds(st.Timestamp),
					ErrorPayload:      st.Errors,
				})
			}
		}
	}
	return inbound, statuses
}

func normalizeMessage(msg IncomingMessage, phoneNumberID string, names map[string]string) (messaging.InboundMessage, error) {
	if strings.TrimSpace(msg.ID) == "" {
		return messaging.InboundMessage{}, errors.New("missing message id")
	}
	phone := messaging.NormalizeE164(msg.From)
	if phone == "" {
		return messaging.InboundMessage{}, errors.New("missing sender phone")
	}

	normalized := messaging.InboundMessage{
		ExternalID:        msg.ID,
		SenderPhone:       phone,
		SenderName:        names[msg.From],
		ReceivingNumberID: phoneNumberID,
		Timestamp:         parseUnixSeconds(msg.Timestamp),
	}

	switch msg.Type {
	case "text":
		if msg.Text == nil {
			return messaging.InboundMessage{}, errors.New("text message without text body")
		}
		normalized.Type = messaging.TypeText
		normalized.Content = msg.Text.Body
	case "image":
		return normalizeMedia(normalized, messaging.TypeImage, msg.Image)
	case "document":
		return normalizeMedia(normalized, messaging.TypeDocument, msg.Document)
	case "audio":
		return normalizeMedia(normalized, messaging.TypeAudio, msg.Audio)
	case "video":
		return normalizeMedia(normalized, messaging.TypeVideo, msg.Video)
	default:
		return messaging.InboundMessage{}, fmt.Errorf("unsupported message type %q", msg.Type)
	}
	return normalized, nil
}

func normalizeMedia(base messaging.InboundMessage, kind messaging.MessageType, media *IncomingMedia) (messaging.InboundMessage, error) {
	if media == nil {
		return messaging.InboundMessage{}, fmt.Errorf("%s message without media body", strings.ToLower(string(kind)))
	}
	base.Type = kind
	base.Content = media.Caption
	base.AttachmentRef = media.ID
	return base, nil
}

func contactNames(contacts []WebhookContact) map[string]string {
	if len(contacts) == 0 {
		return nil
	}
	names := make(map[string]string, len(contacts))
	for _, c := range contacts {
		if c.WaID != "" && c.Profile.Name != "" {
			names[c.WaID] = c.Profile.Name
		}
	}
	return names
}

func parseUnixSeconds(value string) time.Time {
	sec, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
