package messaging

import (
	"encoding/json"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Channel identifiers. The pipeline is channel-agnostic past the normalizer;
// the channel value partitions contacts, conversations and external ids.
const ChannelWhatsApp = "whatsapp"

// Direction of a message relative to the institution.
const (
	DirectionInbound  = "INBOUND"
	DirectionOutbound = "OUTBOUND"
)

// Status models the delivery lifecycle of a message.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSent      Status = "SENT"
	StatusDelivered Status = "DELIVERED"
	StatusRead      Status = "READ"
	StatusFailed    Status = "FAILED"
	// StatusUnknown preserves provider statuses outside the fixed mapping so
	// they stay visible for debugging instead of being dropped.
	StatusUnknown Status = "UNKNOWN"
)

// Rank orders the forward-only progression PENDING < SENT < DELIVERED < READ.
// FAILED and UNKNOWN sit outside the ladder; FAILED is terminal and always wins.
func (s Status) Rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	default:
		return -1
	}
}

// MessageType mirrors the content kinds the provider distinguishes.
type MessageType string

const (
	TypeText     MessageType = "TEXT"
	TypeImage    MessageType = "IMAGE"
	TypeDocument MessageType = "DOCUMENT"
	TypeAudio    MessageType = "AUDIO"
	TypeVideo    MessageType = "VIDEO"
	TypeTemplate MessageType = "TEMPLATE"
)

// InboundMessage is a channel-agnostic inbound event produced by a normalizer.
type InboundMessage struct {
	ExternalID        string
	SenderPhone       string
	SenderName        string
	ReceivingNumberID string
	Timestamp         time.Time
	Type              MessageType
	Content           string
	AttachmentRef     string
}

// StatusUpdate is a channel-agnostic delivery-status event.
type StatusUpdate struct {
	ExternalMessageID string
	NewStatus         Status
	Timestamp         time.Time
	ErrorPayload      json.RawMessage
}

// MediaTypeFromURL infers the media kind from the URL suffix. Anything
// unrecognized ships as a document, which providers accept for arbitrary files.
func MediaTypeFromURL(rawURL string) MessageType {
	clean := rawURL
	if i := strings.IndexByte(clean, '?'); i >= 0 {
		clean = clean[:i]
	}
	switch strings.ToLower(path.Ext(clean)) {
	case ".jpg", ".jpeg", ".png", ".webp":
		return TypeImage
	case ".mp3", ".ogg", ".aac", ".amr", ".opus":
		return TypeAudio
	case ".mp4", ".3gp":
		return TypeVideo
	default:
		return TypeDocument
	}
}

// OutboundKind selects the provider request shape for a send.
type OutboundKind string

const (
	OutboundText     OutboundKind = "text"
	OutboundTemplate OutboundKind = "template"
	OutboundMedia    OutboundKind = "media"
)

// OutboundPayload describes what to send. Exactly one kind is used per send:
// Body for text, Template* for template, MediaURL/Caption for media.
type OutboundPayload struct {
	Kind OutboundKind

	Body string

	TemplateName     string
	TemplateLanguage string
	TemplateParams   []string

	MediaURL string
	Caption  string
}

// SendResult is the synchronous outcome of an outbound dispatch. Failures are
// returned as values so retry policy stays with the caller.
type SendResult struct {
	MessageID         uuid.UUID
	ExternalMessageID string
	Status            Status
	ErrorDetail       string
}
