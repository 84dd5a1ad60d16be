package whatsapp

import "encoding/json"

// WebhookObject is the discriminator the Cloud API sets on every event payload.
const WebhookObject = "whatsapp_business_account"

// WebhookPayload is the top-level structure of a Cloud API webhook POST.
type WebhookPayload struct {
	Object string         `json:"object"`
	Entry  []WebhookEntry `json:"entry"`
}

type WebhookEntry struct {
	ID      string          `json:"id"`
	Changes []WebhookChange `json:"changes"`
}

type WebhookChange struct {
	Field string       `json:"field"`
	Value WebhookValue `json:"value"`
}

// WebhookValue carries the two independent event arrays. Messages and statuses
// never share entries; either may be empty.
type WebhookValue struct {
	MessagingProduct string            `json:"messaging_product"`
	Metadata         WebhookMetadata   `json:"metadata"`
	Contacts         []WebhookContact  `json:"contacts,omitempty"`
	Messages         []IncomingMessage `json:"messages,omitempty"`
	Statuses         []IncomingStatus  `json:"statuses,omitempty"`
}

type WebhookMetadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type WebhookContact struct {
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
	WaID string `json:"wa_id"`
}

type IncomingMessage struct {
	ID        string         `json:"id"`
	From      string         `json:"from"`
	Timestamp string         `json:"timestamp"`
	Type      string         `json:"type"`
	Text      *IncomingText  `json:"text,omitempty"`
	Image     *IncomingMedia `json:"image,omitempty"`
	Document  *IncomingMedia `json:"document,omitempty"`
	Audio     *IncomingMedia `json:"audio,omitempty"`
	Video     *IncomingMedia `json:"video,omitempty"`
}

type IncomingText struct {
	Body string `json:"body"`
}

type IncomingMedia struct {
	ID       string `json:"id"`
	Caption  string `json:"caption,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Filename string `json:"filename,omitempty"`
	Sha256   string `json:"sha256,omitempty"`
}

type IncomingStatus struct {
	ID          string          `json:"id"`
	Status      string          `json:"status"`
	Timestamp   string          `json:"timestamp"`
	RecipientID string          `json:"recipient_id"`
	Errors      json.RawMessage `json:"errors,omitempty"`
}

// Outbound send structures (POST /{phoneNumberID}/messages).

type sendMessage struct {
	MessagingProduct string           `json:"messaging_product"`
	RecipientType    string           `json:"recipient_type"`
	To               string           `json:"to"`
	Type             string           `json:"type"`
	Text             *sendText        `json:"text,omitempty"`
	Image            *sendMedia       `json:"image,omitempty"`
	Document         *sendMedia       `json:"document,omitempty"`
	Audio            *sendMedia       `json:"audio,omitempty"`
	Video            *sendMedia       `json:"video,omitempty"`
	Template         *sendTemplate    `json:"template,omitempty"`
}

type sendText struct {
	Body string `json:"body"`
}

type sendMedia struct {
	Link    string `json:"link"`
	Caption string `json:"caption,omitempty"`
}

type sendTemplate struct {
	Name       string              `json:"name"`
	Language   sendLanguage        `json:"language"`
	Components []templateComponent `json:"components,omitempty"`
}

type sendLanguage struct {
	Code string `json:"code"`
}

type templateComponent struct {
	Type       string              `json:"type"`
	Parameters []templateParameter `json:"parameters,omitempty"`
}

type templateParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type sendResponse struct {
	MessagingProduct string `json:"messaging_product"`
	Contacts         []struct {
		Input string `json:"input"`
		WaID  string `json:"wa_id"`
	} `json:"contacts"`
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}
