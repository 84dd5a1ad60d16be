package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/eduzayn/messaging-gateway/internal/messaging"
)

const (
	defaultBaseURL    = "https://graph.facebook.com"
	defaultAPIVersion = "v23.0"
	defaultUserAgent  = "eduzayn-messaging-gateway/0.1"
)

// Config controls how the Cloud API client behaves.
type Config struct {
	BaseURL    string
	APIVersion string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
	UserAgent  string
}

// Client wraps the WhatsApp Cloud API send endpoint. Channel credentials are
// passed per call so one client serves every configured channel.
type Client struct {
	baseURL    string
	apiVersion string
	httpClient *http.Client
	logger     *slog.Logger
	userAgent  string
}

// New creates a configured Client with sane defaults.
func New(cfg Config) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	apiVersion := strings.TrimSpace(cfg.APIVersion)
	if apiVersion == "" {
		apiVersion = defaultAPIVersion
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		baseURL:    baseURL,
		apiVersion: apiVersion,
		httpClient: httpClient,
		logger:     logger,
		userAgent:  userAgent,
	}
}

// Send posts one message to /{phoneNumberID}/messages and returns the
// provider-assigned message id. Credentials are per-call so one client serves
// every configured channel. There is no retry here: retry policy belongs to
// the caller.
func (c *Client) Send(ctx context.Context, accessToken, phoneNumberID, to string, payload messaging.OutboundPayload) (string, error) {
	if strings.TrimSpace(accessToken) == "" || strings.TrimSpace(phoneNumberID) == "" {
		return "", errors.New("whatsapp: access token and phone number id required")
	}
	if strings.TrimSpace(to) == "" {
		return "", errors.New("whatsapp: destination number required")
	}

	msg, err := buildSendMessage(to, payload)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("whatsapp: marshal send body: %w", err)
	}

	url := fmt.Sprintf("%s/%s/%s/messages", c.baseURL, c.apiVersion, phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("whatsapp: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("whatsapp: http error: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("whatsapp: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", decodeAPIError(resp.StatusCode, data)
	}

	var parsed sendResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("whatsapp: decode send response: %w", err)
	}
	if len(parsed.Messages) == 0 || strings.TrimSpace(parsed.Messages[0].ID) == "" {
		return "", errors.New("whatsapp: send response missing message id")
	}
	return parsed.Messages[0].ID, nil
}

func buildSendMessage(to string, payload messaging.OutboundPayload) (*sendMessage, error) {
	msg := &sendMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               strings.TrimPrefix(messaging.NormalizeE164(to), "+"),
	}
	switch payload.Kind {
	case messaging.OutboundText:
		if strings.TrimSpace(payload.Body) == "" {
			return nil, errors.New("whatsapp: text payload requires a body")
		}
		msg.Type = "text"
		msg.Text = &sendText{Body: payload.Body}
	case messaging.OutboundTemplate:
		if strings.TrimSpace(payload.TemplateName) == "" {
			return nil, errors.New("whatsapp: template payload requires a name")
		}
		lang := payload.TemplateLanguage
		if lang == "" {
			lang = "pt_BR"
		}
		msg.Type = "template"
		tpl := &sendTemplate{
			Name:     payload.TemplateName,
			Language: sendLanguage{Code: lang},
		}
		if len(payload.TemplateParams) > 0 {
			component := templateComponent{Type: "body"}
			for _, p := range payload.TemplateParams {
				component.Parameters = append(component.Parameters, templateParameter{Type: "text", Text: p})
			}
			tpl.Components = []templateComponent{component}
		}
		msg.Template = tpl
	case messaging.OutboundMedia:
		if strings.TrimSpace(payload.MediaURL) == "" {
			return nil, errors.New("whatsapp: media payload requires a url")
		}
		media := &sendMedia{Link: payload.MediaURL, Caption: payload.Caption}
		switch messaging.MediaTypeFromURL(payload.MediaURL) {
		case messaging.TypeImage:
			msg.Type = "image"
			msg.Image = media
		case messaging.TypeAudio:
			msg.Type = "audio"
			media.Caption = ""
			msg.Audio = media
		case messaging.TypeVideo:
			msg.Type = "video"
			msg.Video = media
		default:
			msg.Type = "document"
			msg.Document = media
		}
	default:
		return nil, fmt.Errorf("whatsapp: unsupported payload kind %q", payload.Kind)
	}
	return msg, nil
}

// APIError is a non-2xx response from the Cloud API.
type APIError struct {
	StatusCode int
	Code       int
	Type       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("whatsapp: %s (status=%d code=%d)", e.Message, e.StatusCode, e.Code)
	}
	return fmt.Sprintf("whatsapp: http status %d", e.StatusCode)
}

// ErrorBody returns the raw provider error body for persistence.
func (e *APIError) ErrorBody() string {
	return e.Body
}

func decodeAPIError(status int, body []byte) error {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    int    `json:"code"`
		} `json:"error"`
	}
	apiErr := &APIError{StatusCode: status, Body: string(body)}
	if err := json.Unmarshal(body, &parsed); err == nil {
		apiErr.Message = parsed.Error.Message
		apiErr.Type = parsed.Error.Type
		apiErr.Code = parsed.Error.Code
	}
	return apiErr
}
